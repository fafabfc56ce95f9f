package core

import (
	"context"
	"errors"
	"image"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/html"

	"github.com/mattew90/sharpscale/config"
	"github.com/mattew90/sharpscale/dom"
	apperrors "github.com/mattew90/sharpscale/errors"
	"github.com/mattew90/sharpscale/utils"
)

// shapeStyleProps are the presentational properties copied onto a generated
// surface so cropped or rounded presentations survive the swap.
var shapeStyleProps = []string{
	"border-radius",
	"object-fit",
	"object-position",
	"background",
	"box-shadow",
	"border",
}

// Task tracks one image element through the state machine.  The task observes
// the element; it never owns its lifetime.
type Task struct {
	el     *dom.Element
	status Status

	// Scale factors, valid once status has passed StatusEvaluated.
	scaleX, scaleY float64

	// Resolved source URL the last evaluation ran against.  A mismatch with
	// the element's current src means the source changed and any terminal
	// outcome is stale.
	sourceURL string

	// One refetch attempt per element, ever.
	refetchAttempted bool

	// The generated surface currently standing in for the element, if any.
	// Never two alive at once.
	surface *dom.Element

	// Style attribute exactly as it was before the element was hidden.
	savedStyle        string
	savedStylePresent bool
	savedStyleValid   bool

	// Re-entrancy guard: duplicate concurrent entry for the same element
	// must not double-insert a surface.
	busy bool
}

// Status returns the task's current state.
func (t *Task) Status() Status { return t.status }

// Scale returns the measured scale factors.
func (t *Task) Scale() (x, y float64) { return t.scaleX, t.scaleY }

// Source returns the resolved source URL of the last evaluation.
func (t *Task) Source() string { return t.sourceURL }

// Controller sequences Geometry → Safety → Kernel/Fallback per image element
// and records terminal outcomes so work is not repeated.
type Controller struct {
	cfg      config.Config
	analyzer *Analyzer
	loader   Loader
	safety   SafetyResolver
	kernel   Resampler
	fallback FallbackRenderer
	registry Registry

	logger  Logger
	metrics MetricsCollector
	hooks   []Hook

	mu    sync.Mutex
	tasks map[*html.Node]*Task

	processedCount int64
	errorCount     int64
}

// NewController wires the pipeline stages together.
func NewController(cfg config.Config, loader Loader, safety SafetyResolver, kernel Resampler, fb FallbackRenderer, reg Registry) *Controller {
	return &Controller{
		cfg:      cfg,
		analyzer: NewAnalyzer(cfg.ScaleTolerance),
		loader:   loader,
		safety:   safety,
		kernel:   kernel,
		fallback: fb,
		registry: reg,
		tasks:    make(map[*html.Node]*Task),
	}
}

// SetLogger attaches a structured logger.
func (c *Controller) SetLogger(l Logger) { c.logger = l }

// SetMetrics attaches a metrics collector.
func (c *Controller) SetMetrics(m MetricsCollector) { c.metrics = m }

// AddHook registers an observer for terminal transitions.
func (c *Controller) AddHook(h Hook) { c.hooks = append(c.hooks, h) }

// TaskFor returns the task for el, if one exists.
func (c *Controller) TaskFor(el *dom.Element) (*Task, bool) {
	c.mu.Lock()
	t, ok := c.tasks[el.Node()]
	c.mu.Unlock()
	return t, ok
}

// Process runs the state machine for one element.  It is idempotent: a
// terminal or in-flight task is returned untouched, so duplicate observation
// triggers cannot double-insert a surface.
func (c *Controller) Process(ctx context.Context, el *dom.Element) Status {
	if el.IsSurface() {
		return StatusUnseen
	}
	if !c.inScope(el) {
		return StatusUnseen
	}

	c.mu.Lock()
	t, ok := c.tasks[el.Node()]
	if !ok {
		t = &Task{el: el, status: StatusUnseen}
		c.tasks[el.Node()] = t
	}
	if t.busy || t.status.Terminal() {
		status := t.status
		c.mu.Unlock()
		return status
	}
	t.busy = true
	c.mu.Unlock()

	start := time.Now()
	status := c.run(ctx, t, el)
	if c.metrics != nil {
		c.metrics.RecordDuration("controller.process", time.Since(start))
	}

	c.mu.Lock()
	t.busy = false
	c.mu.Unlock()
	return status
}

// Invalidate resets the element's task after a new load notification or a
// source change: any generated surface is torn down, modifications reverted,
// and the next Process starts a fresh evaluation cycle.
func (c *Controller) Invalidate(el *dom.Element) {
	c.mu.Lock()
	t, ok := c.tasks[el.Node()]
	c.mu.Unlock()
	if !ok {
		return
	}
	c.teardown(t, el)
	c.mu.Lock()
	t.status = StatusUnseen
	t.scaleX, t.scaleY = 0, 0
	t.sourceURL = ""
	c.mu.Unlock()
}

// Forget drops all controller state for a detached element.
func (c *Controller) Forget(el *dom.Element) {
	c.mu.Lock()
	delete(c.tasks, el.Node())
	c.mu.Unlock()
	c.fallback.Forget(el)
}

// WaitingOn returns the elements currently suspended in WaitingForLoad whose
// resolved source equals rawURL.
func (c *Controller) WaitingOn(rawURL string) []*dom.Element {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*dom.Element
	for _, t := range c.tasks {
		if t.status == StatusWaitingForLoad && t.el.ResolvedSrc() == rawURL {
			out = append(out, t.el)
		}
	}
	return out
}

// ResumableOn returns the elements a load notification for rawURL should
// re-enter: tasks parked waiting for that resource, and terminal tasks whose
// element now points at rawURL after a source change.  The latter revert a
// stale outcome (surface, hint, skip, or failure) rendered from the previous
// source.
func (c *Controller) ResumableOn(rawURL string) []*dom.Element {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*dom.Element
	for _, t := range c.tasks {
		if t.el.ResolvedSrc() != rawURL {
			continue
		}
		if t.status == StatusWaitingForLoad || (t.status.Terminal() && t.sourceURL != rawURL) {
			out = append(out, t.el)
		}
	}
	return out
}

// Stats returns lightweight processing counters.
func (c *Controller) Stats() (processed, errors int64) {
	return atomic.LoadInt64(&c.processedCount), atomic.LoadInt64(&c.errorCount)
}

// ── state machine ─────────────────────────────────────────────────────────────

func (c *Controller) run(ctx context.Context, t *Task, el *dom.Element) Status {
	c.mu.Lock()
	t.sourceURL = el.ResolvedSrc()
	c.mu.Unlock()

	// Vector sources have no natural raster resolution to preserve.
	if el.VectorSource() {
		return c.finish(ctx, t, StatusSkipped, "vector source", "")
	}

	res, err := c.loader.Get(ctx, el.ResolvedSrc())
	if err != nil {
		if errors.Is(err, apperrors.ErrNotReady) || apperrors.IsRetryable(err) {
			return c.suspend(t)
		}
		return c.finish(ctx, t, StatusFailed, "load: "+err.Error(), "")
	}
	if res.Format.Vector() {
		return c.finish(ctx, t, StatusSkipped, "vector source", "")
	}

	info, err := c.analyzer.Analyze(el, res.Meta.Width, res.Meta.Height)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotReady) {
			return c.suspend(t)
		}
		return c.finish(ctx, t, StatusFailed, "geometry: "+err.Error(), "")
	}

	c.mu.Lock()
	t.scaleX, t.scaleY = info.ScaleX, info.ScaleY
	t.status = StatusEvaluated
	c.mu.Unlock()

	if !info.NeedsResampling {
		return c.finish(ctx, t, StatusSkipped, "scale within tolerance", "")
	}
	if c.belowThreshold(info) {
		return c.finish(ctx, t, StatusSkipped, "below zoom threshold", "")
	}

	switch c.safety.Resolve(el) {
	case SafetySafe:
		return c.resample(ctx, t, el, res, info)

	case SafetyUnsafeRefetchable:
		if t.refetchAttempted {
			return c.finish(ctx, t, StatusFailed, "origin restricted", "")
		}
		t.refetchAttempted = true
		if err := c.safety.Refetch(ctx, el); err != nil {
			// The original image stays exactly as the browser renders it.
			return c.finish(ctx, t, StatusFailed, "refetch: "+err.Error(), "")
		}
		// The src swap reloads the element; the load notification re-enters
		// the state machine with a safe source.
		return c.suspend(t)

	default:
		return c.finish(ctx, t, StatusFailed, "origin restricted", "")
	}
}

// resample runs the kernel and, on success, installs the replacement surface.
// Any failure falls through to the integer rendering hint, then to leaving
// the element untouched.
func (c *Controller) resample(ctx context.Context, t *Task, el *dom.Element, res *Resource, info ScaleInfo) Status {
	out, backend, err := c.kernel.Resample(ctx, res, info.TargetWidth, info.TargetHeight, info.ScaleX, info.ScaleY)
	if err == nil {
		if installErr := c.installSurface(ctx, t, el, out, info); installErr == nil {
			return c.finish(ctx, t, StatusResampled, "", backend)
		} else if c.logger != nil {
			c.logger.Warn("controller.surface.install_failed", "source", el.SourceID(), "error", installErr.Error())
		}
	} else if c.logger != nil {
		c.logger.Debug("controller.kernel.failed", "source", el.SourceID(), "error", err.Error())
	}

	if c.fallback.Apply(el, info.ScaleX, info.ScaleY) {
		return c.finish(ctx, t, StatusFallbackApplied, "", "hint")
	}
	reason := "kernel failed, hint not applicable"
	if err != nil {
		reason = "kernel: " + err.Error()
	}
	return c.finish(ctx, t, StatusFailed, reason, "")
}

// installSurface encodes the resampled raster, inserts it beside the original,
// and hides the original.  Document mutation happens only after the encode
// succeeds, so a failure anywhere leaves the element byte-identical.  The
// prior surface, if any, is removed first: an element never has two surfaces
// alive at once.
func (c *Controller) installSurface(ctx context.Context, t *Task, el *dom.Element, out image.Image, info ScaleInfo) error {
	enc, ok := c.registry.EncoderFor(FormatPNG)
	if !ok {
		return apperrors.New(apperrors.CategoryEncode, "controller.surface", apperrors.ErrUnsupportedFormat)
	}
	data, err := enc.Encode(ctx, out, EncodeOptions{})
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, "controller.surface", err)
	}

	c.removeSurface(t, el)

	surface := el.Document().CreateImage()
	surface.SetAttr(dom.SurfaceMarkerAttr, "true")
	surface.SetSrc(utils.EncodeDataURI(utils.FormatMIME(string(FormatPNG)), data))
	surface.SetAttr("width", strconv.Itoa(info.TargetWidth))
	surface.SetAttr("height", strconv.Itoa(info.TargetHeight))
	if alt, ok := el.Attr("alt"); ok {
		surface.SetAttr("alt", alt)
	}
	for _, prop := range shapeStyleProps {
		if v, ok := el.StyleValue(prop); ok {
			surface.SetStyleValue(prop, v)
		}
	}

	c.mu.Lock()
	if !t.savedStyleValid {
		t.savedStyle, t.savedStylePresent = el.Style()
		t.savedStyleValid = true
	}
	t.surface = surface
	c.mu.Unlock()

	el.InsertAfter(surface)
	el.SetDisplayNone()
	return nil
}

// removeSurface detaches the task's current surface, if any, and restores the
// original element's style attribute exactly as saved.
func (c *Controller) removeSurface(t *Task, el *dom.Element) {
	c.mu.Lock()
	surface := t.surface
	t.surface = nil
	saved, present, valid := t.savedStyle, t.savedStylePresent, t.savedStyleValid
	t.savedStyleValid = false
	c.mu.Unlock()

	if surface != nil {
		surface.Detach()
	}
	if valid {
		if present {
			el.SetStyle(saved)
		} else {
			el.RemoveAttr("style")
		}
	}
}

// teardown reverts every modification made for this task: generated surface,
// hidden-original styling, and any rendering hint.
func (c *Controller) teardown(t *Task, el *dom.Element) {
	c.removeSurface(t, el)
	c.fallback.Restore(el)
}

// suspend parks the task until a load notification arrives.  Not terminal, so
// no event is emitted.
func (c *Controller) suspend(t *Task) Status {
	c.mu.Lock()
	t.status = StatusWaitingForLoad
	c.mu.Unlock()
	return StatusWaitingForLoad
}

// finish records a terminal state and emits exactly one event for it.
func (c *Controller) finish(ctx context.Context, t *Task, status Status, reason, backend string) Status {
	c.mu.Lock()
	t.status = status
	ev := Event{
		Status: status,
		Source: t.el.SourceID(),
		Reason: reason,
		ScaleX: t.scaleX,
		ScaleY: t.scaleY,
		Backend: backend,
	}
	c.mu.Unlock()

	atomic.AddInt64(&c.processedCount, 1)
	if status == StatusFailed {
		atomic.AddInt64(&c.errorCount, 1)
	}

	if c.logger != nil {
		switch status {
		case StatusFailed:
			c.logger.Warn("controller.terminal", "status", status.String(), "source", ev.Source, "reason", reason)
		default:
			c.logger.Debug("controller.terminal", "status", status.String(), "source", ev.Source, "reason", reason, "backend", backend)
		}
	}
	if c.metrics != nil {
		c.metrics.RecordOutcome(status.String())
		if backend != "" {
			c.metrics.RecordBackend(backend)
		}
		if status == StatusFailed {
			c.metrics.RecordError("process", "controller")
		}
	}
	for _, h := range c.hooks {
		h.OnTerminal(ctx, ev)
	}
	return status
}

// inScope applies the configuration gate: disabled engines never start a
// task, and flagged scope requires the opt-in attribute.
func (c *Controller) inScope(el *dom.Element) bool {
	if !c.cfg.Enabled {
		return false
	}
	if c.cfg.Scope == config.ScopeFlagged && !el.HasAttr(c.cfg.FlagAttribute) {
		return false
	}
	return true
}

// belowThreshold reports whether an eligible magnification falls under the
// configured minimum zoom ratio.  Minification is never thresholded.
func (c *Controller) belowThreshold(info ScaleInfo) bool {
	if c.cfg.MinScale <= 0 {
		return false
	}
	m := math.Max(info.ScaleX, info.ScaleY)
	return m > 1 && m < c.cfg.MinScale
}
