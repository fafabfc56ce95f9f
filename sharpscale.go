// Package sharpscale resamples scaled-down or scaled-up images in an HTML
// document with a high-quality Lanczos-3 kernel, replacing the browser's
// default box filtering.  Each eligible <img> is measured against its natural
// resolution, checked for pixel-readback safety, rendered at the displayed
// size, and swapped in as a generated surface; exact integer magnifications
// that cannot go through the kernel fall back to the CSS nearest-neighbor
// rendering hint.
package sharpscale

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mattew90/sharpscale/adapters/decoder"
	"github.com/mattew90/sharpscale/adapters/encoder"
	"github.com/mattew90/sharpscale/adapters/storage"
	"github.com/mattew90/sharpscale/config"
	"github.com/mattew90/sharpscale/core"
	"github.com/mattew90/sharpscale/dom"
	"github.com/mattew90/sharpscale/fallback"
	"github.com/mattew90/sharpscale/fetch"
	"github.com/mattew90/sharpscale/kernel"
	"github.com/mattew90/sharpscale/observe"
	"github.com/mattew90/sharpscale/safety"
)

// Re-export Format constants for convenience.
const (
	JPEG = core.FormatJPEG
	PNG  = core.FormatPNG
	WebP = core.FormatWebP
	GIF  = core.FormatGIF
	SVG  = core.FormatSVG
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// Engine is the primary entry point.  One Engine serves any number of
// documents; per-element state is keyed by node identity.
type Engine struct {
	cfg      config.Config
	reg      *core.DefaultRegistry
	loader   *fetch.Loader
	resolver *safety.Resolver
	kern     *kernel.Engine
	fb       *fallback.Renderer
	ctrl     *core.Controller
}

// New creates a fully wired Engine with default JPEG, PNG, WebP, and GIF
// codecs registered.  Pass a custom config.Config to override defaults.
// Configurations selecting the S3 rehost backend need a client and go through
// NewWithS3Client instead.
func New(cfg config.Config) (*Engine, error) {
	rehost, err := rehosterFor(cfg)
	if err != nil {
		return nil, err
	}
	return newEngine(cfg, rehost)
}

// NewWithS3Client creates an Engine whose refetch escape hatch uploads to an
// S3-compatible bucket through client.  cfg.Rehost must be config.RehostS3.
func NewWithS3Client(cfg config.Config, client storage.S3Client) (*Engine, error) {
	if cfg.Rehost != config.RehostS3 {
		return nil, fmt.Errorf("sharpscale: NewWithS3Client requires Rehost == %q, got %q", config.RehostS3, cfg.Rehost)
	}
	rehost, err := storage.NewS3(client, cfg.S3.Bucket, cfg.S3.URLPrefix)
	if err != nil {
		return nil, err
	}
	return newEngine(cfg, rehost)
}

func newEngine(cfg config.Config, rehost storage.Rehoster) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg := core.NewRegistry()
	reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG())
	reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG())
	reg.RegisterDecoder(core.FormatWebP, decoder.NewWebP())
	reg.RegisterDecoder(core.FormatGIF, decoder.NewGIF())
	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG(0))

	loader := fetch.NewLoader(reg, fetch.Options{
		Timeout:      cfg.FetchTimeout,
		MaxBytes:     cfg.MaxImageBytes,
		ChunkSize:    cfg.ChunkSize,
		UserAgent:    cfg.UserAgent,
		AllowNetwork: true,
	})

	resolver := safety.NewResolver(loader, rehost)

	kern := kernel.NewEngine(kernel.Options{
		PreferFloat:    cfg.PreferFloat,
		UseAccelerator: cfg.UseAccelerator,
	})
	fb := fallback.NewRenderer(cfg.ScaleTolerance)

	ctrl := core.NewController(cfg, loader, resolver, kern, fb, reg)

	return &Engine{
		cfg:      cfg,
		reg:      reg,
		loader:   loader,
		resolver: resolver,
		kern:     kern,
		fb:       fb,
		ctrl:     ctrl,
	}, nil
}

func rehosterFor(cfg config.Config) (storage.Rehoster, error) {
	switch cfg.Rehost {
	case config.RehostLocal:
		return storage.NewLocal(cfg.Local.RootDir, cfg.Local.URLPrefix, os.FileMode(cfg.Local.Permissions))
	case config.RehostS3:
		// An S3 target cannot be built from configuration alone; the client
		// carries credentials and transport.
		return nil, fmt.Errorf("sharpscale: s3 rehost requires a client, use NewWithS3Client")
	default:
		return storage.NewInline(), nil
	}
}

// SetLogger attaches a structured logger.
func (e *Engine) SetLogger(l core.Logger) {
	e.ctrl.SetLogger(l)
	e.kern.SetLogger(l)
}

// SetMetrics attaches a metrics collector.
func (e *Engine) SetMetrics(m core.MetricsCollector) {
	e.ctrl.SetMetrics(m)
	e.loader.SetMetrics(m)
}

// AddHook registers an observer for terminal task transitions.
func (e *Engine) AddHook(h core.Hook) { e.ctrl.AddHook(h) }

// SetRehoster overrides the refetch rehoster, e.g. with a storage.S3 target.
func (e *Engine) SetRehoster(r storage.Rehoster) { e.resolver.SetRehoster(r) }

// RegisterDecoder registers a custom decoder for the given format.
func (e *Engine) RegisterDecoder(f core.Format, d core.Decoder) { e.reg.RegisterDecoder(f, d) }

// RegisterEncoder registers a custom encoder for the given format.
func (e *Engine) RegisterEncoder(f core.Format, enc core.Encoder) { e.reg.RegisterEncoder(f, enc) }

// Registry returns the codec registry for direct wiring.
func (e *Engine) Registry() core.Registry { return e.reg }

// Loader returns the resource loader so callers can prime resources ahead of
// processing (the offline equivalent of a load event).
func (e *Engine) Loader() *fetch.Loader { return e.loader }

// Controller exposes the task controller for advanced integrations.
func (e *Engine) Controller() *core.Controller { return e.ctrl }

// Stats returns lightweight processing statistics.
func (e *Engine) Stats() (processed, errors int64) { return e.ctrl.Stats() }

// ProcessDocument runs the engine over every image element in doc until no
// task makes further progress.  Tasks parked on a pending load are retried
// once their resource arrives within the pass loop (refetch swaps resolve on
// the second pass).
func (e *Engine) ProcessDocument(ctx context.Context, doc *dom.Document) error {
	const maxPasses = 3
	for pass := 0; pass < maxPasses; pass++ {
		waiting := false
		for _, el := range doc.Images() {
			if el.IsSurface() {
				continue
			}
			if t, ok := e.ctrl.TaskFor(el); ok {
				src := el.ResolvedSrc()
				_, primed := e.loader.Lookup(src)
				switch {
				case t.Status() == core.StatusWaitingForLoad && primed:
					e.ctrl.Invalidate(el)
				case t.Status().Terminal() && t.Source() != src:
					// The element was re-pointed since its last evaluation;
					// its outcome is stale regardless of the new resource's
					// load state.
					e.ctrl.Invalidate(el)
				}
			}
			if e.ctrl.Process(ctx, el) == core.StatusWaitingForLoad {
				waiting = true
			}
		}
		if !waiting {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// ProcessHTML parses markup, processes it, and returns the serialized result.
// baseURL establishes the document origin for readback-safety decisions; pass
// "" for an origin-less document.
func (e *Engine) ProcessHTML(ctx context.Context, r io.Reader, baseURL string) (string, error) {
	doc, err := dom.Parse(r, baseURL)
	if err != nil {
		return "", err
	}
	if err := e.ProcessDocument(ctx, doc); err != nil {
		return "", err
	}
	return doc.HTML()
}

// Observe creates and starts a throttled observation scheduler for doc.
// Mutation notifications go to Scheduler.RequestScan; call Stop when the
// document is torn down.
func (e *Engine) Observe(doc *dom.Document) *observe.Scheduler {
	sched := observe.NewScheduler(e.cfg, doc, e.ctrl, e.loader)
	sched.Start()
	return sched
}
