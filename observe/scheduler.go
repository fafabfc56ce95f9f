// Package observe drives the per-document observation loop: it coalesces
// change notifications into throttled document scans, feeds image elements to
// the task controller, re-queues tasks parked on pending loads, and cleans up
// state for elements that left the document.
package observe

import (
	"context"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/mattew90/sharpscale/config"
	"github.com/mattew90/sharpscale/core"
	"github.com/mattew90/sharpscale/dom"
	apperrors "github.com/mattew90/sharpscale/errors"
	"github.com/mattew90/sharpscale/fetch"
)

type requestKind int

const (
	reqScan requestKind = iota
	reqElement
	reqLoad
)

type request struct {
	kind requestKind
	el   *dom.Element
	url  string
}

// Scheduler owns the single observation worker for one document.  All
// controller entry from the scheduler is serialized through that worker, so
// scan bursts cannot race each other.
type Scheduler struct {
	cfg    config.Config
	doc    *dom.Document
	ctrl   *core.Controller
	logger core.Logger

	baseCtx  context.Context
	requests chan request
	wg       sync.WaitGroup
	once     sync.Once
	stopOnce sync.Once
	shutdown chan struct{}

	mu sync.Mutex
	// Elements seen in the previous scan, for detach detection.
	known map[*html.Node]*dom.Element
}

// NewScheduler creates a Scheduler and subscribes it to the loader's load
// notifications.  Call Start() to launch the worker; Stop() when done.
func NewScheduler(cfg config.Config, doc *dom.Document, ctrl *core.Controller, loader *fetch.Loader) *Scheduler {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	s := &Scheduler{
		cfg:      cfg,
		doc:      doc,
		ctrl:     ctrl,
		baseCtx:  context.Background(),
		requests: make(chan request, queueSize),
		shutdown: make(chan struct{}),
		known:    make(map[*html.Node]*dom.Element),
	}
	if loader != nil {
		loader.OnLoad(func(url string) {
			s.enqueue(request{kind: reqLoad, url: url})
		})
	}
	return s
}

// SetLogger attaches a structured logger.
func (s *Scheduler) SetLogger(l core.Logger) { s.logger = l }

// Start launches the observation worker.  It is idempotent.
func (s *Scheduler) Start() {
	s.once.Do(func() {
		s.wg.Add(1)
		go s.worker()
	})
}

// Stop shuts the worker down and waits for it to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.shutdown) })
	s.wg.Wait()
}

// RequestScan asks for a full document scan.  Bursts coalesce: however many
// requests arrive within one throttle interval, at most one scan runs.
func (s *Scheduler) RequestScan() error {
	return s.enqueue(request{kind: reqScan})
}

// Observe asks for a single element to be (re)evaluated out of band.
func (s *Scheduler) Observe(el *dom.Element) error {
	return s.enqueue(request{kind: reqElement, el: el})
}

// ScanNow runs one synchronous scan pass, bypassing the worker and throttle.
// The controller serializes per-element work internally, so this is safe to
// call alongside a running worker.
func (s *Scheduler) ScanNow(ctx context.Context) {
	s.scan(ctx)
}

func (s *Scheduler) enqueue(req request) error {
	select {
	case s.requests <- req:
		return nil
	default:
		return apperrors.New(apperrors.CategoryController, "observe.enqueue", apperrors.ErrQueueFull)
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	interval := s.cfg.ThrottleInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	var (
		lastScan time.Time
		pending  bool
		timer    = time.NewTimer(0)
	)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-s.shutdown:
			return

		case req := <-s.requests:
			switch req.kind {
			case reqElement:
				if req.el != nil {
					s.ctrl.Process(s.baseCtx, req.el)
				}
			case reqLoad:
				s.handleLoad(req.url)
			case reqScan:
				if pending {
					break // already coalesced
				}
				if wait := interval - time.Since(lastScan); wait > 0 {
					pending = true
					timer.Reset(wait)
				} else {
					s.scan(s.baseCtx)
					lastScan = time.Now()
				}
			}

		case <-timer.C:
			if pending {
				pending = false
				s.scan(s.baseCtx)
				lastScan = time.Now()
			}
		}
	}
}

// handleLoad wakes every task the loaded URL concerns: tasks parked waiting
// for the resource, and terminal tasks whose element was re-pointed at it
// since their last evaluation.  Each is reset so the next evaluation sees the
// decoded resource, then re-entered.
func (s *Scheduler) handleLoad(url string) {
	for _, el := range s.ctrl.ResumableOn(url) {
		s.ctrl.Invalidate(el)
		s.ctrl.Process(s.baseCtx, el)
	}
}

// scan walks every image element in the document, skipping generated
// surfaces, and forgets elements that detached since the previous pass.
func (s *Scheduler) scan(ctx context.Context) {
	els := s.doc.Images()

	current := make(map[*html.Node]*dom.Element, len(els))
	for _, el := range els {
		if el.IsSurface() {
			continue
		}
		current[el.Node()] = el
		// A src swap since the last evaluation makes any terminal outcome
		// stale; revert it so this pass re-evaluates the new source.
		if t, ok := s.ctrl.TaskFor(el); ok && t.Status().Terminal() && t.Source() != el.ResolvedSrc() {
			s.ctrl.Invalidate(el)
		}
		s.ctrl.Process(ctx, el)
	}

	s.mu.Lock()
	prev := s.known
	s.known = current
	s.mu.Unlock()

	for node, el := range prev {
		if _, alive := current[node]; alive {
			continue
		}
		if s.doc.Contains(el) {
			continue // still attached, just filtered this pass
		}
		s.ctrl.Forget(el)
		if s.logger != nil {
			s.logger.Debug("observe.detached", "source", el.SourceID())
		}
	}
}
