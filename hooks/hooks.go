// Package hooks provides production-ready Hook, Logger, and metrics
// implementations.
package hooks

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mattew90/sharpscale/core"
)

// ── Structured logger adapter ─────────────────────────────────────────────────

// SlogLogger wraps the standard library slog.Logger to satisfy core.Logger.
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger creates a logger backed by slog.
func NewSlogLogger(l *slog.Logger) *SlogLogger { return &SlogLogger{log: l} }

func (s *SlogLogger) Debug(msg string, fields ...interface{}) {
	s.log.Debug(msg, toAttrs(fields)...)
}
func (s *SlogLogger) Info(msg string, fields ...interface{}) {
	s.log.Info(msg, toAttrs(fields)...)
}
func (s *SlogLogger) Warn(msg string, fields ...interface{}) {
	s.log.Warn(msg, toAttrs(fields)...)
}
func (s *SlogLogger) Error(msg string, fields ...interface{}) {
	s.log.Error(msg, toAttrs(fields)...)
}

func toAttrs(fields []interface{}) []any { return fields }

// ── Logging hook ──────────────────────────────────────────────────────────────

// LoggingHook logs every terminal task transition.
type LoggingHook struct {
	logger core.Logger
}

// NewLoggingHook creates a LoggingHook.
func NewLoggingHook(l core.Logger) *LoggingHook { return &LoggingHook{logger: l} }

func (h *LoggingHook) OnTerminal(_ context.Context, ev core.Event) {
	switch ev.Status {
	case core.StatusFailed:
		h.logger.Error("task.terminal",
			"status", ev.Status.String(),
			"source", ev.Source,
			"reason", ev.Reason,
			"scale_x", ev.ScaleX,
			"scale_y", ev.ScaleY,
		)
	case core.StatusResampled, core.StatusFallbackApplied:
		h.logger.Info("task.terminal",
			"status", ev.Status.String(),
			"source", ev.Source,
			"backend", ev.Backend,
			"scale_x", ev.ScaleX,
			"scale_y", ev.ScaleY,
		)
	default:
		h.logger.Debug("task.terminal",
			"status", ev.Status.String(),
			"source", ev.Source,
			"reason", ev.Reason,
		)
	}
}

// ── In-memory metrics collector ───────────────────────────────────────────────

// InMemoryMetrics accumulates metrics atomically; safe for concurrent use.
type InMemoryMetrics struct {
	mu sync.RWMutex

	outcomes    map[string]int64 // terminal count per status
	backends    map[string]int64 // resample count per backend
	durationsMs map[string]int64 // cumulative ms per op
	opCalls     map[string]int64 // call count per op
	opErrors    map[string]int64

	totalFetchB int64
}

// NewInMemoryMetrics creates an empty metrics store.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		outcomes:    make(map[string]int64),
		backends:    make(map[string]int64),
		durationsMs: make(map[string]int64),
		opCalls:     make(map[string]int64),
		opErrors:    make(map[string]int64),
	}
}

func (m *InMemoryMetrics) RecordOutcome(status string) {
	m.mu.Lock()
	m.outcomes[status]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordBackend(backend string) {
	m.mu.Lock()
	m.backends[backend]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordDuration(op string, d interface{ Seconds() float64 }) {
	ms := int64(d.Seconds() * 1000)
	m.mu.Lock()
	m.durationsMs[op] += ms
	m.opCalls[op]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordFetchBytes(n int64) {
	atomic.AddInt64(&m.totalFetchB, n)
}

func (m *InMemoryMetrics) RecordError(op string, _ string) {
	m.mu.Lock()
	m.opErrors[op]++
	m.mu.Unlock()
}

// Snapshot returns a copy of current metrics.
func (m *InMemoryMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		Outcomes:    make(map[string]int64, len(m.outcomes)),
		Backends:    make(map[string]int64, len(m.backends)),
		DurationsMs: make(map[string]int64, len(m.durationsMs)),
		OpCalls:     make(map[string]int64, len(m.opCalls)),
		OpErrors:    make(map[string]int64, len(m.opErrors)),
		TotalFetchB: atomic.LoadInt64(&m.totalFetchB),
	}
	for k, v := range m.outcomes {
		snap.Outcomes[k] = v
	}
	for k, v := range m.backends {
		snap.Backends[k] = v
	}
	for k, v := range m.durationsMs {
		snap.DurationsMs[k] = v
	}
	for k, v := range m.opCalls {
		snap.OpCalls[k] = v
	}
	for k, v := range m.opErrors {
		snap.OpErrors[k] = v
	}
	return snap
}

// MetricsSnapshot is an immutable point-in-time copy of metrics.
type MetricsSnapshot struct {
	Outcomes    map[string]int64
	Backends    map[string]int64
	DurationsMs map[string]int64
	OpCalls     map[string]int64
	OpErrors    map[string]int64
	TotalFetchB int64
}

// ── Metrics hook ──────────────────────────────────────────────────────────────

// MetricsHook feeds terminal events into a MetricsCollector, for wiring a
// collector that is not attached to the controller directly.
type MetricsHook struct {
	collector core.MetricsCollector
}

// NewMetricsHook creates a MetricsHook.
func NewMetricsHook(c core.MetricsCollector) *MetricsHook { return &MetricsHook{collector: c} }

func (h *MetricsHook) OnTerminal(_ context.Context, ev core.Event) {
	h.collector.RecordOutcome(ev.Status.String())
	if ev.Backend != "" {
		h.collector.RecordBackend(ev.Backend)
	}
	if ev.Status == core.StatusFailed {
		h.collector.RecordError("task", ev.Reason)
	}
}

var (
	_ core.Logger           = (*SlogLogger)(nil)
	_ core.Hook             = (*LoggingHook)(nil)
	_ core.Hook             = (*MetricsHook)(nil)
	_ core.MetricsCollector = (*InMemoryMetrics)(nil)
)
