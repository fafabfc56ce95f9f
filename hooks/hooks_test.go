package hooks

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mattew90/sharpscale/core"
)

func TestInMemoryMetricsSnapshot(t *testing.T) {
	m := NewInMemoryMetrics()
	m.RecordOutcome("resampled")
	m.RecordOutcome("resampled")
	m.RecordOutcome("failed")
	m.RecordBackend("software-float")
	m.RecordDuration("controller.process", 20*time.Millisecond)
	m.RecordFetchBytes(1024)
	m.RecordError("process", "controller")

	snap := m.Snapshot()
	if snap.Outcomes["resampled"] != 2 || snap.Outcomes["failed"] != 1 {
		t.Errorf("outcomes = %v", snap.Outcomes)
	}
	if snap.Backends["software-float"] != 1 {
		t.Errorf("backends = %v", snap.Backends)
	}
	if snap.OpCalls["controller.process"] != 1 || snap.DurationsMs["controller.process"] != 20 {
		t.Errorf("ops = %v / %v", snap.OpCalls, snap.DurationsMs)
	}
	if snap.TotalFetchB != 1024 {
		t.Errorf("fetch bytes = %d", snap.TotalFetchB)
	}
	if snap.OpErrors["process"] != 1 {
		t.Errorf("errors = %v", snap.OpErrors)
	}

	// The snapshot is a copy: mutating it does not touch the collector.
	snap.Outcomes["resampled"] = 99
	if m.Snapshot().Outcomes["resampled"] != 2 {
		t.Error("snapshot aliases collector state")
	}
}

func TestInMemoryMetricsConcurrent(t *testing.T) {
	m := NewInMemoryMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordOutcome("resampled")
				m.RecordFetchBytes(1)
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.Outcomes["resampled"] != 800 || snap.TotalFetchB != 800 {
		t.Errorf("snapshot = %v, %d", snap.Outcomes, snap.TotalFetchB)
	}
}

func TestLoggingHookLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	hook := NewLoggingHook(logger)

	hook.OnTerminal(context.Background(), core.Event{Status: core.StatusFailed, Source: "a.png", Reason: "origin restricted"})
	hook.OnTerminal(context.Background(), core.Event{Status: core.StatusResampled, Source: "b.png", Backend: "software-float"})
	hook.OnTerminal(context.Background(), core.Event{Status: core.StatusSkipped, Source: "c.svg", Reason: "vector source"})

	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "origin restricted") {
		t.Errorf("failed event not logged at error:\n%s", out)
	}
	if !strings.Contains(out, "level=INFO") || !strings.Contains(out, "software-float") {
		t.Errorf("resampled event not logged at info:\n%s", out)
	}
	if !strings.Contains(out, "level=DEBUG") || !strings.Contains(out, "vector source") {
		t.Errorf("skipped event not logged at debug:\n%s", out)
	}
}

func TestMetricsHookRecordsOutcomes(t *testing.T) {
	m := NewInMemoryMetrics()
	hook := NewMetricsHook(m)

	hook.OnTerminal(context.Background(), core.Event{Status: core.StatusResampled, Backend: "baseline"})
	hook.OnTerminal(context.Background(), core.Event{Status: core.StatusFailed, Reason: "kernel"})

	snap := m.Snapshot()
	if snap.Outcomes["resampled"] != 1 || snap.Outcomes["failed"] != 1 {
		t.Errorf("outcomes = %v", snap.Outcomes)
	}
	if snap.Backends["baseline"] != 1 {
		t.Errorf("backends = %v", snap.Backends)
	}
	if snap.OpErrors["task"] != 1 {
		t.Errorf("errors = %v", snap.OpErrors)
	}
}
