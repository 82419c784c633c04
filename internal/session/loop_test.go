package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoopRunsFixedSteps(t *testing.T) {
	var steps atomic.Int64
	loop := NewLoop(100, func(step time.Duration) {
		if step != 10*time.Millisecond {
			t.Errorf("expected 10ms step, got %v", step)
		}
		steps.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	loop.Start(ctx)
	time.Sleep(120 * time.Millisecond)
	cancel()
	loop.Wait()

	//1.- Roughly 12 steps fit into 120ms; allow generous scheduler slack.
	if got := steps.Load(); got < 5 || got > 30 {
		t.Fatalf("unexpected step count %d", got)
	}
}

func TestLoopDefaultsAndStepDuration(t *testing.T) {
	loop := NewLoop(0, nil)
	if loop.StepDuration() != time.Second/60 {
		t.Fatalf("expected 60hz default, got %v", loop.StepDuration())
	}
}

func TestTickMonitorTracksOverruns(t *testing.T) {
	monitor := NewTickMonitor(10 * time.Millisecond)
	monitor.Observe(4 * time.Millisecond)
	monitor.Observe(8 * time.Millisecond)
	monitor.Observe(25 * time.Millisecond)

	snapshot := monitor.Snapshot()
	if snapshot.Samples != 3 {
		t.Fatalf("expected 3 samples, got %d", snapshot.Samples)
	}
	if snapshot.Max != 25*time.Millisecond || snapshot.Last != 25*time.Millisecond {
		t.Fatalf("max/last wrong: %+v", snapshot)
	}
	if snapshot.Overruns != 1 {
		t.Fatalf("expected one overrun, got %d", snapshot.Overruns)
	}
	if snapshot.AverageHz() <= 0 {
		t.Fatalf("average hz must be positive")
	}
}

func TestTickMonitorIgnoresNonPositiveSamples(t *testing.T) {
	monitor := NewTickMonitor(time.Millisecond)
	monitor.Observe(0)
	monitor.Observe(-time.Second)
	if snapshot := monitor.Snapshot(); snapshot.Samples != 0 {
		t.Fatalf("expected no samples, got %+v", snapshot)
	}
}
