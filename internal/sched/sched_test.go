package sched

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_RunsScheduledTask(t *testing.T) {
	p := NewPool(2, nil)
	defer p.Stop()

	var runs atomic.Int32
	cancel := p.Schedule(5*time.Millisecond, func() { runs.Add(1) })
	defer cancel()

	deadline := time.After(2 * time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("runs = %d after 2s, want at least 3", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPool_CancelStopsTheTask(t *testing.T) {
	p := NewPool(1, nil)
	defer p.Stop()

	var runs atomic.Int32
	cancel := p.Schedule(5*time.Millisecond, func() { runs.Add(1) })
	cancel()
	cancel() // second cancel is a no-op

	settled := runs.Load()
	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got > settled+1 {
		t.Errorf("runs kept climbing after cancel: %d -> %d", settled, got)
	}
}

func TestPool_SurvivesPanickingTasks(t *testing.T) {
	p := NewPool(1, nil)
	defer p.Stop()

	var after atomic.Bool
	p.Schedule(5*time.Millisecond, func() { panic("boom") })
	p.Schedule(5*time.Millisecond, func() { after.Store(true) })

	deadline := time.After(2 * time.Second)
	for !after.Load() {
		select {
		case <-deadline:
			t.Fatal("a panicking task starved the pool")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPool_ScheduleAfterStopIsANoop(t *testing.T) {
	p := NewPool(1, nil)
	p.Stop()
	p.Stop() // idempotent

	var runs atomic.Int32
	cancel := p.Schedule(time.Millisecond, func() { runs.Add(1) })
	cancel()
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != 0 {
		t.Error("tasks must not run on a stopped pool")
	}
}

func TestPool_NonPositiveIntervalIsRejected(t *testing.T) {
	p := NewPool(1, nil)
	defer p.Stop()

	var runs atomic.Int32
	cancel := p.Schedule(0, func() { runs.Add(1) })
	cancel()
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != 0 {
		t.Error("a non-positive interval must schedule nothing")
	}
}
