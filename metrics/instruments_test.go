package metrics

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/telemetry/clock"
	"github.com/GriffinCanCode/telemetry/tags"
)

func testCounter() *Counter {
	return &Counter{logger: zap.NewNop()}
}

func TestCounter_AccumulatesAndResets(t *testing.T) {
	c := testCounter()
	c.Add(5)
	c.Add(3)
	c.Add(2)

	if got := c.snapshot(true); got != 10 {
		t.Errorf("snapshot = %d, want 10", got)
	}
	if got := c.snapshot(true); got != 0 {
		t.Errorf("snapshot after reset = %d, want 0", got)
	}
}

func TestCounter_RejectsNegativeIncrements(t *testing.T) {
	c := testCounter()
	c.Add(7)
	c.Add(-3)

	if got := c.Value(); got != 7 {
		t.Errorf("Value = %d, negative increments must be ignored", got)
	}
}

func TestGauge_SetAddSub(t *testing.T) {
	var g Gauge
	g.Set(10)
	g.Add(2.5)
	g.Sub(0.5)
	g.Inc()
	g.Dec()

	if got := g.Value(); got != 12 {
		t.Errorf("Value = %v, want 12", got)
	}
}

func TestHistogram_RecordsAndClamps(t *testing.T) {
	rng := DynamicRange{LowestDiscernibleValue: 1, HighestTrackableValue: 1000, SignificantValueDigits: 2}
	h := newHistogram(tags.Empty, rng, zap.NewNop())

	h.Record(10)
	h.RecordN(100, 3)
	h.Record(5000) // above the trackable range, clamped
	h.Record(-1)   // rejected

	d := h.snapshot(false)
	if d.Count != 5 {
		t.Fatalf("Count = %d, want 5", d.Count)
	}
	if d.Clamped != 1 {
		t.Errorf("Clamped = %d, want 1", d.Clamped)
	}
	if d.Max > 1010 {
		t.Errorf("Max = %d, clamped values must not exceed the trackable range", d.Max)
	}
	if got := d.Sum; got != 10+300+1000 {
		t.Errorf("Sum = %d, want %d", got, 10+300+1000)
	}
}

func TestHistogram_SnapshotReset(t *testing.T) {
	h := newHistogram(tags.Empty, DefaultRange, zap.NewNop())
	h.Record(42)

	if d := h.snapshot(true); d.Count != 1 {
		t.Fatalf("Count = %d, want 1", d.Count)
	}
	if d := h.snapshot(true); !d.IsEmpty() {
		t.Errorf("snapshot after reset should be empty, got count %d", d.Count)
	}
}

func TestDistribution_MeanAndPercentile(t *testing.T) {
	rng := DynamicRange{LowestDiscernibleValue: 1, HighestTrackableValue: 100000, SignificantValueDigits: 3}
	h := newHistogram(tags.Empty, rng, zap.NewNop())
	for v := int64(1); v <= 100; v++ {
		h.Record(v)
	}

	d := h.snapshot(false)
	if mean := d.Mean(); mean < 50 || mean > 51.5 {
		t.Errorf("Mean = %v, want about 50.5", mean)
	}
	if p50 := d.Percentile(50); p50 < 45 || p50 > 55 {
		t.Errorf("Percentile(50) = %d, want about 50", p50)
	}
	if p100 := d.Percentile(100); p100 < 100 {
		t.Errorf("Percentile(100) = %d, want at least 100", p100)
	}
	if p0 := d.Percentile(0); p0 < 1 {
		t.Errorf("Percentile(0) = %d, want at least the minimum", p0)
	}
}

func TestTimer_StopWatchRecordsElapsed(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	timer := &Timer{
		Histogram: newHistogram(tags.Empty, DefaultRange, zap.NewNop()),
		clock:     clk,
	}

	sw := timer.Start()
	clk.Advance(250 * time.Millisecond)
	sw.Stop()
	sw.Stop() // second stop must not record again

	d := timer.snapshot(false)
	if d.Count != 1 {
		t.Fatalf("Count = %d, want 1", d.Count)
	}
	elapsed := int64(250 * time.Millisecond)
	if d.Max < elapsed*99/100 || d.Max > elapsed*101/100 {
		t.Errorf("Max = %d, want about %d", d.Max, elapsed)
	}
}

func TestRangeSampler_TracksExtremes(t *testing.T) {
	rng := DynamicRange{LowestDiscernibleValue: 1, HighestTrackableValue: 1000, SignificantValueDigits: 2}
	r := newRangeSampler(tags.Empty, rng)

	r.Inc()
	r.Inc()
	r.Inc()
	r.Dec() // current 2, max 3
	r.Sample()

	d, last := r.snapshot(false)
	if last != 2 {
		t.Errorf("last = %d, want 2", last)
	}
	if d.Count != 3 {
		t.Fatalf("Count = %d, one Sample records min, current, and max", d.Count)
	}
	if d.Max < 3 {
		t.Errorf("Max = %d, the peak of 3 must be visible", d.Max)
	}
}

func TestRangeSampler_SampleResetsExtremes(t *testing.T) {
	r := newRangeSampler(tags.Empty, DefaultRange)
	r.Add(5)
	r.Sample()
	r.Sample() // extremes collapsed to the current value

	d, _ := r.snapshot(false)
	if d.Count != 6 {
		t.Errorf("Count = %d, want 6", d.Count)
	}
	if d.Min < 5 {
		t.Errorf("Min = %d, extremes must reset to the current value after a sample", d.Min)
	}
}
