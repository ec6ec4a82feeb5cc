package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/telemetry/clock"
	"github.com/GriffinCanCode/telemetry/tags"
)

// ============================================================================
// Counter
// ============================================================================

// Counter accumulates monotonic non-negative increments.
type Counter struct {
	tags   tags.Set
	value  atomic.Int64
	logger *zap.Logger
}

// Tags returns the tag set this cell was created with.
func (c *Counter) Tags() tags.Set { return c.tags }

// Inc adds one to the counter.
func (c *Counter) Inc() { c.value.Add(1) }

// Add adds n to the counter. Negative increments are rejected.
func (c *Counter) Add(n int64) {
	if n < 0 {
		c.logger.Warn("ignoring negative counter increment", zap.Int64("value", n))
		return
	}
	c.value.Add(n)
}

// Value returns the accumulated count since the last reset.
func (c *Counter) Value() int64 { return c.value.Load() }

func (c *Counter) snapshot(reset bool) int64 {
	if reset {
		return c.value.Swap(0)
	}
	return c.value.Load()
}

// ============================================================================
// Gauge
// ============================================================================

// Gauge tracks an instantaneous floating point value.
type Gauge struct {
	tags tags.Set
	bits atomic.Uint64
}

// Tags returns the tag set this cell was created with.
func (g *Gauge) Tags() tags.Set { return g.tags }

// Set replaces the gauge value.
func (g *Gauge) Set(v float64) { g.bits.Store(math.Float64bits(v)) }

// Add adds delta to the gauge value.
func (g *Gauge) Add(delta float64) {
	for {
		old := g.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if g.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Sub subtracts delta from the gauge value.
func (g *Gauge) Sub(delta float64) { g.Add(-delta) }

// Inc adds one to the gauge value.
func (g *Gauge) Inc() { g.Add(1) }

// Dec subtracts one from the gauge value.
func (g *Gauge) Dec() { g.Add(-1) }

// Value returns the current gauge value.
func (g *Gauge) Value() float64 { return math.Float64frombits(g.bits.Load()) }

// ============================================================================
// Histogram and Timer
// ============================================================================

// Histogram records non-negative values into a high-dynamic-range
// digest. Values above the highest trackable value are clamped to it
// and counted; values below the lowest discernible value are recorded
// at the lowest.
type Histogram struct {
	tags    tags.Set
	rng     DynamicRange
	logger  *zap.Logger
	mu      sync.Mutex
	digest  *hdrhistogram.Histogram
	sum     int64
	clamped int64
}

func newHistogram(ts tags.Set, rng DynamicRange, logger *zap.Logger) *Histogram {
	return &Histogram{
		tags:   ts,
		rng:    rng,
		logger: logger,
		digest: hdrhistogram.New(rng.LowestDiscernibleValue, rng.HighestTrackableValue, rng.SignificantValueDigits),
	}
}

// Tags returns the tag set this cell was created with.
func (h *Histogram) Tags() tags.Set { return h.tags }

// Record records one occurrence of v.
func (h *Histogram) Record(v int64) { h.RecordN(v, 1) }

// RecordN records n occurrences of v.
func (h *Histogram) RecordN(v, n int64) {
	if n <= 0 {
		return
	}
	if v < 0 {
		h.logger.Warn("ignoring negative histogram value", zap.Int64("value", v))
		return
	}
	clamped := false
	if v > h.rng.HighestTrackableValue {
		v = h.rng.HighestTrackableValue
		clamped = true
	}
	if v < h.rng.LowestDiscernibleValue {
		v = h.rng.LowestDiscernibleValue
	}

	h.mu.Lock()
	if err := h.digest.RecordValues(v, n); err == nil {
		h.sum += v * n
		if clamped {
			h.clamped += n
		}
	}
	h.mu.Unlock()
}

func (h *Histogram) snapshot(reset bool) *Distribution {
	h.mu.Lock()
	defer h.mu.Unlock()
	d := snapshotDigest(h.digest, h.sum, h.clamped)
	if reset {
		h.digest.Reset()
		h.sum = 0
		h.clamped = 0
	}
	return d
}

// Timer is a Histogram of elapsed nanoseconds.
type Timer struct {
	*Histogram
	clock clock.Clock
}

// Record records an elapsed duration.
func (t *Timer) Record(d time.Duration) {
	t.Histogram.Record(int64(d))
}

// Start begins a stopwatch; Stop records the elapsed time.
func (t *Timer) Start() *StopWatch {
	return &StopWatch{timer: t, start: t.clock.Now()}
}

// Time runs fn and records its duration.
func (t *Timer) Time(fn func()) {
	sw := t.Start()
	fn()
	sw.Stop()
}

// StopWatch measures one timed interval.
type StopWatch struct {
	timer *Timer
	start time.Time
	done  atomic.Bool
}

// Stop records the elapsed time. Only the first call records.
func (s *StopWatch) Stop() {
	if s.done.Swap(true) {
		return
	}
	s.timer.Record(s.timer.clock.Now().Sub(s.start))
}

// ============================================================================
// Range sampler
// ============================================================================

// RangeSampler tracks a count of concurrent tokens and periodically
// samples the observed current, minimum, and maximum into a digest, so
// that short-lived excursions between snapshots are not lost.
type RangeSampler struct {
	tags    tags.Set
	current atomic.Int64
	min     atomic.Int64
	max     atomic.Int64

	mu     sync.Mutex
	digest *hdrhistogram.Histogram
	sum    int64
}

func newRangeSampler(ts tags.Set, rng DynamicRange) *RangeSampler {
	return &RangeSampler{
		tags:   ts,
		digest: hdrhistogram.New(rng.LowestDiscernibleValue, rng.HighestTrackableValue, rng.SignificantValueDigits),
	}
}

// Tags returns the tag set this cell was created with.
func (r *RangeSampler) Tags() tags.Set { return r.tags }

// Inc acquires one token.
func (r *RangeSampler) Inc() { r.Add(1) }

// Dec releases one token.
func (r *RangeSampler) Dec() { r.Add(-1) }

// Add moves the token count by delta and updates the tracked extremes.
func (r *RangeSampler) Add(delta int64) {
	v := r.current.Add(delta)
	for {
		max := r.max.Load()
		if v <= max || r.max.CompareAndSwap(max, v) {
			break
		}
	}
	for {
		min := r.min.Load()
		if v >= min || r.min.CompareAndSwap(min, v) {
			break
		}
	}
}

// Value returns the current token count.
func (r *RangeSampler) Value() int64 { return r.current.Load() }

// Sample records the current value and the extremes observed since the
// previous sample into the digest. The refresh scheduler calls this at
// the configured auto-update interval.
func (r *RangeSampler) Sample() {
	v := r.current.Load()
	min := r.min.Swap(v)
	max := r.max.Swap(v)
	if min > v {
		min = v
	}
	if max < v {
		max = v
	}

	r.mu.Lock()
	for _, sample := range [3]int64{nonNegative(min), nonNegative(v), nonNegative(max)} {
		if err := r.digest.RecordValue(sample); err == nil {
			r.sum += sample
		}
	}
	r.mu.Unlock()
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func (r *RangeSampler) snapshot(reset bool) (*Distribution, int64) {
	last := r.current.Load()
	r.mu.Lock()
	defer r.mu.Unlock()
	d := snapshotDigest(r.digest, r.sum, 0)
	if reset {
		r.digest.Reset()
		r.sum = 0
	}
	return d, last
}
