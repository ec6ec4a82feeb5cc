package metrics

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/telemetry/clock"
	"github.com/GriffinCanCode/telemetry/config"
	"github.com/GriffinCanCode/telemetry/tags"
)

// ErrKindMismatch is returned when a metric name is re-registered with
// a different instrument kind.
var ErrKindMismatch = errors.New("metric already registered with a different kind")

// Scheduler runs periodic background work for the registry: instrument
// auto-updates, range-sampler refreshes, and the snapshot tick.
type Scheduler interface {
	Schedule(every time.Duration, fn func()) (cancel func())
}

// Registry is the name-indexed home of all metrics. Registration is
// idempotent; snapshotting is serialized; recording into instrument
// cells never contends with either.
type Registry struct {
	logger    *zap.Logger
	clk       clock.Clock
	scheduler Scheduler

	mu       sync.Mutex // serializes snapshots and period bookkeeping
	lastTo   time.Time
	families sync.Map // name -> *family

	cfgMu   sync.Mutex
	factory config.FactoryConfig
	tick    time.Duration
	aligned bool

	consumersMu sync.Mutex
	consumers   []func(*PeriodSnapshot)

	cancelsMu  sync.Mutex
	cancels    []func()
	tickCancel func()
	startTimer *time.Timer
	stopped    bool
}

// NewRegistry creates a registry. The scheduler may be nil, in which
// case auto-updates and snapshot ticks are disabled.
func NewRegistry(cfg *config.Config, clk clock.Clock, scheduler Scheduler, logger *zap.Logger) *Registry {
	if cfg == nil {
		cfg = config.Default()
	}
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		logger:    logger,
		clk:       clk,
		scheduler: scheduler,
		factory:   cfg.Metric.Factory,
		tick:      cfg.Metric.TickInterval,
		aligned:   cfg.Metric.OptimisticTickAlignment,
	}
	r.lastTo = clk.Now()
	return r
}

// Reconfigure applies a new configuration. Settings of already
// published metrics are not touched; the factory defaults affect only
// future registrations, and the snapshot tick is rescheduled.
func (r *Registry) Reconfigure(cfg *config.Config) {
	r.cfgMu.Lock()
	r.factory = cfg.Metric.Factory
	restart := r.tick != cfg.Metric.TickInterval || r.aligned != cfg.Metric.OptimisticTickAlignment
	r.tick = cfg.Metric.TickInterval
	r.aligned = cfg.Metric.OptimisticTickAlignment
	ticking := r.tickCancel != nil || r.startTimer != nil
	r.cfgMu.Unlock()

	if restart && ticking {
		r.stopTicking()
		r.StartTicking()
	}
}

// ============================================================================
// Registration
// ============================================================================

type family struct {
	name        string
	kind        Kind
	settings    Settings
	reg         *Registry
	instruments sync.Map // tags fingerprint -> cell
}

// Name returns the metric name.
func (f *family) Name() string { return f.name }

// Kind returns the instrument kind.
func (f *family) Kind() Kind { return f.kind }

// Settings returns the frozen settings the metric was published with.
func (f *family) Settings() Settings { return f.settings }

func (r *Registry) family(name string, kind Kind, opts []Option) (*family, error) {
	r.cfgMu.Lock()
	factory := r.factory
	r.cfgMu.Unlock()

	candidate := &family{
		name:     name,
		kind:     kind,
		settings: effectiveSettings(factory, kind, name, opts),
		reg:      r,
	}
	actual, loaded := r.families.LoadOrStore(name, candidate)
	f := actual.(*family)
	if !loaded {
		return f, nil
	}
	if f.kind != kind {
		return nil, fmt.Errorf("metric %q is a %s, requested %s: %w", name, f.kind, kind, ErrKindMismatch)
	}
	if f.settings != candidate.settings {
		r.logger.Warn("ignoring conflicting settings for already registered metric",
			zap.String("metric", name))
	}
	return f, nil
}

func (f *family) instrument(ts tags.Set, create func() any) any {
	key := ts.Fingerprint()
	if cell, ok := f.instruments.Load(key); ok {
		return cell
	}
	cell, _ := f.instruments.LoadOrStore(key, create())
	return cell
}

// Counter registers or looks up a counter metric.
func (r *Registry) Counter(name string, opts ...Option) (*CounterMetric, error) {
	f, err := r.family(name, KindCounter, opts)
	if err != nil {
		return nil, err
	}
	return &CounterMetric{f}, nil
}

// Gauge registers or looks up a gauge metric.
func (r *Registry) Gauge(name string, opts ...Option) (*GaugeMetric, error) {
	f, err := r.family(name, KindGauge, opts)
	if err != nil {
		return nil, err
	}
	return &GaugeMetric{f}, nil
}

// Histogram registers or looks up a histogram metric.
func (r *Registry) Histogram(name string, opts ...Option) (*HistogramMetric, error) {
	f, err := r.family(name, KindHistogram, opts)
	if err != nil {
		return nil, err
	}
	return &HistogramMetric{f}, nil
}

// Timer registers or looks up a timer metric.
func (r *Registry) Timer(name string, opts ...Option) (*TimerMetric, error) {
	f, err := r.family(name, KindTimer, opts)
	if err != nil {
		return nil, err
	}
	return &TimerMetric{f}, nil
}

// RangeSampler registers or looks up a range sampler metric.
func (r *Registry) RangeSampler(name string, opts ...Option) (*RangeSamplerMetric, error) {
	f, err := r.family(name, KindRangeSampler, opts)
	if err != nil {
		return nil, err
	}
	return &RangeSamplerMetric{f}, nil
}

// ============================================================================
// Metric handles
// ============================================================================

// CounterMetric is the named handle from which counter cells are
// obtained per tag set.
type CounterMetric struct{ *family }

// WithTags returns the counter cell for ts, creating it on first use.
func (m *CounterMetric) WithTags(ts tags.Set) *Counter {
	return m.instrument(ts, func() any {
		return &Counter{tags: ts, logger: m.reg.logger}
	}).(*Counter)
}

// WithoutTags returns the cell for the empty tag set.
func (m *CounterMetric) WithoutTags() *Counter { return m.WithTags(tags.Empty) }

// AutoUpdate schedules fn against the cell for ts at the metric's
// auto-update interval.
func (m *CounterMetric) AutoUpdate(ts tags.Set, fn func(*Counter)) (cancel func()) {
	cell := m.WithTags(ts)
	return m.reg.scheduleUpdate(m.name, m.settings.AutoUpdateInterval, func() { fn(cell) })
}

// GaugeMetric is the named handle from which gauge cells are obtained
// per tag set.
type GaugeMetric struct{ *family }

// WithTags returns the gauge cell for ts, creating it on first use.
func (m *GaugeMetric) WithTags(ts tags.Set) *Gauge {
	return m.instrument(ts, func() any {
		return &Gauge{tags: ts}
	}).(*Gauge)
}

// WithoutTags returns the cell for the empty tag set.
func (m *GaugeMetric) WithoutTags() *Gauge { return m.WithTags(tags.Empty) }

// AutoUpdate schedules fn against the cell for ts at the metric's
// auto-update interval.
func (m *GaugeMetric) AutoUpdate(ts tags.Set, fn func(*Gauge)) (cancel func()) {
	cell := m.WithTags(ts)
	return m.reg.scheduleUpdate(m.name, m.settings.AutoUpdateInterval, func() { fn(cell) })
}

// HistogramMetric is the named handle from which histogram cells are
// obtained per tag set.
type HistogramMetric struct{ *family }

// WithTags returns the histogram cell for ts, creating it on first use.
func (m *HistogramMetric) WithTags(ts tags.Set) *Histogram {
	return m.instrument(ts, func() any {
		return newHistogram(ts, m.settings.Range, m.reg.logger)
	}).(*Histogram)
}

// WithoutTags returns the cell for the empty tag set.
func (m *HistogramMetric) WithoutTags() *Histogram { return m.WithTags(tags.Empty) }

// TimerMetric is the named handle from which timer cells are obtained
// per tag set.
type TimerMetric struct{ *family }

// WithTags returns the timer cell for ts, creating it on first use.
func (m *TimerMetric) WithTags(ts tags.Set) *Timer {
	return m.instrument(ts, func() any {
		return &Timer{
			Histogram: newHistogram(ts, m.settings.Range, m.reg.logger),
			clock:     m.reg.clk,
		}
	}).(*Timer)
}

// WithoutTags returns the cell for the empty tag set.
func (m *TimerMetric) WithoutTags() *Timer { return m.WithTags(tags.Empty) }

// RangeSamplerMetric is the named handle from which range sampler cells
// are obtained per tag set. New cells are wired to the refresh
// scheduler at the metric's auto-update interval.
type RangeSamplerMetric struct{ *family }

// WithTags returns the range sampler cell for ts, creating it on first
// use.
func (m *RangeSamplerMetric) WithTags(ts tags.Set) *RangeSampler {
	key := ts.Fingerprint()
	if cell, ok := m.instruments.Load(key); ok {
		return cell.(*RangeSampler)
	}
	cell, loaded := m.instruments.LoadOrStore(key, newRangeSampler(ts, m.settings.Range))
	sampler := cell.(*RangeSampler)
	if !loaded {
		m.reg.scheduleUpdate(m.name, m.settings.AutoUpdateInterval, sampler.Sample)
	}
	return sampler
}

// WithoutTags returns the cell for the empty tag set.
func (m *RangeSamplerMetric) WithoutTags() *RangeSampler { return m.WithTags(tags.Empty) }

func (r *Registry) scheduleUpdate(name string, every time.Duration, fn func()) (cancel func()) {
	if r.scheduler == nil || every <= 0 {
		r.logger.Warn("metric auto-update not scheduled",
			zap.String("metric", name),
			zap.Duration("interval", every))
		return func() {}
	}
	cancel = r.scheduler.Schedule(every, fn)
	r.cancelsMu.Lock()
	r.cancels = append(r.cancels, cancel)
	r.cancelsMu.Unlock()
	return cancel
}

// ============================================================================
// Snapshots
// ============================================================================

// Snapshot collects every registered metric into a period snapshot.
// Only one snapshot runs at a time; the period begins where the
// previous snapshot ended.
func (r *Registry) Snapshot(reset bool) *PeriodSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clk.Now()
	snap := &PeriodSnapshot{From: r.lastTo, To: now}
	r.lastTo = now

	var names []string
	r.families.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)

	for _, name := range names {
		v, ok := r.families.Load(name)
		if !ok {
			continue
		}
		f := v.(*family)
		switch f.kind {
		case KindCounter:
			snap.Counters = append(snap.Counters, f.snapshotLong(reset))
		case KindGauge:
			snap.Gauges = append(snap.Gauges, f.snapshotDouble())
		case KindHistogram:
			snap.Histograms = append(snap.Histograms, f.snapshotDistribution(reset))
		case KindTimer:
			snap.Timers = append(snap.Timers, f.snapshotDistribution(reset))
		case KindRangeSampler:
			snap.RangeSamplers = append(snap.RangeSamplers, f.snapshotDistribution(reset))
		}
	}
	return snap
}

func (f *family) snapshotLong(reset bool) LongValueMetric {
	m := LongValueMetric{Name: f.name, Description: f.settings.Description, Unit: f.settings.Unit}
	f.instruments.Range(func(_, cell any) bool {
		c := cell.(*Counter)
		m.Instruments = append(m.Instruments, LongValue{Tags: c.tags, Value: c.snapshot(reset)})
		return true
	})
	return m
}

func (f *family) snapshotDouble() DoubleValueMetric {
	m := DoubleValueMetric{Name: f.name, Description: f.settings.Description, Unit: f.settings.Unit}
	f.instruments.Range(func(_, cell any) bool {
		g := cell.(*Gauge)
		m.Instruments = append(m.Instruments, DoubleValue{Tags: g.tags, Value: g.Value()})
		return true
	})
	return m
}

func (f *family) snapshotDistribution(reset bool) DistributionMetric {
	m := DistributionMetric{Name: f.name, Description: f.settings.Description, Unit: f.settings.Unit}
	f.instruments.Range(func(_, cell any) bool {
		switch c := cell.(type) {
		case *Histogram:
			m.Instruments = append(m.Instruments, DistributionValue{Tags: c.tags, Distribution: c.snapshot(reset)})
		case *Timer:
			m.Instruments = append(m.Instruments, DistributionValue{Tags: c.tags, Distribution: c.snapshot(reset)})
		case *RangeSampler:
			d, last := c.snapshot(reset)
			m.Instruments = append(m.Instruments, DistributionValue{Tags: c.tags, Distribution: d, LastValue: last})
		}
		return true
	})
	return m
}

// ============================================================================
// Periodic tick
// ============================================================================

// OnSnapshot registers a consumer for periodic snapshots.
func (r *Registry) OnSnapshot(fn func(*PeriodSnapshot)) {
	r.consumersMu.Lock()
	r.consumers = append(r.consumers, fn)
	r.consumersMu.Unlock()
}

// StartTicking begins periodic snapshotting at the configured tick
// interval, delivering each snapshot to the registered consumers. With
// optimistic tick alignment the first tick is delayed so that periods
// land on interval boundaries.
func (r *Registry) StartTicking() {
	if r.scheduler == nil {
		return
	}
	r.cfgMu.Lock()
	tick := r.tick
	aligned := r.aligned
	r.cfgMu.Unlock()

	start := func() {
		cancel := r.scheduler.Schedule(tick, r.deliverTick)
		r.cancelsMu.Lock()
		if r.stopped {
			r.cancelsMu.Unlock()
			cancel()
			return
		}
		r.tickCancel = cancel
		r.startTimer = nil
		r.cancelsMu.Unlock()
	}

	if !aligned {
		start()
		return
	}
	delay := clock.NextTick(r.clk.Now(), tick, true).Sub(r.clk.Now())
	timer := time.AfterFunc(delay, func() {
		r.deliverTick()
		start()
	})
	r.cancelsMu.Lock()
	r.startTimer = timer
	r.cancelsMu.Unlock()
}

func (r *Registry) deliverTick() {
	snap := r.Snapshot(true)
	r.consumersMu.Lock()
	consumers := make([]func(*PeriodSnapshot), len(r.consumers))
	copy(consumers, r.consumers)
	r.consumersMu.Unlock()
	for _, fn := range consumers {
		fn(snap)
	}
}

func (r *Registry) stopTicking() {
	r.cancelsMu.Lock()
	cancel := r.tickCancel
	timer := r.startTimer
	r.tickCancel = nil
	r.startTimer = nil
	r.cancelsMu.Unlock()
	if timer != nil {
		timer.Stop()
	}
	if cancel != nil {
		cancel()
	}
}

// Stop cancels the snapshot tick and every scheduled auto-update.
func (r *Registry) Stop() {
	r.stopTicking()
	r.cancelsMu.Lock()
	r.stopped = true
	cancels := r.cancels
	r.cancels = nil
	r.cancelsMu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}
