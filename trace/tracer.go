package trace

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/telemetry/clock"
	"github.com/GriffinCanCode/telemetry/config"
	"github.com/GriffinCanCode/telemetry/flow"
	"github.com/GriffinCanCode/telemetry/internal/ring"
	"github.com/GriffinCanCode/telemetry/metrics"
	"github.com/GriffinCanCode/telemetry/tags"
)

// SpanMetricName is the histogram metric fed by finished spans that
// track metrics.
const SpanMetricName = "span.processing-time"

// ============================================================================
// Hooks
// ============================================================================

// PreStartHook runs on every span builder right before the start
// algorithm resolves the span. Panics are logged and swallowed.
type PreStartHook interface {
	BeforeStart(b *SpanBuilder)
}

// PreFinishHook runs on every span right before its finished record is
// built. The span is still open to mutations. Panics are logged and
// swallowed.
type PreFinishHook interface {
	BeforeFinish(s Span)
}

var hookRegistry = struct {
	sync.RWMutex
	preStart  map[string]func() PreStartHook
	preFinish map[string]func() PreFinishHook
}{
	preStart:  map[string]func() PreStartHook{},
	preFinish: map[string]func() PreFinishHook{},
}

// RegisterPreStartHook makes a named hook available to the
// trace.hooks.pre-start configuration key.
func RegisterPreStartHook(name string, factory func() PreStartHook) {
	hookRegistry.Lock()
	defer hookRegistry.Unlock()
	hookRegistry.preStart[name] = factory
}

// RegisterPreFinishHook makes a named hook available to the
// trace.hooks.pre-finish configuration key.
func RegisterPreFinishHook(name string, factory func() PreFinishHook) {
	hookRegistry.Lock()
	defer hookRegistry.Unlock()
	hookRegistry.preFinish[name] = factory
}

// ============================================================================
// Tracer
// ============================================================================

// tracerState is the immutable configuration snapshot hot paths read.
type tracerState struct {
	scheme                 Scheme
	sampler                Sampler
	joinRemoteParents      bool
	includeErrorStacktrace bool
	tagInitiatorService    bool
	tagParentOperation     bool
	queueSize              int
	preStart               []PreStartHook
	preFinish              []PreFinishHook
}

// Status reports the tracer's buffer health.
type Status struct {
	// DroppedSpans counts finished spans discarded because the buffer
	// was full. Never reset.
	DroppedSpans int64
	// BufferedSpans is the number of spans currently awaiting a drain.
	BufferedSpans int
	// BufferCapacity is the configured reporter queue size.
	BufferCapacity int
}

// Tracer builds spans and buffers their finished records until a
// reporter drains them via Spans.
type Tracer struct {
	logger     *zap.Logger
	clk        clock.Clock
	scheduler  Scheduler
	current    func() flow.Context
	spanMetric *metrics.TimerMetric

	mu      sync.Mutex // serializes reconfiguration
	st      atomic.Pointer[tracerState]
	buffer  atomic.Pointer[ring.Buffer[FinishedSpan]]
	dropped atomic.Int64
}

// NewTracer builds a tracer from the given configuration. The registry
// feeds the span processing time metric and may be nil to disable it.
func NewTracer(cfg *config.Config, clk clock.Clock, scheduler Scheduler, registry *metrics.Registry, logger *zap.Logger) *Tracer {
	if cfg == nil {
		cfg = config.Default()
	}
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracer{
		logger:    logger,
		clk:       clk,
		scheduler: scheduler,
		current:   func() flow.Context { return flow.Empty },
	}
	if registry != nil {
		metric, err := registry.Timer(SpanMetricName,
			metrics.WithDescription("Elapsed time between the start and finish of spans"))
		if err != nil {
			logger.Error("span metric unavailable", zap.Error(err))
		} else {
			t.spanMetric = metric
		}
	}
	st := t.buildState(cfg.Trace)
	t.st.Store(st)
	t.buffer.Store(ring.New[FinishedSpan](st.queueSize))
	return t
}

// SetContextProvider installs the callback that supplies the current
// context when a builder has no explicit one.
func (t *Tracer) SetContextProvider(fn func() flow.Context) {
	if fn != nil {
		t.current = fn
	}
}

func (t *Tracer) state() *tracerState { return t.st.Load() }

func (t *Tracer) buildState(cfg config.TraceConfig) *tracerState {
	scheme, err := SchemeFor(cfg.IdentifierScheme)
	if err != nil {
		t.logger.Error("identifier scheme unavailable", zap.Error(err))
	}
	st := &tracerState{
		scheme:                 scheme,
		sampler:                newSampler(cfg, t.scheduler, t.logger),
		joinRemoteParents:      cfg.JoinRemoteParentsWithSameSpanID,
		includeErrorStacktrace: cfg.IncludeErrorStacktrace,
		tagInitiatorService:    cfg.SpanMetricTags.InitiatorService,
		tagParentOperation:     cfg.SpanMetricTags.ParentOperation,
		queueSize:              cfg.ReporterQueueSize,
	}
	for _, name := range cfg.Hooks.PreStart {
		hookRegistry.RLock()
		factory, ok := hookRegistry.preStart[name]
		hookRegistry.RUnlock()
		if !ok {
			t.logger.Error("unknown pre-start hook", zap.String("hook", name))
			continue
		}
		st.preStart = append(st.preStart, factory())
	}
	for _, name := range cfg.Hooks.PreFinish {
		hookRegistry.RLock()
		factory, ok := hookRegistry.preFinish[name]
		hookRegistry.RUnlock()
		if !ok {
			t.logger.Error("unknown pre-finish hook", zap.String("hook", name))
			continue
		}
		st.preFinish = append(st.preFinish, factory())
	}
	return st
}

// Reconfigure swaps the tracer's configuration snapshot. Changing the
// reporter queue size replaces the buffer outright; spans buffered at
// that moment are lost.
func (t *Tracer) Reconfigure(cfg *config.Config) {
	if cfg == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	old := t.st.Load()
	st := t.buildState(cfg.Trace)
	t.st.Store(st)
	if old != nil {
		if s, ok := old.sampler.(stoppable); ok && old.sampler != st.sampler {
			s.stop()
		}
	}
	if old == nil || old.queueSize != st.queueSize {
		t.buffer.Store(ring.New[FinishedSpan](st.queueSize))
	}
}

// SpanBuilder starts accumulating a new span.
func (t *Tracer) SpanBuilder(operation string) *SpanBuilder {
	return &SpanBuilder{
		tracer:       t,
		operation:    operation,
		spanTags:     tags.NewBuilder(),
		metricTags:   tags.NewBuilder(),
		trackMetrics: true,
	}
}

// Spans drains every finished span currently buffered.
func (t *Tracer) Spans() []FinishedSpan {
	return t.buffer.Load().Drain()
}

// Status reports the buffer fill and the dropped-span count.
func (t *Tracer) Status() Status {
	buf := t.buffer.Load()
	return Status{
		DroppedSpans:   t.dropped.Load(),
		BufferedSpans:  buf.Len(),
		BufferCapacity: t.state().queueSize,
	}
}

// Stop cancels the sampler's scheduled adaptation work.
func (t *Tracer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st := t.st.Load(); st != nil {
		if s, ok := st.sampler.(stoppable); ok {
			s.stop()
		}
	}
}

func (t *Tracer) beforeStart(st *tracerState, b *SpanBuilder) {
	for _, hook := range st.preStart {
		t.runHook("pre-start", b.operation, func() { hook.BeforeStart(b) })
	}
}

func (t *Tracer) beforeFinish(s Span) {
	for _, hook := range t.state().preFinish {
		t.runHook("pre-finish", s.Operation(), func() { hook.BeforeFinish(s) })
	}
}

func (t *Tracer) runHook(stage, operation string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("span hook panicked",
				zap.String("stage", stage),
				zap.String("operation", operation),
				zap.Any("panic", r))
		}
	}()
	fn()
}

// onFinish publishes a finished span to the reporter buffer and feeds
// the span metric. A full buffer drops the span and counts it.
func (t *Tracer) onFinish(fs FinishedSpan) {
	if !t.buffer.Load().Offer(fs) {
		t.dropped.Add(1)
	}
	t.recordSpanMetric(fs)
}

func (t *Tracer) recordSpanMetric(fs FinishedSpan) {
	if t.spanMetric == nil || !fs.TrackMetrics || fs.Trace.Decision != DecisionSample {
		return
	}
	b := tags.NewBuilder().
		String("operation", fs.Operation).
		String("kind", fs.Kind.String()).
		Bool("error", fs.Failed)
	if fs.ParentOperation != "" {
		b.String(parentOperationTagKey, fs.ParentOperation)
	}
	t.spanMetric.WithTags(fs.MetricTags.Merge(b.Build())).Record(fs.Finish.Sub(fs.Start))
}
