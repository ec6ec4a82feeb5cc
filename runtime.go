package telemetry

import (
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/telemetry/clock"
	"github.com/GriffinCanCode/telemetry/config"
	"github.com/GriffinCanCode/telemetry/flow"
	"github.com/GriffinCanCode/telemetry/internal/sched"
	"github.com/GriffinCanCode/telemetry/metrics"
	"github.com/GriffinCanCode/telemetry/propagation"
	"github.com/GriffinCanCode/telemetry/tags"
	"github.com/GriffinCanCode/telemetry/trace"
)

// Environment identifies the service a runtime emits telemetry for.
type Environment struct {
	Service  string
	Host     string
	Instance string
	Tags     tags.Set
}

// Option customizes a Runtime under construction.
type Option func(*options)

type options struct {
	logger *zap.Logger
	clk    clock.Clock
}

// WithLogger installs the logger every subsystem reports through.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock overrides the clock, mainly for tests.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clk = clk }
}

// Runtime owns one complete set of telemetry collaborators: the
// configuration hub, the scheduler pools, the metric registry, the
// tracer, and the propagation channels. Hosts typically run one
// Runtime per process, either directly or through the package-level
// façade.
type Runtime struct {
	logger      *zap.Logger
	clk         clock.Clock
	hub         *config.Hub
	pool        *sched.Pool
	refreshPool *sched.Pool
	registry    *metrics.Registry
	tracer      *trace.Tracer
	channels    atomic.Pointer[propagation.Channels]
	environment Environment
}

// NewRuntime wires a runtime from the given configuration. A nil
// configuration uses the defaults.
func NewRuntime(cfg *config.Config, opts ...Option) (*Runtime, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.clk == nil {
		o.clk = clock.System()
	}
	if cfg == nil {
		cfg = config.Default()
	}

	hub := config.NewHub(cfg, o.logger)
	cfg = hub.Current()

	channels, err := propagation.NewChannels(cfg, o.logger)
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		logger:      o.logger,
		clk:         o.clk,
		hub:         hub,
		pool:        sched.NewPool(cfg.SchedulerPoolSize, o.logger),
		refreshPool: sched.NewPool(cfg.Metric.RefreshSchedulerPoolSize, o.logger),
		environment: newEnvironment(cfg.Environment),
	}
	r.registry = metrics.NewRegistry(cfg, o.clk, r.refreshPool, o.logger)
	r.tracer = trace.NewTracer(cfg, o.clk, r.pool, r.registry, o.logger)
	r.channels.Store(channels)

	hub.OnReconfigure(r.applyConfig)
	r.registry.StartTicking()
	return r, nil
}

func newEnvironment(cfg config.EnvironmentConfig) Environment {
	env := Environment{
		Service:  cfg.Service,
		Host:     cfg.Host,
		Instance: cfg.Instance,
		Tags:     tags.FromStrings(cfg.Tags),
	}
	if env.Instance == "" {
		env.Instance = ulid.Make().String()
	}
	return env
}

// applyConfig pushes a new configuration snapshot into every subsystem.
// The propagation channels are rebuilt whole; if the new tree is
// invalid the previous channels stay in place.
func (r *Runtime) applyConfig(cfg *config.Config) {
	r.registry.Reconfigure(cfg)
	r.tracer.Reconfigure(cfg)
	channels, err := propagation.NewChannels(cfg, r.logger)
	if err != nil {
		r.logger.Error("keeping previous propagation channels", zap.Error(err))
		return
	}
	r.channels.Store(channels)
}

// Reconfigure swaps in a new configuration tree and notifies every
// subsystem.
func (r *Runtime) Reconfigure(cfg *config.Config) {
	r.hub.Reconfigure(cfg)
}

// Config returns the active configuration snapshot.
func (r *Runtime) Config() *config.Config { return r.hub.Current() }

// Hub exposes the configuration hub for subscribers outside the core.
func (r *Runtime) Hub() *config.Hub { return r.hub }

// Environment describes the service this runtime emits telemetry for.
func (r *Runtime) Environment() Environment { return r.environment }

// Metrics returns the metric registry.
func (r *Runtime) Metrics() *metrics.Registry { return r.registry }

// Tracer returns the tracer.
func (r *Runtime) Tracer() *trace.Tracer { return r.tracer }

// Channels returns the active propagation channels.
func (r *Runtime) Channels() *propagation.Channels { return r.channels.Load() }

// OutgoingContext prepares ctx for propagation by recording this
// runtime's service as the initiator tag. A tag the caller already set
// is kept.
func (r *Runtime) OutgoingContext(ctx flow.Context) flow.Context {
	if _, ok := ctx.Tags().String(trace.InitiatorTag); ok {
		return ctx
	}
	if r.environment.Service == "" {
		return ctx
	}
	return ctx.WithTag(trace.InitiatorTag, r.environment.Service)
}

// Stop shuts down the scheduled work. Buffered spans and pending
// snapshots stay available for a final drain.
func (r *Runtime) Stop() {
	r.tracer.Stop()
	r.registry.Stop()
	r.pool.Stop()
	r.refreshPool.Stop()
}
