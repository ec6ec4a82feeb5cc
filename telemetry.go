package telemetry

import (
	"sync"

	"github.com/GriffinCanCode/telemetry/config"
	"github.com/GriffinCanCode/telemetry/internal/logging"
	"github.com/GriffinCanCode/telemetry/metrics"
	"github.com/GriffinCanCode/telemetry/propagation"
	"github.com/GriffinCanCode/telemetry/trace"
)

// The package-level façade owns one lazily created Runtime for hosts
// that do not want to thread a Runtime through their code.
var (
	defaultMu      sync.Mutex
	defaultRuntime *Runtime
)

// Init builds the default runtime from the given configuration and
// installs it. Calling Init after the default runtime has been used
// replaces it; the previous one is stopped.
func Init(cfg *config.Config, opts ...Option) (*Runtime, error) {
	r, err := NewRuntime(cfg, opts...)
	if err != nil {
		return nil, err
	}
	defaultMu.Lock()
	previous := defaultRuntime
	defaultRuntime = r
	defaultMu.Unlock()
	if previous != nil {
		previous.Stop()
	}
	return r, nil
}

// Default returns the default runtime, creating one from the default
// configuration on first use.
func Default() *Runtime {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRuntime == nil {
		// The default configuration always carries the required
		// channels, so construction cannot fail.
		defaultRuntime, _ = NewRuntime(nil, WithLogger(logging.FromEnvironment()))
	}
	return defaultRuntime
}

// Counter registers or looks up a counter on the default runtime.
func Counter(name string, opts ...metrics.Option) (*metrics.CounterMetric, error) {
	return Default().Metrics().Counter(name, opts...)
}

// Gauge registers or looks up a gauge on the default runtime.
func Gauge(name string, opts ...metrics.Option) (*metrics.GaugeMetric, error) {
	return Default().Metrics().Gauge(name, opts...)
}

// Histogram registers or looks up a histogram on the default runtime.
func Histogram(name string, opts ...metrics.Option) (*metrics.HistogramMetric, error) {
	return Default().Metrics().Histogram(name, opts...)
}

// Timer registers or looks up a timer on the default runtime.
func Timer(name string, opts ...metrics.Option) (*metrics.TimerMetric, error) {
	return Default().Metrics().Timer(name, opts...)
}

// RangeSampler registers or looks up a range sampler on the default
// runtime.
func RangeSampler(name string, opts ...metrics.Option) (*metrics.RangeSamplerMetric, error) {
	return Default().Metrics().RangeSampler(name, opts...)
}

// SpanBuilder starts accumulating a span on the default runtime.
func SpanBuilder(operation string) *trace.SpanBuilder {
	return Default().Tracer().SpanBuilder(operation)
}

// Channels returns the default runtime's propagation channels.
func Channels() *propagation.Channels {
	return Default().Channels()
}

// Reconfigure swaps the default runtime's configuration.
func Reconfigure(cfg *config.Config) {
	Default().Reconfigure(cfg)
}

// Stop shuts down the default runtime's scheduled work.
func Stop() {
	defaultMu.Lock()
	r := defaultRuntime
	defaultMu.Unlock()
	if r != nil {
		r.Stop()
	}
}
