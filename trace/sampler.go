package trace

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/telemetry/config"
)

// ============================================================================
// Sampler contract
// ============================================================================

// Sampler decides whether a new trace root should be sampled. Decide is
// called once per root at span-build time; it must return Sample or
// DoNotSample and must never block on the adaptation path.
type Sampler interface {
	Decide(b *SpanBuilder) Decision
}

// Scheduler runs the periodic adaptation work of samplers that need it.
// It mirrors the metric registry's scheduler contract.
type Scheduler interface {
	Schedule(every time.Duration, fn func()) (cancel func())
}

// stoppable is implemented by samplers holding scheduled work that must
// be cancelled when the tracer swaps them out.
type stoppable interface {
	stop()
}

// ============================================================================
// Constant sampler
// ============================================================================

type constantSampler struct {
	decision Decision
}

// AlwaysSampler samples every trace.
var AlwaysSampler Sampler = constantSampler{decision: DecisionSample}

// NeverSampler samples no trace.
var NeverSampler Sampler = constantSampler{decision: DecisionDoNotSample}

func (c constantSampler) Decide(*SpanBuilder) Decision { return c.decision }

// ============================================================================
// Random sampler
// ============================================================================

type randomSampler struct {
	probability float64
	threshold   uint64
}

// NewRandomSampler samples each root independently with the given
// probability. Probabilities at or beyond the [0, 1] bounds behave
// exactly like the constant samplers.
func NewRandomSampler(probability float64) Sampler {
	if probability <= 0 {
		return NeverSampler
	}
	if probability >= 1 {
		return AlwaysSampler
	}
	return randomSampler{
		probability: probability,
		threshold:   probabilityThreshold(probability),
	}
}

// probabilityThreshold maps p onto the uint64 draw space so that a
// uniform draw lands below it with probability p.
func probabilityThreshold(p float64) uint64 {
	if p >= 1 {
		return math.MaxUint64
	}
	if p <= 0 {
		return 0
	}
	return uint64(p * float64(math.MaxUint64))
}

func (r randomSampler) Decide(*SpanBuilder) Decision {
	if rand.Uint64() < r.threshold {
		return DecisionSample
	}
	return DecisionDoNotSample
}

// ============================================================================
// Sampler registry
// ============================================================================

// SamplerFactory builds a sampler from the trace configuration.
type SamplerFactory func(cfg config.TraceConfig, scheduler Scheduler, logger *zap.Logger) (Sampler, error)

var samplerRegistry = struct {
	sync.RWMutex
	factories map[string]SamplerFactory
}{factories: map[string]SamplerFactory{
	"always": func(config.TraceConfig, Scheduler, *zap.Logger) (Sampler, error) {
		return AlwaysSampler, nil
	},
	"never": func(config.TraceConfig, Scheduler, *zap.Logger) (Sampler, error) {
		return NeverSampler, nil
	},
	"random": func(cfg config.TraceConfig, _ Scheduler, _ *zap.Logger) (Sampler, error) {
		return NewRandomSampler(cfg.RandomSampler.Probability), nil
	},
	"adaptive": func(cfg config.TraceConfig, scheduler Scheduler, logger *zap.Logger) (Sampler, error) {
		return newAdaptiveSampler(cfg.AdaptiveSampler, scheduler, logger)
	},
}}

// RegisterSampler makes a named sampler available to the trace.sampler
// configuration key.
func RegisterSampler(name string, factory SamplerFactory) {
	samplerRegistry.Lock()
	defer samplerRegistry.Unlock()
	samplerRegistry.factories[name] = factory
}

// fallbackProbability is used when a configured sampler cannot be built.
const fallbackProbability = 0.1

// newSampler resolves the configured sampler name. Failures degrade to
// a random sampler at ten percent with a logged error.
func newSampler(cfg config.TraceConfig, scheduler Scheduler, logger *zap.Logger) Sampler {
	samplerRegistry.RLock()
	factory, ok := samplerRegistry.factories[cfg.Sampler]
	samplerRegistry.RUnlock()
	if !ok {
		logger.Error("unknown sampler, falling back to random sampling",
			zap.String("sampler", cfg.Sampler),
			zap.Float64("probability", fallbackProbability))
		return NewRandomSampler(fallbackProbability)
	}
	sampler, err := factory(cfg, scheduler, logger)
	if err != nil {
		logger.Error("sampler failed to build, falling back to random sampling",
			zap.String("sampler", cfg.Sampler),
			zap.Float64("probability", fallbackProbability),
			zap.Error(err))
		return NewRandomSampler(fallbackProbability)
	}
	return sampler
}

// safeDecide shields span creation from misbehaving samplers. A panic
// is logged and turns into DoNotSample.
func safeDecide(s Sampler, b *SpanBuilder, logger *zap.Logger) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("sampler panicked, not sampling",
				zap.Any("panic", r),
				zap.String("operation", b.operation))
			decision = DecisionDoNotSample
		}
	}()
	decision = s.Decide(b)
	if decision != DecisionSample && decision != DecisionDoNotSample {
		decision = DecisionDoNotSample
	}
	return decision
}
