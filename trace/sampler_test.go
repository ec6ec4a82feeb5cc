package trace

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/telemetry/config"
)

func builderFor(operation string) *SpanBuilder {
	return &SpanBuilder{operation: operation}
}

func TestConstantSamplers(t *testing.T) {
	if got := AlwaysSampler.Decide(builderFor("op")); got != DecisionSample {
		t.Errorf("AlwaysSampler = %v, want Sample", got)
	}
	if got := NeverSampler.Decide(builderFor("op")); got != DecisionDoNotSample {
		t.Errorf("NeverSampler = %v, want DoNotSample", got)
	}
}

func TestRandomSampler_BoundsCollapseToConstants(t *testing.T) {
	if NewRandomSampler(0) != NeverSampler {
		t.Error("probability 0 should collapse to NeverSampler")
	}
	if NewRandomSampler(-1) != NeverSampler {
		t.Error("negative probability should collapse to NeverSampler")
	}
	if NewRandomSampler(1) != AlwaysSampler {
		t.Error("probability 1 should collapse to AlwaysSampler")
	}
	if NewRandomSampler(2) != AlwaysSampler {
		t.Error("probability above 1 should collapse to AlwaysSampler")
	}
}

func TestRandomSampler_ProducesBothDecisions(t *testing.T) {
	s := NewRandomSampler(0.5)
	b := builderFor("op")

	sampled, rejected := 0, 0
	for i := 0; i < 10000; i++ {
		switch s.Decide(b) {
		case DecisionSample:
			sampled++
		case DecisionDoNotSample:
			rejected++
		default:
			t.Fatal("random sampler returned an unknown decision")
		}
	}
	if sampled == 0 || rejected == 0 {
		t.Errorf("sampled = %d, rejected = %d, both outcomes expected at p=0.5", sampled, rejected)
	}
}

func TestNewSampler_FallsBackOnUnknownName(t *testing.T) {
	cfg := config.Default().Trace
	cfg.Sampler = "unheard-of"

	s := newSampler(cfg, nil, zap.NewNop())
	if s == nil {
		t.Fatal("fallback sampler is nil")
	}
	r, ok := s.(randomSampler)
	if !ok {
		t.Fatalf("fallback sampler = %T, want the random sampler", s)
	}
	if r.probability != fallbackProbability {
		t.Errorf("fallback probability = %v, want %v", r.probability, fallbackProbability)
	}
}

func TestNewSampler_FallsBackOnFactoryError(t *testing.T) {
	cfg := config.Default().Trace
	cfg.Sampler = "adaptive"
	cfg.AdaptiveSampler.Throughput = 0 // invalid

	s := newSampler(cfg, nil, zap.NewNop())
	if _, ok := s.(randomSampler); !ok {
		t.Errorf("sampler = %T, a broken factory must degrade to random sampling", s)
	}
}

type panickySampler struct{}

func (panickySampler) Decide(*SpanBuilder) Decision { panic("boom") }

type confusedSampler struct{}

func (confusedSampler) Decide(*SpanBuilder) Decision { return Decision(42) }

func TestSafeDecide(t *testing.T) {
	if got := safeDecide(panickySampler{}, builderFor("op"), zap.NewNop()); got != DecisionDoNotSample {
		t.Errorf("panicking sampler = %v, want DoNotSample", got)
	}
	if got := safeDecide(confusedSampler{}, builderFor("op"), zap.NewNop()); got != DecisionDoNotSample {
		t.Errorf("out-of-range decision = %v, want DoNotSample", got)
	}
	if got := safeDecide(AlwaysSampler, builderFor("op"), zap.NewNop()); got != DecisionSample {
		t.Errorf("well-behaved sampler = %v, want Sample", got)
	}
}

func adaptiveConfig() config.AdaptiveSamplerConfig {
	return config.AdaptiveSamplerConfig{
		Throughput: 100,
		Groups: map[string]config.SamplerGroupConfig{
			"health": {
				Operations: []string{"^health.*"},
				Sample:     "never",
			},
			"payments": {
				Operations: []string{"^payments.*"},
				Sample:     "always",
			},
		},
	}
}

func TestAdaptiveSampler_ForcedGroups(t *testing.T) {
	s, err := newAdaptiveSampler(adaptiveConfig(), nil, zap.NewNop())
	if err != nil {
		t.Fatalf("newAdaptiveSampler failed: %v", err)
	}

	for i := 0; i < 100; i++ {
		if got := s.Decide(builderFor("health/check")); got != DecisionDoNotSample {
			t.Fatalf("never group decision = %v on call %d", got, i)
		}
	}
	if got := s.Decide(builderFor("payments/charge")); got != DecisionSample {
		t.Errorf("always group decision = %v, want Sample", got)
	}
}

func TestAdaptiveSampler_NewOperationsStartSampled(t *testing.T) {
	s, err := newAdaptiveSampler(adaptiveConfig(), nil, zap.NewNop())
	if err != nil {
		t.Fatalf("newAdaptiveSampler failed: %v", err)
	}
	for i := 0; i < 50; i++ {
		if got := s.Decide(builderFor("checkout")); got != DecisionSample {
			t.Fatalf("new ungrouped operation = %v on call %d, want Sample until the first rebalance", got, i)
		}
	}
}

func TestAdaptiveSampler_AdaptThrottlesHotOperations(t *testing.T) {
	cfg := config.AdaptiveSamplerConfig{Throughput: 10}
	sampler, err := newAdaptiveSampler(cfg, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("newAdaptiveSampler failed: %v", err)
	}
	s := sampler.(*adaptiveSampler)

	b := builderFor("hot")
	for i := 0; i < 10000; i++ {
		s.Decide(b)
	}
	s.adapt()
	s.Decide(b)
	s.adapt() // call rate now well above the budget

	sampled := 0
	for i := 0; i < 2000; i++ {
		if s.Decide(b) == DecisionSample {
			sampled++
		}
	}
	if sampled > 200 {
		t.Errorf("sampled %d of 2000 after adaptation, the probability should be far below 1", sampled)
	}
}

func TestAdaptiveSampler_RejectsBadConfiguration(t *testing.T) {
	if _, err := newAdaptiveSampler(config.AdaptiveSamplerConfig{Throughput: 0}, nil, zap.NewNop()); err == nil {
		t.Error("zero throughput must be rejected")
	}

	bad := adaptiveConfig()
	bad.Groups["typo"] = config.SamplerGroupConfig{Sample: "sometimes"}
	if _, err := newAdaptiveSampler(bad, nil, zap.NewNop()); err == nil {
		t.Error("unknown sample value must be rejected")
	}

	broken := adaptiveConfig()
	broken.Groups["regex"] = config.SamplerGroupConfig{Operations: []string{"("}}
	if _, err := newAdaptiveSampler(broken, nil, zap.NewNop()); err == nil {
		t.Error("invalid operation regex must be rejected")
	}
}

type recordingScheduler struct {
	intervals []time.Duration
	fns       []func()
	cancelled int
}

func (s *recordingScheduler) Schedule(every time.Duration, fn func()) func() {
	s.intervals = append(s.intervals, every)
	s.fns = append(s.fns, fn)
	return func() { s.cancelled++ }
}

func TestAdaptiveSampler_SchedulesAndStops(t *testing.T) {
	sched := &recordingScheduler{}
	sampler, err := newAdaptiveSampler(adaptiveConfig(), sched, zap.NewNop())
	if err != nil {
		t.Fatalf("newAdaptiveSampler failed: %v", err)
	}
	if len(sched.intervals) != 1 || sched.intervals[0] != adaptationInterval {
		t.Fatalf("scheduled intervals = %v, want one at %v", sched.intervals, adaptationInterval)
	}

	sampler.(*adaptiveSampler).stop()
	if sched.cancelled != 1 {
		t.Errorf("cancelled = %d, want 1", sched.cancelled)
	}
}
