package trace

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/telemetry/config"
)

// adaptationInterval is the cadence at which per-operation sampling
// probabilities are rebalanced.
const adaptationInterval = time.Second

// ewmaWeight is the weight of the newest observation in the smoothed
// per-operation call rate.
const ewmaWeight = 0.5

// adaptiveSampler distributes a global sampled-traces-per-second budget
// across the operation names it observes. Decisions read an atomic
// per-operation probability snapshot; a scheduled adapter recomputes
// the probabilities once per second from the observed call rates.
type adaptiveSampler struct {
	throughput float64
	groups     []samplerGroup
	logger     *zap.Logger

	ops    sync.Map // operation name -> *operationSampler
	cancel func()
}

type samplerGroup struct {
	name     string
	patterns []*regexp.Regexp
	forced   Decision // DecisionUnknown when the group balances
	min      float64
	max      float64
}

func (g *samplerGroup) matches(operation string) bool {
	for _, p := range g.patterns {
		if p.MatchString(operation) {
			return true
		}
	}
	return false
}

type operationSampler struct {
	name      string
	group     *samplerGroup
	forced    Decision
	limiter   *rate.Limiter
	threshold atomic.Uint64
	observed  atomic.Int64

	// callRate is the smoothed calls-per-second estimate. Only the
	// adapter tick reads and writes it.
	callRate float64
}

func newAdaptiveSampler(cfg config.AdaptiveSamplerConfig, scheduler Scheduler, logger *zap.Logger) (Sampler, error) {
	throughput := cfg.Throughput
	if throughput <= 0 {
		return nil, fmt.Errorf("adaptive sampler throughput must be positive, got %v", throughput)
	}

	names := make([]string, 0, len(cfg.Groups))
	for name := range cfg.Groups {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([]samplerGroup, 0, len(names))
	for _, name := range names {
		gc := cfg.Groups[name]
		g := samplerGroup{name: name, min: gc.MinThroughput, max: gc.MaxThroughput}
		switch gc.Sample {
		case "always":
			g.forced = DecisionSample
		case "never":
			g.forced = DecisionDoNotSample
		case "":
		default:
			return nil, fmt.Errorf("sampler group %q: sample must be always, never, or empty, got %q", name, gc.Sample)
		}
		for _, expr := range gc.Operations {
			p, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("sampler group %q: %w", name, err)
			}
			g.patterns = append(g.patterns, p)
		}
		groups = append(groups, g)
	}

	s := &adaptiveSampler{
		throughput: throughput,
		groups:     groups,
		logger:     logger,
	}
	if scheduler != nil {
		s.cancel = scheduler.Schedule(adaptationInterval, s.adapt)
	} else {
		logger.Warn("adaptive sampler has no scheduler, probabilities will not adapt")
	}
	return s, nil
}

func (s *adaptiveSampler) Decide(b *SpanBuilder) Decision {
	op := s.operation(b.operation)
	op.observed.Add(1)

	switch op.forced {
	case DecisionSample:
		if op.limiter != nil && !op.limiter.Allow() {
			return DecisionDoNotSample
		}
		return DecisionSample
	case DecisionDoNotSample:
		return DecisionDoNotSample
	}

	if rand.Uint64() >= op.threshold.Load() {
		return DecisionDoNotSample
	}
	if op.limiter != nil && !op.limiter.Allow() {
		return DecisionDoNotSample
	}
	return DecisionSample
}

func (s *adaptiveSampler) operation(name string) *operationSampler {
	if existing, ok := s.ops.Load(name); ok {
		return existing.(*operationSampler)
	}
	op := &operationSampler{name: name}
	for i := range s.groups {
		if s.groups[i].matches(name) {
			op.group = &s.groups[i]
			op.forced = s.groups[i].forced
			if s.groups[i].max > 0 {
				op.limiter = rate.NewLimiter(rate.Limit(s.groups[i].max), int(s.groups[i].max)+1)
			}
			break
		}
	}
	// New operations start fully sampled and converge on the next tick.
	op.threshold.Store(probabilityThreshold(1))
	actual, _ := s.ops.LoadOrStore(name, op)
	return actual.(*operationSampler)
}

// adapt rebalances the per-operation probabilities. Grouped operations
// get at least their group minimum, never more than the group maximum,
// and the remaining budget spreads proportionally to observed demand.
func (s *adaptiveSampler) adapt() {
	var balanced []*operationSampler
	s.ops.Range(func(_, value any) bool {
		op := value.(*operationSampler)
		observed := float64(op.observed.Swap(0))
		op.callRate = ewmaWeight*observed + (1-ewmaWeight)*op.callRate
		if op.forced == DecisionUnknown {
			balanced = append(balanced, op)
		}
		return true
	})
	if len(balanced) == 0 {
		return
	}

	budget := s.throughput
	allowances := make([]float64, len(balanced))
	var demand float64
	for i, op := range balanced {
		if op.group != nil && op.group.min > 0 {
			allowances[i] = op.group.min
			budget -= op.group.min
		}
		demand += op.callRate
	}
	if budget > 0 {
		for i, op := range balanced {
			share := budget / float64(len(balanced))
			if demand > 0 {
				share = budget * op.callRate / demand
			}
			allowances[i] += share
		}
	}

	for i, op := range balanced {
		allowance := allowances[i]
		if op.group != nil && op.group.max > 0 && allowance > op.group.max {
			allowance = op.group.max
		}
		probability := 1.0
		if op.callRate > allowance {
			probability = allowance / op.callRate
		}
		op.threshold.Store(probabilityThreshold(probability))
	}
}

func (s *adaptiveSampler) stop() {
	if s.cancel != nil {
		s.cancel()
	}
}
