package metrics

import (
	"time"

	"github.com/GriffinCanCode/telemetry/config"
)

// Kind identifies an instrument kind.
type Kind int

const (
	KindCounter Kind = iota + 1
	KindGauge
	KindHistogram
	KindTimer
	KindRangeSampler
)

// String returns the configuration name of the kind.
func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindHistogram:
		return "histogram"
	case KindTimer:
		return "timer"
	case KindRangeSampler:
		return "range-sampler"
	default:
		return "unknown"
	}
}

// DynamicRange bounds the value range a histogram digest can track at a
// given precision.
type DynamicRange struct {
	LowestDiscernibleValue int64
	HighestTrackableValue  int64
	SignificantValueDigits int
}

// DefaultRange tracks one nanosecond to one hour at two significant digits.
var DefaultRange = DynamicRange{
	LowestDiscernibleValue: 1,
	HighestTrackableValue:  3_600_000_000_000,
	SignificantValueDigits: 2,
}

func (r DynamicRange) isZero() bool {
	return r == DynamicRange{}
}

func (r DynamicRange) orDefault() DynamicRange {
	if r.LowestDiscernibleValue < 1 {
		r.LowestDiscernibleValue = 1
	}
	if r.HighestTrackableValue <= r.LowestDiscernibleValue {
		r.HighestTrackableValue = DefaultRange.HighestTrackableValue
	}
	if r.SignificantValueDigits < 1 || r.SignificantValueDigits > 5 {
		r.SignificantValueDigits = DefaultRange.SignificantValueDigits
	}
	return r
}

// Settings are a metric's immutable properties. Once a metric is
// published its settings are frozen.
type Settings struct {
	Description        string
	Unit               string
	AutoUpdateInterval time.Duration
	Range              DynamicRange
}

// Option customizes the settings of a metric being registered.
// Options lose against custom-settings configured for the metric name
// and win against the configured per-kind defaults.
type Option func(*Settings)

// WithDescription sets the metric description.
func WithDescription(d string) Option {
	return func(s *Settings) { s.Description = d }
}

// WithUnit sets the measurement unit.
func WithUnit(u string) Option {
	return func(s *Settings) { s.Unit = u }
}

// WithAutoUpdateInterval sets the automatic refresh interval.
func WithAutoUpdateInterval(d time.Duration) Option {
	return func(s *Settings) { s.AutoUpdateInterval = d }
}

// WithRange sets the histogram dynamic range.
func WithRange(r DynamicRange) Option {
	return func(s *Settings) { s.Range = r }
}

// effectiveSettings resolves the settings for a new metric. Precedence,
// top wins: configured custom-settings for the name, programmatic
// options, configured per-kind defaults.
func effectiveSettings(factory config.FactoryConfig, kind Kind, name string, opts []Option) Settings {
	var s Settings
	if def, ok := factory.DefaultSettings[kind.String()]; ok {
		applyConfigured(&s, def)
	}
	for _, opt := range opts {
		opt(&s)
	}
	if custom, ok := factory.CustomSettings[name]; ok {
		applyConfigured(&s, custom)
	}
	if kind == KindHistogram || kind == KindTimer || kind == KindRangeSampler {
		if s.Range.isZero() {
			s.Range = DefaultRange
		}
		s.Range = s.Range.orDefault()
	}
	if kind == KindTimer && s.Unit == "" {
		s.Unit = "ns"
	}
	return s
}

func applyConfigured(s *Settings, c config.InstrumentSettings) {
	if c.AutoUpdateInterval > 0 {
		s.AutoUpdateInterval = c.AutoUpdateInterval
	}
	if c.LowestDiscernibleValue > 0 {
		s.Range.LowestDiscernibleValue = c.LowestDiscernibleValue
	}
	if c.HighestTrackableValue > 0 {
		s.Range.HighestTrackableValue = c.HighestTrackableValue
	}
	if c.SignificantValueDigits > 0 {
		s.Range.SignificantValueDigits = c.SignificantValueDigits
	}
}
