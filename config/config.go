package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config is the root of the configuration tree. Treat loaded values as
// immutable: reconfiguration builds a fresh Config rather than mutating
// a live one.
type Config struct {
	Environment       EnvironmentConfig `yaml:"environment"`
	SchedulerPoolSize int               `yaml:"scheduler-pool-size" envconfig:"SCHEDULER_POOL_SIZE"`
	Metric            MetricConfig      `yaml:"metric"`
	Trace             TraceConfig       `yaml:"trace"`
	Propagation       PropagationConfig `yaml:"propagation"`
}

// EnvironmentConfig describes the service emitting telemetry.
type EnvironmentConfig struct {
	Service  string            `yaml:"service" envconfig:"SERVICE"`
	Host     string            `yaml:"host" envconfig:"HOST"`
	Instance string            `yaml:"instance" envconfig:"INSTANCE"`
	Tags     map[string]string `yaml:"tags"`
}

// MetricConfig configures the metric registry.
type MetricConfig struct {
	TickInterval             time.Duration `yaml:"tick-interval" envconfig:"METRIC_TICK_INTERVAL"`
	OptimisticTickAlignment  bool          `yaml:"optimistic-tick-alignment" envconfig:"METRIC_OPTIMISTIC_TICK_ALIGNMENT"`
	RefreshSchedulerPoolSize int           `yaml:"refresh-scheduler-pool-size" envconfig:"METRIC_REFRESH_SCHEDULER_POOL_SIZE"`
	Factory                  FactoryConfig `yaml:"factory"`
}

// FactoryConfig carries instrument settings, both the per-kind defaults
// and the per-metric-name overrides.
type FactoryConfig struct {
	// DefaultSettings is keyed by instrument kind:
	// counter, gauge, histogram, timer, range-sampler.
	DefaultSettings map[string]InstrumentSettings `yaml:"default-settings"`
	// CustomSettings is keyed by metric name.
	CustomSettings map[string]InstrumentSettings `yaml:"custom-settings"`
}

// InstrumentSettings are the tunables of a single instrument kind or
// metric name. Zero values mean "not set here".
type InstrumentSettings struct {
	AutoUpdateInterval     time.Duration `yaml:"auto-update-interval"`
	LowestDiscernibleValue int64         `yaml:"lowest-discernible-value"`
	HighestTrackableValue  int64         `yaml:"highest-trackable-value"`
	SignificantValueDigits int           `yaml:"significant-value-digits"`
}

// TraceConfig configures the tracer.
type TraceConfig struct {
	TickInterval                    time.Duration         `yaml:"tick-interval" envconfig:"TRACE_TICK_INTERVAL"`
	ReporterQueueSize               int                   `yaml:"reporter-queue-size" envconfig:"TRACE_REPORTER_QUEUE_SIZE"`
	JoinRemoteParentsWithSameSpanID bool                  `yaml:"join-remote-parents-with-same-span-id" envconfig:"TRACE_JOIN_REMOTE_PARENTS_WITH_SAME_SPAN_ID"`
	IdentifierScheme                string                `yaml:"identifier-scheme" envconfig:"TRACE_IDENTIFIER_SCHEME"`
	IncludeErrorStacktrace          bool                  `yaml:"include-error-stacktrace" envconfig:"TRACE_INCLUDE_ERROR_STACKTRACE"`
	Sampler                         string                `yaml:"sampler" envconfig:"TRACE_SAMPLER"`
	RandomSampler                   RandomSamplerConfig   `yaml:"random-sampler"`
	AdaptiveSampler                 AdaptiveSamplerConfig `yaml:"adaptive-sampler"`
	SpanMetricTags                  SpanMetricTagsConfig  `yaml:"span-metric-tags"`
	Hooks                           HooksConfig           `yaml:"hooks"`
}

// RandomSamplerConfig configures the probabilistic sampler.
type RandomSamplerConfig struct {
	Probability float64 `yaml:"probability" envconfig:"TRACE_RANDOM_SAMPLER_PROBABILITY"`
}

// AdaptiveSamplerConfig configures the throughput-balancing sampler.
type AdaptiveSamplerConfig struct {
	// Throughput is the global budget of sampled traces per second.
	Throughput float64                       `yaml:"throughput" envconfig:"TRACE_ADAPTIVE_SAMPLER_THROUGHPUT"`
	Groups     map[string]SamplerGroupConfig `yaml:"groups"`
}

// SamplerGroupConfig is one named group of operations with shared
// sampling rules.
type SamplerGroupConfig struct {
	// Operations holds regular expressions matched against operation names.
	Operations []string `yaml:"operations"`
	// Sample forces the decision: "always", "never", or "" to balance.
	Sample        string  `yaml:"sample"`
	MinThroughput float64 `yaml:"min-throughput"`
	MaxThroughput float64 `yaml:"max-throughput"`
}

// SpanMetricTagsConfig toggles the optional tags on the span processing
// time metric.
type SpanMetricTagsConfig struct {
	InitiatorService bool `yaml:"initiator-service" envconfig:"TRACE_SPAN_METRIC_TAGS_INITIATOR_SERVICE"`
	ParentOperation  bool `yaml:"parent-operation" envconfig:"TRACE_SPAN_METRIC_TAGS_PARENT_OPERATION"`
}

// HooksConfig names the registered span hooks to install.
type HooksConfig struct {
	PreStart  []string `yaml:"pre-start"`
	PreFinish []string `yaml:"pre-finish"`
}

// PropagationConfig configures context propagation channels per medium.
type PropagationConfig struct {
	HTTP   map[string]HTTPChannelConfig   `yaml:"http"`
	Binary map[string]BinaryChannelConfig `yaml:"binary"`
}

// HTTPChannelConfig is one named HTTP propagation channel.
type HTTPChannelConfig struct {
	Tags    HTTPTagsConfig `yaml:"tags"`
	Entries EntriesConfig  `yaml:"entries"`
}

// HTTPTagsConfig controls how context tags travel over HTTP headers.
type HTTPTagsConfig struct {
	// HeaderName carries the combined k=v;k=v encoding.
	HeaderName string `yaml:"header-name"`
	// Mappings routes individual tag keys to dedicated headers.
	Mappings map[string]string `yaml:"mappings"`
}

// BinaryChannelConfig is one named binary propagation channel.
type BinaryChannelConfig struct {
	MaxOutgoingSize int           `yaml:"max-outgoing-size"`
	Entries         EntriesConfig `yaml:"entries"`
}

// EntriesConfig binds context keys to registered propagation entry
// names, per direction.
type EntriesConfig struct {
	Incoming map[string]string `yaml:"incoming"`
	Outgoing map[string]string `yaml:"outgoing"`
}

// DefaultChannel is the channel every propagation medium must define.
const DefaultChannel = "default"

// Default returns a fully populated configuration.
func Default() *Config {
	hostname, _ := os.Hostname()
	return &Config{
		Environment: EnvironmentConfig{
			Service: "unknown-service",
			Host:    hostname,
		},
		SchedulerPoolSize: 2,
		Metric: MetricConfig{
			TickInterval:             60 * time.Second,
			RefreshSchedulerPoolSize: 2,
			Factory: FactoryConfig{
				DefaultSettings: map[string]InstrumentSettings{
					"histogram": {
						LowestDiscernibleValue: 1,
						HighestTrackableValue:  3_600_000_000_000,
						SignificantValueDigits: 2,
					},
					"timer": {
						LowestDiscernibleValue: 1,
						HighestTrackableValue:  3_600_000_000_000,
						SignificantValueDigits: 2,
					},
					"range-sampler": {
						AutoUpdateInterval:     100 * time.Millisecond,
						LowestDiscernibleValue: 1,
						HighestTrackableValue:  1_000_000_000,
						SignificantValueDigits: 2,
					},
				},
			},
		},
		Trace: TraceConfig{
			TickInterval:      10 * time.Second,
			ReporterQueueSize: 4096,
			IdentifierScheme:  "single",
			Sampler:           "adaptive",
			RandomSampler:     RandomSamplerConfig{Probability: 0.01},
			AdaptiveSampler:   AdaptiveSamplerConfig{Throughput: 600},
		},
		Propagation: PropagationConfig{
			HTTP: map[string]HTTPChannelConfig{
				DefaultChannel: {
					Tags: HTTPTagsConfig{HeaderName: "context-tags"},
					Entries: EntriesConfig{
						Incoming: map[string]string{"span": "b3"},
						Outgoing: map[string]string{"span": "b3"},
					},
				},
			},
			Binary: map[string]BinaryChannelConfig{
				DefaultChannel: {
					MaxOutgoingSize: 2048,
					Entries: EntriesConfig{
						Incoming: map[string]string{"span": "span"},
						Outgoing: map[string]string{"span": "span"},
					},
				},
			},
		},
	}
}

type fileRoot struct {
	Telemetry *Config `yaml:"telemetry"`
}

// ParseYAML overlays a YAML document onto the defaults. Only keys
// present in the document override.
func ParseYAML(data []byte) (*Config, error) {
	cfg := Default()
	root := fileRoot{Telemetry: cfg}
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if root.Telemetry != nil {
		cfg = root.Telemetry
	}
	cfg.normalize()
	return cfg, nil
}

// LoadFile reads and parses a YAML configuration file, then applies
// environment overrides.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	cfg, err := ParseYAML(data)
	if err != nil {
		return nil, err
	}
	return cfg.withEnv()
}

// Load builds a configuration from defaults plus environment overrides.
func Load() (*Config, error) {
	return Default().withEnv()
}

// LoadOrDefault loads configuration from the environment, falling back
// to pure defaults on error.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

func (c *Config) withEnv() (*Config, error) {
	// envconfig prefixes the keys of a nested struct with its field name,
	// so each struct carrying envconfig tags is processed on its own: the
	// variable for a field is TELEMETRY_ followed by its tag.
	specs := []any{c, &c.Environment, &c.Metric, &c.Trace,
		&c.Trace.RandomSampler, &c.Trace.AdaptiveSampler, &c.Trace.SpanMetricTags}
	for _, spec := range specs {
		if err := envconfig.Process("TELEMETRY", spec); err != nil {
			return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
		}
	}
	c.normalize()
	return c, nil
}

func (c *Config) normalize() {
	if c.SchedulerPoolSize < 1 {
		c.SchedulerPoolSize = 1
	}
	if c.Metric.TickInterval <= 0 {
		c.Metric.TickInterval = 60 * time.Second
	}
	if c.Metric.RefreshSchedulerPoolSize < 1 {
		c.Metric.RefreshSchedulerPoolSize = 1
	}
	if c.Trace.ReporterQueueSize < 1 {
		c.Trace.ReporterQueueSize = 4096
	}
	if c.Trace.IdentifierScheme == "" {
		c.Trace.IdentifierScheme = "single"
	}
	if c.Trace.Sampler == "" {
		c.Trace.Sampler = "adaptive"
	}
	for name, ch := range c.Propagation.HTTP {
		if ch.Tags.HeaderName == "" {
			ch.Tags.HeaderName = "context-tags"
			c.Propagation.HTTP[name] = ch
		}
	}
	for name, ch := range c.Propagation.Binary {
		if ch.MaxOutgoingSize <= 0 {
			ch.MaxOutgoingSize = 2048
			c.Propagation.Binary[name] = ch
		}
	}
}
