package export

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/telemetry/metrics"
	"github.com/GriffinCanCode/telemetry/tags"
)

// Bridge accumulates metric period snapshots and exposes them as a
// prometheus collector. Counters and distributions accumulate across
// periods so that scrapes observe cumulative series; gauges expose the
// latest observed value.
type Bridge struct {
	logger *zap.Logger

	mu         sync.Mutex
	counters   map[string]*counterSeries
	gauges     map[string]*gaugeSeries
	histograms map[string]*histogramSeries
}

type seriesKey struct {
	name   string
	labels []string
	values []string
}

type counterSeries struct {
	key   seriesKey
	help  string
	total float64
}

type gaugeSeries struct {
	key   seriesKey
	help  string
	value float64
}

type histogramSeries struct {
	key     seriesKey
	help    string
	count   uint64
	sum     float64
	buckets map[float64]uint64
}

// NewBridge creates an empty bridge. Wire it to a registry with
// registry.OnSnapshot(bridge.Consume) and register it on a prometheus
// registerer.
func NewBridge(logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		logger:     logger,
		counters:   map[string]*counterSeries{},
		gauges:     map[string]*gaugeSeries{},
		histograms: map[string]*histogramSeries{},
	}
}

// Consume folds one period snapshot into the accumulated series.
func (b *Bridge) Consume(snap *metrics.PeriodSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, family := range snap.Counters {
		for _, inst := range family.Instruments {
			key := newSeriesKey(family.Name, inst.Tags)
			series, ok := b.counters[key.id()]
			if !ok {
				series = &counterSeries{key: key, help: family.Description}
				b.counters[key.id()] = series
			}
			series.total += float64(inst.Value)
		}
	}
	for _, family := range snap.Gauges {
		for _, inst := range family.Instruments {
			key := newSeriesKey(family.Name, inst.Tags)
			b.gauges[key.id()] = &gaugeSeries{key: key, help: family.Description, value: inst.Value}
		}
	}
	for _, group := range [][]metrics.DistributionMetric{snap.Histograms, snap.Timers, snap.RangeSamplers} {
		for _, family := range group {
			for _, inst := range family.Instruments {
				b.consumeDistribution(family, inst)
			}
		}
	}
}

func (b *Bridge) consumeDistribution(family metrics.DistributionMetric, inst metrics.DistributionValue) {
	if inst.Distribution.IsEmpty() {
		return
	}
	key := newSeriesKey(family.Name, inst.Tags)
	series, ok := b.histograms[key.id()]
	if !ok {
		series = &histogramSeries{key: key, help: family.Description, buckets: map[float64]uint64{}}
		b.histograms[key.id()] = series
	}
	series.count += uint64(inst.Distribution.Count)
	series.sum += float64(inst.Distribution.Sum)
	for _, bucket := range inst.Distribution.Buckets {
		series.buckets[float64(bucket.Value)] += uint64(bucket.Count)
	}
}

// Describe sends nothing: the bridge is an unchecked collector because
// the series set grows as metrics are registered.
func (b *Bridge) Describe(chan<- *prometheus.Desc) {}

// Collect emits every accumulated series.
func (b *Bridge) Collect(out chan<- prometheus.Metric) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.counters {
		desc := prometheus.NewDesc(sanitizeName(s.key.name)+"_total", s.help, s.key.labels, nil)
		metric, err := prometheus.NewConstMetric(desc, prometheus.CounterValue, s.total, s.key.values...)
		if err != nil {
			b.logger.Warn("skipping counter series", zap.String("metric", s.key.name), zap.Error(err))
			continue
		}
		out <- metric
	}
	for _, s := range b.gauges {
		desc := prometheus.NewDesc(sanitizeName(s.key.name), s.help, s.key.labels, nil)
		metric, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, s.value, s.key.values...)
		if err != nil {
			b.logger.Warn("skipping gauge series", zap.String("metric", s.key.name), zap.Error(err))
			continue
		}
		out <- metric
	}
	for _, s := range b.histograms {
		desc := prometheus.NewDesc(sanitizeName(s.key.name), s.help, s.key.labels, nil)
		cumulative := cumulativeBuckets(s.buckets)
		metric, err := prometheus.NewConstHistogram(desc, s.count, s.sum, cumulative, s.key.values...)
		if err != nil {
			b.logger.Warn("skipping histogram series", zap.String("metric", s.key.name), zap.Error(err))
			continue
		}
		out <- metric
	}
}

// cumulativeBuckets converts per-bucket counts into the cumulative
// counts prometheus histograms carry.
func cumulativeBuckets(buckets map[float64]uint64) map[float64]uint64 {
	bounds := make([]float64, 0, len(buckets))
	for bound := range buckets {
		bounds = append(bounds, bound)
	}
	sort.Float64s(bounds)

	cumulative := make(map[float64]uint64, len(bounds))
	var running uint64
	for _, bound := range bounds {
		running += buckets[bound]
		cumulative[bound] = running
	}
	return cumulative
}

func newSeriesKey(name string, ts tags.Set) seriesKey {
	key := seriesKey{name: name}
	for _, tag := range ts.All() {
		key.labels = append(key.labels, sanitizeName(tag.Key))
		key.values = append(key.values, renderLabelValue(tag.Value))
	}
	return key
}

func (k seriesKey) id() string {
	var sb strings.Builder
	sb.WriteString(k.name)
	for i := range k.labels {
		sb.WriteByte(0)
		sb.WriteString(k.labels[i])
		sb.WriteByte('=')
		sb.WriteString(k.values[i])
	}
	return sb.String()
}

func renderLabelValue(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case int64:
		return strconv.FormatInt(value, 10)
	case bool:
		return strconv.FormatBool(value)
	default:
		return ""
	}
}

// sanitizeName maps a metric or tag name onto the prometheus charset.
func sanitizeName(name string) string {
	var sb strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			sb.WriteRune(r)
		case r >= '0' && r <= '9' && i > 0:
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
