package metrics

import (
	"time"

	"github.com/GriffinCanCode/telemetry/tags"
)

// PeriodSnapshot is a registry-wide dump of all metric values over one
// wall-clock period. Periods tile exactly: the From of a snapshot
// equals the To of the previous one.
type PeriodSnapshot struct {
	From time.Time
	To   time.Time

	Counters      []LongValueMetric
	Gauges        []DoubleValueMetric
	Histograms    []DistributionMetric
	Timers        []DistributionMetric
	RangeSamplers []DistributionMetric
}

// LongValueMetric is the snapshot of one integer-valued metric family.
type LongValueMetric struct {
	Name        string
	Description string
	Unit        string
	Instruments []LongValue
}

// LongValue is the snapshot of one counter cell.
type LongValue struct {
	Tags  tags.Set
	Value int64
}

// DoubleValueMetric is the snapshot of one float-valued metric family.
type DoubleValueMetric struct {
	Name        string
	Description string
	Unit        string
	Instruments []DoubleValue
}

// DoubleValue is the snapshot of one gauge cell.
type DoubleValue struct {
	Tags  tags.Set
	Value float64
}

// DistributionMetric is the snapshot of one distribution-valued metric
// family.
type DistributionMetric struct {
	Name        string
	Description string
	Unit        string
	Instruments []DistributionValue
}

// DistributionValue is the snapshot of one histogram, timer, or range
// sampler cell. LastValue is meaningful for range samplers only.
type DistributionValue struct {
	Tags         tags.Set
	Distribution *Distribution
	LastValue    int64
}
