package metrics

import "github.com/HdrHistogram/hdrhistogram-go"

// Bucket is one value bucket of a distribution. Value is the highest
// value the bucket represents at the digest's precision.
type Bucket struct {
	Value int64
	Count int64
}

// Distribution is the immutable result of snapshotting a histogram,
// timer, or range sampler. The bucket list is sufficient to compute any
// percentile at the digest's configured precision.
type Distribution struct {
	Count   int64
	Min     int64
	Max     int64
	Sum     int64
	Clamped int64
	Buckets []Bucket
}

// IsEmpty reports whether the distribution recorded no values.
func (d *Distribution) IsEmpty() bool {
	return d == nil || d.Count == 0
}

// Mean returns the arithmetic mean of the recorded values.
func (d *Distribution) Mean() float64 {
	if d.IsEmpty() {
		return 0
	}
	return float64(d.Sum) / float64(d.Count)
}

// Percentile returns the smallest bucket value at or below which p
// percent of the recorded values fall. p is in [0, 100].
func (d *Distribution) Percentile(p float64) int64 {
	if d.IsEmpty() {
		return 0
	}
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	rank := int64(p/100*float64(d.Count) + 0.5)
	if rank < 1 {
		rank = 1
	}
	var seen int64
	for _, b := range d.Buckets {
		seen += b.Count
		if seen >= rank {
			return b.Value
		}
	}
	return d.Max
}

// snapshotDigest extracts a Distribution from an HDR digest. The caller
// holds the cell lock.
func snapshotDigest(h *hdrhistogram.Histogram, sum, clamped int64) *Distribution {
	count := h.TotalCount()
	d := &Distribution{
		Count:   count,
		Sum:     sum,
		Clamped: clamped,
	}
	if count == 0 {
		return d
	}
	d.Min = h.Min()
	d.Max = h.Max()
	for _, bar := range h.Distribution() {
		if bar.Count == 0 {
			continue
		}
		d.Buckets = append(d.Buckets, Bucket{Value: bar.To, Count: bar.Count})
	}
	return d
}
