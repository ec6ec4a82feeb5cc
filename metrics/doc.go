// Package metrics implements the instrument primitives and the
// name-indexed registry that snapshots them.
//
// Five instrument kinds exist: counters, gauges, histograms, timers
// (histograms of nanoseconds), and range samplers. A metric is a named
// family of instruments; each distinct tag set owns one instrument
// cell, and repeated lookups with the same tag set return the same
// cell. Recording into a cell is lock-free for counters, gauges, and
// range samplers, and takes a short per-cell critical section for the
// histogram digest.
//
// Registration is idempotent with first-wins settings: re-registering a
// name with different optional settings keeps the original settings and
// logs a warning, while re-registering with a different kind is a
// configuration error.
//
// The registry produces PeriodSnapshots whose periods tile exactly: the
// "from" of each snapshot equals the "to" of the previous one.
package metrics
