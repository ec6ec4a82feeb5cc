// Package export bridges telemetry data to external consumers.
//
// The Bridge turns metric period snapshots into a prometheus collector,
// accumulating counters and distributions across periods so that
// scrapes see cumulative series. The SpanLogger is a polling span
// reporter that drains the tracer on a fixed cadence and writes one
// structured log line per finished span.
package export
