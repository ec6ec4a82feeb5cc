// Package telemetry is an in-process observability runtime: metrics,
// distributed traces, and context propagation behind one Runtime.
//
// A Runtime owns the configuration hub, the scheduler pools, the
// metric registry, the tracer, and the propagation channels, and keeps
// all of them consistent under live reconfiguration. Hosts either
// construct a Runtime explicitly and pass it around, or use the
// package-level functions backed by a lazily created default Runtime.
//
// Measurement and span paths never block on reconfiguration or on slow
// reporters: configuration is an atomic snapshot swap, and finished
// spans go through a bounded lock-free buffer that drops under
// back-pressure rather than stalling.
package telemetry
