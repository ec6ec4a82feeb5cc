// Package trace implements distributed tracing: identifier schemes,
// spans, the tracer, and the sampling strategies.
//
// A span is built through a SpanBuilder obtained from a Tracer. The
// builder resolves the parent from an explicit setting or from the
// current context, stitches identifiers (including the same-span-id
// join for remote server parents), and takes or inherits the sampling
// decision. Open spans accept mutations until Finish; finishing is
// idempotent and produces an immutable FinishedSpan.
//
// Finished spans land in a bounded lock-free ring drained by reporters
// through Spans. When the ring is full the span is dropped silently and
// counted, so a slow reporter can never stall a finishing span.
//
// Samplers decide the fate of new trace roots. The constant and random
// samplers are stateless; the adaptive sampler spreads a global
// traces-per-second budget across observed operations, re-balancing
// once per second while decisions read an atomic probability snapshot.
package trace
