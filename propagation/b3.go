package propagation

import (
	"strings"

	"github.com/GriffinCanCode/telemetry/flow"
	"github.com/GriffinCanCode/telemetry/trace"
)

// B3 multi-header names.
const (
	headerB3TraceID  = "X-B3-TraceId"
	headerB3SpanID   = "X-B3-SpanId"
	headerB3ParentID = "X-B3-ParentSpanId"
	headerB3Sampled  = "X-B3-Sampled"
	headerB3Single   = "b3"
)

// ============================================================================
// B3 multi-header
// ============================================================================

// b3Entry codes the current span in the B3 multi-header format.
type b3Entry struct{}

func (b3Entry) Read(reader HeaderReader, ctx flow.Context) flow.Context {
	traceHex, _ := reader.Read(headerB3TraceID)
	spanHex, _ := reader.Read(headerB3SpanID)
	traceID, err := trace.ParseIdentifier(traceHex)
	if err != nil || traceID.IsEmpty() {
		return ctx
	}
	spanID, err := trace.ParseIdentifier(spanHex)
	if err != nil || spanID.IsEmpty() {
		return ctx
	}
	parentHex, _ := reader.Read(headerB3ParentID)
	parentID, err := trace.ParseIdentifier(parentHex)
	if err != nil {
		parentID = trace.EmptyIdentifier
	}

	decision := trace.DecisionUnknown
	if sampled, ok := reader.Read(headerB3Sampled); ok {
		decision = decisionFromSampled(sampled)
	}
	remote := trace.NewRemote(spanID, parentID, trace.Trace{ID: traceID, Decision: decision})
	return trace.ContextWith(ctx, remote)
}

func (b3Entry) Write(ctx flow.Context, writer HeaderWriter) {
	span := trace.SpanFrom(ctx)
	if span.IsEmpty() {
		return
	}
	writer.Write(headerB3TraceID, span.Trace().ID.String())
	writer.Write(headerB3SpanID, span.ID().String())
	if !span.ParentID().IsEmpty() {
		writer.Write(headerB3ParentID, span.ParentID().String())
	}
	if sampled, ok := sampledFromDecision(span.Trace().Decision); ok {
		writer.Write(headerB3Sampled, sampled)
	}
}

// ============================================================================
// B3 single-header
// ============================================================================

// b3SingleEntry codes the current span in the single-header b3 format:
// traceid-spanid-samplingstate-parentspanid, later fields optional.
type b3SingleEntry struct{}

func (b3SingleEntry) Read(reader HeaderReader, ctx flow.Context) flow.Context {
	value, ok := reader.Read(headerB3Single)
	if !ok || value == "" {
		return ctx
	}
	parts := strings.Split(value, "-")
	if len(parts) < 2 {
		return ctx
	}
	traceID, err := trace.ParseIdentifier(parts[0])
	if err != nil || traceID.IsEmpty() {
		return ctx
	}
	spanID, err := trace.ParseIdentifier(parts[1])
	if err != nil || spanID.IsEmpty() {
		return ctx
	}
	decision := trace.DecisionUnknown
	if len(parts) > 2 {
		decision = decisionFromSampled(parts[2])
	}
	parentID := trace.EmptyIdentifier
	if len(parts) > 3 {
		if parsed, err := trace.ParseIdentifier(parts[3]); err == nil {
			parentID = parsed
		}
	}
	remote := trace.NewRemote(spanID, parentID, trace.Trace{ID: traceID, Decision: decision})
	return trace.ContextWith(ctx, remote)
}

func (b3SingleEntry) Write(ctx flow.Context, writer HeaderWriter) {
	span := trace.SpanFrom(ctx)
	if span.IsEmpty() {
		return
	}
	var sb strings.Builder
	sb.WriteString(span.Trace().ID.String())
	sb.WriteByte('-')
	sb.WriteString(span.ID().String())
	sampled, known := sampledFromDecision(span.Trace().Decision)
	if known {
		sb.WriteByte('-')
		sb.WriteString(sampled)
	}
	if !span.ParentID().IsEmpty() && known {
		sb.WriteByte('-')
		sb.WriteString(span.ParentID().String())
	}
	writer.Write(headerB3Single, sb.String())
}

func decisionFromSampled(value string) trace.Decision {
	switch value {
	case "1", "d", "true":
		return trace.DecisionSample
	case "0", "false":
		return trace.DecisionDoNotSample
	default:
		return trace.DecisionUnknown
	}
}

func sampledFromDecision(d trace.Decision) (string, bool) {
	switch d {
	case trace.DecisionSample:
		return "1", true
	case trace.DecisionDoNotSample:
		return "0", true
	default:
		return "", false
	}
}
