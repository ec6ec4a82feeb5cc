package trace

import (
	"time"

	"github.com/GriffinCanCode/telemetry/flow"
	"github.com/GriffinCanCode/telemetry/tags"

	"go.uber.org/zap"
)

// InitiatorTag is the context tag naming the service that initiated an
// outgoing context. It is copied onto span metrics when the
// initiator-service metric tag is enabled.
const InitiatorTag = "initiator.name"

// parentOperationTagKey tags span metrics with the parent span's
// operation name when enabled.
const parentOperationTagKey = "parentOperation"

// SpanBuilder accumulates the properties of a span before it starts.
// Builders are not safe for concurrent use and must not be reused after
// Start.
type SpanBuilder struct {
	tracer *Tracer

	operation  string
	kind       Kind
	spanTags   *tags.Builder
	metricTags *tags.Builder
	marks      []Mark

	context    flow.Context
	contextSet bool

	parent    Span
	parentSet bool

	ignoreParentFromContext bool
	suggestedTraceID        Identifier
	trackMetrics            bool
	started                 bool
}

// Operation returns the operation name the span will start with.
func (b *SpanBuilder) Operation() string { return b.operation }

// SetOperation renames the operation the span will start with.
func (b *SpanBuilder) SetOperation(name string) *SpanBuilder {
	b.operation = name
	return b
}

// Kind sets the span kind.
func (b *SpanBuilder) Kind(k Kind) *SpanBuilder {
	b.kind = k
	return b
}

// Tag adds a span tag.
func (b *SpanBuilder) Tag(key string, value any) *SpanBuilder {
	b.spanTags.Add(key, value)
	return b
}

// TagMetric adds a tag to the span's metric tag set.
func (b *SpanBuilder) TagMetric(key string, value any) *SpanBuilder {
	b.metricTags.Add(key, value)
	return b
}

// Mark records a mark that will carry the builder's start instant.
func (b *SpanBuilder) Mark(key string) *SpanBuilder {
	b.marks = append(b.marks, Mark{Key: key})
	return b
}

// Context overrides the context the span resolves its parent from.
func (b *SpanBuilder) Context(c flow.Context) *SpanBuilder {
	b.context = c
	b.contextSet = true
	return b
}

// Parent sets an explicit parent span, bypassing the context lookup.
func (b *SpanBuilder) Parent(s Span) *SpanBuilder {
	b.parent = s
	b.parentSet = true
	return b
}

// IgnoreParentFromContext makes the span a root even when the context
// carries a span.
func (b *SpanBuilder) IgnoreParentFromContext() *SpanBuilder {
	b.ignoreParentFromContext = true
	return b
}

// SuggestedTraceID proposes a trace identifier, used only when the span
// turns out to be a root with no inherited trace.
func (b *SpanBuilder) SuggestedTraceID(id Identifier) *SpanBuilder {
	b.suggestedTraceID = id
	return b
}

// TrackMetrics enables the span processing time metric for this span.
func (b *SpanBuilder) TrackMetrics() *SpanBuilder {
	b.trackMetrics = true
	return b
}

// DoNotTrackMetrics disables the span processing time metric.
func (b *SpanBuilder) DoNotTrackMetrics() *SpanBuilder {
	b.trackMetrics = false
	return b
}

// Start builds the span at the current instant.
func (b *SpanBuilder) Start() Span {
	return b.StartAt(b.tracer.clk.Now())
}

// StartAt builds the span. The builder must not be touched afterwards.
func (b *SpanBuilder) StartAt(at time.Time) Span {
	if b.started {
		b.tracer.logger.Warn("span builder reused after start",
			zap.String("operation", b.operation))
	}
	b.started = true

	st := b.tracer.state()
	b.tracer.beforeStart(st, b)

	ctx := b.context
	if !b.contextSet {
		ctx = b.tracer.current()
	}

	if st.tagInitiatorService {
		if initiator, ok := ctx.Tags().String(InitiatorTag); ok {
			b.metricTags.String(InitiatorTag, initiator)
		}
	}

	parent := EmptySpan
	switch {
	case b.parentSet:
		parent = b.parent
	case !b.ignoreParentFromContext:
		parent = SpanFrom(ctx)
	}
	if parent == nil {
		parent = EmptySpan
	}

	var localParent Span
	if !parent.IsEmpty() && !parent.IsRemote() {
		localParent = parent
	}

	var id, parentID Identifier
	if parent.IsRemote() && b.kind == KindServer && st.joinRemoteParents {
		id = parent.ID()
		parentID = parent.ParentID()
	} else {
		id = st.scheme.SpanIDs.Generate()
		parentID = parent.ID()
	}

	traceID := parent.Trace().ID
	if traceID.IsEmpty() {
		traceID = b.suggestedTraceID
	}
	if traceID.IsEmpty() {
		traceID = st.scheme.TraceIDs.Generate()
	}

	position := PositionUnknown
	switch {
	case parent.IsEmpty():
		position = PositionRoot
	case parent.IsRemote():
		position = PositionLocalRoot
	}

	decision := parent.Trace().Decision
	if position == PositionRoot || decision == DecisionUnknown {
		decision = safeDecide(st.sampler, b, b.tracer.logger)
	}

	span := &localSpan{
		tracer:       b.tracer,
		id:           id,
		parentID:     parentID,
		trace:        Trace{ID: traceID, Decision: decision},
		position:     position,
		kind:         b.kind,
		start:        at,
		localParent:  localParent,
		operation:    b.operation,
		spanTags:     b.spanTags,
		metricTags:   b.metricTags,
		trackMetrics: b.trackMetrics,
	}
	for _, m := range b.marks {
		if m.Instant.IsZero() {
			m.Instant = at
		}
		span.marks = append(span.marks, m)
	}
	if localParent != nil && st.tagParentOperation {
		span.parentOperation = localParent.Operation()
	}
	return span
}
