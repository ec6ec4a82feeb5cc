package trace

import (
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/telemetry/flow"
	"github.com/GriffinCanCode/telemetry/tags"
)

// ============================================================================
// Enumerations
// ============================================================================

// Position locates a span inside its trace.
type Position int

const (
	// PositionUnknown is any span with a local parent.
	PositionUnknown Position = iota
	// PositionRoot is a span with no parent at all.
	PositionRoot
	// PositionLocalRoot is a span whose parent lives in another process.
	PositionLocalRoot
)

// String returns the position name.
func (p Position) String() string {
	switch p {
	case PositionRoot:
		return "root"
	case PositionLocalRoot:
		return "local-root"
	default:
		return "unknown"
	}
}

// Kind classifies the role a span plays in an interaction.
type Kind int

const (
	KindUnknown Kind = iota
	KindServer
	KindClient
	KindProducer
	KindConsumer
	KindInternal
)

// String returns the kind name used on span metric tags.
func (k Kind) String() string {
	switch k {
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	case KindProducer:
		return "producer"
	case KindConsumer:
		return "consumer"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// ============================================================================
// Span
// ============================================================================

// Mark is a named point in time recorded on a span.
type Mark struct {
	Instant time.Time
	Key     string
}

// Span is a timed operation record. Open spans accept mutations until
// Finish; all mutations after Finish are ignored with a logged warning.
type Span interface {
	// ID returns the span identifier.
	ID() Identifier
	// ParentID returns the parent span identifier, possibly empty.
	ParentID() Identifier
	// Trace returns the trace this span belongs to.
	Trace() Trace
	// IsRemote reports whether the span was read from an incoming carrier.
	IsRemote() bool
	// IsEmpty reports whether this is the empty span sentinel.
	IsEmpty() bool
	// Position locates the span inside its trace.
	Position() Position
	// Kind returns the span kind.
	Kind() Kind
	// Operation returns the current operation name.
	Operation() string
	// SetOperation renames the operation. Allowed until finish.
	SetOperation(name string) Span
	// Tag adds a span tag. Values may be string, int64, or bool.
	Tag(key string, value any) Span
	// TagMetric adds a tag to the span's metric tag set.
	TagMetric(key string, value any) Span
	// Mark records a named mark at the current instant.
	Mark(key string) Span
	// MarkAt records a named mark at an explicit instant.
	MarkAt(key string, at time.Time) Span
	// Fail marks the span as failed with a message.
	Fail(message string) Span
	// FailWith marks the span as failed with an error.
	FailWith(err error) Span
	// TrackMetrics enables the span processing time metric for this span.
	TrackMetrics() Span
	// DoNotTrackMetrics disables the span processing time metric.
	DoNotTrackMetrics() Span
	// Finish closes the span at the current instant. Only the first
	// call has any effect.
	Finish()
	// FinishAt closes the span at an explicit instant.
	FinishAt(at time.Time)
}

// FinishedSpan is the immutable record of a finished span, as handed to
// reporters.
type FinishedSpan struct {
	ID              Identifier
	ParentID        Identifier
	Trace           Trace
	Operation       string
	Kind            Kind
	Position        Position
	Start           time.Time
	Finish          time.Time
	Tags            tags.Set
	MetricTags      tags.Set
	Marks           []Mark
	Failed          bool
	FailureMessage  string
	FailureStack    string
	TrackMetrics    bool
	ParentOperation string
}

// ============================================================================
// Empty span
// ============================================================================

type emptySpan struct{}

// EmptySpan is the span carried by contexts that have no span.
var EmptySpan Span = emptySpan{}

func (emptySpan) ID() Identifier                 { return EmptyIdentifier }
func (emptySpan) ParentID() Identifier           { return EmptyIdentifier }
func (emptySpan) Trace() Trace                   { return EmptyTrace }
func (emptySpan) IsRemote() bool                 { return false }
func (emptySpan) IsEmpty() bool                  { return true }
func (emptySpan) Position() Position             { return PositionUnknown }
func (emptySpan) Kind() Kind                     { return KindUnknown }
func (emptySpan) Operation() string              { return "" }
func (e emptySpan) SetOperation(string) Span     { return e }
func (e emptySpan) Tag(string, any) Span         { return e }
func (e emptySpan) TagMetric(string, any) Span   { return e }
func (e emptySpan) Mark(string) Span             { return e }
func (e emptySpan) MarkAt(string, time.Time) Span { return e }
func (e emptySpan) Fail(string) Span             { return e }
func (e emptySpan) FailWith(error) Span          { return e }
func (e emptySpan) TrackMetrics() Span           { return e }
func (e emptySpan) DoNotTrackMetrics() Span      { return e }
func (emptySpan) Finish()                        {}
func (emptySpan) FinishAt(time.Time)             {}

// ============================================================================
// Remote span
// ============================================================================

type remoteSpan struct {
	emptySpan
	id       Identifier
	parentID Identifier
	trace    Trace
}

// NewRemote builds the local stand-in for a span read from an incoming
// carrier. Remote spans only carry identifiers and ignore mutations.
func NewRemote(id, parentID Identifier, tr Trace) Span {
	return remoteSpan{id: id, parentID: parentID, trace: tr}
}

func (r remoteSpan) ID() Identifier       { return r.id }
func (r remoteSpan) ParentID() Identifier { return r.parentID }
func (r remoteSpan) Trace() Trace         { return r.trace }
func (r remoteSpan) IsRemote() bool       { return true }
func (r remoteSpan) IsEmpty() bool        { return r.id.IsEmpty() }

func (r remoteSpan) SetOperation(string) Span      { return r }
func (r remoteSpan) Tag(string, any) Span          { return r }
func (r remoteSpan) TagMetric(string, any) Span    { return r }
func (r remoteSpan) Mark(string) Span              { return r }
func (r remoteSpan) MarkAt(string, time.Time) Span { return r }
func (r remoteSpan) Fail(string) Span              { return r }
func (r remoteSpan) FailWith(error) Span           { return r }
func (r remoteSpan) TrackMetrics() Span            { return r }
func (r remoteSpan) DoNotTrackMetrics() Span       { return r }

// ============================================================================
// Local span
// ============================================================================

type localSpan struct {
	tracer   *Tracer
	id       Identifier
	parentID Identifier
	trace    Trace
	position Position
	kind     Kind
	start    time.Time

	localParent Span
	done        atomic.Bool

	mu              sync.Mutex
	finished        bool
	operation       string
	spanTags        *tags.Builder
	metricTags      *tags.Builder
	marks           []Mark
	failed          bool
	failureMessage  string
	failureStack    string
	trackMetrics    bool
	parentOperation string
}

func (s *localSpan) ID() Identifier       { return s.id }
func (s *localSpan) ParentID() Identifier { return s.parentID }
func (s *localSpan) Trace() Trace         { return s.trace }
func (s *localSpan) IsRemote() bool       { return false }
func (s *localSpan) IsEmpty() bool        { return false }
func (s *localSpan) Position() Position   { return s.position }
func (s *localSpan) Kind() Kind           { return s.kind }

func (s *localSpan) Operation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operation
}

// open runs fn under the span lock if the span is still open, and warns
// otherwise.
func (s *localSpan) open(what string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		s.tracer.logger.Warn("ignoring mutation of finished span",
			zap.String("mutation", what),
			zap.String("operation", s.operation),
			zap.String("span", s.id.String()))
		return
	}
	fn()
}

func (s *localSpan) SetOperation(name string) Span {
	s.open("set-operation", func() { s.operation = name })
	return s
}

func (s *localSpan) Tag(key string, value any) Span {
	s.open("tag", func() { s.spanTags.Add(key, value) })
	return s
}

func (s *localSpan) TagMetric(key string, value any) Span {
	s.open("tag-metric", func() { s.metricTags.Add(key, value) })
	return s
}

func (s *localSpan) Mark(key string) Span {
	return s.MarkAt(key, s.tracer.clk.Now())
}

func (s *localSpan) MarkAt(key string, at time.Time) Span {
	s.open("mark", func() { s.marks = append(s.marks, Mark{Instant: at, Key: key}) })
	return s
}

func (s *localSpan) Fail(message string) Span {
	s.open("fail", func() {
		s.failed = true
		s.failureMessage = message
	})
	return s
}

func (s *localSpan) FailWith(err error) Span {
	if err == nil {
		return s
	}
	s.open("fail", func() {
		s.failed = true
		s.failureMessage = err.Error()
		if s.tracer.state().includeErrorStacktrace {
			s.failureStack = string(debug.Stack())
		}
	})
	return s
}

func (s *localSpan) TrackMetrics() Span {
	s.open("track-metrics", func() { s.trackMetrics = true })
	return s
}

func (s *localSpan) DoNotTrackMetrics() Span {
	s.open("track-metrics", func() { s.trackMetrics = false })
	return s
}

func (s *localSpan) Finish() { s.FinishAt(s.tracer.clk.Now()) }

func (s *localSpan) FinishAt(at time.Time) {
	if s.done.Swap(true) {
		s.tracer.logger.Warn("ignoring second finish of span",
			zap.String("operation", s.Operation()),
			zap.String("span", s.id.String()))
		return
	}

	// Pre-finish hooks still see an open span and may mutate it.
	s.tracer.beforeFinish(s)

	s.mu.Lock()
	s.finished = true
	finished := FinishedSpan{
		ID:              s.id,
		ParentID:        s.parentID,
		Trace:           s.trace,
		Operation:       s.operation,
		Kind:            s.kind,
		Position:        s.position,
		Start:           s.start,
		Finish:          at,
		Tags:            s.spanTags.Build(),
		MetricTags:      s.metricTags.Build(),
		Marks:           s.marks,
		Failed:          s.failed,
		FailureMessage:  s.failureMessage,
		FailureStack:    s.failureStack,
		TrackMetrics:    s.trackMetrics,
		ParentOperation: s.parentOperation,
	}
	s.mu.Unlock()

	s.tracer.onFinish(finished)
}

// ============================================================================
// Context key
// ============================================================================

// ContextKey is the distinguished context key under which the current
// span travels.
var ContextKey = flow.NewKey("span", EmptySpan)

// SpanFrom extracts the current span from a context. The empty span is
// returned when no span is present.
func SpanFrom(c flow.Context) Span {
	if s, ok := c.Get(ContextKey).(Span); ok {
		return s
	}
	return EmptySpan
}

// ContextWith returns a context carrying the span.
func ContextWith(c flow.Context, s Span) flow.Context {
	return c.With(ContextKey, s)
}
