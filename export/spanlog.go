package export

import (
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/telemetry/trace"
)

// Scheduler runs the reporter's periodic drain.
type Scheduler interface {
	Schedule(every time.Duration, fn func()) (cancel func())
}

// SpanLogger is a reporter that drains finished spans on a fixed
// cadence and logs one structured line per span. It is both a usable
// development reporter and the reference for writing real ones: poll
// Spans, never push.
type SpanLogger struct {
	tracer *trace.Tracer
	logger *zap.Logger
	cancel func()
}

// NewSpanLogger builds the reporter without starting it.
func NewSpanLogger(tracer *trace.Tracer, logger *zap.Logger) *SpanLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpanLogger{tracer: tracer, logger: logger}
}

// Start schedules the periodic drain. The interval usually comes from
// the trace tick-interval configuration key.
func (s *SpanLogger) Start(scheduler Scheduler, every time.Duration) {
	if s.cancel != nil || scheduler == nil || every <= 0 {
		return
	}
	s.cancel = scheduler.Schedule(every, s.Drain)
}

// Stop cancels the periodic drain and then flushes once more.
func (s *SpanLogger) Stop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.Drain()
}

// Drain logs every span currently buffered on the tracer.
func (s *SpanLogger) Drain() {
	for _, span := range s.tracer.Spans() {
		fields := []zap.Field{
			zap.String("trace", span.Trace.ID.String()),
			zap.String("span", span.ID.String()),
			zap.String("operation", span.Operation),
			zap.String("kind", span.Kind.String()),
			zap.Duration("elapsed", span.Finish.Sub(span.Start)),
		}
		if !span.ParentID.IsEmpty() {
			fields = append(fields, zap.String("parent", span.ParentID.String()))
		}
		if span.Failed {
			fields = append(fields, zap.Bool("error", true), zap.String("message", span.FailureMessage))
			s.logger.Warn("span finished", fields...)
			continue
		}
		s.logger.Info("span finished", fields...)
	}
}
