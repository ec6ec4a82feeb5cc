package propagation

import (
	"testing"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/telemetry/config"
	"github.com/GriffinCanCode/telemetry/flow"
	"github.com/GriffinCanCode/telemetry/tags"
	"github.com/GriffinCanCode/telemetry/trace"
)

func defaultHTTPPropagator(t *testing.T) *HTTPPropagator {
	t.Helper()
	channels, err := NewChannels(config.Default(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewChannels failed: %v", err)
	}
	return channels.DefaultHTTP()
}

func remoteSpanContext(t *testing.T, decision trace.Decision) (flow.Context, trace.Span) {
	t.Helper()
	scheme := trace.SingleScheme()
	span := trace.NewRemote(
		scheme.SpanIDs.Generate(),
		scheme.SpanIDs.Generate(),
		trace.Trace{ID: scheme.TraceIDs.Generate(), Decision: decision},
	)
	return trace.ContextWith(flow.Empty, span), span
}

func TestHTTPPropagator_RoundTrip(t *testing.T) {
	p := defaultHTTPPropagator(t)
	ctx, span := remoteSpanContext(t, trace.DecisionSample)
	ctx = ctx.MergeTags(tags.From(map[string]any{"env": "prod", "cid": int64(42)}))

	headers := HeaderMap{}
	p.Write(ctx, headers)

	back := p.Read(headers, flow.Empty)
	if got, _ := back.Tags().String("env"); got != "prod" {
		t.Errorf("env = %q, want prod", got)
	}
	if got, _ := back.Tags().String("cid"); got != "42" {
		t.Errorf("cid = %q, tag values travel as strings", got)
	}

	read := trace.SpanFrom(back)
	if !read.IsRemote() {
		t.Fatal("spans read from a carrier must be remote")
	}
	if !read.Trace().ID.Equal(span.Trace().ID) || !read.ID().Equal(span.ID()) {
		t.Error("span identifiers must survive the round trip")
	}
	if !read.ParentID().Equal(span.ParentID()) {
		t.Error("parent identifier must survive the round trip")
	}
	if read.Trace().Decision != trace.DecisionSample {
		t.Errorf("Decision = %v, want Sample", read.Trace().Decision)
	}
}

func TestHTTPPropagator_MappedTags(t *testing.T) {
	cfg := config.HTTPChannelConfig{
		Tags: config.HTTPTagsConfig{
			HeaderName: "context-tags",
			Mappings:   map[string]string{"cid": "X-Request-Id"},
		},
	}
	p := newHTTPPropagator("custom", cfg, zap.NewNop())

	ctx := flow.WithTags(tags.From(map[string]any{"cid": int64(42), "env": "prod"}))
	headers := HeaderMap{}
	p.Write(ctx, headers)

	if got := headers["X-Request-Id"]; got != "42" {
		t.Errorf("X-Request-Id = %q, mapped tags go to their own header", got)
	}
	if got := headers["context-tags"]; got != "env=prod" {
		t.Errorf("context-tags = %q, mapped tags must not repeat in the combined header", got)
	}

	incoming := HeaderMap{
		"context-tags": "cid=9;env=staging",
		"X-Request-Id": "42",
	}
	back := p.Read(incoming, flow.Empty)
	if got, _ := back.Tags().String("cid"); got != "42" {
		t.Errorf("cid = %q, the mapped header overrides the combined one", got)
	}
	if got, _ := back.Tags().String("env"); got != "staging" {
		t.Errorf("env = %q, want staging", got)
	}
}

func TestHTTPPropagator_EscapesDelimiters(t *testing.T) {
	p := defaultHTTPPropagator(t)
	value := "a=b;c%d"
	ctx := flow.WithTags(tags.From(map[string]any{"odd": value}))

	headers := HeaderMap{}
	p.Write(ctx, headers)
	if headers["context-tags"] == "odd="+value {
		t.Error("delimiters must be escaped in the combined header")
	}

	back := p.Read(headers, flow.Empty)
	if got, _ := back.Tags().String("odd"); got != value {
		t.Errorf("round trip = %q, want %q", got, value)
	}
}

func TestHTTPPropagator_ReadIgnoresGarbagePairs(t *testing.T) {
	p := defaultHTTPPropagator(t)
	back := p.Read(HeaderMap{"context-tags": ";=oops;ok=yes;bare"}, flow.Empty)

	if got, _ := back.Tags().String("ok"); got != "yes" {
		t.Errorf("ok = %q, valid pairs must survive garbage neighbors", got)
	}
	if back.Tags().Len() != 1 {
		t.Errorf("tags = %v, want only the valid pair", back.Tags().All())
	}
}

func TestB3Entry_Read(t *testing.T) {
	ctx := b3Entry{}.Read(HeaderMap{
		headerB3TraceID:  "00112233445566778899aabbccddeeff",
		headerB3SpanID:   "0011223344556677",
		headerB3ParentID: "8899aabbccddeeff",
		headerB3Sampled:  "0",
	}, flow.Empty)

	span := trace.SpanFrom(ctx)
	if span.IsEmpty() {
		t.Fatal("no span read from valid B3 headers")
	}
	if span.Trace().ID.String() != "00112233445566778899aabbccddeeff" {
		t.Errorf("trace = %s", span.Trace().ID)
	}
	if span.ParentID().String() != "8899aabbccddeeff" {
		t.Errorf("parent = %s", span.ParentID())
	}
	if span.Trace().Decision != trace.DecisionDoNotSample {
		t.Errorf("Decision = %v, want DoNotSample", span.Trace().Decision)
	}
}

func TestB3Entry_ReadRejectsPartialHeaders(t *testing.T) {
	cases := map[string]HeaderMap{
		"missing span id":  {headerB3TraceID: "0011223344556677"},
		"missing trace id": {headerB3SpanID: "0011223344556677"},
		"malformed trace":  {headerB3TraceID: "xyz", headerB3SpanID: "0011223344556677"},
	}
	for name, headers := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := b3Entry{}.Read(headers, flow.Empty)
			if !trace.SpanFrom(ctx).IsEmpty() {
				t.Error("incomplete B3 headers must not produce a span")
			}
		})
	}
}

func TestB3SingleEntry_RoundTrip(t *testing.T) {
	ctx, span := remoteSpanContext(t, trace.DecisionSample)

	headers := HeaderMap{}
	b3SingleEntry{}.Write(ctx, headers)
	want := span.Trace().ID.String() + "-" + span.ID().String() + "-1-" + span.ParentID().String()
	if headers[headerB3Single] != want {
		t.Errorf("b3 = %q, want %q", headers[headerB3Single], want)
	}

	back := trace.SpanFrom(b3SingleEntry{}.Read(headers, flow.Empty))
	if !back.ID().Equal(span.ID()) || !back.Trace().ID.Equal(span.Trace().ID) {
		t.Error("identifiers must survive the single-header round trip")
	}
	if back.Trace().Decision != trace.DecisionSample {
		t.Errorf("Decision = %v, want Sample", back.Trace().Decision)
	}
}

func TestHTTPPropagator_WriteSkipsEmptySpan(t *testing.T) {
	p := defaultHTTPPropagator(t)
	headers := HeaderMap{}
	p.Write(flow.Empty, headers)
	if len(headers) != 0 {
		t.Errorf("headers = %v, an empty context writes nothing", headers)
	}
}
