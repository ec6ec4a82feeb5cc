package propagation

import (
	"testing"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/telemetry/config"
	"github.com/GriffinCanCode/telemetry/flow"
	"github.com/GriffinCanCode/telemetry/trace"
)

func defaultBinaryPropagator(t *testing.T) *BinaryPropagator {
	t.Helper()
	channels, err := NewChannels(config.Default(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewChannels failed: %v", err)
	}
	return channels.DefaultBinary()
}

func TestBinaryPropagator_RoundTrip(t *testing.T) {
	p := defaultBinaryPropagator(t)
	ctx, span := remoteSpanContext(t, trace.DecisionSample)

	out := NewBytesCarrier(nil)
	p.Write(ctx, out)
	if out.Len() == 0 {
		t.Fatal("nothing written for a context with a span")
	}

	back := p.Read(NewBytesCarrier(out.Bytes()), flow.Empty)
	read := trace.SpanFrom(back)
	if read.IsEmpty() {
		t.Fatal("no span read back")
	}
	if !read.IsRemote() {
		t.Error("spans read from a carrier must be remote")
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

func TestBinaryPropagator_EmptyContextWritesNothing(t *testing.T) {
	p := defaultBinaryPropagator(t)
	out := NewBytesCarrier(nil)
	p.Write(flow.Empty, out)
	if out.Len() != 0 {
		t.Errorf("wrote %d bytes for an empty context", out.Len())
	}
}

func TestBinaryPropagator_SizeCapSuppressesTheWholeWrite(t *testing.T) {
	cfg := config.BinaryChannelConfig{
		MaxOutgoingSize: 4,
		Entries: config.EntriesConfig{
			Outgoing: map[string]string{"span": "span"},
		},
	}
	p := newBinaryPropagator("tiny", cfg, zap.NewNop())
	ctx, _ := remoteSpanContext(t, trace.DecisionSample)

	out := NewBytesCarrier(nil)
	p.Write(ctx, out)
	if out.Len() != 0 {
		t.Errorf("wrote %d bytes past the size cap, want none at all", out.Len())
	}
}

func TestBinaryPropagator_SkipsUnknownEntries(t *testing.T) {
	p := defaultBinaryPropagator(t)
	ctx, span := remoteSpanContext(t, trace.DecisionSample)

	out := NewBytesCarrier(nil)
	p.Write(ctx, out)

	data := appendFrame(nil, "mystery", []byte{0x01, 0x02, 0x03})
	data = append(data, out.Bytes()...)

	back := p.Read(NewBytesCarrier(data), flow.Empty)
	read := trace.SpanFrom(back)
	if read.IsEmpty() {
		t.Fatal("unknown entries must be skipped, not abort the read")
	}
	if !read.ID().Equal(span.ID()) {
		t.Error("span after the unknown entry must still be read")
	}
}

func TestBinaryPropagator_MalformedPayloadLeavesContextUntouched(t *testing.T) {
	p := defaultBinaryPropagator(t)

	data := appendFrame(nil, "span", []byte{0xff, 0xff, 0xff})
	back := p.Read(NewBytesCarrier(data), flow.Empty)
	if !trace.SpanFrom(back).IsEmpty() {
		t.Error("a malformed span payload must not produce a span")
	}
}

func TestBinaryPropagator_DefaultSize(t *testing.T) {
	cfg := config.BinaryChannelConfig{}
	p := newBinaryPropagator("bare", cfg, zap.NewNop())
	if p.MaxOutgoingSize() != DefaultMaxOutgoingSize {
		t.Errorf("MaxOutgoingSize = %d, want %d", p.MaxOutgoingSize(), DefaultMaxOutgoingSize)
	}
}
