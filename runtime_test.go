package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/telemetry/clock"
	"github.com/GriffinCanCode/telemetry/config"
	"github.com/GriffinCanCode/telemetry/flow"
	"github.com/GriffinCanCode/telemetry/propagation"
	"github.com/GriffinCanCode/telemetry/trace"
)

func testRuntimeConfig() *config.Config {
	cfg := config.Default()
	cfg.Environment.Service = "orders"
	cfg.Trace.Sampler = "always"
	return cfg
}

func TestRuntime_EndToEnd(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	rt, err := NewRuntime(testRuntimeConfig(), WithClock(clk))
	require.NoError(t, err)
	defer rt.Stop()

	assert.Equal(t, "orders", rt.Environment().Service)
	assert.NotEmpty(t, rt.Environment().Instance)

	counter, err := rt.Metrics().Counter("orders.placed")
	require.NoError(t, err)
	counter.WithoutTags().Add(3)

	span := rt.Tracer().SpanBuilder("place-order").Kind(trace.KindServer).Start()
	clk.Advance(2 * time.Millisecond)
	span.Finish()

	snap := rt.Metrics().Snapshot(true)
	require.Len(t, snap.Counters, 1)
	assert.Equal(t, int64(3), snap.Counters[0].Instruments[0].Value)

	spans := rt.Tracer().Spans()
	require.Len(t, spans, 1)
	assert.Equal(t, "place-order", spans[0].Operation)
	assert.Equal(t, trace.DecisionSample, spans[0].Trace.Decision)
}

func TestRuntime_PropagationThroughChannels(t *testing.T) {
	rt, err := NewRuntime(testRuntimeConfig())
	require.NoError(t, err)
	defer rt.Stop()

	span := rt.Tracer().SpanBuilder("outbound").Kind(trace.KindClient).Start()
	ctx := trace.ContextWith(flow.Empty, span)

	headers := propagation.HeaderMap{}
	rt.Channels().DefaultHTTP().Write(ctx, headers)
	span.Finish()

	back := rt.Channels().DefaultHTTP().Read(headers, flow.Empty)
	remote := trace.SpanFrom(back)
	require.False(t, remote.IsEmpty())
	assert.True(t, remote.IsRemote())
	assert.Equal(t, span.Trace().ID.String(), remote.Trace().ID.String())
}

func TestRuntime_OutgoingContextRecordsTheInitiator(t *testing.T) {
	rt, err := NewRuntime(testRuntimeConfig())
	require.NoError(t, err)
	defer rt.Stop()

	out := rt.OutgoingContext(flow.Empty)
	initiator, ok := out.Tags().String(trace.InitiatorTag)
	require.True(t, ok)
	assert.Equal(t, "orders", initiator)

	preset := flow.Empty.WithTag(trace.InitiatorTag, "gateway")
	kept, _ := rt.OutgoingContext(preset).Tags().String(trace.InitiatorTag)
	assert.Equal(t, "gateway", kept)
}

func TestRuntime_Reconfigure(t *testing.T) {
	rt, err := NewRuntime(testRuntimeConfig())
	require.NoError(t, err)
	defer rt.Stop()

	next := testRuntimeConfig()
	next.Trace.Sampler = "never"
	next.Trace.ReporterQueueSize = 32
	rt.Reconfigure(next)

	assert.Equal(t, "never", rt.Config().Trace.Sampler)
	span := rt.Tracer().SpanBuilder("after").Start()
	assert.Equal(t, trace.DecisionDoNotSample, span.Trace().Decision)
	assert.Equal(t, 32, rt.Tracer().Status().BufferCapacity)
}

func TestRuntime_ReconfigureKeepsChannelsOnInvalidPropagation(t *testing.T) {
	rt, err := NewRuntime(testRuntimeConfig())
	require.NoError(t, err)
	defer rt.Stop()

	before := rt.Channels()
	broken := testRuntimeConfig()
	broken.Propagation.HTTP = map[string]config.HTTPChannelConfig{}
	rt.Reconfigure(broken)

	assert.Same(t, before, rt.Channels(), "invalid propagation config must keep the previous channels")
}

func TestNewRuntime_FailsWithoutDefaultChannels(t *testing.T) {
	cfg := testRuntimeConfig()
	cfg.Propagation.Binary = map[string]config.BinaryChannelConfig{}
	_, err := NewRuntime(cfg)
	require.Error(t, err)
}
