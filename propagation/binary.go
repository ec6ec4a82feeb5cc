package propagation

import (
	"sort"

	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/GriffinCanCode/telemetry/config"
	"github.com/GriffinCanCode/telemetry/flow"
	"github.com/GriffinCanCode/telemetry/trace"
)

// DefaultMaxOutgoingSize caps the encoded context size on outgoing
// binary carriers.
const DefaultMaxOutgoingSize = 2048

// Frame field numbers. Each context entry travels as one key/payload
// pair so that readers can skip entries they do not understand.
const (
	frameFieldKey     = 1
	frameFieldPayload = 2
)

// BinaryPropagator reads and writes contexts over byte-stream carriers
// for one named channel. Propagators are immutable after construction.
type BinaryPropagator struct {
	name            string
	maxOutgoingSize int
	incoming        map[string]BinaryEntry
	outgoing        []namedBinaryEntry
	logger          *zap.Logger
}

type namedBinaryEntry struct {
	key   string
	entry BinaryEntry
}

func newBinaryPropagator(name string, cfg config.BinaryChannelConfig, logger *zap.Logger) *BinaryPropagator {
	p := &BinaryPropagator{
		name:            name,
		maxOutgoingSize: cfg.MaxOutgoingSize,
		incoming:        map[string]BinaryEntry{},
		logger:          logger,
	}
	if p.maxOutgoingSize <= 0 {
		p.maxOutgoingSize = DefaultMaxOutgoingSize
	}

	keys := make([]string, 0, len(cfg.Entries.Incoming))
	for key := range cfg.Entries.Incoming {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		entry, ok := binaryEntryFor(cfg.Entries.Incoming[key])
		if !ok {
			logger.Error("unknown binary propagation entry",
				zap.String("channel", name),
				zap.String("key", key),
				zap.String("entry", cfg.Entries.Incoming[key]))
			continue
		}
		p.incoming[key] = entry
	}

	keys = keys[:0]
	for key := range cfg.Entries.Outgoing {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		entry, ok := binaryEntryFor(cfg.Entries.Outgoing[key])
		if !ok {
			logger.Error("unknown binary propagation entry",
				zap.String("channel", name),
				zap.String("key", key),
				zap.String("entry", cfg.Entries.Outgoing[key]))
			continue
		}
		p.outgoing = append(p.outgoing, namedBinaryEntry{key: key, entry: entry})
	}
	return p
}

// Name returns the channel name this propagator was built for.
func (p *BinaryPropagator) Name() string { return p.name }

// MaxOutgoingSize returns the outgoing frame size cap in bytes.
func (p *BinaryPropagator) MaxOutgoingSize() int { return p.maxOutgoingSize }

// Read consumes the carrier and folds every recognized entry frame into
// the context. Frames with unknown keys are skipped; a malformed frame
// ends the read, and the context keeps what earlier frames contributed.
func (p *BinaryPropagator) Read(reader ByteStreamReader, ctx flow.Context) flow.Context {
	data, err := reader.ReadAll()
	if err != nil {
		p.logger.Warn("failed to read binary context",
			zap.String("channel", p.name), zap.Error(err))
		return ctx
	}
	for len(data) > 0 {
		key, payload, rest, ok := consumeFrame(data)
		if !ok {
			p.logger.Warn("malformed binary context frame, stopping",
				zap.String("channel", p.name))
			return ctx
		}
		data = rest
		if entry, known := p.incoming[key]; known {
			ctx = entry.Read(payload, ctx)
		}
	}
	return ctx
}

// Write encodes every outgoing entry and emits the frames onto the
// carrier. When the encoded context exceeds the channel's size cap
// nothing is written.
func (p *BinaryPropagator) Write(ctx flow.Context, writer ByteStreamWriter) {
	var buf []byte
	for _, e := range p.outgoing {
		payload, present := e.entry.Write(ctx)
		if !present {
			continue
		}
		buf = appendFrame(buf, e.key, payload)
	}
	if len(buf) == 0 {
		return
	}
	if len(buf) > p.maxOutgoingSize {
		p.logger.Warn("encoded context exceeds the outgoing size cap, not writing",
			zap.String("channel", p.name),
			zap.Int("size", len(buf)),
			zap.Int("max", p.maxOutgoingSize))
		return
	}
	if _, err := writer.Write(buf); err != nil {
		p.logger.Warn("failed to write binary context",
			zap.String("channel", p.name), zap.Error(err))
	}
}

func appendFrame(buf []byte, key string, payload []byte) []byte {
	buf = protowire.AppendTag(buf, frameFieldKey, protowire.BytesType)
	buf = protowire.AppendString(buf, key)
	buf = protowire.AppendTag(buf, frameFieldPayload, protowire.BytesType)
	buf = protowire.AppendBytes(buf, payload)
	return buf
}

func consumeFrame(data []byte) (key string, payload, rest []byte, ok bool) {
	num, typ, n := protowire.ConsumeTag(data)
	if n < 0 || num != frameFieldKey || typ != protowire.BytesType {
		return "", nil, nil, false
	}
	data = data[n:]
	keyBytes, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return "", nil, nil, false
	}
	data = data[n:]

	num, typ, n = protowire.ConsumeTag(data)
	if n < 0 || num != frameFieldPayload || typ != protowire.BytesType {
		return "", nil, nil, false
	}
	data = data[n:]
	payload, n = protowire.ConsumeBytes(data)
	if n < 0 {
		return "", nil, nil, false
	}
	return string(keyBytes), payload, data[n:], true
}

// ============================================================================
// Span binary entry
// ============================================================================

// Span payload field numbers.
const (
	spanFieldTraceID  = 1
	spanFieldSpanID   = 2
	spanFieldParentID = 3
	spanFieldDecision = 4
)

// spanBinaryEntry codes the current span's identifiers and sampling
// decision as a compact protobuf-wire payload.
type spanBinaryEntry struct{}

func (spanBinaryEntry) Write(ctx flow.Context) ([]byte, bool) {
	span := trace.SpanFrom(ctx)
	if span.IsEmpty() {
		return nil, false
	}
	var buf []byte
	buf = protowire.AppendTag(buf, spanFieldTraceID, protowire.BytesType)
	buf = protowire.AppendBytes(buf, span.Trace().ID.Bytes())
	buf = protowire.AppendTag(buf, spanFieldSpanID, protowire.BytesType)
	buf = protowire.AppendBytes(buf, span.ID().Bytes())
	if !span.ParentID().IsEmpty() {
		buf = protowire.AppendTag(buf, spanFieldParentID, protowire.BytesType)
		buf = protowire.AppendBytes(buf, span.ParentID().Bytes())
	}
	buf = protowire.AppendTag(buf, spanFieldDecision, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(span.Trace().Decision))
	return buf, true
}

func (spanBinaryEntry) Read(payload []byte, ctx flow.Context) flow.Context {
	var traceID, spanID, parentID trace.Identifier
	decision := trace.DecisionUnknown

	for len(payload) > 0 {
		num, typ, n := protowire.ConsumeTag(payload)
		if n < 0 {
			return ctx
		}
		payload = payload[n:]
		switch {
		case typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(payload)
			if n < 0 {
				return ctx
			}
			payload = payload[n:]
			id := trace.IdentifierFromBytes(raw)
			switch num {
			case spanFieldTraceID:
				traceID = id
			case spanFieldSpanID:
				spanID = id
			case spanFieldParentID:
				parentID = id
			}
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(payload)
			if n < 0 {
				return ctx
			}
			payload = payload[n:]
			if num == spanFieldDecision {
				decision = trace.Decision(v)
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, payload)
			if n < 0 {
				return ctx
			}
			payload = payload[n:]
		}
	}
	if traceID.IsEmpty() || spanID.IsEmpty() {
		return ctx
	}
	remote := trace.NewRemote(spanID, parentID, trace.Trace{ID: traceID, Decision: decision})
	return trace.ContextWith(ctx, remote)
}
