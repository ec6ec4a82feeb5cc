package propagation

import (
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/telemetry/config"
	"github.com/GriffinCanCode/telemetry/flow"
	"github.com/GriffinCanCode/telemetry/tags"
)

// HTTPPropagator reads and writes contexts over header carriers for one
// named channel. Propagators are immutable after construction.
type HTTPPropagator struct {
	name       string
	tagsHeader string
	mappings   map[string]string // tag key -> dedicated header
	incoming   []namedHTTPEntry
	outgoing   []namedHTTPEntry
	logger     *zap.Logger
}

type namedHTTPEntry struct {
	key   string
	entry HTTPEntry
}

func newHTTPPropagator(name string, cfg config.HTTPChannelConfig, logger *zap.Logger) *HTTPPropagator {
	p := &HTTPPropagator{
		name:       name,
		tagsHeader: cfg.Tags.HeaderName,
		mappings:   cfg.Tags.Mappings,
		logger:     logger,
	}
	if p.tagsHeader == "" {
		p.tagsHeader = "context-tags"
	}
	p.incoming = resolveHTTPEntries(name, cfg.Entries.Incoming, logger)
	p.outgoing = resolveHTTPEntries(name, cfg.Entries.Outgoing, logger)
	return p
}

func resolveHTTPEntries(channel string, bindings map[string]string, logger *zap.Logger) []namedHTTPEntry {
	keys := make([]string, 0, len(bindings))
	for key := range bindings {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	entries := make([]namedHTTPEntry, 0, len(keys))
	for _, key := range keys {
		entry, ok := httpEntryFor(bindings[key])
		if !ok {
			logger.Error("unknown http propagation entry",
				zap.String("channel", channel),
				zap.String("key", key),
				zap.String("entry", bindings[key]))
			continue
		}
		entries = append(entries, namedHTTPEntry{key: key, entry: entry})
	}
	return entries
}

// Name returns the channel name this propagator was built for.
func (p *HTTPPropagator) Name() string { return p.name }

// Read folds the carrier's headers into the context: tags first, then
// each incoming entry in order.
func (p *HTTPPropagator) Read(reader HeaderReader, ctx flow.Context) flow.Context {
	ctx = ctx.MergeTags(p.readTags(reader))
	for _, e := range p.incoming {
		ctx = e.entry.Read(reader, ctx)
	}
	return ctx
}

// Write renders the context onto the carrier: the tag headers, then
// each outgoing entry in order.
func (p *HTTPPropagator) Write(ctx flow.Context, writer HeaderWriter) {
	p.writeTags(ctx.Tags(), writer)
	for _, e := range p.outgoing {
		e.entry.Write(ctx, writer)
	}
}

// readTags parses the combined tag header and then lets mapped headers
// override individual keys.
func (p *HTTPPropagator) readTags(reader HeaderReader) tags.Set {
	b := tags.NewBuilder()
	if combined, ok := reader.Read(p.tagsHeader); ok {
		for _, pair := range strings.Split(combined, ";") {
			if pair == "" {
				continue
			}
			key, value, found := strings.Cut(pair, "=")
			if !found || key == "" {
				continue
			}
			b.String(key, unescapeTagValue(value))
		}
	}
	for key, header := range p.mappings {
		if value, ok := reader.Read(header); ok {
			b.String(key, value)
		}
	}
	return b.Build()
}

// writeTags serializes unmapped tags into the combined header and
// mapped tags into their dedicated headers, raw.
func (p *HTTPPropagator) writeTags(ts tags.Set, writer HeaderWriter) {
	if ts.IsEmpty() {
		return
	}
	var combined strings.Builder
	for _, tag := range ts.All() {
		value := renderTagValue(tag.Value)
		if header, mapped := p.mappings[tag.Key]; mapped {
			writer.Write(header, value)
			continue
		}
		if combined.Len() > 0 {
			combined.WriteByte(';')
		}
		combined.WriteString(tag.Key)
		combined.WriteByte('=')
		combined.WriteString(escapeTagValue(value))
	}
	if combined.Len() > 0 {
		writer.Write(p.tagsHeader, combined.String())
	}
}

func renderTagValue(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case int64:
		return strconv.FormatInt(value, 10)
	case bool:
		return strconv.FormatBool(value)
	default:
		return ""
	}
}

const hexDigits = "0123456789ABCDEF"

// escapeTagValue percent-escapes the characters that delimit the
// combined tag header.
func escapeTagValue(s string) string {
	if !strings.ContainsAny(s, ";=%") {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case ';', '=', '%':
			sb.WriteByte('%')
			sb.WriteByte(hexDigits[c>>4])
			sb.WriteByte(hexDigits[c&0xf])
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func unescapeTagValue(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			hi := hexValue(s[i+1])
			lo := hexValue(s[i+2])
			if hi >= 0 && lo >= 0 {
				sb.WriteByte(byte(hi<<4 | lo))
				i += 2
				continue
			}
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func hexValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}
