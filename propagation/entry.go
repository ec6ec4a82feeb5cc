package propagation

import (
	"sync"

	"github.com/GriffinCanCode/telemetry/flow"
)

// HTTPEntry codes one logical dimension of a context onto HTTP-style
// headers. Implementations must be stateless: per-invocation state
// lives only in locals.
type HTTPEntry interface {
	// Read folds the carrier's headers into the context.
	Read(reader HeaderReader, ctx flow.Context) flow.Context
	// Write renders the context onto the carrier.
	Write(ctx flow.Context, writer HeaderWriter)
}

// BinaryEntry codes one logical dimension of a context as one binary
// frame payload. Implementations must be stateless.
type BinaryEntry interface {
	// Read folds a frame payload into the context.
	Read(payload []byte, ctx flow.Context) flow.Context
	// Write renders the context into a frame payload. A false return
	// means the entry has nothing to emit.
	Write(ctx flow.Context) ([]byte, bool)
}

var entryRegistry = struct {
	sync.RWMutex
	http   map[string]func() HTTPEntry
	binary map[string]func() BinaryEntry
}{
	http: map[string]func() HTTPEntry{
		"b3":        func() HTTPEntry { return b3Entry{} },
		"b3-single": func() HTTPEntry { return b3SingleEntry{} },
	},
	binary: map[string]func() BinaryEntry{
		"span": func() BinaryEntry { return spanBinaryEntry{} },
	},
}

// RegisterHTTPEntry makes a named HTTP propagation entry available to
// channel configuration.
func RegisterHTTPEntry(name string, factory func() HTTPEntry) {
	entryRegistry.Lock()
	defer entryRegistry.Unlock()
	entryRegistry.http[name] = factory
}

// RegisterBinaryEntry makes a named binary propagation entry available
// to channel configuration.
func RegisterBinaryEntry(name string, factory func() BinaryEntry) {
	entryRegistry.Lock()
	defer entryRegistry.Unlock()
	entryRegistry.binary[name] = factory
}

func httpEntryFor(name string) (HTTPEntry, bool) {
	entryRegistry.RLock()
	defer entryRegistry.RUnlock()
	factory, ok := entryRegistry.http[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}

func binaryEntryFor(name string) (BinaryEntry, bool) {
	entryRegistry.RLock()
	defer entryRegistry.RUnlock()
	factory, ok := entryRegistry.binary[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}
