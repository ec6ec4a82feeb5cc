package trace

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ============================================================================
// Identifier
// ============================================================================

// Identifier is a fixed-length byte string with a cached hex rendering.
type Identifier struct {
	bytes []byte
	hex   string
}

// EmptyIdentifier is the absent-identifier sentinel.
var EmptyIdentifier = Identifier{}

// IsEmpty reports whether the identifier is the empty sentinel.
func (i Identifier) IsEmpty() bool { return len(i.bytes) == 0 }

// Bytes returns the raw identifier bytes. Callers must not mutate them.
func (i Identifier) Bytes() []byte { return i.bytes }

// String returns the lowercase hex rendering, or "" when empty.
func (i Identifier) String() string { return i.hex }

// Equal reports whether two identifiers carry the same bytes.
func (i Identifier) Equal(other Identifier) bool { return i.hex == other.hex }

func newIdentifier(b []byte) Identifier {
	return Identifier{bytes: b, hex: hex.EncodeToString(b)}
}

// ============================================================================
// Factories and schemes
// ============================================================================

// Factory generates and parses identifiers of one fixed length.
type Factory interface {
	// Generate returns a fresh random identifier.
	Generate() Identifier
	// FromHex parses a hex rendering. The empty string parses to the
	// empty identifier.
	FromHex(s string) (Identifier, error)
	// FromBytes adopts raw bytes of the factory's length.
	FromBytes(b []byte) (Identifier, error)
	// Length is the identifier length in bytes.
	Length() int
}

type randomFactory struct {
	length int
}

func (f randomFactory) Generate() Identifier {
	id := uuid.New()
	b := make([]byte, f.length)
	copy(b, id[:])
	return newIdentifier(b)
}

func (f randomFactory) FromHex(s string) (Identifier, error) {
	if s == "" {
		return EmptyIdentifier, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return EmptyIdentifier, fmt.Errorf("parsing identifier %q: %w", s, err)
	}
	return f.FromBytes(b)
}

func (f randomFactory) FromBytes(b []byte) (Identifier, error) {
	if len(b) != f.length {
		return EmptyIdentifier, fmt.Errorf("identifier has %d bytes, want %d", len(b), f.length)
	}
	return newIdentifier(b), nil
}

func (f randomFactory) Length() int { return f.length }

// Scheme pairs the trace-identifier and span-identifier factories.
type Scheme struct {
	TraceIDs Factory
	SpanIDs  Factory
}

// SingleScheme uses 8-byte trace and span identifiers.
func SingleScheme() Scheme {
	return Scheme{TraceIDs: randomFactory{length: 8}, SpanIDs: randomFactory{length: 8}}
}

// DoubleScheme uses 16-byte trace identifiers and 8-byte span identifiers.
func DoubleScheme() Scheme {
	return Scheme{TraceIDs: randomFactory{length: 16}, SpanIDs: randomFactory{length: 8}}
}

// ============================================================================
// Scheme registry
// ============================================================================

var schemeRegistry = struct {
	sync.RWMutex
	factories map[string]func() Scheme
}{factories: map[string]func() Scheme{
	"single": SingleScheme,
	"double": DoubleScheme,
}}

// RegisterScheme makes a named identifier scheme available to the
// identifier-scheme configuration key.
func RegisterScheme(name string, factory func() Scheme) {
	schemeRegistry.Lock()
	defer schemeRegistry.Unlock()
	schemeRegistry.factories[name] = factory
}

// SchemeFor resolves a configured scheme name. Unknown names return the
// single scheme and an error the caller is expected to log.
func SchemeFor(name string) (Scheme, error) {
	schemeRegistry.RLock()
	factory, ok := schemeRegistry.factories[name]
	schemeRegistry.RUnlock()
	if !ok {
		return SingleScheme(), fmt.Errorf("unknown identifier scheme %q, using single", name)
	}
	return factory(), nil
}
