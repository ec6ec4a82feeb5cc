package flow

import (
	stdcontext "context"

	"github.com/GriffinCanCode/telemetry/tags"
)

// Key is a handle addressing one entry in a Context. Keys are typically
// created once as package-level variables.
type Key struct {
	name string
	def  any
}

// NewKey creates a key with the given name and default value.
func NewKey(name string, def any) Key {
	return Key{name: name, def: def}
}

// Name returns the key's name. Names identify entries during
// propagation, so they should be stable across versions.
func (k Key) Name() string {
	return k.name
}

// Default returns the value Get yields when the entry is absent.
func (k Key) Default() any {
	return k.def
}

// Context is an immutable envelope of entries and tags. The zero value
// is the empty context.
type Context struct {
	entries map[string]any
	tags    tags.Set
}

// Empty is the context with no entries and no tags.
var Empty = Context{}

// WithTags creates a context carrying only the given tags.
func WithTags(ts tags.Set) Context {
	return Context{tags: ts}
}

// Get returns the entry for key, or the key's default when absent.
func (c Context) Get(key Key) any {
	if v, ok := c.entries[key.name]; ok {
		return v
	}
	return key.def
}

// Has reports whether an entry is present for key.
func (c Context) Has(key Key) bool {
	_, ok := c.entries[key.name]
	return ok
}

// With returns a context with the entry for key replaced by value.
func (c Context) With(key Key, value any) Context {
	entries := make(map[string]any, len(c.entries)+1)
	for k, v := range c.entries {
		entries[k] = v
	}
	entries[key.name] = value
	return Context{entries: entries, tags: c.tags}
}

// Tags returns the context's tag set.
func (c Context) Tags() tags.Set {
	return c.tags
}

// WithTag returns a context with one tag added or overwritten.
func (c Context) WithTag(key string, value any) Context {
	merged := c.tags.Merge(tags.NewBuilder().Add(key, value).Build())
	return Context{entries: c.entries, tags: merged}
}

// MergeTags returns a context whose tags are the union of the current
// tags and ts, with ts winning on conflicts.
func (c Context) MergeTags(ts tags.Set) Context {
	return Context{entries: c.entries, tags: c.tags.Merge(ts)}
}

// IsEmpty reports whether the context has no entries and no tags.
func (c Context) IsEmpty() bool {
	return len(c.entries) == 0 && c.tags.IsEmpty()
}

type stdKey struct{}

// From extracts the telemetry context from a standard context, or Empty
// when none is attached.
func From(ctx stdcontext.Context) Context {
	if ctx == nil {
		return Empty
	}
	if c, ok := ctx.Value(stdKey{}).(Context); ok {
		return c
	}
	return Empty
}

// Into attaches c to a standard context for downstream calls.
func Into(ctx stdcontext.Context, c Context) stdcontext.Context {
	return stdcontext.WithValue(ctx, stdKey{}, c)
}
