package tags

import "sort"

// Builder assembles a Set. Builders are not safe for concurrent use.
type Builder struct {
	m map[string]any
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{m: make(map[string]any)}
}

// String adds a string tag. An existing key is overwritten.
func (b *Builder) String(key, value string) *Builder {
	b.m[key] = value
	return b
}

// Int64 adds an integer tag. An existing key is overwritten.
func (b *Builder) Int64(key string, value int64) *Builder {
	b.m[key] = value
	return b
}

// Bool adds a boolean tag. An existing key is overwritten.
func (b *Builder) Bool(key string, value bool) *Builder {
	b.m[key] = value
	return b
}

// Add adds a tag of any supported type. Unsupported value types are
// silently dropped; int and int32 values are widened to int64.
func (b *Builder) Add(key string, value any) *Builder {
	b.add(key, value)
	return b
}

func (b *Builder) add(key string, value any) {
	if key == "" {
		return
	}
	switch v := value.(type) {
	case string:
		b.m[key] = v
	case int64:
		b.m[key] = v
	case int:
		b.m[key] = int64(v)
	case int32:
		b.m[key] = int64(v)
	case bool:
		b.m[key] = v
	}
}

// Build produces the immutable set. The builder may keep being used
// afterwards; later additions do not affect already-built sets.
func (b *Builder) Build() Set {
	if len(b.m) == 0 {
		return Empty
	}
	pairs := make([]Tag, 0, len(b.m))
	for k, v := range b.m {
		pairs = append(pairs, Tag{Key: k, Value: v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
	return Set{pairs: pairs}
}

// From builds a set from a plain map.
func From(m map[string]any) Set {
	b := NewBuilder()
	for k, v := range m {
		b.add(k, v)
	}
	return b.Build()
}

// FromStrings builds a set from a string-valued map.
func FromStrings(m map[string]string) Set {
	b := NewBuilder()
	for k, v := range m {
		b.String(k, v)
	}
	return b.Build()
}
