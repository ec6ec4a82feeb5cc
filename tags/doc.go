// Package tags provides immutable typed tag sets.
//
// A Set maps string keys to string, int64, or bool values. Sets are
// value types: once built they never change, so they can be shared
// freely across goroutines, attached to spans and metric instruments,
// and used as lookup keys.
//
// Sets are assembled through a Builder:
//
//	set := tags.NewBuilder().
//		String("env", "prod").
//		Int64("shard", 4).
//		Build()
//
// Adding an existing key overwrites the previous value. Lookups are
// typed and report whether the key was present with the requested type.
package tags
