// Package flow carries request-scoped telemetry state across execution
// boundaries.
//
// A Context is an immutable envelope of typed entries plus a tag set.
// It travels with a unit of work: within a process it rides on the
// standard library's context.Context (see From and Into), and across
// processes it is serialized by the propagation package.
//
// Entries are addressed by Key handles. Every key declares a default,
// so Get never fails: an absent entry yields the key's default. This
// keeps call sites free of presence checks on hot paths.
package flow
