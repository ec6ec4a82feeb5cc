// Package propagation serializes contexts across process boundaries.
//
// A channel is a named, immutable collection of entries built from
// configuration; the "default" channel is mandatory for both media.
// Each entry codes one logical dimension of the context, and entries
// are resolved by registered name so that new formats plug in without
// touching the core.
//
// Over HTTP-style carriers, context tags travel in one combined header
// with percent-escaped values, except for tags rerouted to dedicated
// headers by the channel's mappings. The span travels in B3 multi or
// single header format.
//
// Over binary carriers, each entry becomes a key-tagged
// length-delimited frame. A context whose encoding exceeds the
// channel's outgoing size cap is not written at all: partial contexts
// never reach the wire.
package propagation
