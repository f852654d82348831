// Package cache stores compiled outputs in SQLite so repeated compilations
// of the same input can skip the compiler.
//
// Keys are content-addressed: a SHA-256 hash over the command name, the
// input document and the effective compiler settings, with domain
// separation. Values are CBOR envelopes holding the canonical output
// document and the backend that produced it.
//
// The cache is opt-in. Without a configured path nothing is persisted.
package cache
