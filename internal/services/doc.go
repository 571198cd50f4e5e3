// Package services defines shared utilities consumed by the build and diff jobs
// and the HTTP surface.
//
// It provides context helpers that stamp build and diff IDs, stage names, and
// correlation identifiers for logging, plus structured error markers and the
// Wrap helper so callers can classify failures (bad input vs transient) without
// string matching.
package services
