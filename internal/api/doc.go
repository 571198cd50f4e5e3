// Package api defines the wire-format types and the service layer behind
// the daemon's HTTP surface. It translates store models into transport
// friendly DTOs and runs the status reductions on read, so every response
// carries the derived build status, conclusion and review status.
//
// # Key Types
//
// SubmissionRequest/SubmissionResponse: one shard of screenshots in, the
// build id and URL out. Every shard of a parallel batch gets the same
// build back.
//
// Build: a build with its derived status, conclusion and review status.
//
// Diff: one screenshot pair with its classification, effective job status
// and public image URLs.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Absent values (no base bucket, no score, no
// conclusion yet) are omitted or null rather than zero. Timestamps use
// RFC3339 with milliseconds.
package api
