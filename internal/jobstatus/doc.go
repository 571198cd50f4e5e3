// Package jobstatus defines the lifecycle shared by every asynchronous unit of
// work: one instance per screenshot diff and one per build.
//
// Persisted states move pending → progress → complete|error, and any
// non-terminal state may be aborted. Expired is never stored; it is derived at
// read time from a unit's creation timestamp and a configurable Policy, so the
// same rule applies wherever a status is surfaced.
package jobstatus
