// Package daemon coordinates the long-running shotdiff process.
//
// It wires configuration, the SQLite store, the asset store and the workflow
// manager into a single lifecycle with flock-based locking to prevent
// multiple instances, and serves the HTTP API that CI clients submit
// screenshots to and reviewers read builds from.
//
// Keep orchestration logic here: diff and build jobs live in their own
// packages while the daemon focuses on startup, shutdown and transport.
package daemon
