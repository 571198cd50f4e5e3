// Package buildstatus reduces a build's own job status and the statuses of its
// screenshot diffs into the user-visible build status, then derives the build
// conclusion and review status once the build is complete.
//
// Every function is pure and operates on snapshots supplied by the caller, so
// the reductions can be re-run as diff results land and evaluated in bulk for
// many builds at once. Bulk variants preserve input order.
package buildstatus
