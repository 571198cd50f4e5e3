// Package store persists screenshot buckets, screenshots, builds, and
// screenshot diffs in SQLite.
//
// It is the only package that speaks SQL. Callers get plain structs back and
// feed them into the pure status reductions (see buildstatus.Input via
// BuildInputs). Writes that must be serialised, such as build number
// assignment and parallel batch reconciliation, run inside BEGIN IMMEDIATE
// transactions on a dedicated connection.
package store
