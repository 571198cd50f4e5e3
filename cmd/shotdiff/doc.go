// Command shotdiff runs the screenshot comparison daemon and talks to it over
// its HTTP API.
//
// Daemon lifecycle lives under `shotdiff daemon` (run, start, stop) and
// `shotdiff status`. Build submission and review use upload, submit, builds,
// show, review and abort. `shotdiff compare` diffs two local images without a
// daemon.
package main
