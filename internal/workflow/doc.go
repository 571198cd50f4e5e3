// Package workflow drives builds and screenshot diffs through their jobs.
//
// The Manager runs two independent lanes. The build lane claims the oldest
// pending build whose compare bucket is complete and plans it. The diff lane
// polls pending diffs and fans them out to a fixed pool of workers; each
// worker claims its diff atomically before computing it, so a diff is never
// computed twice at the same time even when the dispatcher hands the same id
// out more than once.
//
// Both lanes poll at workflow.queue_poll_interval and back off for
// workflow.error_retry_interval after a store failure. Notify wakes them
// early after a submission.
package workflow
