// Package workflow runs the queue dispatcher: one worker pool per configured
// queue, each worker claiming leased jobs from the backend, executing the
// job's activity, and driving the entity's state transition.
//
// A job settles in one of three ways. Success completes it. A retriable
// failure with attempts remaining reschedules it with exponential backoff. Any
// other failure moves the entity into the error state and dead-letters the job,
// exactly once. Jobs interrupted by shutdown are handed back without counting
// the attempt; jobs abandoned by a crashed process are reclaimed by the store
// once their lease expires.
package workflow
