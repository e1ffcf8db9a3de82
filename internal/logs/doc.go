// Package logs tails dispatcher run logs for the CLI.
//
// Reads are bounded per line, resume from a byte offset, and can wait for
// new output in follow mode. Lines can be narrowed to a single job using the
// job_id field the dispatcher attaches to every job-scoped record.
package logs
