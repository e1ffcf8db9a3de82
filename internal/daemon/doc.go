// Package daemon owns the long-running dispatcher process: it holds the
// single-instance lock, runs the workflow manager, and serves health and
// metrics until stopped.
package daemon
