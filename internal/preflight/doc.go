// Package preflight provides readiness checks for the directories, external
// binaries, disk space, and services weft depends on.
//
// These checks run in three contexts:
//   - "weft run" calls RunAll before starting the dispatcher and refuses to
//     start when a required check fails.
//   - "weft queue health" prints every result.
//   - Media activities call EnsureFreeSpace before writing large temp files.
package preflight
