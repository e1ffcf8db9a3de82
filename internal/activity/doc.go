// Package activity defines the pluggable unit of work the dispatcher runs
// against a content entity, the registry that resolves activities by id, and
// the per-job Context that owns temporary resources and caches entity reads.
//
// Activities are stateless and shared by every worker; anything scoped to a
// single job belongs on the Context, whose ReleaseAll the dispatcher defers
// on every exit path.
package activity
