// Package store is the embedded SQLite content backend: it persists jobs,
// content entities, supplementary content metadata, workflow state history,
// workflow definitions, and a full-text search index, and implements
// backend.Client on top of them.
//
// Claims are a single UPDATE ... RETURNING statement, so a job is leased to
// at most one owner even with many concurrent workers; running jobs whose
// lease expired are claimable again. Content bytes live in a storage.Blobs
// implementation rather than the database.
//
// The schema version lives in SQLite's user_version pragma. Schema changes
// bump it in schema.go; a database at another version is rejected with
// ErrSchemaMismatch rather than migrated in place.
package store
