// Package backend defines the contract between the workflow engine and the
// content service that owns jobs, content entities, workflow state, and
// workflow definitions.
//
// The engine never coordinates workers locally: claims, lease renewal, state
// transitions, and definition upserts are all delegated to a Client, which
// must provide claim-once leases and compare-and-set state updates. The store
// package implements Client on embedded SQLite; the remote package implements
// it over HTTP.
package backend
