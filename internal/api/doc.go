// Package api exposes a backend.Client over HTTP so dispatchers on other
// hosts can run against one content store. The remote backend client in
// internal/backend/remote is its only intended consumer; the wire types
// live here so both sides share them.
//
// Errors travel as {"error","kind"} where kind is services.Classification,
// letting the client restore the sentinel and its retry semantics.
package api
