// Package services defines shared utilities consumed by activities, the
// dispatcher, and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, activity IDs, queue names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper, and the Retriable
//     classification the dispatcher uses to choose between retry and failure.
//
// Subpackages hold clients for external services (LLM provider, embedding
// store, encoder) so activities depend on small, testable types.
package services
