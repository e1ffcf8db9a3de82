// Package ai hosts the LLM-backed activities: prompt execution that stores a
// JSON result as supplementary content, and embedding generation that writes
// chunk vectors to the pgvector store.
//
// Both activities depend on narrow interfaces so tests can substitute an
// httptest-backed llm.Client or an in-memory vector writer.
package ai
