// Package llm talks to an OpenRouter-compatible API for JSON chat
// completions and text embeddings.
//
// NewClient builds a client from Config (FromConfig maps the llm section).
// CompleteJSON returns the raw model payload and DecodeJSON parses it,
// tolerating markdown fences and surrounding prose. Embed returns one vector
// per input in input order. HealthCheck proves the key and model work.
//
// Calls are retried with exponential backoff (1s doubling to 10s, five
// attempts by default) on 408, 429 and 5xx responses, empty completions,
// and network timeouts. A Retry-After header replaces the next delay.
//
// Returned errors carry services markers: missing or rejected credentials
// are configuration errors, other 4xx responses are permanent, and the rest
// are external tool failures the dispatcher may retry.
package llm
