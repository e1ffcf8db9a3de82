// Package config loads, normalizes, and validates weft configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// WEFT_QUEUES and OPENROUTER_API_KEY. The queue specification is parsed and
// checked here so a malformed value stops the process before any worker
// starts.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, parsed queue specs, and clear validation errors.
package config
