// Package marketapi implements the upstream request execution engine: OAuth1.0a
// signing, per-bucket quota tracking and circuit breaking over a durable state
// store, idempotency-aware retries with exponential backoff, normalization of
// heterogeneous provider errors into the canonical taxonomy, and chunked bulk
// operations with partial-failure accounting. Provider adapters for BrickLink,
// BrickOwl and Rebrickable sit on top of the executor.
package marketapi
