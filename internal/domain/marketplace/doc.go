// Package marketplace defines the platform-neutral types and ports for the
// marketplace request engine: the canonical error taxonomy, per-operation and
// bulk result types, quota/circuit-breaker state, and the collaborator
// interfaces (state store, credential provider, metrics sink) the engine is
// wired with.
package marketplace
