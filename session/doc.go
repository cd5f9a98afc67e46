// Package session persists the single active session record of each
// principal and provides the backends that hold it.
//
// # Backends
//
// [MemoryStore] keeps records in process memory. [RedisStore] keeps one hash
// per principal plus a refresh-token index and an expiry index, mutated by
// Lua scripts. [PostgresStore] relies on a principal_id primary key and an
// ON CONFLICT upsert. [BoltStore] keeps [Encode]d records in a local bbolt
// file.
//
// # Architecture boundaries
//
// This package owns the [Store] contract and the [Record] model. It does NOT
// sign or parse tokens, and it does not decide whether a refresh is allowed:
// those decisions belong to the Engine.
//
// # What this package must NOT do
//
//   - Import tokenauth or jwt (no upward imports).
//   - Write refresh tokens into key space; indexes use a SHA-256 digest.
//   - Hold more than one record per principal.
package session
