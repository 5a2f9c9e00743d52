// Package session provides Redis-backed session persistence and compact binary session
// encoding for authentication hot paths.
//
// # Binary encoding
//
// Sessions are stored in Redis as a compact fixed-layout binary format so the
// refresh-rotation Lua script can locate the refresh hash without a full decode.
// The encoder is append-only: new versions add fields but never reinterpret old ones.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model. It does NOT
// interpret JWT tokens, verify second factors, or enforce authentication policy — those
// responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import authcore or jwt (no upward imports).
//   - Perform application-level authentication decisions.
//   - Store plaintext secrets in [Session] fields.
package session
