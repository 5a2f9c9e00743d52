// Package authcore provides an authentication and MFA orchestration core with argon2id
// credential verification, JWT access tokens, rotating opaque refresh tokens, and
// Redis-backed challenge, lockout, and session state.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config], and value types
// (LoginResult, TOTPSetup, MetricsSnapshot, etc.). All internal coordination — challenge
// storage, attempt ledgers, rate limiting, audit dispatch — lives under internal/ and is
// never exported. Account persistence is the caller's: implementations of [UserStore]
// plug in whatever database holds user records.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is allocation-only
//     until Build).
//   - Deliver email itself — code delivery goes through the caller's [Notifier].
//
// # Performance contract
//
// Validate is the hot path. It must not allocate beyond the returned claims struct and
// completes without Redis round-trips. Login, Refresh, and MFA operations are allowed a
// small constant number of Redis round-trips per call.
package authcore
