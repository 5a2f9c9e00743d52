// Package internal holds the primitives shared by the engine packages:
// identifier and secret generation, refresh token encoding, one-time code
// generation, and backup code formatting and hashing.
//
// Sub-packages:
//
//   - internal/ledger — per-account attempt history and lockout counters.
//   - internal/limiters — fixed-window throttles for MFA and registration.
//   - internal/stores — MFA challenge and email code records.
//
// Everything here is deliberately free of imports from the root package so
// the dependency direction stays one-way.
package internal
