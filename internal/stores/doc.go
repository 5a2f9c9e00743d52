// Package stores provides the Redis-backed single-purpose records the MFA
// flows depend on.
//
// # Stores
//
//   - [ChallengeStore] — pending MFA challenges keyed by token jti, with a
//     transactional per-challenge attempt counter.
//   - [EmailCodeStore] — the hash of the live email one-time code per
//     account, consumed with a compare-and-delete script.
//
// # Architecture boundaries
//
// Records here are short-lived and carry no account state beyond what the
// flow needs; durable account data lives behind the UserStore interface.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package.
//   - Store plaintext codes. Only hashes reach Redis.
package stores
