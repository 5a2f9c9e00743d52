// Package limiters provides the fixed-window Redis throttles the engine
// consults before security-sensitive operations.
//
// # Limiters
//
//   - [MFALimiter] — per account+method failure throttle for second-factor attempts.
//   - [RegistrationLimiter] — per-IP + per-email throttle for account creation.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace and error types. Policy thresholds
// come from Config structs supplied at construction time.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package.
//   - Make policy decisions beyond counting. The engine decides consequences.
package limiters
