// Package zapsink adapts a zap logger to the authcore audit sink interface.
//
// [NewZapSink] wraps a caller-owned *zap.Logger. Each audit event becomes one
// structured log entry keyed by the event type, with identity and request
// fields attached when present.
//
// # What this package must NOT do
//
//   - Own the logger lifecycle — callers construct, configure, and sync it.
//   - Block: Emit must stay cheap because the dispatcher calls it inline.
package zapsink
