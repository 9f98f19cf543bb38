// Package limiters provides domain-specific rate limiters built on top of the
// internal/rate primitives.
//
// # Limiters
//
//   - [IssuanceLimiter]: rolling one-hour ceilings on code issuance per
//     destination number and per request source address.
//
// Limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace and error types. Policy thresholds
// come from Config structs supplied at construction time.
//
// # What this package must NOT do
//
//   - Import phoneverify or any sibling internal package except internal/rate.
//   - Make policy decisions beyond counting. The engine decides consequences.
package limiters
