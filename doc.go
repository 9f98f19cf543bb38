// Package phoneverify manages the lifecycle of one-time phone verification
// codes: canonicalizing numbers, resolving the owning account, capping how
// often codes are issued, and issuing, validating and consuming codes.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. Every piece of cross-request state lives in a
// [codestore.Store] and the Redis-backed issuance limiter, so several engine
// instances may share them.
//
// # Lifecycle
//
// A code is issued for a (phone number, purpose) pair and is live until it
// expires or is consumed. At most one live code exists per pair; issuing
// while one is live fails with a [PendingError] carrying the remaining time.
// Validate checks a code without consuming it, Consume marks it used exactly
// once, and Verify does both.
//
// # Architecture boundaries
//
// phoneverify is the public surface. It exposes [Engine], [Builder], [Config]
// and value types. Redis scripts, the sliding-log limiter and account ranking
// live under internal/ and are never exported. Account stores and message
// transports are supplied by the caller through [AccountStore] and
// [Transport]; adapters live in pgaccounts and transport/twilio.
//
// The engine never mutates accounts. [Engine.BindPhone] returns the
// decision and the caller applies it.
package phoneverify
