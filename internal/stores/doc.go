// Package stores provides the Redis-backed verification-code store used by
// the engine when no other codestore.Store is configured.
//
// # Design
//
// Every state transition runs inside a single Lua script so check-then-act
// sequences are atomic on the server: insert only when no live record holds
// the slot, compare-and-count on validation, compare-and-flip on consume and
// compare-and-delete on release. The caller's clock is passed as an argument
// so expiry follows the injected clock rather than the Redis server time.
//
// Codes are stored as SHA-256 digests and compared in constant time after the
// script returns.
//
// # What this package must NOT do
//
//   - Import phoneverify or any sibling internal package.
//   - Log or expose plaintext codes.
//   - Generate codes or enforce issuance rate limits.
package stores
