// Package rate provides the Redis sliding-log primitive that issuance
// limiters are built on.
//
// # Window semantics
//
// Each subject key is a sorted set of event members scored by their unix
// millisecond timestamp. A reservation prunes entries older than the window,
// counts what remains and, only when every subject is under its ceiling,
// records the new event on all of them. The whole step is one Lua script, so
// concurrent reservations cannot undercount. Keys expire one window after
// their newest event.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the phoneverify module.
package rate
