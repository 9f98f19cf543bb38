// Package middleware adapts HTTP requests to the verification engine.
//
// [SourceAddress] and [Realm] copy request attributes into the context keys
// the engine reads for per-source limits and realm scoping. [RequireProof]
// guards downstream handlers with a verification proof presented as a
// bearer token.
//
// This package makes no verification decisions of its own; every check is
// delegated to the engine.
package middleware
