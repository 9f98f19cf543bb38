// Package internal contains helpers that are intentionally private to
// phoneverify: secure code generation and record identifiers.
//
// # Sub-packages
//
//   - identity: account lookup fan-out and deterministic tie-break
//   - janitor: scheduled housekeeping jobs
//   - limiters: issuance rate limiters
//   - rate: Redis sliding-log primitive
//   - stores: Redis verification-code store
//
// # What this package must NOT do
//
//   - Export types that appear in the public phoneverify API.
//   - Be imported by any package outside the phoneverify module.
package internal
