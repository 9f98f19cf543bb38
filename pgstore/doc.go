// Package pgstore is a PostgreSQL implementation of codestore.Store.
//
// The one-live-record-per-slot guarantee comes from a partial unique index
// over pending rows, so concurrent issuers race on the index rather than on
// application locks. Records are never deleted on consume; PurgeExpired
// removes rows past their retention.
package pgstore
