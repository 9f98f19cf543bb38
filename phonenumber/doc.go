// Package phonenumber turns raw user input into the single canonical textual
// form used as the lookup key for verification codes and accounts.
//
// Parsing and numbering-plan validation are delegated to
// github.com/nyaruka/phonenumbers. A Canonicalizer is built once from
// operator configuration and is safe for concurrent use.
//
// # Errors
//
// Every failure is an *Error. Parse and validity failures match
// ErrInvalidNumber; operator pattern rejections match ErrNotAllowed. The
// Reason field distinguishes the two invalid cases for diagnostics.
package phonenumber
