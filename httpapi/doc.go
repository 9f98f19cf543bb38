// Package httpapi exposes the verification engine as a JSON API on a chi
// router.
//
// Responses never carry the plaintext code. Failures are reported as
// {"error": kind, "message": text} where kind is phoneverify.ErrorKind.
package httpapi
