// Package proof mints and verifies short-lived signed tokens asserting that a
// phone number was verified by a consumed one-time code.
//
// A proof is handed to the caller after a successful verification so a later
// step (account creation, phone change, password reset) can trust the number
// without re-running the code exchange. Tokens are bound to the purpose they
// were issued for and to the verification record that produced them.
package proof
