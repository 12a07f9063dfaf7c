// Package session owns client session tuning.
//
// Ownership boundary:
// - exchange timeouts and the slow-reply threshold
// - retry/backoff primitives for dialing and ready polling
package session
