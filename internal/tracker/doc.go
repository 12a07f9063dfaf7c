// Package tracker implements the operator-facing client for the alignment
// instrument's ASCII control port.
//
// A Client owns one TCP connection and serializes exchanges over it, so each
// reply line is read by the command that caused it. Measurement plans answer
// only once the instrument finishes, which is why the read timeout is far
// longer than the dial timeout and why the halt sequence writes outside the
// exchange lock.
//
// Ownership boundary: the wire grammar (commands, replies, payloads) lives
// in internal/protocol and exchange tuning (timeouts, backoff, ready
// polling) lives in internal/protocol/session. This package owns connection
// lifecycle, exchange serialization, and the operation surface on top.
package tracker
