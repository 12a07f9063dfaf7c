// Package protocol owns the instrument wire contract and parsing primitives.
//
// Ownership boundary:
// - reply classification and the diagnostic code table
// - measurement payload parsing, both wire dialects
// - command formatting and target frame naming
package protocol
