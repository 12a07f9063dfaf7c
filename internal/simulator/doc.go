// Package simulator emulates the alignment instrument's control
// application well enough to exercise a client end to end.
//
// The emulation keeps a rigid-body model of each point group. Measurement
// plans take real time to "run": the completion reply is produced when the
// plan's deadline passes, and the line loop stays responsive in between so
// status polls and halts behave like the real instrument.
//
// Ownership boundary: Controller owns instrument state and the reply
// grammar for one command line; Server owns the TCP listener, the single
// client connection, and reply delivery order; the admin API owns
// out-of-band inspection and fault injection and never touches the wire
// protocol.
package simulator
