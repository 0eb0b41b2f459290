// Package disco implements Disco handshakes: Noise-style Diffie-Hellman
// patterns where a single STROBE duplex does the hashing, key derivation,
// encryption and authentication.
//
// A Handshake runs one side of a pattern (N, K, X, NNpsk2, KK, NK, NX, XX, IK).
// The caller alternates WriteMessage and ReadMessage in the order the pattern
// dictates and moves the bytes between peers itself. Once every message has
// been processed, Finalize yields a Session whose Encrypt and Decrypt protect
// application messages in both directions.
//
// Malformed or forged input is reported with ErrBadMAC, ErrMessageTooShort or
// ErrPayloadTooLong. Driving a Handshake out of order, or using a Session after
// it aborted, is a bug in the caller and panics.
//
// Subpackages add key identities, a peer directory, a framed network session
// and QUIC/websocket transports; package peer ties them together.
package disco
