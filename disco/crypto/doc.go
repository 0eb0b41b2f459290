// Package crypto binds the two primitives Disco is built from.
//
//   - X25519 Diffie-Hellman (golang.org/x/crypto/curve25519) for key pairs and
//     shared secrets.
//   - A STROBE-128/1600 duplex (github.com/mimoo/StrobeGo) that hashes, derives
//     keys, encrypts and authenticates over one running transcript.
//
// Nothing here knows about handshake patterns; package disco composes these
// into the handshake and transport layers.
package crypto
