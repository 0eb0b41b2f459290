package disco

import "errors"

// Recoverable protocol errors. Contract violations (steps out of order, use
// after Finalize, use of an aborted Session, nonce exhaustion) panic instead.
var (
	// ErrPayloadTooLong means a message would exceed MaxMessageSize.
	ErrPayloadTooLong = errors.New("disco: payload too long")
	// ErrMessageTooShort means a buffer is shorter than the data it must carry.
	ErrMessageTooShort = errors.New("disco: message too short")
	// ErrBadMAC means tag verification failed.
	ErrBadMAC = errors.New("disco: bad MAC")
)

// Configuration errors returned by NewHandshake.
var (
	ErrUnknownPattern    = errors.New("disco: unknown handshake pattern")
	ErrMissingStatic     = errors.New("disco: pattern requires a local static keypair")
	ErrMissingPeerStatic = errors.New("disco: pattern requires the peer's static public key")
	ErrMissingPSK        = errors.New("disco: pattern requires a pre-shared key")
	ErrUnexpectedPSK     = errors.New("disco: pattern does not use a pre-shared key")
)

// ErrPeerStaticMismatch is returned when a transmitted static key differs
// from the one pinned in Config.PeerStatic.
var ErrPeerStaticMismatch = errors.New("disco: peer static key does not match the pinned key")
