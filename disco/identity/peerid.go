package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/TheusHen/disco/disco/crypto"
)

// PeerID is the stable identifier for a peer.
// It is defined as: PeerID = SHA-256(static X25519 public key).
type PeerID [32]byte

func PeerIDFromPublicKey(publicKey crypto.PublicKey) PeerID {
	return PeerID(sha256.Sum256(publicKey[:]))
}

func ParsePeerIDHex(s string) (PeerID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PeerID{}, err
	}
	if len(b) != 32 {
		return PeerID{}, errors.New("invalid PeerID length")
	}
	var id PeerID
	copy(id[:], b)
	return id, nil
}

func (id PeerID) String() string {
	return hex.EncodeToString(id[:])
}

// Short is the first 8 bytes in hex, for logs.
func (id PeerID) Short() string {
	return hex.EncodeToString(id[:8])
}
