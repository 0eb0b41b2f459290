package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"
)

const (
	// KeySize is the length of X25519 public keys, secret keys and shared secrets.
	KeySize = 32
)

var (
	ErrInvalidPublicKey = errors.New("crypto: invalid X25519 public key")
	ErrInvalidKeyLength = errors.New("crypto: invalid X25519 key length")
)

// PublicKey is an X25519 public key.
type PublicKey [KeySize]byte

// SecretKey is a clamped X25519 scalar.
type SecretKey [KeySize]byte

// KeyPair owns one SecretKey and the PublicKey derived from it.
type KeyPair struct {
	Public PublicKey
	Secret SecretKey
}

// GenerateKeyPair generates a new X25519 keypair from r.
// A nil reader means crypto/rand.
func GenerateKeyPair(r io.Reader) (KeyPair, error) {
	if r == nil {
		r = rand.Reader
	}
	var sk SecretKey
	if _, err := io.ReadFull(r, sk[:]); err != nil {
		return KeyPair{}, err
	}
	kp := NewKeyPair(sk)
	Wipe(sk[:])
	return kp, nil
}

// NewKeyPair derives the keypair owning sk. The scalar is clamped per RFC 7748.
func NewKeyPair(sk SecretKey) KeyPair {
	sk.clamp()
	kp := KeyPair{Secret: sk}
	pub := (*[KeySize]byte)(&kp.Public)
	curve25519.ScalarBaseMult(pub, (*[KeySize]byte)(&kp.Secret))
	return kp
}

func (sk *SecretKey) clamp() {
	sk[0] &= 248
	sk[31] &= 127
	sk[31] |= 64
}

// DH computes the X25519 shared secret between kp and a peer public key.
// Low-order peer points yield ErrInvalidPublicKey.
func (kp *KeyPair) DH(peer PublicKey) ([]byte, error) {
	shared, err := curve25519.X25519(kp.Secret[:], peer[:])
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	return shared, nil
}

// Wipe zeroes the secret half of the keypair.
func (kp *KeyPair) Wipe() {
	Wipe(kp.Secret[:])
}

// PublicKeyFromBytes copies a 32-byte public key out of b.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != KeySize {
		return pk, ErrInvalidKeyLength
	}
	copy(pk[:], b)
	return pk, nil
}

// ParsePublicKeyHex decodes a hex encoded public key.
func ParsePublicKeyHex(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, err
	}
	return PublicKeyFromBytes(b)
}

func (pk PublicKey) String() string {
	return hex.EncodeToString(pk[:])
}

// IsZero reports whether pk is the all-zero key.
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}
