package identity

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/TheusHen/disco/disco/crypto"
)

var ErrKeyFileMismatch = errors.New("identity: key file public key does not match secret key")

// keyFile is the on-disk form of a static keypair.
type keyFile struct {
	Public string `json:"public"`
	Secret string `json:"secret"`
}

// Generate creates a fresh static keypair.
func Generate() (crypto.KeyPair, error) {
	return crypto.GenerateKeyPair(nil)
}

// Save writes kp to path with owner-only permissions.
func Save(path string, kp crypto.KeyPair) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(keyFile{
		Public: hex.EncodeToString(kp.Public[:]),
		Secret: hex.EncodeToString(kp.Secret[:]),
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o600)
}

// Load reads a keypair written by Save and checks that both halves agree.
func Load(path string) (crypto.KeyPair, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return crypto.KeyPair{}, err
	}
	var kf keyFile
	if err := json.Unmarshal(b, &kf); err != nil {
		return crypto.KeyPair{}, fmt.Errorf("identity: parse %s: %w", path, err)
	}
	raw, err := hex.DecodeString(kf.Secret)
	if err != nil {
		return crypto.KeyPair{}, fmt.Errorf("identity: secret key: %w", err)
	}
	defer crypto.Wipe(raw)
	if len(raw) != crypto.KeySize {
		return crypto.KeyPair{}, crypto.ErrInvalidKeyLength
	}
	var sk crypto.SecretKey
	copy(sk[:], raw)
	kp := crypto.NewKeyPair(sk)
	crypto.Wipe(sk[:])

	if kf.Public != "" {
		pub, err := crypto.ParsePublicKeyHex(kf.Public)
		if err != nil {
			return crypto.KeyPair{}, fmt.Errorf("identity: public key: %w", err)
		}
		if pub != kp.Public {
			return crypto.KeyPair{}, ErrKeyFileMismatch
		}
	}
	return kp, nil
}
