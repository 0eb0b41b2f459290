package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPeerIDDerivationStable(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	id1 := PeerIDFromPublicKey(kp.Public)
	id2 := PeerIDFromPublicKey(kp.Public)
	if id1 != id2 {
		t.Fatalf("PeerID mismatch")
	}

	parsed, err := ParsePeerIDHex(id1.String())
	if err != nil {
		t.Fatalf("ParsePeerIDHex: %v", err)
	}
	if parsed != id1 {
		t.Fatalf("ParsePeerIDHex mismatch")
	}
	if len(id1.Short()) != 16 {
		t.Fatalf("unexpected short id %q", id1.Short())
	}
	if _, err := ParsePeerIDHex("abcd"); err == nil {
		t.Fatalf("expected length error")
	}
}

func TestKeyFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "static.json")
	kp, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := Save(path, kp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("key file permissions %v", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != kp {
		t.Fatalf("loaded keypair differs")
	}
}

func TestKeyFileMismatch(t *testing.T) {
	dir := t.TempDir()
	a, _ := Generate()
	b, _ := Generate()
	a.Public = b.Public

	path := filepath.Join(dir, "bad.json")
	if err := Save(path, a); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := Load(path); err != ErrKeyFileMismatch {
		t.Fatalf("expected ErrKeyFileMismatch, got %v", err)
	}

	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
