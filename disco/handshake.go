package disco

import (
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/TheusHen/disco/disco/crypto"
	"github.com/sirupsen/logrus"
)

// Config selects a pattern and the key material of one side of a handshake.
type Config struct {
	Pattern   *Pattern
	Initiator bool

	// StaticKeypair is required when the pattern uses the local static key.
	StaticKeypair *crypto.KeyPair

	// PeerStatic is required when the pattern has the peer's static key as a
	// pre-message. For patterns that transmit it, a non-nil PeerStatic pins the
	// expected key and a different one fails the handshake.
	PeerStatic *crypto.PublicKey

	// PresharedKey is required by psk patterns and rejected by the others.
	PresharedKey []byte

	// Random is the source for ephemeral keys. Defaults to crypto/rand.
	Random io.Reader
}

// optionalKey is a peer key that becomes known at some step.
type optionalKey struct {
	key crypto.PublicKey
	ok  bool
}

func (o *optionalKey) set(k crypto.PublicKey) {
	o.key = k
	o.ok = true
}

func (o *optionalKey) get(what string) crypto.PublicKey {
	if !o.ok {
		panic("disco: " + what + " used before it was received")
	}
	return o.key
}

// Handshake runs one side of a pattern. Writes and reads must be called in
// the order the pattern dictates; anything else panics. A Handshake is not
// safe for concurrent use and must be discarded after any returned error.
type Handshake struct {
	pattern   *Pattern
	initiator bool
	ss        *symmetricState

	s    *crypto.KeyPair
	e    *crypto.KeyPair
	rs   optionalKey
	re   optionalKey
	pin  *crypto.PublicKey
	psk  []byte
	step int

	finalized bool
}

// NewHandshake validates cfg against its pattern and prepares the first step.
func NewHandshake(cfg Config) (*Handshake, error) {
	p := cfg.Pattern
	if p == nil {
		return nil, ErrUnknownPattern
	}

	h := &Handshake{
		pattern:   p,
		initiator: cfg.Initiator,
		ss:        newSymmetricState(p.Name),
	}

	if p.NeedsStatic(cfg.Initiator) {
		if cfg.StaticKeypair == nil {
			return nil, ErrMissingStatic
		}
		s := *cfg.StaticKeypair
		h.s = &s
	}

	if cfg.PeerStatic != nil {
		if p.KnowsPeerStatic(cfg.Initiator) {
			h.rs.set(*cfg.PeerStatic)
		} else {
			pin := *cfg.PeerStatic
			h.pin = &pin
		}
	} else if p.KnowsPeerStatic(cfg.Initiator) {
		return nil, ErrMissingPeerStatic
	}

	switch {
	case p.UsesPSK() && len(cfg.PresharedKey) == 0:
		return nil, ErrMissingPSK
	case !p.UsesPSK() && len(cfg.PresharedKey) > 0:
		return nil, ErrUnexpectedPSK
	case p.UsesPSK():
		h.psk = append([]byte(nil), cfg.PresharedKey...)
	}

	if h.sendsEphemeral() {
		e, err := crypto.GenerateKeyPair(cfg.Random)
		if err != nil {
			return nil, fmt.Errorf("disco: generate ephemeral key: %w", err)
		}
		h.e = &e
	}

	return h, nil
}

func (h *Handshake) sendsEphemeral() bool {
	for i, m := range h.pattern.Messages {
		if (i%2 == 0) == h.initiator && hasToken(m, TokenE) {
			return true
		}
	}
	return false
}

// Pattern returns the pattern being run.
func (h *Handshake) Pattern() *Pattern { return h.pattern }

// Initiator reports the role of this side.
func (h *Handshake) Initiator() bool { return h.initiator }

// Complete reports whether every message of the pattern has been processed.
func (h *Handshake) Complete() bool { return h.step >= len(h.pattern.Messages) }

// WriteTurn reports whether the next step is a write. It is meaningless once
// Complete returns true.
func (h *Handshake) WriteTurn() bool { return (h.step%2 == 0) == h.initiator }

// RemoteStatic returns the peer's static key once it is known.
func (h *Handshake) RemoteStatic() (crypto.PublicKey, bool) { return h.rs.key, h.rs.ok }

// RemoteEphemeral returns the peer's ephemeral key once it has been received.
func (h *Handshake) RemoteEphemeral() (crypto.PublicKey, bool) { return h.re.key, h.re.ok }

// LocalStatic returns this side's static public key, if the pattern uses one.
func (h *Handshake) LocalStatic() (crypto.PublicKey, bool) {
	if h.s == nil {
		return crypto.PublicKey{}, false
	}
	return h.s.Public, true
}

// HandshakeHash returns a HashSize digest of the transcript so far. Called
// after the last step both sides obtain the same value, suitable as a
// channel binding. It panics after Finalize.
func (h *Handshake) HandshakeHash() []byte {
	return h.ss.handshakeHash()
}

// WriteMessage appends the next message's key material to out.
func (h *Handshake) WriteMessage(out []byte) ([]byte, error) {
	return h.write(out, nil, false)
}

// WriteMessageWithPayload appends the next message's key material followed by
// the encrypted payload. The state must already be keyed.
func (h *Handshake) WriteMessageWithPayload(out, payload []byte) ([]byte, error) {
	return h.write(out, payload, true)
}

// ReadMessage consumes the key material of the next message. Bytes after the
// key material are ignored.
func (h *Handshake) ReadMessage(msg []byte) error {
	_, err := h.read(msg, false)
	return err
}

// ReadMessageWithPayload consumes the next message and returns the decrypted
// payload that follows its key material.
func (h *Handshake) ReadMessageWithPayload(msg []byte) ([]byte, error) {
	return h.read(msg, true)
}

func (h *Handshake) next(write bool) []Token {
	if h.finalized {
		panic("disco: handshake used after Finalize")
	}
	if h.Complete() {
		panic("disco: out of turn: no handshake messages left")
	}
	if h.WriteTurn() != write {
		if write {
			panic("disco: out of turn: expected a read")
		}
		panic("disco: out of turn: expected a write")
	}
	return h.pattern.Messages[h.step]
}

// keySize is the number of message bytes taken by the key tokens of a step.
func keySize(tokens []Token) int {
	n := 0
	for _, t := range tokens {
		switch t {
		case TokenE:
			n += KeySize
		case TokenS:
			n += KeySize + TagSize
		}
	}
	return n
}

func (h *Handshake) write(out, payload []byte, withPayload bool) ([]byte, error) {
	tokens := h.next(true)

	size := keySize(tokens)
	if withPayload {
		size += len(payload) + TagSize
	}
	if size > MaxMessageSize {
		return nil, ErrPayloadTooLong
	}

	for _, t := range tokens {
		switch t {
		case TokenE:
			out = append(out, h.e.Public[:]...)
			h.ss.mixHash(h.e.Public[:])
		case TokenS:
			out = h.ss.encryptAndHash(out, h.static().Public[:])
		default:
			if err := h.mix(t); err != nil {
				return nil, err
			}
		}
	}
	if withPayload {
		out = h.ss.encryptAndHash(out, payload)
	}

	h.log().Debug("handshake message written")
	h.step++
	return out, nil
}

func (h *Handshake) read(msg []byte, withPayload bool) ([]byte, error) {
	tokens := h.next(false)

	if len(msg) > MaxMessageSize {
		return nil, ErrPayloadTooLong
	}
	need := keySize(tokens)
	if withPayload {
		need += TagSize
	}
	if len(msg) < need {
		return nil, ErrMessageTooShort
	}

	off := 0
	for _, t := range tokens {
		switch t {
		case TokenE:
			var re crypto.PublicKey
			copy(re[:], msg[off:off+KeySize])
			off += KeySize
			h.re.set(re)
			h.ss.mixHash(re[:])
		case TokenS:
			n := KeySize + TagSize
			pt, err := h.ss.decryptAndHash(make([]byte, 0, KeySize), msg[off:off+n])
			if err != nil {
				return nil, err
			}
			off += n
			var rs crypto.PublicKey
			copy(rs[:], pt)
			if h.pin != nil && subtle.ConstantTimeCompare(h.pin[:], rs[:]) != 1 {
				return nil, ErrPeerStaticMismatch
			}
			h.rs.set(rs)
		default:
			if err := h.mix(t); err != nil {
				return nil, err
			}
		}
	}

	var payload []byte
	if withPayload {
		var err error
		payload, err = h.ss.decryptAndHash(nil, msg[off:])
		if err != nil {
			return nil, err
		}
	}

	h.log().Debug("handshake message read")
	h.step++
	return payload, nil
}

func (h *Handshake) static() *crypto.KeyPair {
	if h.s == nil {
		panic("disco: local static key used but not configured")
	}
	return h.s
}

func (h *Handshake) ephemeral() *crypto.KeyPair {
	if h.e == nil {
		panic("disco: local ephemeral key used but never generated")
	}
	return h.e
}

// mix performs a key-mixing token. es is always DH(initiator e, responder s)
// and se is DH(initiator s, responder e), seen from whichever side runs it.
func (h *Handshake) mix(t Token) error {
	if t == TokenPSK {
		h.ss.mixKey(h.psk)
		crypto.Wipe(h.psk)
		h.psk = nil
		return nil
	}

	var local *crypto.KeyPair
	var remote crypto.PublicKey
	switch t {
	case TokenEE:
		local, remote = h.ephemeral(), h.re.get("peer ephemeral key")
	case TokenES:
		if h.initiator {
			local, remote = h.ephemeral(), h.rs.get("peer static key")
		} else {
			local, remote = h.static(), h.re.get("peer ephemeral key")
		}
	case TokenSE:
		if h.initiator {
			local, remote = h.static(), h.re.get("peer ephemeral key")
		} else {
			local, remote = h.ephemeral(), h.rs.get("peer static key")
		}
	case TokenSS:
		local, remote = h.static(), h.rs.get("peer static key")
	default:
		panic(fmt.Sprintf("disco: unexpected token %v", t))
	}

	shared, err := local.DH(remote)
	if err != nil {
		return fmt.Errorf("disco: %v: %w", t, err)
	}
	h.ss.mixKey(shared)
	crypto.Wipe(shared)
	return nil
}

// Finalize turns a completed handshake into a transport Session. It panics
// if messages remain or if called twice.
func (h *Handshake) Finalize() *Session {
	if h.finalized {
		panic("disco: Finalize called twice")
	}
	if !h.Complete() {
		panic("disco: Finalize before the handshake completed")
	}

	one, two := h.ss.split()
	h.finalized = true
	if h.e != nil {
		h.e.Wipe()
	}
	if h.s != nil {
		h.s.Wipe()
	}

	h.log().Debug("handshake finalized")
	if h.initiator {
		return newSession(one, two)
	}
	return newSession(two, one)
}

func (h *Handshake) log() logrus.FieldLogger {
	return logger.WithFields(logrus.Fields{
		"pattern": h.pattern.Name,
		"role":    roleName(h.initiator),
		"step":    h.step,
	})
}
