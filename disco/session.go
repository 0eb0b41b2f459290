package disco

import (
	"encoding/binary"
	"math"
	"sync/atomic"

	"github.com/TheusHen/disco/disco/crypto"
	"github.com/sirupsen/logrus"
)

// Session is the transport cipher produced by Handshake.Finalize.
//
// Every message is processed by a throwaway copy of the direction's duplex
// keyed with the message nonce, so the long-lived states never move after
// Finalize. Messages must be decrypted in the order they were encrypted.
//
// The send and receive halves share only the abort flag; a caller may guard
// them with two separate locks. A Session is otherwise not safe for
// concurrent use.
type Session struct {
	sender    *crypto.Duplex
	sendNonce uint64

	receiver  *crypto.Duplex
	recvNonce uint64

	aborted atomic.Bool
}

func newSession(sender, receiver *crypto.Duplex) *Session {
	return &Session{sender: sender, receiver: receiver}
}

// Overhead is the number of bytes Encrypt adds to a plaintext.
func (s *Session) Overhead() int { return TagSize }

// Aborted reports whether a tag check failed. An aborted Session panics on use.
func (s *Session) Aborted() bool { return s.aborted.Load() }

// SendNonce is the nonce the next Encrypt will use.
func (s *Session) SendNonce() uint64 { return s.sendNonce }

// RecvNonce is the nonce the next Decrypt will use.
func (s *Session) RecvNonce() uint64 { return s.recvNonce }

func messageState(base *crypto.Duplex, nonce uint64, ad []byte) *crypto.Duplex {
	d := base.Clone()
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], nonce)
	d.AD(n[:])
	if len(ad) > 0 {
		d.AD(ad)
	}
	return d
}

// Encrypt appends the ciphertext and tag of plaintext to out. ad, when
// non-empty, is authenticated but not sent.
func (s *Session) Encrypt(out, ad, plaintext []byte) ([]byte, error) {
	if s.aborted.Load() {
		panic("disco: Encrypt on an aborted session")
	}
	if len(plaintext)+TagSize > MaxMessageSize {
		return nil, ErrPayloadTooLong
	}
	if s.sendNonce == math.MaxUint64 {
		panic("disco: send nonce exhausted")
	}

	d := messageState(s.sender, s.sendNonce, ad)
	out = d.Send(out, plaintext)
	out = d.SendMAC(out)
	s.sendNonce++
	return out, nil
}

// Decrypt verifies ciphertext and appends the plaintext to out. A failed tag
// check aborts the session for good and returns ErrBadMAC.
func (s *Session) Decrypt(out, ad, ciphertext []byte) ([]byte, error) {
	if s.aborted.Load() {
		panic("disco: Decrypt on an aborted session")
	}
	if len(ciphertext) < TagSize {
		return nil, ErrMessageTooShort
	}
	if len(ciphertext) > MaxMessageSize {
		return nil, ErrPayloadTooLong
	}
	if s.recvNonce == math.MaxUint64 {
		panic("disco: receive nonce exhausted")
	}

	d := messageState(s.receiver, s.recvNonce, ad)
	tagAt := len(ciphertext) - TagSize
	n := len(out)
	out = d.Recv(out, ciphertext[:tagAt])
	if !d.RecvMAC(ciphertext[tagAt:]) {
		crypto.Wipe(out[n:])
		s.aborted.Store(true)
		logger.WithFields(logrus.Fields{"nonce": s.recvNonce}).Debug("session aborted: bad MAC")
		return nil, ErrBadMAC
	}
	s.recvNonce++
	return out, nil
}
