package crypto

import (
	"github.com/mimoo/StrobeGo/strobe"
)

const (
	// SecurityLevel is the STROBE security parameter in bits.
	SecurityLevel = 128

	// TagSize is the length of every authentication tag.
	TagSize = 16
)

// Duplex is a STROBE-128/1600 state. It absorbs associated data, encrypts,
// decrypts, produces and checks tags, and ratchets, all over one running
// transcript.
//
// A Duplex is not safe for concurrent use. Clone returns an independent deep
// copy; mutating the copy never affects the original.
type Duplex struct {
	s *strobe.Strobe
}

// NewDuplex initializes a state with the given customization label.
func NewDuplex(customization string) *Duplex {
	s := strobe.InitStrobe(customization, SecurityLevel)
	return &Duplex{s: &s}
}

// AD absorbs data as non-secret associated data.
func (d *Duplex) AD(data []byte) {
	d.s.AD(false, data)
}

// MetaAD absorbs framing/label data in the meta channel.
func (d *Duplex) MetaAD(data []byte) {
	d.s.AD(true, data)
}

// Send encrypts plaintext and appends the ciphertext to out.
func (d *Duplex) Send(out, plaintext []byte) []byte {
	ct := d.s.Send_ENC_unauthenticated(false, append([]byte(nil), plaintext...))
	return append(out, ct...)
}

// Recv decrypts ciphertext and appends the plaintext to out.
// The result is unauthenticated until RecvMAC succeeds.
func (d *Duplex) Recv(out, ciphertext []byte) []byte {
	pt := d.s.Recv_ENC_unauthenticated(false, append([]byte(nil), ciphertext...))
	return append(out, pt...)
}

// SendMAC appends a TagSize-byte tag over the transcript to out.
func (d *Duplex) SendMAC(out []byte) []byte {
	return append(out, d.s.Send_MAC(false, TagSize)...)
}

// RecvMAC checks a tag against the transcript.
func (d *Duplex) RecvMAC(tag []byte) bool {
	if len(tag) != TagSize {
		return false
	}
	return d.s.Recv_MAC(false, append([]byte(nil), tag...))
}

// PRF squeezes n pseudorandom bytes from the state.
func (d *Duplex) PRF(n int) []byte {
	return d.s.PRF(n)
}

// Ratchet irreversibly mixes n bytes of the state so earlier states cannot
// be recovered from later ones.
func (d *Duplex) Ratchet(n int) {
	d.s.RATCHET(n)
}

// Clone returns an independent copy of the state.
func (d *Duplex) Clone() *Duplex {
	return &Duplex{s: d.s.Clone()}
}
