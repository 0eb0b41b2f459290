package disco

import (
	"github.com/TheusHen/disco/disco/crypto"
)

// symmetricState owns the handshake duplex and tracks whether any key
// material has been mixed in yet.
type symmetricState struct {
	duplex   *crypto.Duplex
	keyed    bool
	consumed bool
}

func newSymmetricState(patternName string) *symmetricState {
	return &symmetricState{duplex: crypto.NewDuplex(ProtocolName(patternName))}
}

func (s *symmetricState) live() {
	if s.consumed {
		panic("disco: symmetric state used after split")
	}
}

func (s *symmetricState) mixHash(data []byte) {
	s.live()
	s.duplex.AD(data)
}

// mixKey absorbs a DH output or PSK. The caller owns key and wipes it.
func (s *symmetricState) mixKey(key []byte) {
	s.live()
	s.duplex.AD(key)
	s.keyed = true
}

func (s *symmetricState) encryptAndHash(out, plaintext []byte) []byte {
	s.live()
	if !s.keyed {
		panic("disco: encryptAndHash before any key was mixed")
	}
	out = s.duplex.Send(out, plaintext)
	return s.duplex.SendMAC(out)
}

func (s *symmetricState) decryptAndHash(out, ciphertext []byte) ([]byte, error) {
	s.live()
	if !s.keyed {
		panic("disco: decryptAndHash before any key was mixed")
	}
	if len(ciphertext) < crypto.TagSize {
		return nil, ErrMessageTooShort
	}
	tagAt := len(ciphertext) - crypto.TagSize
	n := len(out)
	out = s.duplex.Recv(out, ciphertext[:tagAt])
	if !s.duplex.RecvMAC(ciphertext[tagAt:]) {
		crypto.Wipe(out[n:])
		return nil, ErrBadMAC
	}
	return out, nil
}

// handshakeHash squeezes a transcript digest from a copy of the state.
func (s *symmetricState) handshakeHash() []byte {
	s.live()
	return s.duplex.Clone().PRF(HashSize)
}

// split derives the two direction states and consumes s.
func (s *symmetricState) split() (one, two *crypto.Duplex) {
	s.live()
	if !s.keyed {
		panic("disco: split before any key was mixed")
	}
	one = s.duplex
	two = s.duplex.Clone()
	one.MetaAD([]byte("one"))
	two.MetaAD([]byte("two"))
	one.Ratchet(ratchetSize)
	two.Ratchet(ratchetSize)
	s.duplex = nil
	s.consumed = true
	return one, two
}
