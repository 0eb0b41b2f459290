package disco

import (
	"fmt"
	"strings"
)

const (
	// Version is the protocol version embedded in every customization label.
	Version = 0

	// MaxMessageSize bounds every handshake and transport message.
	MaxMessageSize = 65535

	// TagSize is the authentication tag length at every layer.
	TagSize = 16

	// KeySize is the length of public keys on the wire.
	KeySize = 32

	// HashSize is the length of HandshakeHash output.
	HashSize = 32

	ratchetSize = 16
)

// ProtocolName returns the duplex customization label for a pattern.
func ProtocolName(pattern string) string {
	return fmt.Sprintf("Disco-v%d_%s", Version, pattern)
}

// Token is one step of a handshake message.
type Token uint8

const (
	TokenE Token = iota + 1
	TokenS
	TokenEE
	TokenES
	TokenSE
	TokenSS
	TokenPSK
)

func (t Token) String() string {
	switch t {
	case TokenE:
		return "e"
	case TokenS:
		return "s"
	case TokenEE:
		return "ee"
	case TokenES:
		return "es"
	case TokenSE:
		return "se"
	case TokenSS:
		return "ss"
	case TokenPSK:
		return "psk"
	default:
		return "?"
	}
}

// Pattern describes a handshake. Messages alternate direction, starting with
// the initiator. Pre-message tokens only declare which static keys each side
// must know before the handshake; they are not absorbed into the transcript.
type Pattern struct {
	Name         string
	InitiatorPre []Token
	ResponderPre []Token
	Messages     [][]Token
}

// First letter: initiator's static key. N = none, K = known to the responder,
// X = transmitted, I = transmitted immediately. Second letter: the same for
// the responder. One-letter patterns are one-way: the responder's key is known.
var (
	PatternN = &Pattern{
		Name:         "N",
		ResponderPre: []Token{TokenS},
		Messages: [][]Token{
			{TokenE, TokenES},
		},
	}
	PatternK = &Pattern{
		Name:         "K",
		InitiatorPre: []Token{TokenS},
		ResponderPre: []Token{TokenS},
		Messages: [][]Token{
			{TokenE, TokenES, TokenSS},
		},
	}
	PatternX = &Pattern{
		Name:         "X",
		ResponderPre: []Token{TokenS},
		Messages: [][]Token{
			{TokenE, TokenES, TokenS, TokenSS},
		},
	}
	PatternNNpsk2 = &Pattern{
		Name: "NNpsk2",
		Messages: [][]Token{
			{TokenE},
			{TokenE, TokenEE, TokenPSK},
		},
	}
	PatternKK = &Pattern{
		Name:         "KK",
		InitiatorPre: []Token{TokenS},
		ResponderPre: []Token{TokenS},
		Messages: [][]Token{
			{TokenE, TokenES, TokenSS},
			{TokenE, TokenEE, TokenSE},
		},
	}
	PatternNK = &Pattern{
		Name:         "NK",
		ResponderPre: []Token{TokenS},
		Messages: [][]Token{
			{TokenE, TokenES},
			{TokenE, TokenEE},
		},
	}
	PatternNX = &Pattern{
		Name: "NX",
		Messages: [][]Token{
			{TokenE},
			{TokenE, TokenEE, TokenS, TokenES},
		},
	}
	PatternXX = &Pattern{
		Name: "XX",
		Messages: [][]Token{
			{TokenE},
			{TokenE, TokenEE, TokenS, TokenES},
			{TokenS, TokenSE},
		},
	}
	PatternIK = &Pattern{
		Name:         "IK",
		ResponderPre: []Token{TokenS},
		Messages: [][]Token{
			{TokenE, TokenES, TokenS, TokenSS},
			{TokenE, TokenEE, TokenSE},
		},
	}
)

var patterns = []*Pattern{
	PatternN, PatternK, PatternX, PatternNNpsk2,
	PatternKK, PatternNK, PatternNX, PatternXX, PatternIK,
}

// Patterns returns every supported pattern.
func Patterns() []*Pattern {
	return append([]*Pattern(nil), patterns...)
}

// PatternByName looks a pattern up by its identifier.
func PatternByName(name string) (*Pattern, error) {
	for _, p := range patterns {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPattern, name)
}

// OneWay reports whether only the initiator ever sends.
func (p *Pattern) OneWay() bool {
	return len(p.Messages) == 1
}

// String renders the pattern in the usual arrow notation.
func (p *Pattern) String() string {
	var b strings.Builder
	b.WriteString(p.Name)
	b.WriteString(":")
	if len(p.InitiatorPre) > 0 || len(p.ResponderPre) > 0 {
		if len(p.InitiatorPre) > 0 {
			b.WriteString("\n  -> " + joinTokens(p.InitiatorPre))
		}
		if len(p.ResponderPre) > 0 {
			b.WriteString("\n  <- " + joinTokens(p.ResponderPre))
		}
		b.WriteString("\n  ...")
	}
	for i, m := range p.Messages {
		arrow := "->"
		if i%2 == 1 {
			arrow = "<-"
		}
		b.WriteString("\n  " + arrow + " " + joinTokens(m))
	}
	return b.String()
}

func joinTokens(ts []Token) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// NeedsStatic reports whether the given role uses its own static key.
func (p *Pattern) NeedsStatic(initiator bool) bool {
	own := p.ResponderPre
	if initiator {
		own = p.InitiatorPre
	}
	if hasToken(own, TokenS) {
		return true
	}
	for i, m := range p.Messages {
		sender := i%2 == 0
		for _, t := range m {
			switch t {
			case TokenS:
				if sender == initiator {
					return true
				}
			case TokenSS:
				return true
			case TokenES:
				if !initiator {
					return true
				}
			case TokenSE:
				if initiator {
					return true
				}
			}
		}
	}
	return false
}

// KnowsPeerStatic reports whether the given role must be configured with the
// peer's static key up front.
func (p *Pattern) KnowsPeerStatic(initiator bool) bool {
	if initiator {
		return hasToken(p.ResponderPre, TokenS)
	}
	return hasToken(p.InitiatorPre, TokenS)
}

// UsesPSK reports whether the pattern mixes in a pre-shared key.
func (p *Pattern) UsesPSK() bool {
	for _, m := range p.Messages {
		if hasToken(m, TokenPSK) {
			return true
		}
	}
	return false
}

func hasToken(ts []Token, t Token) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}
