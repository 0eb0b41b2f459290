package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the framing version carried in every Hello.
const Version = 0

var (
	ErrHelloVersion        = errors.New("hello unsupported version")
	ErrHelloMissingPattern = errors.New("hello missing pattern")
)

// Hello is the cleartext frame an initiator sends before the first handshake
// message. It names the pattern so the responder can build its side, and may
// carry a resumption ticket for psk patterns. Nothing in it is secret; the
// pattern name is bound into the handshake transcript through the protocol label.
type Hello struct {
	Version      int               `json:"version"`
	Pattern      string            `json:"pattern"`
	Ticket       []byte            `json:"ticket,omitempty"`
	Capabilities map[string]string `json:"capabilities,omitempty"`
}

func NewHello(pattern string, capabilities map[string]string) Hello {
	// Copy caps to avoid external mutation.
	capsCopy := map[string]string{}
	for k, v := range capabilities {
		capsCopy[k] = v
	}
	return Hello{
		Version:      Version,
		Pattern:      pattern,
		Capabilities: capsCopy,
	}
}

func (h Hello) Validate() error {
	if h.Version != Version {
		return fmt.Errorf("%w: %d", ErrHelloVersion, h.Version)
	}
	if h.Pattern == "" {
		return ErrHelloMissingPattern
	}
	return nil
}

func EncodeHello(h Hello) ([]byte, error) {
	b, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	if len(b) > MaxFramePayload {
		return nil, ErrFrameTooLarge
	}
	return b, nil
}

func DecodeHello(b []byte) (Hello, error) {
	var h Hello
	if err := json.Unmarshal(b, &h); err != nil {
		return Hello{}, err
	}
	if err := h.Validate(); err != nil {
		return Hello{}, err
	}
	return h, nil
}
