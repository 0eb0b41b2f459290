package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxFramePayload limits a single frame payload to the largest Disco message.
	MaxFramePayload = 65535

	headerSize = 3
)

var (
	ErrFrameTooLarge = errors.New("protocol: frame payload too large")
	ErrInvalidType   = errors.New("protocol: invalid message type")
)

// Frame is the basic wire container.
// Format:
//
//	1 byte: type
//	2 bytes: payload length (big endian)
//	N bytes: payload
//
// Handshake messages and transport ciphertexts each travel in one frame.
type Frame struct {
	Type    MessageType
	Payload []byte
}

// WriteFrame writes f with a single Write call so message-oriented streams
// (websocket) keep one frame per message.
func WriteFrame(w io.Writer, f Frame) error {
	if f.Type == 0 {
		return ErrInvalidType
	}
	if len(f.Payload) > MaxFramePayload {
		return ErrFrameTooLarge
	}

	buf := make([]byte, headerSize+len(f.Payload))
	buf[0] = byte(f.Type)
	binary.BigEndian.PutUint16(buf[1:headerSize], uint16(len(f.Payload)))
	copy(buf[headerSize:], f.Payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads exactly one frame from r. It never reads past the frame.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	mt := MessageType(hdr[0])
	if mt == 0 {
		return Frame{}, ErrInvalidType
	}
	payloadLen := int(binary.BigEndian.Uint16(hdr[1:]))
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("protocol: read %s payload: %w", mt, err)
	}
	return Frame{Type: mt, Payload: payload}, nil
}

// Expect reads one frame and checks its type.
func Expect(r io.Reader, want MessageType) ([]byte, error) {
	f, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	if f.Type != want {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedType, f.Type, want)
	}
	return f.Payload, nil
}

// ErrUnexpectedType is returned by Expect.
var ErrUnexpectedType = errors.New("protocol: unexpected message type")
