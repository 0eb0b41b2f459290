package session

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/TheusHen/disco/disco"
	"github.com/TheusHen/disco/disco/crypto"
	"github.com/TheusHen/disco/disco/identity"
	"github.com/TheusHen/disco/disco/protocol"
	"github.com/sirupsen/logrus"
)

var (
	ErrClosed  = errors.New("session: connection closed")
	ErrAborted = errors.New("session: aborted after a bad message")
)

// MaxMessageSize is the largest plaintext WriteMessage accepts.
const MaxMessageSize = disco.MaxMessageSize - disco.TagSize

// Conn is an established Disco session over a framed stream.
// Each message travels in one frame; the frame type is bound to the
// ciphertext as associated data.
//
// One goroutine may write while another reads.
type Conn struct {
	rw io.ReadWriter

	sendMu sync.Mutex // frame order on the wire
	recvMu sync.Mutex
	// cryptoMu is held around Encrypt and Decrypt only, never across I/O,
	// so an abort seen by the reader cannot race a writer into a panic.
	cryptoMu sync.Mutex
	sess     *disco.Session

	pattern     *disco.Pattern
	initiator   bool
	hash        []byte
	remote      crypto.PublicKey
	remoteKnown bool
	ticket      *ResumptionTicket

	compress bool
	level    CompressionLevel

	closeOnce sync.Once
	closed    bool // guarded by sendMu
	log       logrus.FieldLogger
}

func (c *Conn) Pattern() *disco.Pattern { return c.pattern }

func (c *Conn) Initiator() bool { return c.initiator }

// HandshakeHash is the transcript digest both sides agree on.
func (c *Conn) HandshakeHash() []byte { return append([]byte(nil), c.hash...) }

// RemoteStatic returns the peer's static key when the pattern revealed it or
// the peer was configured with it.
func (c *Conn) RemoteStatic() (crypto.PublicKey, bool) { return c.remote, c.remoteKnown }

// RemotePeerID derives the peer's identity from its static key.
func (c *Conn) RemotePeerID() (identity.PeerID, bool) {
	if !c.remoteKnown {
		return identity.PeerID{}, false
	}
	return identity.PeerIDFromPublicKey(c.remote), true
}

// Ticket is the resumption ticket the server issued, or nil.
func (c *Conn) Ticket() *ResumptionTicket { return c.ticket }

// WriteMessage encrypts p and sends it as one frame.
func (c *Conn) WriteMessage(p []byte) error {
	if len(p) > MaxMessageSize {
		return disco.ErrPayloadTooLong
	}
	typ := protocol.MessageTypeData
	if c.compress {
		if z, ok := maybeCompress(p, c.level); ok {
			p, typ = z, protocol.MessageTypeDataCompressed
		}
	}
	return c.writeFrame(typ, p)
}

// ReadMessage returns the next message. It returns io.EOF once the peer has
// closed the session.
func (c *Conn) ReadMessage() ([]byte, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	f, err := protocol.ReadFrame(c.rw)
	if err != nil {
		return nil, err
	}
	switch f.Type {
	case protocol.MessageTypeData, protocol.MessageTypeDataCompressed, protocol.MessageTypeClose:
	default:
		return nil, fmt.Errorf("%w: %s", protocol.ErrUnexpectedType, f.Type)
	}

	plain, err := c.decrypt(f.Type, f.Payload)
	if err != nil {
		c.log.WithError(err).Warn("dropping session")
		return nil, err
	}
	switch f.Type {
	case protocol.MessageTypeClose:
		c.log.Debug("peer closed session")
		return nil, io.EOF
	case protocol.MessageTypeDataCompressed:
		return Decompress(plain, MaxMessageSize)
	}
	return plain, nil
}

// Close sends an authenticated close frame and closes the underlying stream
// when it is an io.Closer.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.writeFrame(protocol.MessageTypeClose, nil)
		c.sendMu.Lock()
		c.closed = true
		c.sendMu.Unlock()
		if cerr := c.closeTransport(); err == nil {
			err = cerr
		}
	})
	return err
}

func (c *Conn) closeTransport() error {
	if cl, ok := c.rw.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

func (c *Conn) writeFrame(typ protocol.MessageType, plain []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return ErrClosed
	}

	ct, err := c.encrypt(typ, plain)
	if err != nil {
		return err
	}
	return protocol.WriteFrame(c.rw, protocol.Frame{Type: typ, Payload: ct})
}

func (c *Conn) readFrame(want protocol.MessageType) ([]byte, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	ct, err := protocol.Expect(c.rw, want)
	if err != nil {
		return nil, err
	}
	return c.decrypt(want, ct)
}

func (c *Conn) encrypt(typ protocol.MessageType, plain []byte) ([]byte, error) {
	c.cryptoMu.Lock()
	defer c.cryptoMu.Unlock()
	if c.sess.Aborted() {
		return nil, ErrAborted
	}
	return c.sess.Encrypt(nil, []byte{byte(typ)}, plain)
}

func (c *Conn) decrypt(typ protocol.MessageType, ct []byte) ([]byte, error) {
	c.cryptoMu.Lock()
	defer c.cryptoMu.Unlock()
	if c.sess.Aborted() {
		return nil, ErrAborted
	}
	return c.sess.Decrypt(nil, []byte{byte(typ)}, ct)
}
