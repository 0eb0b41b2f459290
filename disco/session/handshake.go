package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/TheusHen/disco/disco"
	"github.com/TheusHen/disco/disco/crypto"
	"github.com/TheusHen/disco/disco/identity"
	"github.com/TheusHen/disco/disco/protocol"
	"github.com/sirupsen/logrus"
)

var (
	ErrPatternRejected = errors.New("session: pattern not accepted")
	ErrResumeNotPSK    = errors.New("session: ticket presented for a non-psk pattern")
)

// Hello capability keys.
const (
	capTicket   = "ticket"
	capCompress = "compress"
)

// HandshakeClient sends a Hello naming the pattern, runs the initiator side
// of the handshake over rw and returns the established Conn.
func HandshakeClient(ctx context.Context, rw io.ReadWriter, opts HandshakeOptions) (c *Conn, err error) {
	start, name := time.Now(), "unknown"
	defer func() { opts.Metrics.observeHandshake(name, "initiator", start, err) }()

	pattern := opts.Pattern
	psk := opts.PresharedKey
	hello := protocol.NewHello("", opts.Capabilities)

	if opts.Resume != nil {
		if time.Now().After(opts.Resume.ExpiresAt) {
			return nil, ErrTicketExpired
		}
		pattern = disco.PatternNNpsk2
		psk = opts.Resume.PSK[:]
		hello.Ticket = opts.Resume.Blob
	}
	if pattern == nil {
		return nil, disco.ErrUnknownPattern
	}
	hello.Pattern, name = pattern.Name, pattern.Name
	if opts.RequestTicket {
		hello.Capabilities[capTicket] = "1"
	}
	if opts.Compress {
		hello.Capabilities[capCompress] = "lz4"
	}

	hs, err := disco.NewHandshake(disco.Config{
		Pattern:       pattern,
		Initiator:     true,
		StaticKeypair: opts.StaticKeypair,
		PeerStatic:    opts.PeerStatic,
		PresharedKey:  psk,
		Random:        opts.Random,
	})
	if err != nil {
		return nil, err
	}

	log := opts.logger().WithFields(logrus.Fields{
		"pattern": pattern.Name,
		"role":    "initiator",
		"resumed": opts.Resume != nil,
	})
	defer withDeadline(ctx, rw)()

	payload, err := protocol.EncodeHello(hello)
	if err != nil {
		return nil, err
	}
	if err := protocol.WriteFrame(rw, protocol.Frame{Type: protocol.MessageTypeHello, Payload: payload}); err != nil {
		return nil, fmt.Errorf("session: write hello: %w", err)
	}
	log.Debug("hello sent")

	c, err = run(ctx, rw, hs, &opts, log)
	if err != nil {
		log.WithError(err).Warn("handshake failed")
		return nil, err
	}
	if opts.Resume != nil {
		c.remote, c.remoteKnown = opts.Resume.PeerStatic, !opts.Resume.PeerStatic.IsZero()
	}

	if opts.RequestTicket && !pattern.OneWay() {
		if err := c.readTicket(); err != nil {
			c.closeTransport()
			return nil, err
		}
	}
	c.log.Info("handshake complete")
	return c, nil
}

// HandshakeServer reads the client's Hello, runs the responder side of the
// pattern it names and returns the established Conn. A Hello carrying a
// ticket is resumed with NNpsk2 using the PSK the ticket holds.
func HandshakeServer(ctx context.Context, rw io.ReadWriter, opts HandshakeOptions) (c *Conn, err error) {
	start, name := time.Now(), "unknown"
	defer func() { opts.Metrics.observeHandshake(name, "responder", start, err) }()
	defer withDeadline(ctx, rw)()

	payload, err := protocol.Expect(rw, protocol.MessageTypeHello)
	if err != nil {
		return nil, fmt.Errorf("session: read hello: %w", err)
	}
	hello, err := protocol.DecodeHello(payload)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	pattern, err := disco.PatternByName(hello.Pattern)
	if err != nil {
		return nil, err
	}
	name = pattern.Name
	if !opts.accepts(pattern) {
		return nil, fmt.Errorf("%w: %s", ErrPatternRejected, pattern.Name)
	}

	log := opts.logger().WithFields(logrus.Fields{
		"pattern": pattern.Name,
		"role":    "responder",
		"resumed": len(hello.Ticket) > 0,
	})

	var psk []byte
	var resumed *Ticket
	switch {
	case len(hello.Ticket) > 0:
		if !pattern.UsesPSK() {
			return nil, ErrResumeNotPSK
		}
		if opts.Tickets == nil {
			return nil, ErrTicketNotFound
		}
		resumed, err = opts.Tickets.Redeem(hello.Ticket)
		if err != nil {
			opts.Metrics.ticket("rejected")
			log.WithError(err).Warn("ticket rejected")
			return nil, err
		}
		opts.Metrics.ticket("redeemed")
		psk = resumed.PSK[:]
	case pattern.UsesPSK():
		psk = opts.PresharedKey
	}

	hs, err := disco.NewHandshake(disco.Config{
		Pattern:       pattern,
		Initiator:     false,
		StaticKeypair: opts.StaticKeypair,
		PeerStatic:    opts.PeerStatic,
		PresharedKey:  psk,
		Random:        opts.Random,
	})
	if resumed != nil {
		crypto.Wipe(resumed.PSK[:])
	}
	if err != nil {
		return nil, err
	}

	c, err = run(ctx, rw, hs, &opts, log)
	if err != nil {
		log.WithError(err).Warn("handshake failed")
		return nil, err
	}
	if resumed != nil && !resumed.PeerStatic.IsZero() {
		c.remote, c.remoteKnown = resumed.PeerStatic, true
	}

	if hello.Capabilities[capTicket] != "" && !pattern.OneWay() {
		if err := c.sendTicket(opts.Tickets, opts.Metrics); err != nil {
			c.closeTransport()
			return nil, err
		}
	}
	c.log.Info("handshake complete")
	return c, nil
}

// run alternates handshake frames until the pattern completes. The last
// message carries an empty payload whose tag confirms both sides derived the
// same keys; every pattern is keyed by then.
func run(ctx context.Context, rw io.ReadWriter, hs *disco.Handshake, opts *HandshakeOptions, log logrus.FieldLogger) (*Conn, error) {
	last := len(hs.Pattern().Messages) - 1
	for step := 0; !hs.Complete(); step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if hs.WriteTurn() {
			var msg []byte
			var err error
			if step == last {
				msg, err = hs.WriteMessageWithPayload(nil, nil)
			} else {
				msg, err = hs.WriteMessage(nil)
			}
			if err != nil {
				return nil, fmt.Errorf("session: handshake message %d: %w", step, err)
			}
			if err := protocol.WriteFrame(rw, protocol.Frame{Type: protocol.MessageTypeHandshake, Payload: msg}); err != nil {
				return nil, fmt.Errorf("session: write handshake message %d: %w", step, err)
			}
			continue
		}
		msg, err := protocol.Expect(rw, protocol.MessageTypeHandshake)
		if err != nil {
			return nil, fmt.Errorf("session: read handshake message %d: %w", step, err)
		}
		if step == last {
			_, err = hs.ReadMessageWithPayload(msg)
		} else {
			err = hs.ReadMessage(msg)
		}
		if err != nil {
			return nil, fmt.Errorf("session: handshake message %d: %w", step, err)
		}
	}

	hash := hs.HandshakeHash()
	remote, known := hs.RemoteStatic()
	c := &Conn{
		rw:          rw,
		sess:        hs.Finalize(),
		pattern:     hs.Pattern(),
		initiator:   hs.Initiator(),
		hash:        hash,
		remote:      remote,
		remoteKnown: known,
		compress:    opts.Compress,
		level:       opts.CompressionLevel,
	}
	fields := logrus.Fields{}
	if known {
		fields["peer"] = identity.PeerIDFromPublicKey(remote).Short()
	}
	c.log = log.WithFields(fields)
	return c, nil
}

// sendTicket answers a ticket request. Without a store it sends an empty
// ticket frame so the client is not left waiting.
func (c *Conn) sendTicket(store *TicketStore, m *Metrics) error {
	var plain []byte
	if store != nil {
		t, err := store.Issue(c.remote, derivePSK(c.hash))
		if err != nil {
			return err
		}
		plain = make([]byte, 8, 8+ticketWireSize)
		binary.BigEndian.PutUint64(plain, uint64(t.ExpiresAt))
		plain = append(plain, store.Seal(t)...)
	}
	if err := c.writeFrame(protocol.MessageTypeTicket, plain); err != nil {
		return fmt.Errorf("session: send ticket: %w", err)
	}
	if store != nil {
		m.ticket("issued")
	}
	c.log.Debug("resumption ticket sent")
	return nil
}

func (c *Conn) readTicket() error {
	plain, err := c.readFrame(protocol.MessageTypeTicket)
	if err != nil {
		return fmt.Errorf("session: read ticket: %w", err)
	}
	if len(plain) == 0 {
		c.log.Debug("server issued no ticket")
		return nil
	}
	if len(plain) != 8+ticketWireSize {
		return ErrTicketInvalid
	}
	c.ticket = &ResumptionTicket{
		Blob:       append([]byte(nil), plain[8:]...),
		PSK:        derivePSK(c.hash),
		ExpiresAt:  time.Unix(int64(binary.BigEndian.Uint64(plain[:8])), 0),
		PeerStatic: c.remote,
	}
	return nil
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// withDeadline applies ctx to rw when rw supports deadlines, so a cancelled
// context unblocks a pending read or write. The returned func clears it.
func withDeadline(ctx context.Context, rw io.ReadWriter) func() {
	d, ok := rw.(deadliner)
	if !ok {
		return func() {}
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = d.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = d.SetDeadline(time.Unix(1, 0))
	})
	return func() {
		stop()
		_ = d.SetDeadline(time.Time{})
	}
}
