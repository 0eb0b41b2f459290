// Package peer is a high-level helper that combines a transport, the framed
// Disco session and a peer directory.
package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"sync"
	"time"

	"github.com/TheusHen/disco/disco"
	"github.com/TheusHen/disco/disco/crypto"
	"github.com/TheusHen/disco/disco/directory"
	"github.com/TheusHen/disco/disco/identity"
	"github.com/TheusHen/disco/disco/session"
	"github.com/TheusHen/disco/disco/transport/quic"
	"github.com/TheusHen/disco/disco/transport/websocket"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotListening     = errors.New("peer is not listening")
	ErrAlreadyListening = errors.New("peer is already listening")
	ErrNoDirectory      = errors.New("peer has no directory")
	ErrUnknownTransport = errors.New("unknown transport")
)

// Transport selects how frames travel.
type Transport string

const (
	TransportQUIC      Transport = "quic"
	TransportWebsocket Transport = "ws"
)

// WebsocketPath is where websocket peers listen.
const WebsocketPath = "/disco"

// Options configures a Peer. The zero value of every field but
// StaticKeypair is usable.
type Options struct {
	StaticKeypair crypto.KeyPair

	// Pattern is used by Dial. DialPeer uses it too when set, and IK
	// otherwise since the directory supplies the remote key.
	Pattern *disco.Pattern
	// Patterns restricts what Accept allows. Empty means all.
	Patterns []*disco.Pattern

	// PeerStatic is the initiator key Accept expects. K and KK require it;
	// other patterns that reveal the initiator check it.
	PeerStatic *crypto.PublicKey

	Transport    Transport
	Directory    directory.Resolver
	PresharedKey []byte

	// Tickets lets Accept issue resumption tickets. Resume makes DialPeer
	// ask for tickets and reuse them on the next dial to the same peer.
	Tickets *session.TicketStore
	Resume  bool

	Compress     bool
	Capabilities map[string]string
	Logger       logrus.FieldLogger
	Metrics      *session.Metrics
}

type Peer struct {
	opts Options
	log  logrus.FieldLogger

	mu      sync.Mutex
	quicLn  *quic.Listener
	wsLn    *websocket.Listener
	tickets map[identity.PeerID]*session.ResumptionTicket
}

func New(opts Options) *Peer {
	capsCopy := map[string]string{}
	for k, v := range opts.Capabilities {
		capsCopy[k] = v
	}
	opts.Capabilities = capsCopy
	if opts.Transport == "" {
		opts.Transport = TransportQUIC
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	p := &Peer{
		opts:    opts,
		tickets: map[identity.PeerID]*session.ResumptionTicket{},
	}
	p.log = opts.Logger.WithFields(logrus.Fields{
		"peer":      p.PeerID().Short(),
		"transport": string(opts.Transport),
	})
	return p
}

func (p *Peer) PeerID() identity.PeerID {
	return identity.PeerIDFromPublicKey(p.opts.StaticKeypair.Public)
}

func (p *Peer) PublicKey() crypto.PublicKey { return p.opts.StaticKeypair.Public }

func (p *Peer) Listen(addr string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quicLn != nil || p.wsLn != nil {
		return ErrAlreadyListening
	}

	switch p.opts.Transport {
	case TransportQUIC:
		ln, err := quic.Listen(addr)
		if err != nil {
			return err
		}
		p.quicLn = ln
	case TransportWebsocket:
		ln, err := websocket.Listen(addr, WebsocketPath)
		if err != nil {
			return err
		}
		p.wsLn = ln
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransport, p.opts.Transport)
	}
	p.log.WithField("addr", p.listenAddrLocked()).Info("listening")
	return nil
}

func (p *Peer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.quicLn != nil:
		return p.quicLn.Close()
	case p.wsLn != nil:
		return p.wsLn.Close()
	}
	return nil
}

// ListenAddr is the address to Dial: host:port for QUIC, a ws:// URL for
// websockets.
func (p *Peer) ListenAddr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listenAddrLocked()
}

// listenAddrLocked requires p.mu.
func (p *Peer) listenAddrLocked() string {
	switch {
	case p.quicLn != nil:
		return p.quicLn.AddrString()
	case p.wsLn != nil:
		return p.wsLn.URL()
	}
	return ""
}

// Announce publishes this peer in the directory at the listening address.
func (p *Peer) Announce() error {
	if p.opts.Directory == nil {
		return ErrNoDirectory
	}
	p.mu.Lock()
	var ap netip.AddrPort
	var err error
	switch {
	case p.quicLn != nil:
		ap, err = netip.ParseAddrPort(p.quicLn.AddrString())
	case p.wsLn != nil:
		ap, err = netip.ParseAddrPort(p.wsLn.Addr().String())
	default:
		err = ErrNotListening
	}
	p.mu.Unlock()
	if err != nil {
		return err
	}

	names := make([]string, 0, len(p.opts.Patterns))
	for _, pat := range p.opts.Patterns {
		names = append(names, pat.Name)
	}
	return p.opts.Directory.Announce(directory.PeerInfo{
		PeerID:    p.PeerID(),
		PublicKey: p.PublicKey(),
		Addr:      ap.Addr(),
		Port:      ap.Port(),
		Patterns:  names,
	})
}

// Accept waits for the next connection and runs the responder handshake.
func (p *Peer) Accept(ctx context.Context) (*session.Conn, error) {
	p.mu.Lock()
	quicLn, wsLn := p.quicLn, p.wsLn
	p.mu.Unlock()

	var rw io.ReadWriteCloser
	switch {
	case quicLn != nil:
		sc, err := quicLn.AcceptStream(ctx)
		if err != nil {
			return nil, err
		}
		rw = sc
	case wsLn != nil:
		nc, err := wsLn.Accept(ctx)
		if err != nil {
			return nil, err
		}
		rw = nc
	default:
		return nil, ErrNotListening
	}

	kp := p.opts.StaticKeypair
	c, err := session.HandshakeServer(ctx, rw, session.HandshakeOptions{
		Patterns:      p.opts.Patterns,
		StaticKeypair: &kp,
		PeerStatic:    p.opts.PeerStatic,
		PresharedKey:  p.opts.PresharedKey,
		Tickets:       p.opts.Tickets,
		Compress:      p.opts.Compress,
		Capabilities:  p.opts.Capabilities,
		Logger:        p.log,
		Metrics:       p.opts.Metrics,
	})
	if err != nil {
		_ = rw.Close()
		return nil, err
	}
	return c, nil
}

// Dial connects to addr and runs the configured pattern. peerStatic is
// required by patterns that know the responder's key in advance and pins
// the key for the others; it may be nil.
func (p *Peer) Dial(ctx context.Context, addr string, peerStatic *crypto.PublicKey) (*session.Conn, error) {
	pattern := p.opts.Pattern
	if pattern == nil {
		pattern = disco.PatternXX
	}
	return p.dial(ctx, addr, p.clientOptions(pattern, peerStatic))
}

// DialPeer looks id up in the directory and dials it with its static key
// pinned. With Resume set a cached ticket replaces the full handshake.
func (p *Peer) DialPeer(ctx context.Context, id identity.PeerID) (*session.Conn, error) {
	if p.opts.Directory == nil {
		return nil, ErrNoDirectory
	}
	info, err := p.opts.Directory.Lookup(id)
	if err != nil {
		return nil, err
	}

	pattern := p.opts.Pattern
	if pattern == nil {
		pattern = disco.PatternIK
	}
	if !info.Supports(pattern.Name) {
		return nil, fmt.Errorf("%w: %s does not accept %s", session.ErrPatternRejected, id.Short(), pattern.Name)
	}
	opts := p.clientOptions(pattern, &info.PublicKey)

	if p.opts.Resume {
		opts.RequestTicket = true
		if t := p.takeTicket(id); t != nil && info.Supports(disco.PatternNNpsk2.Name) {
			opts.Resume = t
		}
	}

	addr := info.AddrPort().String()
	if p.opts.Transport == TransportWebsocket {
		addr = "ws://" + addr + WebsocketPath
	}
	c, err := p.dial(ctx, addr, opts)
	if err != nil {
		return nil, err
	}
	if t := c.Ticket(); t != nil {
		p.mu.Lock()
		p.tickets[id] = t
		p.mu.Unlock()
	}
	return c, nil
}

// takeTicket removes and returns a usable cached ticket for id.
func (p *Peer) takeTicket(id identity.PeerID) *session.ResumptionTicket {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tickets[id]
	if !ok {
		return nil
	}
	delete(p.tickets, id)
	if time.Now().After(t.ExpiresAt) {
		return nil
	}
	return t
}

func (p *Peer) clientOptions(pattern *disco.Pattern, peerStatic *crypto.PublicKey) session.HandshakeOptions {
	kp := p.opts.StaticKeypair
	opts := session.HandshakeOptions{
		Pattern:       pattern,
		StaticKeypair: &kp,
		PeerStatic:    peerStatic,
		Compress:      p.opts.Compress,
		Capabilities:  p.opts.Capabilities,
		Logger:        p.log,
		Metrics:       p.opts.Metrics,
	}
	if pattern.UsesPSK() {
		opts.PresharedKey = p.opts.PresharedKey
	}
	return opts
}

func (p *Peer) dial(ctx context.Context, addr string, opts session.HandshakeOptions) (*session.Conn, error) {
	var rw io.ReadWriteCloser
	switch p.opts.Transport {
	case TransportQUIC:
		sc, err := quic.DialStream(ctx, addr)
		if err != nil {
			return nil, err
		}
		rw = sc
	case TransportWebsocket:
		nc, err := websocket.Dial(ctx, addr)
		if err != nil {
			return nil, err
		}
		rw = nc
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, p.opts.Transport)
	}

	c, err := session.HandshakeClient(ctx, rw, opts)
	if err != nil {
		_ = rw.Close()
		return nil, err
	}
	return c, nil
}
