package directory

import (
	"errors"
	"net/netip"

	"github.com/TheusHen/disco/disco/crypto"
	"github.com/TheusHen/disco/disco/identity"
)

var (
	ErrNotFound = errors.New("peer not found")
)

// PeerInfo is what a directory knows about a peer: where to reach it and
// which static key to pin when dialing it.
type PeerInfo struct {
	PeerID    identity.PeerID
	PublicKey crypto.PublicKey
	Addr      netip.Addr
	Port      uint16
	// Patterns lists the handshake patterns the peer accepts.
	Patterns []string
}

// AddrPort returns the peer's address as a dialable netip.AddrPort.
func (p PeerInfo) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(p.Addr, p.Port)
}

// Supports reports whether the peer advertised the pattern. An empty list
// means any pattern.
func (p PeerInfo) Supports(pattern string) bool {
	if len(p.Patterns) == 0 {
		return true
	}
	for _, name := range p.Patterns {
		if name == pattern {
			return true
		}
	}
	return false
}

// Resolver is a generic directory interface.
// Implementations can be backed by DHT, mDNS/DNS-SD, bootstrap lists, etc.
type Resolver interface {
	Announce(info PeerInfo) error
	Lookup(peerID identity.PeerID) (PeerInfo, error)
	List() ([]PeerInfo, error)
}
