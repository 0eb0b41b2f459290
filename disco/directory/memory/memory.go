package memory

import (
	"errors"
	"sync"

	"github.com/TheusHen/disco/disco/directory"
	"github.com/TheusHen/disco/disco/identity"
)

var ErrPeerIDMismatch = errors.New("peer id does not match public key")

// Store is an in-memory directory.
// It is useful for tests, examples and embedding in applications.
type Store struct {
	mu    sync.RWMutex
	peers map[identity.PeerID]directory.PeerInfo
}

func New() *Store {
	return &Store{peers: map[identity.PeerID]directory.PeerInfo{}}
}

// Announce records info, deriving PeerID from the public key when unset.
func (s *Store) Announce(info directory.PeerInfo) error {
	id := identity.PeerIDFromPublicKey(info.PublicKey)
	if info.PeerID == (identity.PeerID{}) {
		info.PeerID = id
	} else if info.PeerID != id {
		return ErrPeerIDMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[info.PeerID] = clone(info)
	return nil
}

func (s *Store) Lookup(peerID identity.PeerID) (directory.PeerInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.peers[peerID]
	if !ok {
		return directory.PeerInfo{}, directory.ErrNotFound
	}
	return clone(info), nil
}

func (s *Store) List() ([]directory.PeerInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]directory.PeerInfo, 0, len(s.peers))
	for _, info := range s.peers {
		out = append(out, clone(info))
	}
	return out, nil
}

func clone(info directory.PeerInfo) directory.PeerInfo {
	info.Patterns = append([]string(nil), info.Patterns...)
	return info
}
