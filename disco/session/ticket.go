package session

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/TheusHen/disco/disco/crypto"
)

var (
	ErrTicketExpired  = errors.New("session: ticket expired")
	ErrTicketInvalid  = errors.New("session: ticket invalid")
	ErrTicketNotFound = errors.New("session: ticket not found")
)

const (
	TicketKeySize  = 32
	TicketIDSize   = 16
	TicketPSKSize  = 32
	TicketLifetime = 24 * time.Hour

	ticketPlainSize = 8 + 8 + crypto.KeySize + TicketPSKSize
	ticketWireSize  = TicketIDSize + ticketPlainSize + crypto.TagSize

	ticketLabel     = "disco.session.ticket"
	resumptionLabel = "disco.session.resumption"
)

// Ticket lets a client resume with an NNpsk2 handshake instead of repeating
// the full pattern. Only the issuing store can open the sealed form.
type Ticket struct {
	ID        [TicketIDSize]byte
	IssuedAt  int64 // unix seconds
	ExpiresAt int64
	// PeerStatic is the client's static key from the original handshake, zero
	// if the pattern never revealed one.
	PeerStatic crypto.PublicKey
	PSK        [TicketPSKSize]byte
}

// Expired reports whether the ticket is past its lifetime at now.
func (t *Ticket) Expired(now time.Time) bool {
	return now.Unix() > t.ExpiresAt
}

// ResumptionTicket is the client's half of a ticket: the sealed blob to
// present in the next Hello and the PSK to run NNpsk2 with.
type ResumptionTicket struct {
	Blob      []byte
	PSK       [TicketPSKSize]byte
	ExpiresAt time.Time
	// PeerStatic is the server's static key from the original handshake, if
	// the pattern revealed it. A resumed Conn reports it as RemoteStatic.
	PeerStatic crypto.PublicKey
}

// derivePSK turns a handshake hash into a resumption PSK. Both sides compute
// it independently, so the PSK itself never travels.
func derivePSK(handshakeHash []byte) [TicketPSKSize]byte {
	d := crypto.NewDuplex(resumptionLabel)
	d.AD(handshakeHash)
	var psk [TicketPSKSize]byte
	copy(psk[:], d.PRF(TicketPSKSize))
	return psk
}

// TicketStore issues and redeems session tickets.
// Tickets are single use: Redeem forgets them.
type TicketStore struct {
	mu      sync.RWMutex
	tickets map[[TicketIDSize]byte]*Ticket
	key     [TicketKeySize]byte

	now      func() time.Time
	lifetime time.Duration
}

// NewTicketStore creates a new ticket store with a random sealing key.
func NewTicketStore() (*TicketStore, error) {
	var key [TicketKeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, err
	}
	return NewTicketStoreWithKey(key), nil
}

// NewTicketStoreWithKey creates a ticket store with a specific key (for clustering).
func NewTicketStoreWithKey(key [TicketKeySize]byte) *TicketStore {
	return &TicketStore{
		tickets:  make(map[[TicketIDSize]byte]*Ticket),
		key:      key,
		now:      time.Now,
		lifetime: TicketLifetime,
	}
}

// SetLifetime changes the lifetime of tickets issued from now on.
func (ts *TicketStore) SetLifetime(d time.Duration) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.lifetime = d
}

// Issue creates a new ticket for the given peer and PSK.
func (ts *TicketStore) Issue(peerStatic crypto.PublicKey, psk [TicketPSKSize]byte) (*Ticket, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := ts.now()
	ticket := &Ticket{
		IssuedAt:   now.Unix(),
		ExpiresAt:  now.Add(ts.lifetime).Unix(),
		PeerStatic: peerStatic,
		PSK:        psk,
	}
	if _, err := rand.Read(ticket.ID[:]); err != nil {
		return nil, err
	}

	ts.tickets[ticket.ID] = ticket
	return ticket, nil
}

// Lookup retrieves and validates a ticket.
func (ts *TicketStore) Lookup(ticketID [TicketIDSize]byte) (*Ticket, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	ticket, ok := ts.tickets[ticketID]
	if !ok {
		return nil, ErrTicketNotFound
	}
	if ticket.Expired(ts.now()) {
		return nil, ErrTicketExpired
	}
	return ticket, nil
}

// Revoke invalidates a ticket.
func (ts *TicketStore) Revoke(ticketID [TicketIDSize]byte) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t, ok := ts.tickets[ticketID]; ok {
		crypto.Wipe(t.PSK[:])
		delete(ts.tickets, ticketID)
	}
}

// Cleanup removes expired tickets.
func (ts *TicketStore) Cleanup() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := ts.now()
	removed := 0
	for id, ticket := range ts.tickets {
		if ticket.Expired(now) {
			crypto.Wipe(ticket.PSK[:])
			delete(ts.tickets, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of tickets still held.
func (ts *TicketStore) Count() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.tickets)
}

func (ts *TicketStore) sealer(id []byte) *crypto.Duplex {
	d := crypto.NewDuplex(ticketLabel)
	d.AD(ts.key[:])
	d.AD(id)
	return d
}

// Seal encodes a ticket for the client.
// Format: ID (16) || encrypted(issuedAt (8) || expiresAt (8) || peerStatic (32) || psk (32)) || tag (16)
func (ts *TicketStore) Seal(ticket *Ticket) []byte {
	plain := make([]byte, ticketPlainSize)
	binary.BigEndian.PutUint64(plain[0:8], uint64(ticket.IssuedAt))
	binary.BigEndian.PutUint64(plain[8:16], uint64(ticket.ExpiresAt))
	copy(plain[16:48], ticket.PeerStatic[:])
	copy(plain[48:80], ticket.PSK[:])
	defer crypto.Wipe(plain)

	out := make([]byte, TicketIDSize, ticketWireSize)
	copy(out, ticket.ID[:])
	d := ts.sealer(ticket.ID[:])
	out = d.Send(out, plain)
	return d.SendMAC(out)
}

// Open decrypts and validates a sealed ticket without consuming it.
func (ts *TicketStore) Open(data []byte) (*Ticket, error) {
	if len(data) != ticketWireSize {
		return nil, ErrTicketInvalid
	}

	ticket := &Ticket{}
	copy(ticket.ID[:], data[:TicketIDSize])
	ct := data[TicketIDSize : TicketIDSize+ticketPlainSize]

	d := ts.sealer(ticket.ID[:])
	plain := d.Recv(make([]byte, 0, ticketPlainSize), ct)
	defer crypto.Wipe(plain)
	if !d.RecvMAC(data[TicketIDSize+ticketPlainSize:]) {
		return nil, ErrTicketInvalid
	}

	ticket.IssuedAt = int64(binary.BigEndian.Uint64(plain[0:8]))
	ticket.ExpiresAt = int64(binary.BigEndian.Uint64(plain[8:16]))
	copy(ticket.PeerStatic[:], plain[16:48])
	copy(ticket.PSK[:], plain[48:80])

	if ticket.Expired(ts.now()) {
		return nil, ErrTicketExpired
	}
	return ticket, nil
}

// Redeem opens a sealed ticket and removes it from the store so it cannot be
// presented twice.
func (ts *TicketStore) Redeem(data []byte) (*Ticket, error) {
	ticket, err := ts.Open(data)
	if err != nil {
		return nil, err
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	stored, ok := ts.tickets[ticket.ID]
	if !ok {
		return nil, ErrTicketNotFound
	}
	delete(ts.tickets, ticket.ID)
	crypto.Wipe(stored.PSK[:])
	return ticket, nil
}
