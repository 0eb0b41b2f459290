package session

import (
	"io"

	"github.com/TheusHen/disco/disco"
	"github.com/TheusHen/disco/disco/crypto"
	"github.com/sirupsen/logrus"
)

// HandshakeOptions configures one side of a framed handshake.
type HandshakeOptions struct {
	// Pattern is the pattern the client proposes in its Hello. Servers ignore
	// it and run whatever the client asked for, subject to Patterns.
	Pattern *disco.Pattern
	// Patterns restricts what a server accepts. Empty means every pattern.
	Patterns []*disco.Pattern

	StaticKeypair *crypto.KeyPair
	PeerStatic    *crypto.PublicKey
	PresharedKey  []byte

	// Resume makes a client run NNpsk2 with this ticket instead of Pattern.
	Resume *ResumptionTicket
	// RequestTicket asks the server for a resumption ticket after the
	// handshake. Servers honour it only when Tickets is set.
	RequestTicket bool
	// Tickets issues and redeems tickets on the server side.
	Tickets *TicketStore

	// Compress enables lz4 on outgoing data messages. Incoming compressed
	// messages are always accepted.
	Compress         bool
	CompressionLevel CompressionLevel

	Capabilities map[string]string
	Random       io.Reader
	Logger       logrus.FieldLogger
	Metrics      *Metrics
}

func (o *HandshakeOptions) logger() logrus.FieldLogger {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.StandardLogger()
}

func (o *HandshakeOptions) accepts(p *disco.Pattern) bool {
	if len(o.Patterns) == 0 {
		return true
	}
	for _, q := range o.Patterns {
		if q.Name == p.Name {
			return true
		}
	}
	return false
}
