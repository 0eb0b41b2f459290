// Package websocket carries Disco frames over binary websocket messages, for
// peers that can only reach each other through HTTP infrastructure.
package websocket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
)

// Subprotocol is negotiated on every upgrade.
const Subprotocol = "disco.v0"

var ErrListenerClosed = errors.New("websocket: listener closed")

// Listener accepts websocket upgrades and hands them out as net.Conns.
type Listener struct {
	ln     net.Listener
	srv    *http.Server
	path   string
	conns  chan net.Conn
	closed chan struct{}
	once   sync.Once
}

// Listen serves upgrades for path on addr.
func Listen(addr, path string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = "/"
	}
	l := &Listener{
		ln:     ln,
		path:   path,
		conns:  make(chan net.Conn),
		closed: make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.Handle(path, l.Handler())
	l.srv = &http.Server{Handler: mux}
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Warn("websocket listener stopped")
		}
	}()
	return l, nil
}

// Handler upgrades requests and queues them for Accept. It can be mounted
// on an existing server instead of calling Listen.
func (l *Listener) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols: []string{Subprotocol},
			// Peers are not browsers; the Disco handshake authenticates them.
			InsecureSkipVerify: true,
		})
		if err != nil {
			logrus.WithError(err).WithField("remote", r.RemoteAddr).Debug("websocket upgrade failed")
			return
		}
		if c.Subprotocol() != Subprotocol {
			_ = c.Close(websocket.StatusPolicyViolation, "subprotocol "+Subprotocol+" required")
			return
		}

		nc := websocket.NetConn(context.Background(), c, websocket.MessageBinary)
		select {
		case l.conns <- nc:
		case <-l.closed:
			_ = nc.Close()
		case <-r.Context().Done():
			_ = nc.Close()
		}
	})
}

// Accept waits for the next upgraded connection.
func (l *Listener) Accept(ctx context.Context) (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// URL is the ws:// address clients dial.
func (l *Listener) URL() string {
	return "ws://" + l.ln.Addr().String() + l.path
}

func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.closed)
		err = l.srv.Close()
	})
	return err
}

// Dial opens a websocket to url and returns it as a net.Conn. Each Write
// becomes one binary message.
func Dial(ctx context.Context, url string) (net.Conn, error) {
	c, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if c.Subprotocol() != Subprotocol {
		_ = c.Close(websocket.StatusPolicyViolation, "subprotocol "+Subprotocol+" required")
		return nil, errors.New("websocket: server did not accept " + Subprotocol)
	}
	return websocket.NetConn(context.Background(), c, websocket.MessageBinary), nil
}
