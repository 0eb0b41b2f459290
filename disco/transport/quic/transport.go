package quic

import (
	"context"
	"net"
	"time"

	q "github.com/quic-go/quic-go"
)

// closeGrace bounds how long a closed StreamConn keeps its connection open
// so the final frames can be delivered.
const closeGrace = 2 * time.Second

type Listener struct {
	inner *q.Listener
}

func Listen(addr string) (*Listener, error) {
	tlsConf, err := NewServerTLSConfig()
	if err != nil {
		return nil, err
	}
	ln, err := q.ListenAddr(addr, tlsConf, &q.Config{})
	if err != nil {
		return nil, err
	}
	return &Listener{inner: ln}, nil
}

func (l *Listener) Accept(ctx context.Context) (q.Connection, error) {
	return l.inner.Accept(ctx)
}

// AcceptStream accepts a connection and waits for the client's first stream,
// which carries the handshake.
func (l *Listener) AcceptStream(ctx context.Context) (*StreamConn, error) {
	conn, err := l.inner.Accept(ctx)
	if err != nil {
		return nil, err
	}
	st, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(1, "no stream")
		return nil, err
	}
	return &StreamConn{Stream: st, Conn: conn}, nil
}

func (l *Listener) Addr() net.Addr { return l.inner.Addr() }

func (l *Listener) AddrString() string {
	if l.inner == nil {
		return ""
	}
	return l.inner.Addr().String()
}

func (l *Listener) Close() error { return l.inner.Close() }

func Dial(ctx context.Context, addr string) (q.Connection, error) {
	tlsConf, err := NewClientTLSConfig()
	if err != nil {
		return nil, err
	}
	return q.DialAddr(ctx, addr, tlsConf, &q.Config{})
}

// DialStream dials addr and opens the stream the handshake runs on.
func DialStream(ctx context.Context, addr string) (*StreamConn, error) {
	conn, err := Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	st, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(1, "open stream")
		return nil, err
	}
	return &StreamConn{Stream: st, Conn: conn}, nil
}

// StreamConn is a bidirectional QUIC stream that owns its connection.
// It satisfies io.ReadWriteCloser and supports deadlines.
type StreamConn struct {
	q.Stream
	Conn q.Connection
}

func (s *StreamConn) RemoteAddr() net.Addr { return s.Conn.RemoteAddr() }

// Close ends the write side of the stream and tears down the connection once
// the peer has gone or closeGrace has passed.
func (s *StreamConn) Close() error {
	err := s.Stream.Close()
	go func() {
		select {
		case <-s.Conn.Context().Done():
		case <-time.After(closeGrace):
		}
		_ = s.Conn.CloseWithError(0, "")
	}()
	return err
}
