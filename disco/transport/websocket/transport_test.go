package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/TheusHen/disco/disco"
	"github.com/TheusHen/disco/disco/crypto"
	"github.com/TheusHen/disco/disco/session"
	"github.com/stretchr/testify/require"
)

func TestHandshakeOverWebsocket(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, err := Listen("127.0.0.1:0", "/disco")
	require.NoError(t, err)
	defer ln.Close()

	server, err := crypto.GenerateKeyPair(nil)
	require.NoError(t, err)

	type result struct {
		msg []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		nc, err := ln.Accept(ctx)
		if err != nil {
			ch <- result{err: err}
			return
		}
		c, err := session.HandshakeServer(ctx, nc, session.HandshakeOptions{StaticKeypair: &server})
		if err != nil {
			ch <- result{err: err}
			return
		}
		msg, err := c.ReadMessage()
		if err == nil {
			err = c.WriteMessage(append([]byte("echo: "), msg...))
		}
		ch <- result{msg: msg, err: err}
	}()

	nc, err := Dial(ctx, ln.URL())
	require.NoError(t, err)
	c, err := session.HandshakeClient(ctx, nc, session.HandshakeOptions{
		Pattern:    disco.PatternNK,
		PeerStatic: &server.Public,
	})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.WriteMessage([]byte("over http")))
	reply, err := c.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "echo: over http", string(reply))

	r := <-ch
	require.NoError(t, r.err)
	require.Equal(t, "over http", string(r.msg))
}

func TestAcceptAfterClose(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", "")
	require.NoError(t, err)
	require.Contains(t, ln.URL(), "ws://127.0.0.1:")
	require.NoError(t, ln.Close())
	require.NoError(t, ln.Close())

	_, err = ln.Accept(context.Background())
	require.ErrorIs(t, err, ErrListenerClosed)
}

func TestAcceptHonoursContext(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", "/")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = ln.Accept(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
