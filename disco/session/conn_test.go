package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/TheusHen/disco/disco"
	"github.com/TheusHen/disco/disco/protocol"
	"github.com/stretchr/testify/require"
)

func connectXX(t *testing.T, compress bool) (*Conn, *Conn) {
	t.Helper()
	co, so := newKeys(t).options(disco.PatternXX)
	co.Compress = compress
	so.Compress = compress
	return connect(t, co, so)
}

// raw returns the client's side of the pipe for injecting frames.
func raw(c *Conn) net.Conn { return c.rw.(net.Conn) }

func TestConnCompressedMessages(t *testing.T) {
	cc, sc := connectXX(t, true)

	big := bytes.Repeat([]byte("compressible "), 2000)
	send(t, cc, sc, big)
	send(t, sc, cc, []byte("tiny"))
	send(t, cc, sc, []byte{})
}

func TestConnConcurrentDuplex(t *testing.T) {
	cc, sc := connectXX(t, false)
	const n = 50

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	writer := func(c *Conn, tag string) {
		defer wg.Done()
		for i := 0; i < n; i++ {
			if err := c.WriteMessage([]byte(fmt.Sprintf("%s-%d", tag, i))); err != nil {
				errs <- err
				return
			}
		}
	}
	reader := func(c *Conn, tag string) {
		defer wg.Done()
		for i := 0; i < n; i++ {
			msg, err := c.ReadMessage()
			if err != nil {
				errs <- err
				return
			}
			if string(msg) != fmt.Sprintf("%s-%d", tag, i) {
				errs <- fmt.Errorf("unexpected message %q", msg)
				return
			}
		}
	}

	wg.Add(4)
	go writer(cc, "c")
	go writer(sc, "s")
	go reader(sc, "c")
	go reader(cc, "s")
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestConnClose(t *testing.T) {
	cc, sc := connectXX(t, false)

	done := make(chan error, 1)
	go func() {
		_, err := sc.ReadMessage()
		done <- err
	}()
	require.NoError(t, cc.Close())
	require.ErrorIs(t, <-done, io.EOF)

	require.ErrorIs(t, cc.WriteMessage([]byte("late")), ErrClosed)
	require.NoError(t, cc.Close(), "second Close is a no-op")
}

func TestConnTamperedFrameAborts(t *testing.T) {
	cc, sc := connectXX(t, false)

	go func() {
		_ = protocol.WriteFrame(raw(cc), protocol.Frame{
			Type:    protocol.MessageTypeData,
			Payload: bytes.Repeat([]byte{0x42}, 40),
		})
	}()
	_, err := sc.ReadMessage()
	require.ErrorIs(t, err, disco.ErrBadMAC)

	go func() {
		_ = protocol.WriteFrame(raw(cc), protocol.Frame{Type: protocol.MessageTypeData, Payload: make([]byte, 16)})
	}()
	_, err = sc.ReadMessage()
	require.ErrorIs(t, err, ErrAborted)
	require.ErrorIs(t, sc.WriteMessage([]byte("x")), ErrAborted)
}

func TestConnFrameTypeIsAuthenticated(t *testing.T) {
	cc, sc := connectXX(t, false)

	ct, err := cc.encrypt(protocol.MessageTypeData, []byte("hello"))
	require.NoError(t, err)
	go func() {
		_ = protocol.WriteFrame(raw(cc), protocol.Frame{Type: protocol.MessageTypeDataCompressed, Payload: ct})
	}()
	_, err = sc.ReadMessage()
	require.ErrorIs(t, err, disco.ErrBadMAC)
}

func TestConnUnexpectedFrameType(t *testing.T) {
	cc, sc := connectXX(t, false)

	go func() {
		_ = protocol.WriteFrame(raw(cc), protocol.Frame{Type: protocol.MessageTypeHello, Payload: []byte("{}")})
	}()
	_, err := sc.ReadMessage()
	require.ErrorIs(t, err, protocol.ErrUnexpectedType)
}

func TestConnMessageTooLarge(t *testing.T) {
	cc, sc := connectXX(t, false)

	require.ErrorIs(t, cc.WriteMessage(make([]byte, MaxMessageSize+1)), disco.ErrPayloadTooLong)
	send(t, cc, sc, make([]byte, MaxMessageSize))
}

func BenchmarkConnWriteRead(b *testing.B) {
	co, so := newKeys(b).options(disco.PatternNK)
	x, y := net.Pipe()
	defer x.Close()
	defer y.Close()

	done := make(chan *Conn, 1)
	go func() {
		c, _ := HandshakeServer(context.Background(), y, so)
		done <- c
	}()
	cc, err := HandshakeClient(context.Background(), x, co)
	if err != nil {
		b.Fatal(err)
	}
	sc := <-done
	if sc == nil {
		b.Fatal("server handshake failed")
	}

	go func() {
		for {
			if _, err := sc.ReadMessage(); err != nil {
				return
			}
		}
	}()
	msg := make([]byte, 1024)
	b.SetBytes(int64(len(msg)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := cc.WriteMessage(msg); err != nil {
			b.Fatal(err)
		}
	}
}
