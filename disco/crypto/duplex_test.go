package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func pairedDuplexes(label string) (*Duplex, *Duplex) {
	a := NewDuplex(label)
	b := NewDuplex(label)
	key := []byte("0123456789abcdef0123456789abcdef")
	a.AD(key)
	b.AD(key)
	return a, b
}

func TestDuplexSendRecv(t *testing.T) {
	a, b := pairedDuplexes("test")

	msg := []byte("attack at dawn")
	ct := a.Send(nil, msg)
	ct = a.SendMAC(ct)
	require.Len(t, ct, len(msg)+TagSize)
	require.Equal(t, []byte("attack at dawn"), msg, "Send must not modify its input")

	pt := b.Recv(nil, ct[:len(ct)-TagSize])
	require.True(t, b.RecvMAC(ct[len(ct)-TagSize:]))
	require.Equal(t, msg, pt)
}

func TestDuplexTamperedTag(t *testing.T) {
	a, b := pairedDuplexes("test")

	ct := a.SendMAC(a.Send(nil, []byte("hello")))
	ct[0] ^= 0x01

	_ = b.Recv(nil, ct[:len(ct)-TagSize])
	require.False(t, b.RecvMAC(ct[len(ct)-TagSize:]))
}

func TestDuplexShortTag(t *testing.T) {
	_, b := pairedDuplexes("test")
	require.False(t, b.RecvMAC([]byte{1, 2, 3}))
}

func TestDuplexLabelSeparates(t *testing.T) {
	a := NewDuplex("one")
	b := NewDuplex("two")
	require.NotEqual(t, a.PRF(32), b.PRF(32))
}

func TestDuplexCloneIsIndependent(t *testing.T) {
	a, _ := pairedDuplexes("clone")
	c := a.Clone()

	c.AD([]byte("only in the clone"))
	c.Ratchet(16)

	ref, _ := pairedDuplexes("clone")
	require.Equal(t, ref.PRF(32), a.PRF(32))
}

func TestDuplexRatchetChangesState(t *testing.T) {
	a, b := pairedDuplexes("ratchet")
	b.Ratchet(16)
	require.NotEqual(t, a.PRF(32), b.PRF(32))
}

func TestDuplexMetaAD(t *testing.T) {
	a, b := pairedDuplexes("meta")
	a.MetaAD([]byte("x"))
	b.AD([]byte("x"))
	require.NotEqual(t, a.PRF(32), b.PRF(32))
}

func BenchmarkDuplexSend(b *testing.B) {
	d, _ := pairedDuplexes("bench")
	msg := make([]byte, 1024)
	b.SetBytes(int64(len(msg)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c := d.Clone()
		_ = c.SendMAC(c.Send(nil, msg))
	}
}
