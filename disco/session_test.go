package disco

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func sessionPair(t testing.TB) (*Session, *Session) {
	t.Helper()
	ps := newPeers(t)
	i, r := newPair(t, ps, PatternXX)
	drive(t, i, r)
	return i.Finalize(), r.Finalize()
}

func TestSessionRoundTrip(t *testing.T) {
	a, b := sessionPair(t)

	for n := 0; n < 5; n++ {
		msg := []byte{byte(n), 1, 2, 3}
		ct, err := a.Encrypt(nil, nil, msg)
		require.NoError(t, err)
		pt, err := b.Decrypt(nil, nil, ct)
		require.NoError(t, err)
		require.Equal(t, msg, pt)
	}
	require.Equal(t, uint64(5), a.SendNonce())
	require.Equal(t, uint64(5), b.RecvNonce())
	require.Zero(t, a.RecvNonce())
}

func TestSessionNonceChangesCiphertext(t *testing.T) {
	a, _ := sessionPair(t)
	c1, err := a.Encrypt(nil, nil, []byte("same"))
	require.NoError(t, err)
	c2, err := a.Encrypt(nil, nil, []byte("same"))
	require.NoError(t, err)
	require.NotEqual(t, c1, c2)
}

func TestSessionAssociatedData(t *testing.T) {
	a, b := sessionPair(t)

	ct, err := a.Encrypt(nil, []byte("header"), []byte("body"))
	require.NoError(t, err)
	pt, err := b.Decrypt(nil, []byte("header"), ct)
	require.NoError(t, err)
	require.Equal(t, []byte("body"), pt)

	ct, err = a.Encrypt(nil, []byte("header"), []byte("body"))
	require.NoError(t, err)
	_, err = b.Decrypt(nil, []byte("other"), ct)
	require.ErrorIs(t, err, ErrBadMAC)
	require.True(t, b.Aborted())
}

func TestSessionAppendsToOut(t *testing.T) {
	a, b := sessionPair(t)

	ct, err := a.Encrypt([]byte("len:"), nil, []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, []byte("len:"), ct[:4])

	pt, err := b.Decrypt([]byte(">"), nil, ct[4:])
	require.NoError(t, err)
	require.Equal(t, []byte(">payload"), pt)
}

func TestSessionTamperEveryBit(t *testing.T) {
	msg := []byte("tamper")
	ps := newPeers(t)
	for bit := 0; bit < (len(msg)+TagSize)*8; bit++ {
		i, r := newPair(t, ps, patternNN())
		drive(t, i, r)
		a, b := i.Finalize(), r.Finalize()

		ct, err := a.Encrypt(nil, nil, msg)
		require.NoError(t, err)
		ct[bit/8] ^= 1 << (bit % 8)

		_, err = b.Decrypt(nil, nil, ct)
		require.ErrorIs(t, err, ErrBadMAC, "bit %d", bit)
		require.True(t, b.Aborted())
		require.Zero(t, b.RecvNonce())
	}
}

func TestAbortedSessionPanics(t *testing.T) {
	a, b := sessionPair(t)

	ct, err := a.Encrypt(nil, nil, []byte("x"))
	require.NoError(t, err)
	ct[len(ct)-1] ^= 0xff
	_, err = b.Decrypt(nil, nil, ct)
	require.ErrorIs(t, err, ErrBadMAC)

	good, err := a.Encrypt(nil, nil, []byte("y"))
	require.NoError(t, err)
	require.Panics(t, func() { _, _ = b.Decrypt(nil, nil, good) })
	require.Panics(t, func() { _, _ = b.Encrypt(nil, nil, []byte("z")) })
}

func TestSessionOutOfOrderFails(t *testing.T) {
	a, b := sessionPair(t)
	c1, err := a.Encrypt(nil, nil, []byte("first"))
	require.NoError(t, err)
	c2, err := a.Encrypt(nil, nil, []byte("second"))
	require.NoError(t, err)
	_ = c1

	_, err = b.Decrypt(nil, nil, c2)
	require.ErrorIs(t, err, ErrBadMAC)
}

func TestSessionSizeBoundaries(t *testing.T) {
	a, b := sessionPair(t)

	max := make([]byte, MaxMessageSize-TagSize)
	ct, err := a.Encrypt(nil, nil, max)
	require.NoError(t, err)
	require.Len(t, ct, MaxMessageSize)

	_, err = a.Encrypt(nil, nil, make([]byte, MaxMessageSize-TagSize+1))
	require.ErrorIs(t, err, ErrPayloadTooLong)
	require.Equal(t, uint64(1), a.SendNonce())

	pt, err := b.Decrypt(nil, nil, ct)
	require.NoError(t, err)
	require.Len(t, pt, len(max))

	_, err = b.Decrypt(nil, nil, make([]byte, TagSize-1))
	require.ErrorIs(t, err, ErrMessageTooShort)
	_, err = b.Decrypt(nil, nil, make([]byte, MaxMessageSize+1))
	require.ErrorIs(t, err, ErrPayloadTooLong)
	require.False(t, b.Aborted())
}

func TestSessionEmptyPlaintext(t *testing.T) {
	a, b := sessionPair(t)
	ct, err := a.Encrypt(nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, ct, TagSize)
	pt, err := b.Decrypt(nil, nil, ct)
	require.NoError(t, err)
	require.Empty(t, pt)
}

func TestSessionNonceExhaustion(t *testing.T) {
	a, b := sessionPair(t)
	a.sendNonce = math.MaxUint64
	b.recvNonce = math.MaxUint64
	require.Panics(t, func() { _, _ = a.Encrypt(nil, nil, []byte("x")) })
	require.Panics(t, func() { _, _ = b.Decrypt(nil, nil, make([]byte, TagSize)) })
}

func BenchmarkSessionEncrypt(b *testing.B) {
	a, _ := sessionPair(b)
	msg := make([]byte, 1024)
	b.SetBytes(int64(len(msg)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = a.Encrypt(nil, nil, msg)
	}
}

func BenchmarkSessionDecrypt(b *testing.B) {
	a, r := sessionPair(b)
	msg := make([]byte, 1024)
	cts := make([][]byte, b.N)
	for i := range cts {
		cts[i], _ = a.Encrypt(nil, nil, msg)
	}
	b.SetBytes(int64(len(msg)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = r.Decrypt(nil, nil, cts[i])
	}
}
