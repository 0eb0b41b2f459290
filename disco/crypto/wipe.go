package crypto

import "runtime"

// Wipe zeroes b. Best effort: the write is kept alive past the loop so the
// compiler does not drop it.
//
//go:noinline
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}
