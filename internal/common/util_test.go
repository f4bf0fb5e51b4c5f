package common

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomHex(t *testing.T) {
	for _, n := range []int{0, 1, 32} {
		s, err := RandomHex(n)
		require.NoError(t, err)
		assert.Len(t, s, 2*n)
		_, err = hex.DecodeString(s)
		assert.NoError(t, err)
	}

	a, _ := RandomHex(32)
	b, _ := RandomHex(32)
	assert.NotEqual(t, a, b)
}

func TestRandomBytes(t *testing.T) {
	a, b := RandomBytes(24), RandomBytes(24)
	assert.Len(t, a, 24)
	assert.NotEqual(t, a, b)
	assert.Empty(t, RandomBytes(0))
}

func TestWipe(t *testing.T) {
	salt := []byte("verifier-key")
	Wipe(salt)
	assert.Equal(t, make([]byte, 12), salt)

	assert.NotPanics(t, func() { Wipe(nil) })
}
