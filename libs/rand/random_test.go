package rand

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStr(t *testing.T) {
	assert.Empty(t, Str(0))
	assert.Empty(t, Str(-3))

	s := Str(64)
	assert.Len(t, s, 64)
	for _, c := range s {
		assert.True(t, strings.ContainsRune(strChars, c), "unexpected %q", c)
	}
	assert.NotEqual(t, s, Str(64))
}

func TestNonceVaries(t *testing.T) {
	seen := map[uint32]struct{}{}
	for i := 0; i < 16; i++ {
		seen[Nonce()] = struct{}{}
	}
	assert.Greater(t, len(seen), 1)
}
