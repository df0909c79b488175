package rand

import (
	crand "crypto/rand"
	"encoding/binary"
	mrand "math/rand"
)

const (
	strChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz" // 62 characters
)

// NewRand returns a prng, that is seeded with OS randomness.
// The OS randomness is obtained from crypto/rand, however, like with any math/rand.Rand
// object none of the provided methods are suitable for cryptographic usage.
func NewRand() *mrand.Rand {
	var seed int64
	if err := binary.Read(crand.Reader, binary.BigEndian, &seed); err != nil {
		panic(err)
	}
	return mrand.New(mrand.NewSource(seed))
}

// Nonce returns a random node nonce. Peers echoing it back in their
// version message are this node.
func Nonce() uint32 {
	return NewRand().Uint32()
}

// Str constructs a random alphanumeric string of given length
// from a freshly instantiated prng.
func Str(length int) string {
	if length <= 0 {
		return ""
	}

	rand := NewRand()
	chars := make([]byte, 0, length)
	for len(chars) < length {
		// rightmost 6 bits, only 62 characters in strChars
		if v := rand.Intn(64); v < len(strChars) {
			chars = append(chars, strChars[v])
		}
	}
	return string(chars)
}
