package codec

const (
	// DefaultGroupSize is the chunk size used for storage keys.
	DefaultGroupSize = 16

	// MaxGroupSize is the largest chunk size; 255 is reserved as the
	// continuation marker.
	MaxGroupSize = 254

	groupContinue = 0xFF
)

// GroupedSize returns the encoded length of n bytes grouped in chunks of g.
func GroupedSize(n, g int) int {
	chunks := 1
	if n > 0 {
		chunks = (n + g - 1) / g
	}
	return chunks * (g + 1)
}

// AppendGrouped appends the grouped encoding of b to dst. Each full chunk
// that is followed by more data gets marker 255; the last chunk is zero
// padded to g and followed by the count of meaningful bytes.
func AppendGrouped(dst, b []byte, g int) []byte {
	for len(b) > g {
		dst = append(dst, b[:g]...)
		dst = append(dst, groupContinue)
		b = b[g:]
	}

	dst = append(dst, b...)
	for i := len(b); i < g; i++ {
		dst = append(dst, 0)
	}
	return append(dst, byte(len(b)))
}

// GroupedPrefix returns a byte prefix shared by the grouped encoding of
// every value that starts with prefix. Only whole chunks of prefix are
// encoded and the marker after the last one is left out, so candidates must
// still be filtered on their decoded value.
func GroupedPrefix(prefix []byte, g int) []byte {
	whole := len(prefix) / g * g
	var enc []byte
	for i := 0; i < whole; i += g {
		if i > 0 {
			enc = append(enc, groupContinue)
		}
		enc = append(enc, prefix[i:i+g]...)
	}
	return enc
}
