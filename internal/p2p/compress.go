package p2p

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	pool "github.com/libp2p/go-buffer-pool"
	"github.com/pierrec/lz4"
)

var errDecompress = errors.New("invalid compressed payload")

// maxExpansion bounds how many bytes one byte of an LZ4 block can decode to.
const maxExpansion = 255

// lz4 hash tables are large, reuse them across messages.
var hashTables = sync.Pool{
	New: func() interface{} { return make([]int, 1<<16) },
}

// compress returns the LZ4 block encoding of src prefixed with its length
// as a little-endian uint32.
func compress(src []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(src))
	buf := pool.Get(bound)
	defer pool.Put(buf)

	ht := hashTables.Get().([]int)
	defer hashTables.Put(ht)
	for i := range ht {
		ht[i] = 0
	}

	n, err := lz4.CompressBlock(src, buf, ht)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errors.New("payload is not compressible")
	}

	out := make([]byte, 4+n)
	binary.LittleEndian.PutUint32(out, uint32(len(src)))
	copy(out[4:], buf[:n])
	return out, nil
}

// decompress reverses compress. The declared size is bounded by
// MaxPayloadSize and by what the compressed bytes can expand to, and is
// checked before anything is allocated.
func decompress(src []byte) ([]byte, error) {
	if len(src) < 4 {
		return nil, errDecompress
	}
	size := binary.LittleEndian.Uint32(src)
	if size > MaxPayloadSize {
		return nil, fmt.Errorf("%w: declared size %d", ErrPayloadTooLarge, size)
	}
	if limit := uint64(len(src)-3) * maxExpansion; uint64(size) > limit {
		return nil, fmt.Errorf("%w: declared size %d from %d compressed bytes", errDecompress, size, len(src)-4)
	}

	out := make([]byte, size)
	n, err := lz4.UncompressBlock(src[4:], out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errDecompress, err)
	}
	if n != int(size) {
		return nil, fmt.Errorf("%w: got %d bytes, declared %d", errDecompress, n, size)
	}
	return out, nil
}
