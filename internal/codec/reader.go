package codec

import (
	"bytes"
	"errors"
	"io"
	"unicode/utf8"

	nio "github.com/nspcc-dev/neo-go/pkg/io"
)

// MaxVarBytes is the default upper bound for var-bytes and strings.
const MaxVarBytes = nio.MaxArraySize

// BinReader extends neo-go's reader with bounded canonical varints, UTF-8
// checked strings and grouped bytes. The first error is kept in Err and
// every later read returns zero values. A stream that ends early fails with
// ErrTruncated.
type BinReader struct {
	*nio.BinReader
}

// NewBinReaderFromIO makes a BinReader on top of an io.Reader.
func NewBinReaderFromIO(r io.Reader) *BinReader {
	return &BinReader{BinReader: nio.NewBinReaderFromIO(truncReader{r})}
}

// NewBinReaderFromBuf makes a BinReader over b.
func NewBinReaderFromBuf(b []byte) *BinReader {
	return NewBinReaderFromIO(bytes.NewReader(b))
}

// truncReader reports the end of the stream as ErrTruncated, which
// io.ReadFull passes through when a value is cut short.
type truncReader struct {
	r io.Reader
}

func (t truncReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if errors.Is(err, io.EOF) {
		err = ErrTruncated
	}
	return n, err
}

func (r *BinReader) ReadI16LE() int16 { return int16(r.ReadU16LE()) }

func (r *BinReader) ReadI32LE() int32 { return int32(r.ReadU32LE()) }

func (r *BinReader) ReadI64LE() int64 { return int64(r.ReadU64LE()) }

// ReadVarUint reads a variable-length integer that must be in its shortest
// form and must not exceed max.
func (r *BinReader) ReadVarUint(max uint64) uint64 {
	if r.Err != nil {
		return 0
	}

	var v uint64
	switch m := r.ReadB(); m {
	case varintU16:
		v = uint64(r.ReadU16LE())
		if r.Err == nil && v < varintU16 {
			r.Err = ErrMalformedVarint
		}
	case varintU32:
		v = uint64(r.ReadU32LE())
		if r.Err == nil && v <= 0xFFFF {
			r.Err = ErrMalformedVarint
		}
	case varintU64:
		v = r.ReadU64LE()
		if r.Err == nil && v <= 0xFFFFFFFF {
			r.Err = ErrMalformedVarint
		}
	default:
		v = uint64(m)
	}

	if r.Err != nil {
		return 0
	}
	if v > max {
		r.Err = ErrValueTooLarge
		return 0
	}
	return v
}

// ReadVarBytes reads a var-bytes value whose length is bounded by max. When
// max is omitted MaxVarBytes applies.
func (r *BinReader) ReadVarBytes(max ...int) []byte {
	limit := MaxVarBytes
	if len(max) > 0 {
		limit = max[0]
	}

	n := r.ReadVarUint(uint64(limit))
	if r.Err != nil {
		return nil
	}
	b := make([]byte, n)
	r.ReadBytes(b)
	if r.Err != nil {
		return nil
	}
	return b
}

// ReadString reads a var-bytes value and checks that it is valid UTF-8.
func (r *BinReader) ReadString(max ...int) string {
	b := r.ReadVarBytes(max...)
	if r.Err != nil {
		return ""
	}
	if !utf8.Valid(b) {
		r.Err = ErrInvalidUTF8
		return ""
	}
	return string(b)
}

// ReadGroupedBytes reads bytes written by WriteGroupedBytes with the same
// chunk size. Only the canonical encoding is accepted: a continued chunk
// must be followed by at least one meaningful byte.
func (r *BinReader) ReadGroupedBytes(group int) []byte {
	if r.Err != nil {
		return nil
	}
	if group < 1 || group > MaxGroupSize {
		r.Err = ErrMalformedGroup
		return nil
	}

	var (
		out   []byte
		chunk = make([]byte, group)
	)
	for {
		r.ReadBytes(chunk)
		marker := r.ReadB()
		if r.Err != nil {
			return nil
		}

		if marker == groupContinue {
			out = append(out, chunk...)
			continue
		}
		if int(marker) > group || (marker == 0 && len(out) > 0) {
			r.Err = ErrMalformedGroup
			return nil
		}
		for _, pad := range chunk[marker:] {
			if pad != 0 {
				r.Err = ErrMalformedGroup
				return nil
			}
		}
		return append(out, chunk[:marker]...)
	}
}
