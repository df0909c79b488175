package codec

import (
	"io"

	nio "github.com/nspcc-dev/neo-go/pkg/io"
)

// BinWriter extends neo-go's writer with signed integers, grouped bytes and
// varints that always use the shortest form. The first error is kept in Err
// and every later write becomes a no-op.
type BinWriter struct {
	*nio.BinWriter
}

// NewBinWriterFromIO makes a BinWriter on top of an io.Writer.
func NewBinWriterFromIO(w io.Writer) *BinWriter {
	return &BinWriter{BinWriter: nio.NewBinWriterFromIO(w)}
}

// BufBinWriter is a BinWriter backed by an in-memory buffer.
type BufBinWriter struct {
	*BinWriter
	buf *nio.BufBinWriter
}

// NewBufBinWriter makes a BinWriter backed by a byte buffer.
func NewBufBinWriter() *BufBinWriter {
	buf := nio.NewBufBinWriter()
	return &BufBinWriter{BinWriter: &BinWriter{BinWriter: buf.BinWriter}, buf: buf}
}

// Bytes returns the written data, or nil if any write failed. The buffer is
// drained: later writes fail until Reset.
func (bw *BufBinWriter) Bytes() []byte { return bw.buf.Bytes() }

// Len returns the number of bytes written so far.
func (bw *BufBinWriter) Len() int { return bw.buf.Len() }

// Reset clears the buffer and the sticky error.
func (bw *BufBinWriter) Reset() { bw.buf.Reset() }

func (w *BinWriter) WriteI16LE(v int16) { w.WriteU16LE(uint16(v)) }

func (w *BinWriter) WriteI32LE(v int32) { w.WriteU32LE(uint32(v)) }

func (w *BinWriter) WriteI64LE(v int64) { w.WriteU64LE(uint64(v)) }

// WriteVarUint writes v in the variable-length integer encoding.
func (w *BinWriter) WriteVarUint(v uint64) {
	if w.Err != nil {
		return
	}
	var buf [9]byte
	n := PutVarUint(buf[:], v)
	w.WriteBytes(buf[:n])
}

// WriteVarBytes writes a varint length followed by b.
func (w *BinWriter) WriteVarBytes(b []byte) {
	w.WriteVarUint(uint64(len(b)))
	w.WriteBytes(b)
}

// WriteString writes s as var-bytes.
func (w *BinWriter) WriteString(s string) {
	w.WriteVarBytes([]byte(s))
}

// WriteGroupedBytes writes b using the grouped encoding with the given
// chunk size.
func (w *BinWriter) WriteGroupedBytes(b []byte, group int) {
	if w.Err != nil {
		return
	}
	if group < 1 || group > MaxGroupSize {
		w.Err = ErrMalformedGroup
		return
	}
	w.WriteBytes(AppendGrouped(nil, b, group))
}
