package types

import (
	"bytes"

	"github.com/tendermint/neosync/internal/codec"
)

const (
	// MaxInvocationScript is the largest accepted invocation script.
	MaxInvocationScript = 1024
	// MaxVerificationScript is the largest accepted verification script.
	MaxVerificationScript = 1024
)

// Witness carries opaque verification data. Verification itself is out of
// scope for the sync core.
type Witness struct {
	InvocationScript   []byte
	VerificationScript []byte
}

func (w *Witness) EncodeBinary(bw *codec.BinWriter) {
	bw.WriteVarBytes(w.InvocationScript)
	bw.WriteVarBytes(w.VerificationScript)
}

func (w *Witness) DecodeBinary(br *codec.BinReader) {
	w.InvocationScript = br.ReadVarBytes(MaxInvocationScript)
	w.VerificationScript = br.ReadVarBytes(MaxVerificationScript)
}

func (w *Witness) Size() int {
	return codec.VarBytesSize(len(w.InvocationScript)) + codec.VarBytesSize(len(w.VerificationScript))
}

// Copy returns a deep copy of w.
func (w Witness) Copy() Witness {
	return Witness{
		InvocationScript:   cloneBytes(w.InvocationScript),
		VerificationScript: cloneBytes(w.VerificationScript),
	}
}

// Equal reports whether both witnesses carry the same scripts.
func (w Witness) Equal(o Witness) bool {
	return bytes.Equal(w.InvocationScript, o.InvocationScript) &&
		bytes.Equal(w.VerificationScript, o.VerificationScript)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
