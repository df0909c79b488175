package types

import (
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/crypto/hash"
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/tendermint/neosync/internal/codec"
)

const (
	// MaxCompilerLength bounds the compiler identification string.
	MaxCompilerLength = 64
	// MaxContractScript bounds the contract script size.
	MaxContractScript = 512 * 1024
	// MaxManifestLength bounds the contract manifest.
	MaxManifestLength = 0xFFFF
)

// ContractScript is a self-validating container for a contract script. The
// checksum covers the compiler string and the script.
type ContractScript struct {
	Compiler string
	Script   []byte
	Checksum uint32
}

// NewContractScript builds a container with a valid checksum.
func NewContractScript(compiler string, script []byte) ContractScript {
	cs := ContractScript{Compiler: compiler, Script: script}
	cs.Checksum = cs.computeChecksum()
	return cs
}

func (cs *ContractScript) computeChecksum() uint32 {
	b := make([]byte, 0, len(cs.Compiler)+len(cs.Script))
	b = append(b, cs.Compiler...)
	b = append(b, cs.Script...)
	return codec.Checksum(b)
}

func (cs *ContractScript) EncodeBinary(w *codec.BinWriter) {
	w.WriteString(cs.Compiler)
	w.WriteVarBytes(cs.Script)
	w.WriteU32LE(cs.Checksum)
}

func (cs *ContractScript) DecodeBinary(r *codec.BinReader) {
	cs.Compiler = r.ReadString(MaxCompilerLength)
	cs.Script = r.ReadVarBytes(MaxContractScript)
	cs.Checksum = r.ReadU32LE()
	if r.Err == nil && cs.Checksum != cs.computeChecksum() {
		r.Err = ErrInvalidChecksum
	}
}

func (cs *ContractScript) Size() int {
	return codec.VarBytesSize(len(cs.Compiler)) + codec.VarBytesSize(len(cs.Script)) + 4
}

// ContractState is the persisted record of a deployed contract. Hash is
// its identity and never changes after deployment.
type ContractState struct {
	ID            int32
	UpdateCounter uint16
	Hash          util.Uint160
	Script        ContractScript
	Manifest      string
}

// ContractHash derives a contract hash from its script.
func ContractHash(script []byte) util.Uint160 {
	return hash.Hash160(script)
}

func (c *ContractState) EncodeBinary(w *codec.BinWriter) {
	w.WriteI32LE(c.ID)
	w.WriteU16LE(c.UpdateCounter)
	w.WriteBytes(c.Hash[:])
	c.Script.EncodeBinary(w)
	w.WriteString(c.Manifest)
}

func (c *ContractState) DecodeBinary(r *codec.BinReader) {
	c.ID = r.ReadI32LE()
	c.UpdateCounter = r.ReadU16LE()
	r.ReadBytes(c.Hash[:])
	c.Script.DecodeBinary(r)
	c.Manifest = r.ReadString(MaxManifestLength)
}

func (c *ContractState) Size() int {
	return 4 + 2 + util.Uint160Size + c.Script.Size() + codec.VarBytesSize(len(c.Manifest))
}

// Clone returns a deep copy of c.
func (c *ContractState) Clone() *ContractState {
	cp := *c
	cp.Script.Script = cloneBytes(c.Script.Script)
	return &cp
}

// FromReplica copies the mutable fields of other into c. The contract hash
// is left untouched.
func (c *ContractState) FromReplica(other *ContractState) {
	c.ID = other.ID
	c.UpdateCounter = other.UpdateCounter
	c.Script = ContractScript{
		Compiler: other.Script.Compiler,
		Script:   cloneBytes(other.Script.Script),
		Checksum: other.Script.Checksum,
	}
	c.Manifest = other.Manifest
}

func (c *ContractState) String() string {
	return fmt.Sprintf("Contract{id:%d %s v%d}", c.ID, c.Hash.StringLE(), c.UpdateCounter)
}

// HeaderHash is the value stored in the height index.
type HeaderHash struct {
	Hash util.Uint256
}

func (h *HeaderHash) EncodeBinary(w *codec.BinWriter) { w.WriteBytes(h.Hash[:]) }

func (h *HeaderHash) DecodeBinary(r *codec.BinReader) { r.ReadBytes(h.Hash[:]) }

func (h *HeaderHash) Size() int { return util.Uint256Size }

func (h *HeaderHash) Clone() *HeaderHash { c := *h; return &c }

func (h *HeaderHash) FromReplica(other *HeaderHash) { h.Hash = other.Hash }
