package payload

import (
	"github.com/tendermint/neosync/internal/codec"
	"github.com/tendermint/neosync/types"
)

// Headers is the payload of the headers message.
type Headers struct {
	Hdrs []*types.Header
}

func (p *Headers) EncodeBinary(w *codec.BinWriter) {
	w.WriteVarUint(uint64(len(p.Hdrs)))
	for _, h := range p.Hdrs {
		h.EncodeBinary(w)
	}
}

func (p *Headers) DecodeBinary(r *codec.BinReader) {
	n := r.ReadVarUint(MaxHeadersCount)
	if r.Err != nil {
		return
	}
	p.Hdrs = make([]*types.Header, n)
	for i := range p.Hdrs {
		h := new(types.Header)
		h.DecodeBinary(r)
		if r.Err != nil {
			p.Hdrs = nil
			return
		}
		p.Hdrs[i] = h
	}
}

func (p *Headers) Size() int {
	size := codec.VarUintSize(uint64(len(p.Hdrs)))
	for _, h := range p.Hdrs {
		size += h.Size()
	}
	return size
}
