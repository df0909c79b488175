package payload

import "github.com/tendermint/neosync/internal/codec"

// Ping is the payload of both ping and pong.
type Ping struct {
	LastBlockIndex uint32
	Timestamp      uint32
	Nonce          uint32
}

func (p *Ping) EncodeBinary(w *codec.BinWriter) {
	w.WriteU32LE(p.LastBlockIndex)
	w.WriteU32LE(p.Timestamp)
	w.WriteU32LE(p.Nonce)
}

func (p *Ping) DecodeBinary(r *codec.BinReader) {
	p.LastBlockIndex = r.ReadU32LE()
	p.Timestamp = r.ReadU32LE()
	p.Nonce = r.ReadU32LE()
}

func (p *Ping) Size() int { return 12 }

// Null is the payload of messages without a body.
type Null struct{}

func (Null) EncodeBinary(*codec.BinWriter) {}

func (Null) DecodeBinary(*codec.BinReader) {}

func (Null) Size() int { return 0 }
