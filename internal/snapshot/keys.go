package snapshot

import (
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/tendermint/neosync/internal/storage"
	"github.com/tendermint/neosync/types"
)

var (
	uint256Keys = KeyCodec[util.Uint256]{
		Encode: func(h util.Uint256) []byte { return h.BytesBE() },
		Decode: util.Uint256DecodeBytesBE,
	}

	uint160Keys = KeyCodec[util.Uint160]{
		Encode: func(h util.Uint160) []byte { return h.BytesBE() },
		Decode: util.Uint160DecodeBytesBE,
	}

	storageKeys = KeyCodec[types.StorageKey]{
		Encode: func(k types.StorageKey) []byte { return k.Bytes() },
		Decode: types.StorageKeyFromBytes,
	}

	heightKeys = KeyCodec[uint32]{
		Encode: storage.HeightKey,
		Decode: storage.ParseHeightKey,
	}
)
