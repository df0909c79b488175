package snapshot

import "github.com/tendermint/neosync/types"

func newBlock() *types.Block                       { return new(types.Block) }
func newTransactionState() *types.TransactionState { return new(types.TransactionState) }
func newContractState() *types.ContractState       { return new(types.ContractState) }
func newStorageItem() *types.StorageItem           { return new(types.StorageItem) }
func newHeaderHash() *types.HeaderHash             { return new(types.HeaderHash) }
