/*
Package blocksync downloads blocks from peers and persists them in order.

The Syncer keeps one RequestInfo per outstanding height. Each holds the
flights sent for that height, normally one, more after a retry. A single
owner goroutine drives all state:

  - every SyncInterval it sweeps timed out flights, re-requesting the whole
    pending range from a peer that has not failed it yet, then fills the
    request table with the next contiguous range when nothing is pending and
    the block cache has room;
  - blocks forwarded by the peer manager are matched to their request by
    height and sender, anything else is dropped;
  - cached blocks are persisted one per loop iteration, starting at the
    height following the ledger tip, so the loop stays responsive.
*/
package blocksync
