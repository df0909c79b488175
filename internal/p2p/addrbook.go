package p2p

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/orderedcode"
	"github.com/mroth/weightedrand"

	"github.com/tendermint/neosync/internal/codec"
	"github.com/tendermint/neosync/internal/storage"
)

// recencyWindow bounds how far back address timestamps raise the chance of
// being picked for dialing.
const recencyWindow = 72 * time.Hour

// AddressBook keeps every known address with its state and persists it in
// the storage backend. It is safe for concurrent use.
type AddressBook struct {
	mtx     sync.Mutex
	store   storage.Store
	addrs   map[string]*NetworkAddress
	blocked map[string]struct{}
	now     func() time.Time
}

// NewAddressBook loads the persisted addresses from store. Addresses that
// were connected when the node stopped are reset to AddressNew.
func NewAddressBook(store storage.Store, blocked []string) (*AddressBook, error) {
	b := &AddressBook{
		store:   store,
		addrs:   make(map[string]*NetworkAddress),
		blocked: make(map[string]struct{}, len(blocked)),
		now:     time.Now,
	}
	for _, addr := range blocked {
		if normalized, err := ParseAddress(addr); err == nil {
			addr = normalized
		}
		b.blocked[addr] = struct{}{}
	}

	if err := b.load(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *AddressBook) load() error {
	var decodeErr error
	err := b.store.Seek(storage.P2PAddress.Key(nil), func(_, value []byte) bool {
		addr := new(NetworkAddress)
		if err := codec.FromBytes(value, addr); err != nil {
			decodeErr = fmt.Errorf("invalid address record: %w", err)
			return false
		}
		if addr.State == AddressConnected {
			addr.State = AddressNew
		}
		b.addrs[addr.Address] = addr
		return true
	})
	if err != nil {
		return err
	}
	return decodeErr
}

func (b *AddressBook) persist(addr *NetworkAddress) error {
	raw, err := codec.ToBytes(addr)
	if err != nil {
		return err
	}
	return b.store.Put(keyAddress(addr.Address), raw)
}

// Add records a newly discovered address in state AddressNew. Known and
// blocked addresses are ignored; the result reports whether addr was added.
func (b *AddressBook) Add(addr NetworkAddress) (bool, error) {
	normalized, err := ParseAddress(addr.Address)
	if err != nil {
		return false, err
	}
	addr.Address = normalized

	b.mtx.Lock()
	defer b.mtx.Unlock()

	if _, ok := b.blocked[addr.Address]; ok {
		return false, nil
	}
	if _, ok := b.addrs[addr.Address]; ok {
		return false, nil
	}

	addr.State = AddressNew
	if addr.Timestamp == 0 {
		addr.Timestamp = uint32(b.now().Unix())
	}
	if err := b.persist(&addr); err != nil {
		return false, err
	}
	b.addrs[addr.Address] = &addr
	return true, nil
}

// SetState moves a known address to state. Unknown addresses are ignored.
func (b *AddressBook) SetState(address string, state AddressState) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	addr, ok := b.addrs[address]
	if !ok || addr.State == state {
		return nil
	}
	addr.State = state
	if state == AddressConnected {
		addr.LastConnected = b.now()
	}
	return b.persist(addr)
}

// Get returns a copy of the entry for address.
func (b *AddressBook) Get(address string) (NetworkAddress, bool) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	addr, ok := b.addrs[address]
	if !ok {
		return NetworkAddress{}, false
	}
	return *addr, true
}

// ByState returns up to limit addresses in state. Addresses in AddressNew
// are sampled without replacement, weighted by how recently they were
// seen; other states are returned in address order.
func (b *AddressBook) ByState(state AddressState, limit int) []NetworkAddress {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	var candidates []NetworkAddress
	for _, addr := range b.addrs {
		if addr.State == state {
			candidates = append(candidates, *addr)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Address < candidates[j].Address })

	if len(candidates) <= limit {
		return candidates
	}
	if state != AddressNew {
		return candidates[:limit]
	}
	return b.pickWeighted(candidates, limit)
}

func (b *AddressBook) pickWeighted(candidates []NetworkAddress, limit int) []NetworkAddress {
	now := b.now()
	picked := make([]NetworkAddress, 0, limit)

	for len(picked) < limit && len(candidates) > 0 {
		choices := make([]weightedrand.Choice, len(candidates))
		for i := range candidates {
			choices[i] = weightedrand.Choice{Item: i, Weight: b.recencyWeight(now, candidates[i])}
		}
		chooser, err := weightedrand.NewChooser(choices...)
		if err != nil {
			// every weight is at least one, this only fails on overflow
			return append(picked, candidates[:limit-len(picked)]...)
		}

		i := chooser.Pick().(int)
		picked = append(picked, candidates[i])
		candidates = append(candidates[:i], candidates[i+1:]...)
	}
	return picked
}

// recencyWeight gives one point per hour of recency within recencyWindow.
func (b *AddressBook) recencyWeight(now time.Time, addr NetworkAddress) uint {
	age := now.Sub(time.Unix(int64(addr.Timestamp), 0))
	if age < 0 {
		age = 0
	}
	if age >= recencyWindow {
		return 1
	}
	return 1 + uint((recencyWindow-age)/time.Hour)
}

// RecyclePoor moves every AddressPoor entry back to AddressNew and returns
// how many were moved.
func (b *AddressBook) RecyclePoor() (int, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	var n int
	for _, addr := range b.addrs {
		if addr.State != AddressPoor {
			continue
		}
		addr.State = AddressNew
		if err := b.persist(addr); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Reseed makes sure every seed is known and dialable again.
func (b *AddressBook) Reseed(seeds []string) error {
	for _, seed := range seeds {
		added, err := b.Add(NetworkAddress{Address: seed})
		if err != nil {
			return err
		}
		if !added {
			normalized, _ := ParseAddress(seed)
			if addr, ok := b.Get(normalized); ok && addr.State != AddressConnected {
				if err := b.SetState(normalized, AddressNew); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Good returns up to limit addresses worth sharing with other peers:
// connected ones first, then the most recently seen new ones.
func (b *AddressBook) Good(limit int) []NetworkAddress {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	var good []NetworkAddress
	for _, addr := range b.addrs {
		if addr.State == AddressConnected || addr.State == AddressNew {
			good = append(good, *addr)
		}
	}
	sort.Slice(good, func(i, j int) bool {
		if (good[i].State == AddressConnected) != (good[j].State == AddressConnected) {
			return good[i].State == AddressConnected
		}
		if good[i].Timestamp != good[j].Timestamp {
			return good[i].Timestamp > good[j].Timestamp
		}
		return good[i].Address < good[j].Address
	})
	if len(good) > limit {
		good = good[:limit]
	}
	return good
}

// Count returns the number of addresses per state.
func (b *AddressBook) Count() map[AddressState]int {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	counts := make(map[AddressState]int, 4)
	for _, addr := range b.addrs {
		counts[addr.State]++
	}
	return counts
}

// Size returns the number of known addresses.
func (b *AddressBook) Size() int {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	return len(b.addrs)
}

// keyAddress generates an address book key.
func keyAddress(address string) []byte {
	key, err := orderedcode.Append(nil, address)
	if err != nil {
		panic(err)
	}
	return storage.P2PAddress.Key(key)
}
