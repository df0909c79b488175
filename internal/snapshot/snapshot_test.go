package snapshot

import (
	"bytes"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/tendermint/neosync/internal/storage"
	"github.com/tendermint/neosync/types"
)

// countingStore records the writes that reach the backend.
type countingStore struct {
	storage.Store
	puts    int32
	deletes int32
}

func newCountingStore() *countingStore {
	return &countingStore{Store: storage.NewMemStore()}
}

func (s *countingStore) NewBatch() storage.Batch {
	return &countingBatch{Batch: s.Store.NewBatch(), store: s}
}

func (s *countingStore) writes() (int32, int32) {
	return atomic.LoadInt32(&s.puts), atomic.LoadInt32(&s.deletes)
}

type countingBatch struct {
	storage.Batch
	store *countingStore
}

func (b *countingBatch) Put(key, value []byte) error {
	atomic.AddInt32(&b.store.puts, 1)
	return b.Batch.Put(key, value)
}

func (b *countingBatch) Delete(key []byte) error {
	atomic.AddInt32(&b.store.deletes, 1)
	return b.Batch.Delete(key)
}

func skey(id int32, k string) types.StorageKey {
	return types.StorageKey{ID: id, Key: []byte(k)}
}

func sitem(v string) *types.StorageItem {
	return &types.StorageItem{Value: []byte(v)}
}

func TestPutCommitThenGetFromNewSnapshot(t *testing.T) {
	store := storage.NewMemStore()

	snap := NewDBSnapshot(store)
	require.NoError(t, snap.Storages().Put(skey(1, "a"), sitem("X")))
	require.NoError(t, snap.Commit())

	item, err := NewDBSnapshot(store).Storages().Get(skey(1, "a"), true)
	require.NoError(t, err)
	require.Equal(t, []byte("X"), item.Value)
}

func TestCloneWritesInvisibleUntilCommit(t *testing.T) {
	store := storage.NewMemStore()
	snap := NewDBSnapshot(store)
	clone := snap.Clone()

	require.NoError(t, clone.Storages().Put(skey(1, "a"), sitem("X")))

	_, err := snap.Storages().Get(skey(1, "a"), true)
	require.ErrorIs(t, err, ErrKeyNotFound)
	found, err := snap.Storages().Find(types.StorageKeyPrefix(1, nil))
	require.NoError(t, err)
	require.Empty(t, found)

	require.NoError(t, clone.Commit())

	item, err := snap.Storages().Get(skey(1, "a"), true)
	require.NoError(t, err)
	require.Equal(t, []byte("X"), item.Value)

	// still only pending in the parent
	_, err = store.Get(storage.STStorage.Key(skey(1, "a").Bytes()))
	require.ErrorIs(t, err, storage.ErrKeyNotFound)

	require.NoError(t, snap.Commit())
	_, err = store.Get(storage.STStorage.Key(skey(1, "a").Bytes()))
	require.NoError(t, err)
}

func TestUnchangedEntriesDoNotReachBackend(t *testing.T) {
	store := newCountingStore()

	seed := NewDBSnapshot(store)
	require.NoError(t, seed.Storages().Put(skey(1, "a"), sitem("X")))
	require.NoError(t, seed.Commit())
	puts, _ := store.writes()
	require.EqualValues(t, 1, puts)

	snap := NewDBSnapshot(store)
	_, err := snap.Storages().Get(skey(1, "a"), true)
	require.NoError(t, err)
	_, _, err = snap.Storages().TryGet(skey(1, "b"))
	require.NoError(t, err)

	tracked := snap.Storages().Tracked()
	require.Len(t, tracked, 1)
	require.Equal(t, None, tracked[0].State)

	require.NoError(t, snap.Commit())
	puts, deletes := store.writes()
	require.EqualValues(t, 1, puts)
	require.Zero(t, deletes)
}

func TestDeleteAfterAddCancels(t *testing.T) {
	store := newCountingStore()
	snap := NewDBSnapshot(store)

	require.NoError(t, snap.Storages().Put(skey(1, "a"), sitem("X")))
	require.NoError(t, snap.Storages().Delete(skey(1, "a")))
	require.Empty(t, snap.Storages().Tracked())

	require.NoError(t, snap.Commit())
	puts, deletes := store.writes()
	require.Zero(t, puts)
	require.Zero(t, deletes)

	_, err := NewDBSnapshot(store).Storages().Get(skey(1, "a"), true)
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestDeleteMissingKeyIsNoop(t *testing.T) {
	snap := NewDBSnapshot(storage.NewMemStore())
	require.NoError(t, snap.Storages().Delete(skey(1, "nope")))
	require.Empty(t, snap.Storages().Tracked())
}

func TestGetReadOnlyAndLiveReferences(t *testing.T) {
	store := storage.NewMemStore()
	seed := NewDBSnapshot(store)
	require.NoError(t, seed.Storages().Put(skey(1, "a"), sitem("X")))
	require.NoError(t, seed.Commit())

	snap := NewDBSnapshot(store)

	copied, err := snap.Storages().Get(skey(1, "a"), true)
	require.NoError(t, err)
	copied.Value = []byte("ignored")
	require.Equal(t, None, snap.Storages().Tracked()[0].State)

	live, err := snap.Storages().Get(skey(1, "a"), false)
	require.NoError(t, err)
	require.Equal(t, []byte("X"), live.Value)
	live.Value = []byte("Y")
	require.Equal(t, Changed, snap.Storages().Tracked()[0].State)

	require.NoError(t, snap.Commit())

	item, err := NewDBSnapshot(store).Storages().Get(skey(1, "a"), true)
	require.NoError(t, err)
	require.Equal(t, []byte("Y"), item.Value)
}

func TestPutDuplicateAndResurrect(t *testing.T) {
	store := storage.NewMemStore()
	seed := NewDBSnapshot(store)
	require.NoError(t, seed.Storages().Put(skey(1, "a"), sitem("X")))
	require.NoError(t, seed.Commit())

	snap := NewDBSnapshot(store)
	require.ErrorIs(t, snap.Storages().Put(skey(1, "a"), sitem("Y")), ErrDuplicateKey)

	require.NoError(t, snap.Storages().Put(skey(1, "b"), sitem("Y")))
	require.ErrorIs(t, snap.Storages().Put(skey(1, "b"), sitem("Z")), ErrDuplicateKey)

	require.NoError(t, snap.Storages().Delete(skey(1, "a")))
	_, err := snap.Storages().Get(skey(1, "a"), true)
	require.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, snap.Storages().Put(skey(1, "a"), sitem("Z")))
	tracked := snap.Storages().Tracked()
	require.Equal(t, Changed, tracked[0].State)

	require.NoError(t, snap.Commit())
	item, err := NewDBSnapshot(store).Storages().Get(skey(1, "a"), true)
	require.NoError(t, err)
	require.Equal(t, []byte("Z"), item.Value)
}

func TestGetAndChangeFactory(t *testing.T) {
	snap := NewDBSnapshot(storage.NewMemStore())

	_, err := snap.Storages().GetAndChange(skey(1, "a"), nil)
	require.ErrorIs(t, err, ErrKeyNotFound)

	item, err := snap.Storages().GetAndChange(skey(1, "a"), func() *types.StorageItem { return sitem("init") })
	require.NoError(t, err)
	item.Value = append(item.Value, '!')

	got, err := snap.Storages().Get(skey(1, "a"), true)
	require.NoError(t, err)
	require.Equal(t, []byte("init!"), got.Value)
	require.Equal(t, Added, snap.Storages().Tracked()[0].State)
}

func TestSiblingAddedConflict(t *testing.T) {
	snap := NewDBSnapshot(storage.NewMemStore())
	first := snap.Clone()
	second := snap.Clone()

	require.NoError(t, first.Storages().Put(skey(1, "k"), sitem("v1")))
	require.NoError(t, second.Storages().Put(skey(1, "k"), sitem("v2")))
	require.NoError(t, second.Storages().Put(skey(1, "other"), sitem("o")))

	require.NoError(t, first.Commit())
	require.ErrorIs(t, second.Commit(), ErrDuplicateKey)

	item, err := snap.Storages().Get(skey(1, "k"), true)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), item.Value)

	// nothing from the failed commit was applied
	_, found, err := snap.Storages().TryGet(skey(1, "other"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestSiblingChangedLastWriterWins(t *testing.T) {
	store := storage.NewMemStore()
	seed := NewDBSnapshot(store)
	require.NoError(t, seed.Storages().Put(skey(1, "k"), sitem("v0")))
	require.NoError(t, seed.Commit())

	snap := NewDBSnapshot(store)
	first := snap.Clone()
	second := snap.Clone()

	a, err := first.Storages().Get(skey(1, "k"), false)
	require.NoError(t, err)
	a.Value = []byte("v1")

	b, err := second.Storages().Get(skey(1, "k"), false)
	require.NoError(t, err)
	b.Value = []byte("v2")

	require.NoError(t, first.Commit())
	require.NoError(t, second.Commit())
	require.NoError(t, snap.Commit())

	item, err := NewDBSnapshot(store).Storages().Get(skey(1, "k"), true)
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), item.Value)
}

func TestSiblingChangedAfterParentDelete(t *testing.T) {
	store := storage.NewMemStore()
	seed := NewDBSnapshot(store)
	require.NoError(t, seed.Storages().Put(skey(1, "k"), sitem("v0")))
	require.NoError(t, seed.Commit())

	snap := NewDBSnapshot(store)
	deleter := snap.Clone()
	changer := snap.Clone()

	live, err := changer.Storages().Get(skey(1, "k"), false)
	require.NoError(t, err)
	live.Value = []byte("v1")

	require.NoError(t, deleter.Storages().Delete(skey(1, "k")))
	require.NoError(t, deleter.Commit())

	require.ErrorIs(t, changer.Commit(), ErrKeyNotFound)
}

func TestContractReplaceKeepsHash(t *testing.T) {
	store := storage.NewMemStore()
	script := []byte{0x01}
	hash := types.ContractHash(script)

	seed := NewDBSnapshot(store)
	require.NoError(t, seed.Contracts().Put(hash, &types.ContractState{
		ID:     1,
		Hash:   hash,
		Script: types.NewContractScript("c", script),
	}))
	require.NoError(t, seed.Commit())

	snap := NewDBSnapshot(store)
	clone := snap.Clone()
	c, err := clone.Contracts().Get(hash, false)
	require.NoError(t, err)
	c.UpdateCounter++
	c.Hash = types.ContractHash([]byte{0x02})
	require.NoError(t, clone.Commit())
	require.NoError(t, snap.Commit())

	stored, err := NewDBSnapshot(store).Contracts().Get(hash, true)
	require.NoError(t, err)
	require.EqualValues(t, 1, stored.UpdateCounter)
	require.Equal(t, hash, stored.Hash)
}

func TestNestedClones(t *testing.T) {
	store := storage.NewMemStore()
	root := NewDBSnapshot(store)
	mid := root.Clone()
	leaf := mid.Clone()

	require.NoError(t, leaf.Storages().Put(skey(2, "x"), sitem("1")))
	require.NoError(t, leaf.Commit())

	_, found, err := root.Storages().TryGet(skey(2, "x"))
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, mid.Commit())
	require.NoError(t, root.Commit())

	_, err = NewDBSnapshot(store).Storages().Get(skey(2, "x"), true)
	require.NoError(t, err)
}

func TestAddBlockAndBestHeight(t *testing.T) {
	store := storage.NewMemStore()
	chain := types.MakeTestChain(3, 1)

	snap := NewDBSnapshot(store)
	_, known, err := snap.BestHeight().Get()
	require.NoError(t, err)
	require.False(t, known)

	require.NoError(t, snap.AddBlock(chain[0]))
	require.NoError(t, snap.AddBlock(chain[1]))
	require.ErrorIs(t, snap.AddBlock(chain[1]), ErrDuplicateKey)
	require.NoError(t, snap.Commit())

	snap = NewDBSnapshot(store)
	h, known, err := snap.BestHeight().Get()
	require.NoError(t, err)
	require.True(t, known)
	require.EqualValues(t, 1, h)

	// a lower height never moves the attribute back
	require.NoError(t, snap.BestHeight().Advance(0))
	h, _, _ = snap.BestHeight().Get()
	require.EqualValues(t, 1, h)

	clone := snap.Clone()
	require.NoError(t, clone.AddBlock(chain[2]))
	h, _, _ = snap.BestHeight().Get()
	require.EqualValues(t, 1, h)
	require.NoError(t, clone.Commit())
	h, _, _ = snap.BestHeight().Get()
	require.EqualValues(t, 2, h)
	require.NoError(t, snap.Commit())

	idx, err := NewDBSnapshot(store).HeightIndex().Get(2, true)
	require.NoError(t, err)
	require.Equal(t, chain[2].Hash(), idx.Hash)

	heights, err := NewDBSnapshot(store).HeightIndex().All()
	require.NoError(t, err)
	require.Len(t, heights, 3)
	for i, kv := range heights {
		assert.EqualValues(t, i, kv.Key)
	}
}

// enumerationModel drives random puts and deletes through a snapshot, a
// clone and the backend and checks that Find stays sorted and complete.
type enumerationModel struct {
	store *storage.DBStore
	snap  *DBSnapshot
	clone *CloneSnapshot
	state map[string]string
}

func (m *enumerationModel) Init(t *rapid.T) {
	m.store = storage.NewMemStore()
	m.snap = NewDBSnapshot(m.store)
	m.clone = m.snap.Clone()
	m.state = make(map[string]string)
}

var keyGen = rapid.StringMatching(`[a-c]{0,20}`)

func (m *enumerationModel) Put(t *rapid.T) {
	k := keyGen.Draw(t, "key").(string)
	v := rapid.StringN(1, 4, 4).Draw(t, "value").(string)

	err := m.clone.Storages().Put(skey(1, k), sitem(v))
	if _, ok := m.state[k]; ok {
		require.ErrorIs(t, err, ErrDuplicateKey)
		return
	}
	require.NoError(t, err)
	m.state[k] = v
}

func (m *enumerationModel) Delete(t *rapid.T) {
	k := keyGen.Draw(t, "key").(string)
	require.NoError(t, m.clone.Storages().Delete(skey(1, k)))
	delete(m.state, k)
}

func (m *enumerationModel) CommitClone(t *rapid.T) {
	require.NoError(t, m.clone.Commit())
	m.clone = m.snap.Clone()
}

func (m *enumerationModel) CommitAll(t *rapid.T) {
	require.NoError(t, m.clone.Commit())
	require.NoError(t, m.snap.Commit())
	m.snap = NewDBSnapshot(m.store)
	m.clone = m.snap.Clone()
}

func (m *enumerationModel) Check(t *rapid.T) {
	found, err := m.clone.Storages().Find(types.StorageKeyPrefix(1, nil))
	require.NoError(t, err)
	require.Len(t, found, len(m.state))

	for i := 1; i < len(found); i++ {
		prev, cur := found[i-1].Key.Bytes(), found[i].Key.Bytes()
		require.Equal(t, -1, bytes.Compare(prev, cur))
	}

	keys := make([]string, 0, len(found))
	for _, kv := range found {
		k := string(kv.Key.Key)
		keys = append(keys, k)
		require.Equal(t, m.state[k], string(kv.Value.Value))
	}
	require.True(t, sort.SliceIsSorted(found, func(i, j int) bool {
		return bytes.Compare(found[i].Key.Bytes(), found[j].Key.Bytes()) < 0
	}))
	require.Len(t, keys, len(m.state))
}

func TestEnumerationIsSortedByCanonicalKey(t *testing.T) {
	rapid.Check(t, rapid.Run(&enumerationModel{}))
}

func TestFindByStoragePrefix(t *testing.T) {
	snap := NewDBSnapshot(storage.NewMemStore())
	for _, k := range []string{"ab", "abc", "b", "a"} {
		require.NoError(t, snap.Storages().Put(skey(1, k), sitem(k)))
	}
	require.NoError(t, snap.Storages().Put(skey(2, "ab"), sitem("other contract")))

	found, err := snap.Storages().Find(types.StorageKeyPrefix(1, []byte("a")))
	require.NoError(t, err)

	var keys []string
	for _, kv := range found {
		if kv.Key.HasPrefix(1, []byte("a")) {
			keys = append(keys, string(kv.Key.Key))
		}
	}
	require.Equal(t, []string{"a", "ab", "abc"}, keys)
}
