package hashtable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// deadMark records one MarkDeleted call, so tests can assert the table
// marks the superseded (segmentID, offset) itself dead, not just its size.
type deadMark struct {
	segmentID uint32
	offset    uint32
	size      int
}

// fakeView is a minimal in-memory SegmentView used to test the hash table in
// isolation from the segment arena.
type fakeView struct {
	items map[uint64][]byte // (segmentID<<32 | offset) -> key
	dead  []deadMark
}

func newFakeView() *fakeView {
	return &fakeView{items: make(map[uint64][]byte)}
}

func (f *fakeView) put(segmentID, offset uint32, key []byte) {
	f.items[uint64(segmentID)<<32|uint64(offset)] = key
}

func (f *fakeView) ItemKeyAt(segmentID, offset uint32) ([]byte, bool) {
	k, ok := f.items[uint64(segmentID)<<32|uint64(offset)]
	return k, ok
}

func (f *fakeView) MarkDeleted(segmentID uint32, offset uint32, size int) {
	f.dead = append(f.dead, deadMark{segmentID: segmentID, offset: offset, size: size})
}

func TestInsertAndGet(t *testing.T) {
	tbl := New(Config{HashPower: 4})
	view := newFakeView()

	view.put(1, 100, []byte("coffee"))
	require.NoError(t, tbl.Insert([]byte("coffee"), 1, 100, 1, 0, view))

	segID, off, cas, found := tbl.Get([]byte("coffee"), view)
	require.True(t, found)
	require.Equal(t, uint32(1), segID)
	require.Equal(t, uint32(100), off)
	require.Equal(t, uint32(1), cas)
}

func TestGetMiss(t *testing.T) {
	tbl := New(Config{HashPower: 4})
	view := newFakeView()
	_, _, _, found := tbl.Get([]byte("nope"), view)
	require.False(t, found)
}

func TestInsertUpdatesExistingAndMarksOldDead(t *testing.T) {
	tbl := New(Config{HashPower: 4})
	view := newFakeView()

	view.put(1, 100, []byte("k"))
	require.NoError(t, tbl.Insert([]byte("k"), 1, 100, 1, 0, view))

	view.put(2, 200, []byte("k"))
	require.NoError(t, tbl.Insert([]byte("k"), 2, 200, 2, 64, view))

	segID, off, cas, found := tbl.Get([]byte("k"), view)
	require.True(t, found)
	require.Equal(t, uint32(2), segID)
	require.Equal(t, uint32(200), off)
	require.Equal(t, uint32(2), cas)
	// The stale (segmentID=1, offset=100) copy must be marked dead by its
	// own location, not just size-accounted, so a reclaim walk over segment
	// 1 later sees it as dead instead of mistaking it for the live key now
	// at (segmentID=2, offset=200).
	require.Equal(t, []deadMark{{segmentID: 1, offset: 100, size: 64}}, view.dead)
}

func TestDelete(t *testing.T) {
	tbl := New(Config{HashPower: 4})
	view := newFakeView()
	view.put(1, 10, []byte("k"))
	require.NoError(t, tbl.Insert([]byte("k"), 1, 10, 1, 0, view))

	require.True(t, tbl.Delete([]byte("k"), 32, view))
	_, _, _, found := tbl.Get([]byte("k"), view)
	require.False(t, found)
	require.Equal(t, []deadMark{{segmentID: 1, offset: 10, size: 32}}, view.dead)

	require.False(t, tbl.Delete([]byte("k"), 32, view))
}

func TestTryUpdateCAS(t *testing.T) {
	tbl := New(Config{HashPower: 4})
	view := newFakeView()
	view.put(1, 10, []byte("k"))
	require.NoError(t, tbl.Insert([]byte("k"), 1, 10, 5, 0, view))

	require.ErrorIs(t, tbl.TryUpdateCAS([]byte("missing"), 5, view), ErrNotFound)
	require.ErrorIs(t, tbl.TryUpdateCAS([]byte("k"), 6, view), ErrCASMismatch)
	require.NoError(t, tbl.TryUpdateCAS([]byte("k"), 5, view))
}

func TestOverflowChainAndNoCapacity(t *testing.T) {
	// A table with a single primary bucket (HashPower=0) and one overflow
	// bucket (OverflowFactor small but rounds up to 1) can hold at most
	// 2*slotsPerBucket distinct keys that collide on the primary bucket;
	// attempting more should eventually surface ErrNoCapacity.
	tbl := New(Config{HashPower: 0, OverflowFactor: 0.01})
	view := newFakeView()

	var lastErr error
	for i := 0; i < slotsPerBucket*3; i++ {
		key := []byte{byte(i), byte(i >> 8)}
		view.put(1, uint32(i), key)
		if err := tbl.Insert(key, 1, uint32(i), 1, 0, view); err != nil {
			lastErr = err
			break
		}
	}
	require.ErrorIs(t, lastErr, ErrNoCapacity)
}
