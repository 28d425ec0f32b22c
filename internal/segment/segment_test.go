package segment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestArena(t *testing.T, segSize uint32, n int) *Arena {
	t.Helper()
	return New(Config{HeapSize: uint64(segSize) * uint64(n), SegmentSize: segSize})
}

func TestPopPushFreeList(t *testing.T) {
	a := newTestArena(t, 4096, 4)
	require.Equal(t, 4, a.Count())
	require.Equal(t, 4, a.NumFree())

	id, err := a.PopFree()
	require.NoError(t, err)
	require.Equal(t, 3, a.NumFree())
	require.True(t, a.Get(id).Accessible)

	a.PushFree(id)
	require.Equal(t, 4, a.NumFree())
	require.False(t, a.Get(id).Accessible)
}

func TestPopFreeExhausted(t *testing.T) {
	a := newTestArena(t, 4096, 1)
	_, err := a.PopFree()
	require.NoError(t, err)
	_, err = a.PopFree()
	require.ErrorIs(t, err, ErrNoFreeSegments)
}

func TestWriteAndReadItemRoundTrip(t *testing.T) {
	a := newTestArena(t, 4096, 1)
	id, err := a.PopFree()
	require.NoError(t, err)

	key := []byte("hello")
	value := []byte("world")
	optional := []byte{0, 0, 0, 7}

	size := a.WriteItem(id, 0, key, value, false, 0, optional, 42)
	require.Greater(t, size, 0)

	item, ok := a.ItemAt(id, 0)
	require.True(t, ok)
	require.Equal(t, key, item.Key)
	require.Equal(t, value, item.Value)
	require.Equal(t, optional, item.Optional)
	require.Equal(t, uint32(42), item.CAS)
	require.False(t, item.IsNumeric)
	require.Equal(t, size, item.Size)

	gotKey, ok := a.ItemKeyAt(id, 0)
	require.True(t, ok)
	require.Equal(t, key, gotKey)
}

func TestWriteNumericItem(t *testing.T) {
	a := newTestArena(t, 4096, 1)
	id, err := a.PopFree()
	require.NoError(t, err)

	a.WriteItem(id, 0, []byte("ctr"), nil, true, 99, nil, 1)
	item, ok := a.ItemAt(id, 0)
	require.True(t, ok)
	require.True(t, item.IsNumeric)
	require.Equal(t, uint64(99), item.NumericValue)
}

func TestMarkDeletedHidesItem(t *testing.T) {
	a := newTestArena(t, 4096, 1)
	id, err := a.PopFree()
	require.NoError(t, err)

	size := a.WriteItem(id, 0, []byte("k"), []byte("v"), false, 0, nil, 1)
	require.Equal(t, uint32(1), a.Get(id).LiveItemCount)

	a.MarkDeleted(id, 0, size)
	require.Equal(t, uint32(0), a.Get(id).LiveItemCount)
	require.Equal(t, uint32(0), a.Get(id).OccupiedSize)

	_, ok := a.ItemKeyAt(id, 0)
	require.False(t, ok)
}

func TestItemSizeOversized(t *testing.T) {
	a := newTestArena(t, 32, 1)
	_, err := a.ItemSize(250, 1<<20, 4)
	require.ErrorIs(t, err, ErrItemOversized)
}

func TestSetNumericValue(t *testing.T) {
	a := newTestArena(t, 4096, 1)
	id, err := a.PopFree()
	require.NoError(t, err)

	a.WriteItem(id, 0, []byte("ctr"), nil, true, 10, nil, 1)
	require.NoError(t, a.SetNumericValue(id, 0, 20, 2))

	item, ok := a.ItemAt(id, 0)
	require.True(t, ok)
	require.Equal(t, uint64(20), item.NumericValue)
	require.Equal(t, uint32(2), item.CAS)
}

func TestSetNumericValueRejectsNonNumeric(t *testing.T) {
	a := newTestArena(t, 4096, 1)
	id, err := a.PopFree()
	require.NoError(t, err)

	a.WriteItem(id, 0, []byte("k"), []byte("v"), false, 0, nil, 1)
	err = a.SetNumericValue(id, 0, 1, 2)
	require.Error(t, err)
}

func TestBumpCASMonotonic(t *testing.T) {
	a := newTestArena(t, 4096, 1)
	id, err := a.PopFree()
	require.NoError(t, err)

	require.Equal(t, uint32(1), a.BumpCAS(id))
	require.Equal(t, uint32(2), a.BumpCAS(id))
}
