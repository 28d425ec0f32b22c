package seg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/ignite/pkg/errors"
)

func newTestEngine(t *testing.T, segSize uint32, n int, policy EvictionPolicy) *Engine {
	t.Helper()
	return New(Config{
		HeapSize:    uint64(segSize) * uint64(n),
		SegmentSize: segSize,
		HashPower:   4,
		Policy:      policy,
	})
}

func TestInsertAndGet(t *testing.T) {
	e := newTestEngine(t, 4096, 4, EvictNone)
	require.NoError(t, e.Insert([]byte("k"), []byte("v"), 7, 60))

	res, found := e.Get([]byte("k"))
	require.True(t, found)
	require.Equal(t, []byte("v"), res.Value)
	require.Equal(t, uint32(7), res.Flags)
}

func TestGetMiss(t *testing.T) {
	e := newTestEngine(t, 4096, 4, EvictNone)
	_, found := e.Get([]byte("nope"))
	require.False(t, found)
}

func TestInsertOverwritesPreviousValue(t *testing.T) {
	e := newTestEngine(t, 4096, 4, EvictNone)
	require.NoError(t, e.Insert([]byte("k"), []byte("v1"), 0, 60))
	require.NoError(t, e.Insert([]byte("k"), []byte("v2"), 0, 60))

	res, found := e.Get([]byte("k"))
	require.True(t, found)
	require.Equal(t, []byte("v2"), res.Value)
}

func TestAddFailsWhenPresent(t *testing.T) {
	e := newTestEngine(t, 4096, 4, EvictNone)
	require.NoError(t, e.Add([]byte("k"), []byte("v"), 0, 60))
	err := e.Add([]byte("k"), []byte("v2"), 0, 60)
	require.ErrorIs(t, err, errors.ErrNotStored)
}

func TestReplaceFailsWhenAbsent(t *testing.T) {
	e := newTestEngine(t, 4096, 4, EvictNone)
	err := e.Replace([]byte("nope"), []byte("v"), 0, 60)
	require.ErrorIs(t, err, errors.ErrNotStored)
}

func TestCASMismatchAndSuccess(t *testing.T) {
	e := newTestEngine(t, 4096, 4, EvictNone)
	require.NoError(t, e.Insert([]byte("k"), []byte("v"), 0, 60))

	_, found := e.Get([]byte("k"))
	require.True(t, found)

	err := e.CAS([]byte("k"), []byte("v2"), 0, 60, 999)
	require.ErrorIs(t, err, errors.ErrExists)

	err = e.CAS([]byte("k"), []byte("v2"), 0, 60, 1)
	require.NoError(t, err)

	res, found := e.Get([]byte("k"))
	require.True(t, found)
	require.Equal(t, []byte("v2"), res.Value)
}

func TestDelete(t *testing.T) {
	e := newTestEngine(t, 4096, 4, EvictNone)
	require.NoError(t, e.Insert([]byte("k"), []byte("v"), 0, 60))
	require.True(t, e.Delete([]byte("k")))
	require.False(t, e.Delete([]byte("k")))

	_, found := e.Get([]byte("k"))
	require.False(t, found)
}

func TestWrappingAddAndSaturatingSub(t *testing.T) {
	e := newTestEngine(t, 4096, 4, EvictNone)
	// A plain decimal value auto-detects as numeric on insert (spec §3/§4.E),
	// so incr/decr work on it without ever going through incr/decr first.
	require.NoError(t, e.Insert([]byte("ctr"), []byte("10"), 0, 60))

	v, err := e.WrappingAdd([]byte("ctr"), 5)
	require.NoError(t, err)
	require.Equal(t, uint64(15), v)

	v, err = e.SaturatingSub([]byte("ctr"), 100)
	require.NoError(t, err)
	require.Equal(t, uint64(0), v)
}

func TestSaturatingSubNotNumeric(t *testing.T) {
	e := newTestEngine(t, 4096, 4, EvictNone)
	require.NoError(t, e.Insert([]byte("k"), []byte("v"), 0, 60))
	_, err := e.SaturatingSub([]byte("k"), 1)
	require.ErrorIs(t, err, errors.ErrNotNumeric)
}

func TestInsertDetectsNumericValue(t *testing.T) {
	e := newTestEngine(t, 4096, 4, EvictNone)
	require.NoError(t, e.Insert([]byte("k"), []byte("007"), 0, 60))

	res, found := e.Get([]byte("k"))
	require.True(t, found)
	require.True(t, res.IsNum)
	require.Equal(t, uint64(7), res.Numeric)
}

func TestNegativeTTLDeletesOnInsert(t *testing.T) {
	e := newTestEngine(t, 4096, 4, EvictNone)
	require.NoError(t, e.Insert([]byte("k"), []byte("v"), 0, -1))
	_, found := e.Get([]byte("k"))
	require.False(t, found)
}

func TestInsertNoFreeSegmentsWithEvictNone(t *testing.T) {
	e := newTestEngine(t, 256, 1, EvictNone)
	require.NoError(t, e.Insert([]byte("a"), make([]byte, 100), 0, 60))
	err := e.Insert([]byte("b"), make([]byte, 100), 0, 5000)
	require.ErrorIs(t, err, errors.ErrNoFreeSegments)
}

func TestInsertEvictsWithFIFOWhenExhausted(t *testing.T) {
	e := newTestEngine(t, 256, 1, EvictFIFO)
	require.NoError(t, e.Insert([]byte("a"), make([]byte, 100), 0, 60))
	err := e.Insert([]byte("b"), make([]byte, 100), 0, 5000)
	require.NoError(t, err)

	_, found := e.Get([]byte("a"))
	require.False(t, found)
	_, found = e.Get([]byte("b"))
	require.True(t, found)
}

func TestClearRemovesEverything(t *testing.T) {
	e := newTestEngine(t, 4096, 4, EvictNone)
	require.NoError(t, e.Insert([]byte("a"), []byte("x"), 0, 60))
	require.NoError(t, e.Insert([]byte("b"), []byte("y"), 0, 60))

	n := e.Clear()
	require.Greater(t, n, 0)

	_, found := e.Get([]byte("a"))
	require.False(t, found)
	_, found = e.Get([]byte("b"))
	require.False(t, found)
}

func TestExpireReclaimsExpiredSegments(t *testing.T) {
	e := newTestEngine(t, 4096, 4, EvictNone)
	require.NoError(t, e.Insert([]byte("a"), []byte("x"), 0, 1))

	// Force the owning segment's create time into the past so it is
	// considered expired without sleeping in the test.
	segID, _, _, found := e.table.GetNoFreqIncr([]byte("a"), e.arena)
	require.True(t, found)
	e.arena.Get(segID).CreateTime = 0

	n := e.Expire()
	require.Equal(t, 1, n)

	_, found = e.Get([]byte("a"))
	require.False(t, found)
}

// TestInPlaceUpdateAcrossSegmentsSurvivesOldSegmentReclaim guards against a
// stale-copy bug: re-setting a key with a TTL that lands it in a different
// bucket's active segment must flag the superseded copy in the old segment
// dead, not just size-account it, or reclaiming the old segment later
// deletes the relocated (live) key out from under the hash table.
func TestInPlaceUpdateAcrossSegmentsSurvivesOldSegmentReclaim(t *testing.T) {
	e := newTestEngine(t, 4096, 8, EvictNone)

	require.NoError(t, e.Insert([]byte("a"), []byte("v1"), 0, 10))
	oldSegID, _, _, found := e.table.GetNoFreqIncr([]byte("a"), e.arena)
	require.True(t, found)

	// A much larger TTL falls into a different ttlbucket width range, so
	// the in-place update relocates to a different bucket's active
	// segment rather than appending within the same one.
	require.NoError(t, e.Insert([]byte("a"), []byte("v2"), 0, 50000))
	newSegID, _, _, found := e.table.GetNoFreqIncr([]byte("a"), e.arena)
	require.True(t, found)
	require.NotEqual(t, oldSegID, newSegID)

	// Reclaiming the old segment must not touch the hash table slot that
	// now points at the relocated, still-live copy of "a".
	e.reclaimHashEntries(oldSegID)

	res, found := e.Get([]byte("a"))
	require.True(t, found)
	require.Equal(t, []byte("v2"), res.Value)
}
