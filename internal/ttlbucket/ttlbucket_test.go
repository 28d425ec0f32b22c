package ttlbucket

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/ignite/internal/segment"
)

func newTestManager(t *testing.T, segSize uint32, n int) (*Manager, *segment.Arena) {
	t.Helper()
	arena := segment.New(segment.Config{HeapSize: uint64(segSize) * uint64(n), SegmentSize: segSize})
	return New(Config{Arena: arena}), arena
}

func TestIndexForClampsZeroAndOversized(t *testing.T) {
	require.Equal(t, numBuckets-1, IndexFor(0))
	require.Equal(t, numBuckets-1, IndexFor(1<<30))
}

func TestIndexForWithinFirstRange(t *testing.T) {
	require.Equal(t, 0, IndexFor(1))
	require.Equal(t, 0, IndexFor(range0Width))
	require.Equal(t, 1, IndexFor(range0Width+1))
}

func TestIndexForMonotonic(t *testing.T) {
	prev := -1
	for _, ttl := range []uint32{1, 10, 100, 1000, 5000, 50000, 500000} {
		idx := IndexFor(ttl)
		require.GreaterOrEqual(t, idx, prev)
		prev = idx
	}
}

func TestReserveWithinSingleSegment(t *testing.T) {
	m, _ := newTestManager(t, 4096, 4)
	segID, off, err := m.Reserve(60, 128)
	require.NoError(t, err)
	require.Equal(t, uint32(0), off)

	segID2, off2, err := m.Reserve(60, 128)
	require.NoError(t, err)
	require.Equal(t, segID, segID2)
	require.Equal(t, uint32(128), off2)
}

func TestReserveRollsToNewSegmentWhenFull(t *testing.T) {
	m, _ := newTestManager(t, 256, 4)
	first, _, err := m.Reserve(60, 200)
	require.NoError(t, err)

	second, off, err := m.Reserve(60, 200)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.Equal(t, uint32(0), off)
}

func TestReserveOversizedItem(t *testing.T) {
	m, _ := newTestManager(t, 256, 2)
	_, _, err := m.Reserve(60, 1000)
	require.ErrorIs(t, err, ErrItemOversized)
}

func TestReserveNoFreeSegments(t *testing.T) {
	m, _ := newTestManager(t, 64, 1)
	_, _, err := m.Reserve(60, 32)
	require.NoError(t, err)
	_, _, err = m.Reserve(120, 32) // different bucket forces a new segment
	require.ErrorIs(t, err, ErrNoFreeSegments)
}

func TestExpireSegmentsReclaimsOldOnes(t *testing.T) {
	m, arena := newTestManager(t, 256, 2)
	segID, _, err := m.Reserve(10, 32)
	require.NoError(t, err)
	arena.Get(segID).CreateTime = 0

	expired := m.ExpireSegments(100)
	require.Equal(t, []uint32{segID}, expired)

	b := m.Bucket(IndexFor(10))
	require.Equal(t, int32(-1), b.Head)
	require.Equal(t, int32(-1), b.Tail)
}

func TestExpireSegmentsGatedWithinSameSecond(t *testing.T) {
	m, arena := newTestManager(t, 256, 2)
	segID, _, err := m.Reserve(10, 32)
	require.NoError(t, err)
	arena.Get(segID).CreateTime = 0

	require.NotEmpty(t, m.ExpireSegments(100))
	require.Empty(t, m.ExpireSegments(100))
}

func TestClearReclaimsEverything(t *testing.T) {
	m, _ := newTestManager(t, 256, 4)
	a, _, err := m.Reserve(10, 32)
	require.NoError(t, err)
	b, _, err := m.Reserve(5000, 32)
	require.NoError(t, err)

	all := m.Clear(42)
	require.ElementsMatch(t, []uint32{a, b}, all)
	require.Equal(t, int64(42), m.FlushedAt())
}

func TestNextMergeCandidateWrapsAround(t *testing.T) {
	m, _ := newTestManager(t, 64, 4)
	idx := IndexFor(60)
	a, _, err := m.Reserve(60, 48)
	require.NoError(t, err)
	b, _, err := m.Reserve(60, 48)
	require.NoError(t, err)

	first, ok := m.NextMergeCandidate(idx)
	require.True(t, ok)
	require.Equal(t, a, first)

	second, ok := m.NextMergeCandidate(idx)
	require.True(t, ok)
	require.Equal(t, b, second)

	third, ok := m.NextMergeCandidate(idx)
	require.True(t, ok)
	require.Equal(t, a, third)
}
