package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type countingWaker struct{ n int }

func (w *countingWaker) Wake() error {
	w.n++
	return nil
}

func TestTrySendAndRecv(t *testing.T) {
	q := New(2, nil)
	require.NoError(t, q.TrySend("a"))
	require.NoError(t, q.TrySend("b"))
	require.ErrorIs(t, q.TrySend("c"), ErrFull)

	v, ok := q.TryRecv()
	require.True(t, ok)
	require.Equal(t, "a", v)
	require.Equal(t, 1, q.Len())
}

func TestTryRecvEmpty(t *testing.T) {
	q := New(1, nil)
	_, ok := q.TryRecv()
	require.False(t, ok)
}

func TestFlushWakeOnlyFiresOnceForABatch(t *testing.T) {
	w := &countingWaker{}
	q := New(4, w)
	require.NoError(t, q.TrySend(1))
	require.NoError(t, q.TrySend(2))
	require.NoError(t, q.TrySend(3))

	require.NoError(t, q.FlushWake())
	require.Equal(t, 1, w.n)

	require.NoError(t, q.FlushWake())
	require.Equal(t, 1, w.n)
}

func TestRegistryTrySendTo(t *testing.T) {
	r := NewRegistry()
	r.Add(1, New(2, nil))
	require.NoError(t, r.TrySendTo(1, "x"))
	require.ErrorIs(t, r.TrySendTo(2, "x"), ErrNoConsumers)
}

func TestRegistryTrySendAnyDistributes(t *testing.T) {
	r := NewRegistry()
	r.Add(1, New(10, nil))
	r.Add(2, New(10, nil))
	for i := 0; i < 20; i++ {
		require.NoError(t, r.TrySendAny(i))
	}
	total := r.queues[1].Len() + r.queues[2].Len()
	require.Equal(t, 20, total)
}

func TestRegistryTrySendAllBroadcasts(t *testing.T) {
	r := NewRegistry()
	r.Add(1, New(2, nil))
	r.Add(2, New(2, nil))
	require.NoError(t, r.TrySendAll("flush"))

	require.Equal(t, 1, r.queues[1].Len())
	require.Equal(t, 1, r.queues[2].Len())
}

func TestRegistryTrySendAllReportsFullButSendsToEveryone(t *testing.T) {
	r := NewRegistry()
	r.Add(1, New(1, nil))
	r.Add(2, New(1, nil))
	require.NoError(t, r.TrySendAll("a"))
	err := r.TrySendAll("b")
	require.ErrorIs(t, err, ErrFull)

	require.Equal(t, 1, r.queues[1].Len())
	require.Equal(t, 1, r.queues[2].Len())
}
