package session

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestFillReadsAvailableBytes(t *testing.T) {
	a, b := socketPair(t)
	s := New(1, a, nil, nil)

	_, err := unix.Write(b, []byte("hello"))
	require.NoError(t, err)

	n, err := s.Fill()
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(s.Read.Readable()))
}

func TestFillReturnsNoErrorOnWouldBlock(t *testing.T) {
	a, _ := socketPair(t)
	s := New(1, a, nil, nil)
	n, err := s.Fill()
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestFillReportsHangup(t *testing.T) {
	a, b := socketPair(t)
	require.NoError(t, unix.Close(b))
	s := New(1, a, nil, nil)

	_, err := s.Fill()
	require.ErrorIs(t, err, ErrHangup)
}

func TestFlushWritesBuffer(t *testing.T) {
	a, b := socketPair(t)
	s := New(1, a, nil, nil)
	s.Write.Write([]byte("world"))

	require.NoError(t, s.Flush())
	require.Equal(t, 0, s.Write.Len())

	buf := make([]byte, 5)
	n, err := unix.Read(b, buf)
	require.NoError(t, err)
	require.Equal(t, "world", string(buf[:n]))
}

func TestInterestTracksWriteBuffer(t *testing.T) {
	a, _ := socketPair(t)
	s := New(1, a, nil, nil)
	require.Equal(t, uint32(unix.EPOLLIN), s.Interest())

	s.Write.Write([]byte("x"))
	require.Equal(t, uint32(unix.EPOLLIN|unix.EPOLLOUT), s.Interest())
}

func TestNeedsBackpressure(t *testing.T) {
	a, _ := socketPair(t)
	s := New(1, a, nil, nil)
	require.False(t, s.NeedsBackpressure())

	s.Write.Write(make([]byte, writeCapacity+1))
	require.True(t, s.NeedsBackpressure())
}

func TestCloseIsIdempotent(t *testing.T) {
	a, _ := socketPair(t)
	s := New(1, a, nil, nil)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
