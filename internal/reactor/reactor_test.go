package reactor

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestRegisterAndPollReadable(t *testing.T) {
	r, err := New(Config{})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() { unix.Close(fds[0]); unix.Close(fds[1]) })
	require.NoError(t, unix.SetNonblock(fds[0], true))

	token := r.NextToken()
	require.NoError(t, r.RegisterSession(fds[0], token, unix.EPOLLIN))

	_, err = unix.Write(fds[1], []byte("hi"))
	require.NoError(t, err)

	var seen []Event
	require.NoError(t, r.Poll(func(fd int, ev Event) { seen = append(seen, ev) }))

	require.Len(t, seen, 1)
	require.Equal(t, token, seen[0].Token)
	require.True(t, seen[0].Readable)
}

func TestWakeDrainsWithoutVisitingUserFds(t *testing.T) {
	r, err := New(Config{TimeoutMS: 50})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	require.NoError(t, r.Wake())

	var seen []Event
	require.NoError(t, r.Poll(func(fd int, ev Event) { seen = append(seen, ev) }))
	require.Empty(t, seen)
}

func TestTokenForAfterRegister(t *testing.T) {
	r, err := New(Config{})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() { unix.Close(fds[0]); unix.Close(fds[1]) })

	token := r.NextToken()
	require.NoError(t, r.RegisterSession(fds[0], token, unix.EPOLLIN))

	got, ok := r.TokenFor(fds[0])
	require.True(t, ok)
	require.Equal(t, token, got)

	require.NoError(t, r.Unregister(fds[0]))
	_, ok = r.TokenFor(fds[0])
	require.False(t, ok)
}
