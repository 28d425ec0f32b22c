package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAndReadable(t *testing.T) {
	b := New(4)
	n, err := b.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, []byte("hello"), b.Readable())
}

func TestAdvanceResetsAtEmpty(t *testing.T) {
	b := New(16)
	_, _ = b.Write([]byte("abc"))
	b.Advance(3)
	require.Equal(t, 0, b.Len())

	_, _ = b.Write([]byte("xyz"))
	require.Equal(t, []byte("xyz"), b.Readable())
}

func TestPartialAdvance(t *testing.T) {
	b := New(16)
	_, _ = b.Write([]byte("abcdef"))
	b.Advance(2)
	require.Equal(t, []byte("cdef"), b.Readable())
}

func TestReserveGrows(t *testing.T) {
	b := New(4)
	b.Reserve(10)
	require.GreaterOrEqual(t, b.Cap(), 10)
}

func TestCompactRelocatesFarReadOffset(t *testing.T) {
	b := New(relocateThreshold + 128)
	big := make([]byte, relocateThreshold)
	_, _ = b.Write(big)
	_, _ = b.Write([]byte("tail"))
	b.Advance(relocateThreshold)
	require.Equal(t, []byte("tail"), b.Readable())

	b.Compact()
	require.Equal(t, []byte("tail"), b.Readable())
}

func TestCompactShrinksWhenEmptyAndOversized(t *testing.T) {
	b := New(shrinkThreshold + 1024)
	b.Compact()
	require.LessOrEqual(t, b.Cap(), shrinkThreshold)
}

func TestAdvanceWrite(t *testing.T) {
	b := New(8)
	copy(b.Writable(), []byte("ab"))
	b.AdvanceWrite(2)
	require.Equal(t, []byte("ab"), b.Readable())
}
