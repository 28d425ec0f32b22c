package memcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseGet(t *testing.T) {
	r := Parse([]byte("get foo bar\r\n"))
	require.Equal(t, OutcomeOk, r.Outcome)
	require.Equal(t, VerbGet, r.Request.Verb)
	require.Equal(t, [][]byte{[]byte("foo"), []byte("bar")}, r.Request.Keys)
	require.Equal(t, len("get foo bar\r\n"), r.Consumed)
}

func TestParseIncompleteNoCRLF(t *testing.T) {
	r := Parse([]byte("get foo"))
	require.Equal(t, OutcomeIncomplete, r.Outcome)
}

func TestParseBareLFInvalid(t *testing.T) {
	r := Parse([]byte("get foo\n"))
	require.Equal(t, OutcomeInvalid, r.Outcome)
	require.ErrorIs(t, r.Err, ErrBareLF)
}

func TestParseSetComplete(t *testing.T) {
	buf := []byte("set foo 1 0 5\r\nhello\r\n")
	r := Parse(buf)
	require.Equal(t, OutcomeOk, r.Outcome)
	require.Equal(t, VerbSet, r.Request.Verb)
	require.Equal(t, []byte("foo"), r.Request.Key)
	require.Equal(t, uint32(1), r.Request.Flags)
	require.Equal(t, int32(0), r.Request.TTL)
	require.Equal(t, []byte("hello"), r.Request.Value)
	require.Equal(t, len(buf), r.Consumed)
}

func TestParseSetIncompleteValue(t *testing.T) {
	r := Parse([]byte("set foo 1 0 5\r\nhel"))
	require.Equal(t, OutcomeIncomplete, r.Outcome)
}

func TestParseSetNoReply(t *testing.T) {
	buf := []byte("set foo 0 0 3 noreply\r\nbar\r\n")
	r := Parse(buf)
	require.Equal(t, OutcomeOk, r.Outcome)
	require.True(t, r.Request.NoReply)
}

func TestParseSetNegativeTTL(t *testing.T) {
	buf := []byte("set foo 0 -1 3\r\nbar\r\n")
	r := Parse(buf)
	require.Equal(t, OutcomeOk, r.Outcome)
	require.Equal(t, int32(-1), r.Request.TTL)
}

func TestParseSetMissingTrailingCRLF(t *testing.T) {
	buf := []byte("set foo 0 0 3\r\nbarXX")
	r := Parse(buf)
	require.Equal(t, OutcomeInvalid, r.Outcome)
}

func TestParseCAS(t *testing.T) {
	buf := []byte("cas foo 0 0 3 42\r\nbar\r\n")
	r := Parse(buf)
	require.Equal(t, OutcomeOk, r.Outcome)
	require.Equal(t, VerbCAS, r.Request.Verb)
	require.Equal(t, uint64(42), r.Request.CAS)
}

func TestParseDelete(t *testing.T) {
	r := Parse([]byte("delete foo\r\n"))
	require.Equal(t, OutcomeOk, r.Outcome)
	require.Equal(t, []byte("foo"), r.Request.Key)
}

func TestParseIncrDecr(t *testing.T) {
	r := Parse([]byte("incr counter 5\r\n"))
	require.Equal(t, OutcomeOk, r.Outcome)
	require.Equal(t, VerbIncr, r.Request.Verb)
	require.Equal(t, uint64(5), r.Request.Delta)

	r2 := Parse([]byte("decr counter 5\r\n"))
	require.Equal(t, VerbDecr, r2.Request.Verb)
}

func TestParseFlushAll(t *testing.T) {
	r := Parse([]byte("flush_all\r\n"))
	require.Equal(t, OutcomeOk, r.Outcome)
	require.Equal(t, uint32(0), r.Request.FlushWait)

	r2 := Parse([]byte("flush_all 30\r\n"))
	require.Equal(t, uint32(30), r2.Request.FlushWait)
}

func TestParseQuit(t *testing.T) {
	r := Parse([]byte("quit\r\n"))
	require.Equal(t, OutcomeOk, r.Outcome)
	require.Equal(t, VerbQuit, r.Request.Verb)
}

func TestParseAppendPrependAcceptedSyntactically(t *testing.T) {
	r := Parse([]byte("append foo 0 0 3\r\nbar\r\n"))
	require.Equal(t, OutcomeOk, r.Outcome)
	require.Equal(t, VerbAppend, r.Request.Verb)
}

func TestParseUnknownVerbInvalid(t *testing.T) {
	r := Parse([]byte("bogus foo\r\n"))
	require.Equal(t, OutcomeInvalid, r.Outcome)
}

func TestParseKeyTooLong(t *testing.T) {
	longKey := make([]byte, 251)
	for i := range longKey {
		longKey[i] = 'a'
	}
	buf := append([]byte("get "), longKey...)
	buf = append(buf, '\r', '\n')
	r := Parse(buf)
	require.Equal(t, OutcomeInvalid, r.Outcome)
}

func TestParseMultipleRequestsSequentially(t *testing.T) {
	buf := []byte("get a\r\nget b\r\n")
	r1 := Parse(buf)
	require.Equal(t, OutcomeOk, r1.Outcome)
	r2 := Parse(buf[r1.Consumed:])
	require.Equal(t, OutcomeOk, r2.Outcome)
	require.Equal(t, [][]byte{[]byte("b")}, r2.Request.Keys)
}

func TestComposerGetReply(t *testing.T) {
	var c Composer
	var dst []byte
	dst = c.WriteValue(dst, []byte("foo"), 1, []byte("bar"), 0, false)
	dst = c.WriteEnd(dst)
	require.Equal(t, "VALUE foo 1 3\r\nbar\r\nEND\r\n", string(dst))
}

func TestComposerGetsReplyIncludesCAS(t *testing.T) {
	var c Composer
	var dst []byte
	dst = c.WriteValue(dst, []byte("foo"), 1, []byte("bar"), 7, true)
	require.Equal(t, "VALUE foo 1 3 7\r\nbar\r\n", string(dst))
}

func TestComposerStoreReplies(t *testing.T) {
	var c Composer
	require.Equal(t, "STORED\r\n", string(c.WriteStored(nil)))
	require.Equal(t, "NOT_STORED\r\n", string(c.WriteNotStored(nil)))
	require.Equal(t, "EXISTS\r\n", string(c.WriteExists(nil)))
	require.Equal(t, "NOT_FOUND\r\n", string(c.WriteNotFound(nil)))
	require.Equal(t, "DELETED\r\n", string(c.WriteDeleted(nil)))
}

func TestComposerNumericReply(t *testing.T) {
	var c Composer
	require.Equal(t, "15\r\n", string(c.WriteNumeric(nil, 15)))
}
