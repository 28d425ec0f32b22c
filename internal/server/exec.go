package server

import (
	stdErrors "errors"
	"strconv"

	"github.com/iamNilotpal/ignite/internal/protocol/memcache"
	"github.com/iamNilotpal/ignite/internal/seg"
	segerrors "github.com/iamNilotpal/ignite/pkg/errors"
)

// outcome is everything composeOutcome needs to build a reply, computed by
// running req against an engine. Splitting "run against the engine" from
// "compose the reply" is what lets the SingleWorker and MultiWorker
// topologies share one business-logic path: a Worker calls computeOutcome
// directly against its own engine, while a StorageThread calls it once per
// dequeued request and ships the outcome back to the originating worker for
// composition there (the worker owns the composer and the session's write
// buffer, the storage thread owns neither).
type outcome struct {
	gets    []getEntry
	numeric uint64
	deleted bool
	err     error
}

// getEntry pairs one requested key with its lookup result, for get/gets
// replies which may report any number of hits and misses in one response.
type getEntry struct {
	key   []byte
	res   seg.GetResult
	found bool
}

// computeOutcome runs req against engine and returns enough information to
// compose a reply. It never touches a session or composer, so it has no
// side effects beyond the engine mutation the verb implies.
func computeOutcome(engine *seg.Engine, req memcache.Request) outcome {
	switch req.Verb {
	case memcache.VerbGet, memcache.VerbGets:
		out := outcome{gets: make([]getEntry, 0, len(req.Keys))}
		for _, key := range req.Keys {
			res, found := engine.Get(key)
			out.gets = append(out.gets, getEntry{key: key, res: res, found: found})
		}
		return out

	case memcache.VerbSet:
		return outcome{err: engine.Insert(req.Key, req.Value, req.Flags, req.TTL)}

	case memcache.VerbAdd:
		return outcome{err: engine.Add(req.Key, req.Value, req.Flags, req.TTL)}

	case memcache.VerbReplace:
		return outcome{err: engine.Replace(req.Key, req.Value, req.Flags, req.TTL)}

	case memcache.VerbCAS:
		return outcome{err: engine.CAS(req.Key, req.Value, req.Flags, req.TTL, uint32(req.CAS))}

	case memcache.VerbAppend, memcache.VerbPrepend:
		return outcome{err: segerrors.ErrNotStored}

	case memcache.VerbDelete:
		return outcome{deleted: engine.Delete(req.Key)}

	case memcache.VerbIncr:
		v, err := engine.WrappingAdd(req.Key, req.Delta)
		return outcome{numeric: v, err: err}

	case memcache.VerbDecr:
		v, err := engine.SaturatingSub(req.Key, req.Delta)
		return outcome{numeric: v, err: err}

	case memcache.VerbFlushAll:
		engine.ScheduleFlush(req.FlushWait)
		return outcome{}

	default:
		return outcome{}
	}
}

// composeOutcome renders out into reply bytes appended to buf (nil-safe,
// like append), returning the bytes and the klog result code. NoReply
// suppresses the bytes but the result code is still reported to klog.
func composeOutcome(c *memcache.Composer, req memcache.Request, out outcome) ([]byte, memcache.ResultCode) {
	var buf []byte

	switch req.Verb {
	case memcache.VerbGet, memcache.VerbGets:
		withCAS := req.Verb == memcache.VerbGets
		hit := false
		for _, g := range out.gets {
			if !g.found {
				continue
			}
			hit = true
			value := g.res.Value
			if g.res.IsNum {
				value = []byte(strconv.FormatUint(g.res.Numeric, 10))
			}
			buf = c.WriteValue(buf, g.key, g.res.Flags, value, g.res.CAS, withCAS)
		}
		buf = c.WriteEnd(buf)
		if hit {
			return buf, memcache.ResultHit
		}
		return buf, memcache.ResultMiss

	case memcache.VerbSet, memcache.VerbAdd, memcache.VerbReplace:
		buf = appendStoreReply(c, buf, req.NoReply, out.err)
		return buf, resultFor(out.err, memcache.ResultStored)

	case memcache.VerbCAS:
		buf = appendCASReply(c, buf, req.NoReply, out.err)
		return buf, resultFor(out.err, memcache.ResultStored)

	case memcache.VerbAppend, memcache.VerbPrepend:
		if !req.NoReply {
			buf = c.WriteNotStored(buf)
		}
		return buf, memcache.ResultNotStored

	case memcache.VerbDelete:
		if out.deleted {
			if !req.NoReply {
				buf = c.WriteDeleted(buf)
			}
			return buf, memcache.ResultDeleted
		}
		if !req.NoReply {
			buf = c.WriteNotFound(buf)
		}
		return buf, memcache.ResultNotFound

	case memcache.VerbIncr, memcache.VerbDecr:
		buf = appendNumericReply(c, buf, req.NoReply, out.numeric, out.err)
		if stdErrors.Is(out.err, segerrors.ErrNotNumeric) {
			return buf, memcache.ResultError
		}
		return buf, resultFor(out.err, memcache.ResultStored)

	case memcache.VerbFlushAll:
		if !req.NoReply {
			buf = c.WriteStored(buf)
		}
		return buf, memcache.ResultDeleted

	default:
		return buf, memcache.ResultUnknown
	}
}

func resultFor(err error, onSuccess memcache.ResultCode) memcache.ResultCode {
	switch {
	case err == nil:
		return onSuccess
	case stdErrors.Is(err, segerrors.ErrExists):
		return memcache.ResultExists
	case stdErrors.Is(err, segerrors.ErrNotFound):
		return memcache.ResultNotFound
	case stdErrors.Is(err, segerrors.ErrNotStored):
		return memcache.ResultNotStored
	default:
		return memcache.ResultNotStored
	}
}

func appendStoreReply(c *memcache.Composer, out []byte, noreply bool, err error) []byte {
	if noreply {
		return out
	}
	switch {
	case err == nil:
		return c.WriteStored(out)
	case stdErrors.Is(err, segerrors.ErrNotStored):
		return c.WriteNotStored(out)
	default:
		return c.WriteServerError(out, err.Error())
	}
}

func appendCASReply(c *memcache.Composer, out []byte, noreply bool, err error) []byte {
	if noreply {
		return out
	}
	switch {
	case err == nil:
		return c.WriteStored(out)
	case stdErrors.Is(err, segerrors.ErrExists):
		return c.WriteExists(out)
	case stdErrors.Is(err, segerrors.ErrNotFound):
		return c.WriteNotFound(out)
	default:
		return c.WriteServerError(out, err.Error())
	}
}

func appendNumericReply(c *memcache.Composer, out []byte, noreply bool, v uint64, err error) []byte {
	if noreply {
		return out
	}
	switch {
	case err == nil:
		return c.WriteNumeric(out, v)
	case stdErrors.Is(err, segerrors.ErrNotFound):
		return c.WriteNotFound(out)
	case stdErrors.Is(err, segerrors.ErrNotNumeric):
		return c.WriteError(out)
	default:
		return c.WriteServerError(out, err.Error())
	}
}

// cloneRequest deep-copies every byte slice a Request aliases from its
// session's read buffer. The parser is zero-copy by design (spec §4.F), which
// is safe for SingleWorker's synchronous parse-execute-compose loop but not
// for MultiWorker: a request queued for the storage thread may still be
// waiting when the worker's next Fill() overwrites or relocates the same
// read buffer bytes. Crossing the worker/storage-thread boundary requires
// an owned copy; this is the one place that copy happens.
func cloneRequest(req memcache.Request) memcache.Request {
	out := req
	out.Key = append([]byte(nil), req.Key...)
	out.Value = append([]byte(nil), req.Value...)
	out.Raw = nil
	if req.Keys != nil {
		keys := make([][]byte, len(req.Keys))
		for i, k := range req.Keys {
			keys[i] = append([]byte(nil), k...)
		}
		out.Keys = keys
	}
	return out
}
