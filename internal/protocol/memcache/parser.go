package memcache

import (
	"bytes"
	stdErrors "errors"
	"strconv"

	"github.com/iamNilotpal/ignite/pkg/errors"
)

// ErrBareLF is returned (as OutcomeInvalid) when a line is terminated by a
// lone '\n' without a preceding '\r'; the protocol requires CRLF.
var ErrBareLF = stdErrors.New("memcache: bare LF is not a valid line terminator")

// ErrMalformed covers any other syntactic violation of a recognized verb's
// argument grammar.
var ErrMalformed = stdErrors.New("memcache: malformed request")

// ErrKeyTooLong is returned when a key exceeds maxKeyLen bytes.
var ErrKeyTooLong = stdErrors.New("memcache: key exceeds 250 bytes")

// Parse attempts to parse exactly one request from the head of buf. Request
// byte fields alias buf rather than copying it; the token and key-list
// slices are allocated per call. See Outcome for the three possible results.
func Parse(buf []byte) ParseResult {
	line, lineLen, ok, invalid := findLine(buf)
	if invalid {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrBareLF}
	}
	if !ok {
		return ParseResult{Outcome: OutcomeIncomplete}
	}

	fields := splitFields(line)
	if len(fields) == 0 {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
	}

	verb := verbOf(fields[0])
	switch verb {
	case VerbGet, VerbGets:
		return parseRetrieval(verb, fields, buf, lineLen)
	case VerbSet, VerbAdd, VerbReplace, VerbAppend, VerbPrepend:
		return parseStorage(verb, fields, buf, lineLen)
	case VerbCAS:
		return parseCAS(fields, buf, lineLen)
	case VerbDelete:
		return parseDelete(fields, buf, lineLen)
	case VerbIncr, VerbDecr:
		return parseIncrDecr(verb, fields, buf, lineLen)
	case VerbFlushAll:
		return parseFlushAll(fields, buf, lineLen)
	case VerbQuit:
		return ParseResult{Outcome: OutcomeOk, Consumed: lineLen, Request: Request{Verb: VerbQuit, Raw: buf[:lineLen]}}
	default:
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
	}
}

// findLine scans buf for a CRLF-terminated line. It returns the line
// contents (excluding the CRLF), the total byte length including the CRLF,
// whether a full line was found, and whether a bare LF was encountered
// first (a protocol violation distinct from "need more bytes").
func findLine(buf []byte) (line []byte, lineLen int, ok bool, invalid bool) {
	for i := 0; i < len(buf); i++ {
		if buf[i] == '\n' {
			if i == 0 || buf[i-1] != '\r' {
				return nil, 0, false, true
			}
			return buf[:i-1], i + 1, true, false
		}
	}
	return nil, 0, false, false
}

func splitFields(line []byte) [][]byte {
	return bytes.Fields(line)
}

func verbOf(tok []byte) Verb {
	switch {
	case bytesEqualFold(tok, "get"):
		return VerbGet
	case bytesEqualFold(tok, "gets"):
		return VerbGets
	case bytesEqualFold(tok, "set"):
		return VerbSet
	case bytesEqualFold(tok, "add"):
		return VerbAdd
	case bytesEqualFold(tok, "replace"):
		return VerbReplace
	case bytesEqualFold(tok, "cas"):
		return VerbCAS
	case bytesEqualFold(tok, "delete"):
		return VerbDelete
	case bytesEqualFold(tok, "incr"):
		return VerbIncr
	case bytesEqualFold(tok, "decr"):
		return VerbDecr
	case bytesEqualFold(tok, "flush_all"):
		return VerbFlushAll
	case bytesEqualFold(tok, "quit"):
		return VerbQuit
	case bytesEqualFold(tok, "append"):
		return VerbAppend
	case bytesEqualFold(tok, "prepend"):
		return VerbPrepend
	default:
		return VerbUnknown
	}
}

func bytesEqualFold(b []byte, s string) bool {
	return bytes.EqualFold(b, []byte(s))
}

func validKey(k []byte) bool {
	return len(k) > 0 && len(k) <= maxKeyLen
}

func parseRetrieval(verb Verb, fields [][]byte, buf []byte, lineLen int) ParseResult {
	if len(fields) < 2 {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
	}
	keys := make([][]byte, 0, len(fields)-1)
	for _, k := range fields[1:] {
		if !validKey(k) {
			return ParseResult{Outcome: OutcomeInvalid, Err: ErrKeyTooLong}
		}
		keys = append(keys, k)
	}
	return ParseResult{
		Outcome:  OutcomeOk,
		Consumed: lineLen,
		Request:  Request{Verb: verb, Keys: keys, Raw: buf[:lineLen]},
	}
}

// parseStorage handles set/add/replace/append/prepend, whose arguments are
// key flags ttl bytes [noreply], followed by a value of `bytes` length and
// a trailing CRLF.
func parseStorage(verb Verb, fields [][]byte, buf []byte, lineLen int) ParseResult {
	if len(fields) < 5 || len(fields) > 6 {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
	}
	key := fields[1]
	if !validKey(key) {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrKeyTooLong}
	}
	flags, err := parseUint32(fields[2])
	if err != nil {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
	}
	ttl, err := parseInt32(fields[3])
	if err != nil {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
	}
	size, err := parseUint32(fields[4])
	if err != nil {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
	}
	noreply, err := parseNoReply(fields, 5)
	if err != nil {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
	}

	return finishWithValue(Request{Verb: verb, Key: key, Flags: flags, TTL: ttl, NoReply: noreply}, buf, lineLen, int(size))
}

func parseCAS(fields [][]byte, buf []byte, lineLen int) ParseResult {
	if len(fields) < 6 || len(fields) > 7 {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
	}
	key := fields[1]
	if !validKey(key) {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrKeyTooLong}
	}
	flags, err := parseUint32(fields[2])
	if err != nil {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
	}
	ttl, err := parseInt32(fields[3])
	if err != nil {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
	}
	size, err := parseUint32(fields[4])
	if err != nil {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
	}
	cas, err := parseUint64(fields[5])
	if err != nil {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
	}
	noreply, err := parseNoReply(fields, 6)
	if err != nil {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
	}

	return finishWithValue(Request{Verb: VerbCAS, Key: key, Flags: flags, TTL: ttl, CAS: cas, NoReply: noreply}, buf, lineLen, int(size))
}

// finishWithValue waits for size bytes of value plus a trailing CRLF after
// the command line, which have not necessarily arrived yet.
func finishWithValue(req Request, buf []byte, lineLen int, size int) ParseResult {
	need := lineLen + size + 2
	if len(buf) < need {
		return ParseResult{Outcome: OutcomeIncomplete}
	}
	valueEnd := lineLen + size
	if buf[valueEnd] != '\r' || buf[valueEnd+1] != '\n' {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
	}
	req.Value = buf[lineLen:valueEnd]
	req.Raw = buf[:need]
	return ParseResult{Outcome: OutcomeOk, Consumed: need, Request: req}
}

func parseDelete(fields [][]byte, buf []byte, lineLen int) ParseResult {
	if len(fields) < 2 || len(fields) > 3 {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
	}
	key := fields[1]
	if !validKey(key) {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrKeyTooLong}
	}
	noreply, err := parseNoReply(fields, 2)
	if err != nil {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
	}
	return ParseResult{
		Outcome:  OutcomeOk,
		Consumed: lineLen,
		Request:  Request{Verb: VerbDelete, Key: key, NoReply: noreply, Raw: buf[:lineLen]},
	}
}

func parseIncrDecr(verb Verb, fields [][]byte, buf []byte, lineLen int) ParseResult {
	if len(fields) < 3 || len(fields) > 4 {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
	}
	key := fields[1]
	if !validKey(key) {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrKeyTooLong}
	}
	delta, err := parseUint64(fields[2])
	if err != nil {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
	}
	noreply, err := parseNoReply(fields, 3)
	if err != nil {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
	}
	return ParseResult{
		Outcome:  OutcomeOk,
		Consumed: lineLen,
		Request:  Request{Verb: verb, Key: key, Delta: delta, NoReply: noreply, Raw: buf[:lineLen]},
	}
}

func parseFlushAll(fields [][]byte, buf []byte, lineLen int) ParseResult {
	var wait uint32
	if len(fields) > 2 {
		return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
	}
	if len(fields) == 2 {
		w, err := parseUint32(fields[1])
		if err != nil {
			return ParseResult{Outcome: OutcomeInvalid, Err: ErrMalformed}
		}
		wait = w
	}
	return ParseResult{
		Outcome:  OutcomeOk,
		Consumed: lineLen,
		Request:  Request{Verb: VerbFlushAll, FlushWait: wait, Raw: buf[:lineLen]},
	}
}

// parseNoReply checks that, if a token exists at idx, it is exactly
// "noreply"; anything else is malformed.
func parseNoReply(fields [][]byte, idx int) (bool, error) {
	if idx >= len(fields) {
		return false, nil
	}
	if !bytesEqualFold(fields[idx], "noreply") {
		return false, ErrMalformed
	}
	return true, nil
}

func parseUint32(b []byte) (uint32, error) {
	v, err := strconv.ParseUint(string(b), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func parseUint64(b []byte) (uint64, error) {
	return strconv.ParseUint(string(b), 10, 64)
}

func parseInt32(b []byte) (int32, error) {
	v, err := strconv.ParseInt(string(b), 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// AsProtocolError wraps a parse error as pkg/errors.ProtocolError for
// callers that want the structured taxonomy rather than a raw error.
func AsProtocolError(verb []byte, outcome Outcome, err error) error {
	switch outcome {
	case OutcomeIncomplete:
		return errors.ErrIncomplete.WithVerb(string(verb))
	case OutcomeInvalid:
		return errors.ErrInvalid.WithVerb(string(verb)).WithDetail("cause", err)
	default:
		return nil
	}
}
