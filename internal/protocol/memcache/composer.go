package memcache

import "strconv"

// Composer writes ASCII responses directly into a caller-supplied growable
// buffer. It appends to dst and returns the grown slice, rather than
// building strings.
type Composer struct{}

// WriteValue appends one `VALUE key flags len [cas] CRLF value CRLF` line,
// used for a single item in a get/gets reply. withCAS controls whether the
// cas field is included (gets includes it, get does not).
func (Composer) WriteValue(dst []byte, key []byte, flags uint32, value []byte, cas uint32, withCAS bool) []byte {
	dst = append(dst, "VALUE "...)
	dst = append(dst, key...)
	dst = append(dst, ' ')
	dst = appendUint(dst, uint64(flags))
	dst = append(dst, ' ')
	dst = appendUint(dst, uint64(len(value)))
	if withCAS {
		dst = append(dst, ' ')
		dst = appendUint(dst, uint64(cas))
	}
	dst = append(dst, crlf...)
	dst = append(dst, value...)
	dst = append(dst, crlf...)
	return dst
}

// WriteEnd appends the terminal "END\r\n" line of a get/gets reply.
func (Composer) WriteEnd(dst []byte) []byte {
	return append(dst, "END\r\n"...)
}

// WriteStored, WriteNotStored, WriteExists, WriteNotFound, and WriteDeleted
// append the corresponding single-line store replies.
func (Composer) WriteStored(dst []byte) []byte    { return append(dst, "STORED\r\n"...) }
func (Composer) WriteNotStored(dst []byte) []byte { return append(dst, "NOT_STORED\r\n"...) }
func (Composer) WriteExists(dst []byte) []byte    { return append(dst, "EXISTS\r\n"...) }
func (Composer) WriteNotFound(dst []byte) []byte  { return append(dst, "NOT_FOUND\r\n"...) }
func (Composer) WriteDeleted(dst []byte) []byte   { return append(dst, "DELETED\r\n"...) }
func (Composer) WriteError(dst []byte) []byte     { return append(dst, "ERROR\r\n"...) }

// WriteServerError appends `SERVER_ERROR msg\r\n`.
func (Composer) WriteServerError(dst []byte, msg string) []byte {
	dst = append(dst, "SERVER_ERROR "...)
	dst = append(dst, msg...)
	return append(dst, crlf...)
}

// WriteClientError appends `CLIENT_ERROR msg\r\n`.
func (Composer) WriteClientError(dst []byte, msg string) []byte {
	dst = append(dst, "CLIENT_ERROR "...)
	dst = append(dst, msg...)
	return append(dst, crlf...)
}

// WriteNumeric appends the decimal value reply used by incr/decr.
func (Composer) WriteNumeric(dst []byte, v uint64) []byte {
	dst = appendUint(dst, v)
	return append(dst, crlf...)
}

func appendUint(dst []byte, v uint64) []byte {
	return strconv.AppendUint(dst, v, 10)
}
