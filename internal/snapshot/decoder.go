// Package snapshot decodes the binary snapshot file format the server
// restores its initial state from on startup: a "REDIS" magic plus
// four-digit version header, followed by a sequence of opcode-tagged
// sections terminated by an end-of-file opcode.
//
// The hardest piece is the length/string encoding: the top two bits of
// a length's leading byte select among four forms (6-bit inline length,
// 14-bit two-byte length, an out-of-band 8-bit length, and a "special"
// form where the payload is itself a fixed-width integer rendered back
// as a decimal string). See decodeLength for the byte-level rules.
package snapshot

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

// ErrBadMagic indicates the file does not begin with the "REDIS" magic.
var ErrBadMagic = errors.New("snapshot: bad magic")

// ErrBadEncoding indicates a length or special-integer encoding byte
// carried a reserved/unrecognized control pattern.
var ErrBadEncoding = errors.New("snapshot: bad length encoding")

// ErrUnsupportedValueType indicates a key-value record's type tag names
// a value type this decoder does not implement (only string, tag 0, is
// supported — lists/sets/sorted sets/hashes and their compact encodings
// are recognized by tag but rejected).
var ErrUnsupportedValueType = errors.New("snapshot: unsupported value type")

// ErrTruncated indicates the buffer ended before a section finished
// decoding.
var ErrTruncated = errors.New("snapshot: truncated input")

const (
	opAux       = 0xFA
	opResizeDB  = 0xFB
	opExpireMS  = 0xFC
	opExpireSec = 0xFD
	opSelectDB  = 0xFE
	opEOF       = 0xFF
)

// valueType tags recognized from the RDB dialect. Only valueTypeString
// is implemented; the rest are recognized so the decoder can fail
// cleanly instead of misparsing the stream.
const (
	valueTypeString             = 0
	valueTypeList               = 1
	valueTypeSet                = 2
	valueTypeSortedSet          = 3
	valueTypeHash               = 4
	valueTypeZipmap             = 9
	valueTypeZiplist            = 10
	valueTypeIntset             = 11
	valueTypeSortedSetInZiplist = 12
	valueTypeHashmapInZiplist   = 13
	valueTypeListInQuicklist    = 14
)

// Entry is one decoded key-value record, with its optional expiry
// (Unix milliseconds; 0 means no expiry).
type Entry struct {
	Key             string
	Value           []byte
	ExpiresAtMillis int64
}

// Result is the full decoded snapshot: the declared format version, the
// auxiliary metadata dictionary, and the initial population of entries.
type Result struct {
	Version uint32
	Aux     map[string]string
	Entries []Entry
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) byte() (byte, error) {
	if r.remaining() < 1 {
		return 0, ErrTruncated
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) peek() (byte, error) {
	if r.remaining() < 1 {
		return 0, ErrTruncated
	}
	return r.buf[r.pos], nil
}

func (r *reader) take(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, ErrTruncated
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Decode parses a complete snapshot file held in buf.
func Decode(buf []byte) (Result, error) {
	if len(buf) < 9 || string(buf[:5]) != "REDIS" {
		return Result{}, ErrBadMagic
	}
	version64, err := strconv.ParseUint(string(buf[5:9]), 10, 32)
	if err != nil {
		return Result{}, errors.Wrap(ErrBadMagic, "unparseable version digits")
	}

	r := &reader{buf: buf, pos: 9}
	res := Result{Version: uint32(version64), Aux: make(map[string]string)}

	for {
		op, err := r.byte()
		if err != nil {
			return Result{}, errors.Wrap(err, "reading section opcode")
		}
		switch op {
		case opEOF:
			return res, nil
		case opAux:
			key, err := decodeString(r)
			if err != nil {
				return Result{}, errors.Wrap(err, "decoding aux key")
			}
			val, err := decodeString(r)
			if err != nil {
				return Result{}, errors.Wrap(err, "decoding aux value")
			}
			res.Aux[key] = val
		case opResizeDB:
			if err := decodeDatabaseBlock(r, &res); err != nil {
				return Result{}, err
			}
		case opSelectDB:
			if _, err := decodeLength(r); err != nil {
				return Result{}, errors.Wrap(err, "decoding select-db index")
			}
		default:
			// Forward-compatible: an unrecognized opcode byte is itself
			// the only thing consumed; no payload is read for it.
		}
	}
}

// decodeDatabaseBlock reads a 0xFB section: two counts (total keys,
// keys-with-expiry), then that many key-value records.
func decodeDatabaseBlock(r *reader, res *Result) error {
	totalKeys, err := decodeLength(r)
	if err != nil {
		return errors.Wrap(err, "decoding db total-keys count")
	}
	keysWithExpiry, err := decodeLength(r)
	if err != nil {
		return errors.Wrap(err, "decoding db keys-with-expiry count")
	}

	observedWithExpiry := 0
	for i := 0; i < totalKeys; i++ {
		entry, err := decodeRecord(r)
		if err != nil {
			return errors.Wrapf(err, "decoding record %d/%d", i+1, totalKeys)
		}
		if entry.ExpiresAtMillis != 0 {
			observedWithExpiry++
		}
		res.Entries = append(res.Entries, entry)
	}
	if observedWithExpiry != keysWithExpiry {
		// A count mismatch is not treated as an error and is not
		// reported: every record was still fully decoded above.
		return nil
	}
	return nil
}

// decodeRecord reads one (optional expiry prefix, value-type, key,
// value) tuple.
func decodeRecord(r *reader) (Entry, error) {
	var expiresAt int64

	tag, err := r.peek()
	if err != nil {
		return Entry{}, err
	}
	switch tag {
	case opExpireMS:
		r.pos++
		b, err := r.take(8)
		if err != nil {
			return Entry{}, errors.Wrap(err, "reading millisecond expiry")
		}
		expiresAt = int64(binary.BigEndian.Uint64(b))
	case opExpireSec:
		r.pos++
		b, err := r.take(4)
		if err != nil {
			return Entry{}, errors.Wrap(err, "reading second expiry")
		}
		expiresAt = int64(binary.BigEndian.Uint32(b)) * 1000
	}

	valueType, err := r.byte()
	if err != nil {
		return Entry{}, errors.Wrap(err, "reading value type")
	}
	if valueType != valueTypeString {
		return Entry{}, errors.Wrapf(ErrUnsupportedValueType, "type tag %d", valueType)
	}

	key, err := decodeString(r)
	if err != nil {
		return Entry{}, errors.Wrap(err, "decoding key")
	}
	value, err := decodeString(r)
	if err != nil {
		return Entry{}, errors.Wrap(err, "decoding value")
	}

	return Entry{Key: key, Value: []byte(value), ExpiresAtMillis: expiresAt}, nil
}

// lengthResult distinguishes a normal length (read that many raw bytes)
// from a special-encoding integer that must be rendered back as a
// decimal string.
type lengthResult struct {
	length       int
	isSpecialInt bool
	specialInt   int64
}

// decodeLength reads a plain length (never the special-integer form)
// and is used wherever the spec calls for a length rather than a
// string, e.g. array/resize counts.
func decodeLength(r *reader) (int, error) {
	lr, err := decodeLengthOrSpecial(r)
	if err != nil {
		return 0, err
	}
	if lr.isSpecialInt {
		return 0, errors.Wrap(ErrBadEncoding, "special-integer encoding not valid where a plain length is required")
	}
	return lr.length, nil
}

// decodeLengthOrSpecial implements the full 4-variant length encoding
// described in the package doc comment.
func decodeLengthOrSpecial(r *reader) (lengthResult, error) {
	first, err := r.byte()
	if err != nil {
		return lengthResult{}, err
	}
	switch first >> 6 {
	case 0b00:
		return lengthResult{length: int(first & 0x3F)}, nil
	case 0b01:
		next, err := r.byte()
		if err != nil {
			return lengthResult{}, err
		}
		return lengthResult{length: (int(first&0x3F) << 8) | int(next)}, nil
	case 0b10:
		// This dialect treats the next single byte as an 8-bit length
		// (resolved per the reference implementation; some dialects
		// instead read a 4-byte big-endian length here).
		next, err := r.byte()
		if err != nil {
			return lengthResult{}, err
		}
		return lengthResult{length: int(next)}, nil
	case 0b11:
		switch first & 0x3F {
		case 0:
			b, err := r.byte()
			if err != nil {
				return lengthResult{}, err
			}
			return lengthResult{isSpecialInt: true, specialInt: int64(int8(b))}, nil
		case 1:
			b, err := r.take(2)
			if err != nil {
				return lengthResult{}, err
			}
			return lengthResult{isSpecialInt: true, specialInt: int64(int16(binary.BigEndian.Uint16(b)))}, nil
		case 2:
			b, err := r.take(4)
			if err != nil {
				return lengthResult{}, err
			}
			return lengthResult{isSpecialInt: true, specialInt: int64(int32(binary.BigEndian.Uint32(b)))}, nil
		default:
			return lengthResult{}, errors.Wrapf(ErrBadEncoding, "special encoding selector %d", first&0x3F)
		}
	}
	return lengthResult{}, fmt.Errorf("snapshot: unreachable length control bits")
}

// decodeString reads a string: either a normal length-prefixed run of
// bytes, or (for the special-integer encodings) an integer rendered
// back as its decimal ASCII representation.
func decodeString(r *reader) (string, error) {
	lr, err := decodeLengthOrSpecial(r)
	if err != nil {
		return "", err
	}
	if lr.isSpecialInt {
		return strconv.FormatInt(lr.specialInt, 10), nil
	}
	b, err := r.take(lr.length)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
