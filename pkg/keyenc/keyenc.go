// Package keyenc implements the order-preserving field encodings used to
// build binary-sortable secondary-index keys, per spec.md §6's bit-exact
// grammar:
//
//	fieldEnc  = encType(1B) encBytes
//	encType   : 0x01 bool | 0x02 uint | 0x03 int (ZigZag prefix-stable)
//	          | 0x04 float64 (IEEE754, sign-flipped for order)
//	          | 0x05 string utf-8 terminated by 0x00 and 0x00-escaped
//	          | 0x06 datetime (unix millis, big-endian)
//	          | 0x07 objectId
//
// This grammar is spec-defined rather than derived from any example
// repository, so it is implemented with the standard library only.
package keyenc

import (
	"encoding/binary"
	"math"

	"github.com/evgeniums/hatn-sub006/pkg/objectid"
)

// EncType tags the type of an encoded field, per §6.
type EncType byte

const (
	TypeBool     EncType = 0x01
	TypeUint     EncType = 0x02
	TypeInt      EncType = 0x03
	TypeFloat    EncType = 0x04
	TypeString   EncType = 0x05
	TypeDateTime EncType = 0x06
	TypeObjectID EncType = 0x07
)

// AppendBool appends a order-preserving bool field encoding to dst.
func AppendBool(dst []byte, v bool) []byte {
	dst = append(dst, byte(TypeBool))
	if v {
		return append(dst, 1)
	}
	return append(dst, 0)
}

// AppendUint appends a big-endian uint64, which is already
// lexicographically ordered.
func AppendUint(dst []byte, v uint64) []byte {
	dst = append(dst, byte(TypeUint))
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// AppendInt appends a signed integer with its sign bit XOR'd so that
// two's-complement ordering becomes lexicographic ordering (spec §6:
// "ZigZag prefix-stable").
func AppendInt(dst []byte, v int64) []byte {
	dst = append(dst, byte(TypeInt))
	u := uint64(v) ^ (1 << 63)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], u)
	return append(dst, b[:]...)
}

// AppendFloat appends an IEEE754 float64 with its bit pattern flipped so
// that the big-endian byte order matches numeric order: for positive
// numbers flip only the sign bit, for negative numbers flip every bit.
func AppendFloat(dst []byte, v float64) []byte {
	dst = append(dst, byte(TypeFloat))
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], bits)
	return append(dst, b[:]...)
}

// AppendString appends a UTF-8 string, 0x00-escaping any literal 0x00
// byte in the content (as 0x00 0xFF) and terminating with an
// unescaped 0x00, so that prefix comparisons of the escaped bytes still
// match lexicographic comparison of the original strings.
func AppendString(dst []byte, v string) []byte {
	dst = append(dst, byte(TypeString))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == 0x00 {
			dst = append(dst, 0x00, 0xFF)
			continue
		}
		dst = append(dst, c)
	}
	return append(dst, 0x00)
}

// AppendDateTime appends a datetime as big-endian unix-millisecond
// offset from the epoch, shifted into unsigned range so negative
// (pre-1970) instants still sort correctly.
func AppendDateTime(dst []byte, unixMillis int64) []byte {
	dst = append(dst, byte(TypeDateTime))
	u := uint64(unixMillis) ^ (1 << 63)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], u)
	return append(dst, b[:]...)
}

// AppendObjectID appends a raw 12-byte ObjectID, which is already
// lexicographically ordered by creation time.
func AppendObjectID(dst []byte, id objectid.ObjectID) []byte {
	dst = append(dst, byte(TypeObjectID))
	return append(dst, id.Bytes()...)
}

// Decoded is one decoded field extracted by Next.
type Decoded struct {
	Type   EncType
	Bool   bool
	Uint   uint64
	Int    int64
	Float  float64
	String string
	Millis int64
	OID    objectid.ObjectID
}

// Next decodes one field starting at src[0] and returns the decoded
// value plus the remaining, unconsumed slice.
func Next(src []byte) (Decoded, []byte, error) {
	var d Decoded
	if len(src) == 0 {
		return d, nil, errShort
	}
	d.Type = EncType(src[0])
	rest := src[1:]
	switch d.Type {
	case TypeBool:
		if len(rest) < 1 {
			return d, nil, errShort
		}
		d.Bool = rest[0] != 0
		return d, rest[1:], nil
	case TypeUint:
		if len(rest) < 8 {
			return d, nil, errShort
		}
		d.Uint = binary.BigEndian.Uint64(rest[:8])
		return d, rest[8:], nil
	case TypeInt:
		if len(rest) < 8 {
			return d, nil, errShort
		}
		u := binary.BigEndian.Uint64(rest[:8])
		d.Int = int64(u ^ (1 << 63))
		return d, rest[8:], nil
	case TypeFloat:
		if len(rest) < 8 {
			return d, nil, errShort
		}
		bits := binary.BigEndian.Uint64(rest[:8])
		if bits&(1<<63) != 0 {
			bits &^= 1 << 63
		} else {
			bits = ^bits
		}
		d.Float = math.Float64frombits(bits)
		return d, rest[8:], nil
	case TypeString:
		var out []byte
		i := 0
		for i < len(rest) {
			if rest[i] == 0x00 {
				if i+1 < len(rest) && rest[i+1] == 0xFF {
					out = append(out, 0x00)
					i += 2
					continue
				}
				d.String = string(out)
				return d, rest[i+1:], nil
			}
			out = append(out, rest[i])
			i++
		}
		return d, nil, errShort
	case TypeDateTime:
		if len(rest) < 8 {
			return d, nil, errShort
		}
		u := binary.BigEndian.Uint64(rest[:8])
		d.Millis = int64(u ^ (1 << 63))
		return d, rest[8:], nil
	case TypeObjectID:
		if len(rest) < objectid.Size {
			return d, nil, errShort
		}
		oid, err := objectid.FromBytes(rest[:objectid.Size])
		if err != nil {
			return d, nil, err
		}
		d.OID = oid
		return d, rest[objectid.Size:], nil
	default:
		return d, nil, errUnknownType
	}
}
