// Package objectid implements hatn's 96-bit Object identifier:
// 32-bit seconds-since-epoch (big-endian) || 24-bit random || 40-bit
// counter, as specified in spec.md §3's Object data model. The leading
// timestamp gives every object a coarse creation time that seeds
// date-partition routing in pkg/db.
package objectid

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Size is the fixed byte length of an ObjectID.
const Size = 12

// ObjectID is hatn's 96-bit object identifier.
type ObjectID [Size]byte

// Nil is the zero-value ObjectID, never produced by New.
var Nil ObjectID

var counter uint64

func init() {
	seed := uuid.New()
	atomic.StoreUint64(&counter, binary.BigEndian.Uint64(seed[8:16])&0xFFFFFFFFFF)
}

// New allocates a fresh ObjectID with the current wall-clock time.
func New() ObjectID {
	return NewAt(time.Now())
}

// NewAt allocates a fresh ObjectID whose embedded timestamp is ts,
// truncated to seconds. Used by tests that need deterministic
// date-partition routing.
func NewAt(ts time.Time) ObjectID {
	var id ObjectID
	binary.BigEndian.PutUint32(id[0:4], uint32(ts.Unix()))

	r := uuid.New()
	copy(id[4:7], r[0:3])

	c := atomic.AddUint64(&counter, 1) & 0xFFFFFFFFFF
	var cb [8]byte
	binary.BigEndian.PutUint64(cb[:], c)
	copy(id[7:12], cb[3:8])

	return id
}

// FromBytes copies b into an ObjectID. b must be exactly Size bytes.
func FromBytes(b []byte) (ObjectID, error) {
	var id ObjectID
	if len(b) != Size {
		return id, fmt.Errorf("objectid: expected %d bytes, got %d", Size, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Bytes returns the raw 12-byte representation.
func (id ObjectID) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, id[:])
	return b
}

// Timestamp returns the coarse creation time embedded in the ObjectID.
func (id ObjectID) Timestamp() time.Time {
	sec := binary.BigEndian.Uint32(id[0:4])
	return time.Unix(int64(sec), 0).UTC()
}

// IsNil reports whether id is the zero value.
func (id ObjectID) IsNil() bool {
	return id == Nil
}

// String returns the hex encoding of the ObjectID.
func (id ObjectID) String() string {
	return hex.EncodeToString(id[:])
}

// Parse decodes the hex string produced by String.
func Parse(s string) (ObjectID, error) {
	var id ObjectID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("objectid: %w", err)
	}
	return FromBytes(b)
}

// Compare orders two ObjectIDs byte-lexicographically, which also orders
// them by creation time since the timestamp is the leading field.
func Compare(a, b ObjectID) int {
	for i := 0; i < Size; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// MarshalText implements encoding.TextMarshaler for JSON round-tripping
// in the bridge dispatcher.
func (id ObjectID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ObjectID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
