package db

import (
	"bytes"
	"encoding/binary"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/evgeniums/hatn-sub006/pkg/dataunit"
	"github.com/evgeniums/hatn-sub006/pkg/keyenc"
	"github.com/evgeniums/hatn-sub006/pkg/objectid"
)

// hasIndexEntry reports whether idxB holds any key under fieldPrefix,
// i.e. whether some object (any object, since fieldPrefix carries no
// objectId) is already posted under these indexed field values. Used
// to enforce IndexDef.Unique now that every entry's key ends in its
// own objectId.
func hasIndexEntry(idxB *bolt.Bucket, fieldPrefix []byte) bool {
	c := idxB.Cursor()
	k, _ := c.Seek(fieldPrefix)
	return k != nil && bytes.HasPrefix(k, fieldPrefix)
}

// objectKey builds modelId(8B) ‖ topic ‖ 0x00 ‖ objectId(12B) per
// spec.md §4.3.1.
func objectKey(model *Model, topic string, id objectid.ObjectID) []byte {
	key := make([]byte, 0, 8+len(topic)+1+objectid.Size)
	var modelID [8]byte
	binary.BigEndian.PutUint64(modelID[:], model.ID)
	key = append(key, modelID[:]...)
	key = append(key, []byte(topic)...)
	key = append(key, 0x00)
	key = append(key, id.Bytes()...)
	return key
}

// topicFromObjectKey recovers the topic segment of a key built by
// objectKey, for callers (the TTL sweeper) that only hold the key bytes.
func topicFromObjectKey(key []byte) string {
	if len(key) < 8+1+objectid.Size {
		return ""
	}
	return string(key[8 : len(key)-1-objectid.Size])
}

// ttlKey builds expirySeconds(u32 BE) ‖ objectId per spec.md §4.3.1.
func ttlKey(expiry time.Time, id objectid.ObjectID) []byte {
	key := make([]byte, 0, 4+objectid.Size)
	var sec [4]byte
	binary.BigEndian.PutUint32(sec[:], uint32(expiry.Unix()))
	key = append(key, sec[:]...)
	key = append(key, id.Bytes()...)
	return key
}

// indexKeyPrefix builds the leading modelId(8B) ‖ topic ‖ 0x00 ‖
// indexId(4B BE) portion of an IndexKey per spec.md §6's grammar,
// shared by both full-key construction and query seeking.
func indexKeyPrefix(model *Model, topic string, idx IndexDef) []byte {
	key := make([]byte, 0, 8+len(topic)+1+4)
	var modelID [8]byte
	binary.BigEndian.PutUint64(modelID[:], model.ID)
	key = append(key, modelID[:]...)
	key = append(key, []byte(topic)...)
	key = append(key, 0x00)
	var idxID [4]byte
	binary.BigEndian.PutUint32(idxID[:], idx.ID)
	key = append(key, idxID[:]...)
	return key
}

// appendFieldValue order-preserving-encodes one dataunit field value
// onto dst, dispatching on the field's dataunit Kind. asDateTime
// reclassifies a KindInt field (the dataunit codec's only millis-
// timestamp representation) as keyenc.TypeDateTime instead of the
// default keyenc.TypeInt, per spec.md §6's grammar.
func appendFieldValue(dst []byte, f dataunit.Field, asDateTime bool) []byte {
	if asDateTime && f.Kind == dataunit.KindInt {
		return keyenc.AppendDateTime(dst, f.Int)
	}
	switch f.Kind {
	case dataunit.KindBool:
		return keyenc.AppendBool(dst, f.Bool)
	case dataunit.KindUint:
		return keyenc.AppendUint(dst, f.Uint)
	case dataunit.KindInt:
		return keyenc.AppendInt(dst, f.Int)
	case dataunit.KindFloat:
		return keyenc.AppendFloat(dst, f.Float)
	case dataunit.KindString:
		return keyenc.AppendString(dst, f.String)
	case dataunit.KindBytes:
		return keyenc.AppendString(dst, string(f.Bytes))
	default:
		return keyenc.AppendString(dst, "")
	}
}

// indexFieldPrefix builds prefix ‖ each indexed field's order-preserving
// encoding for obj under idx, i.e. the full IndexKey minus its trailing
// objectId. Every entry sharing obj's indexed field values shares this
// prefix, which is what a uniqueness check scans for.
func indexFieldPrefix(model *Model, topic string, idx IndexDef, obj *dataunit.Unit) []byte {
	key := indexKeyPrefix(model, topic, idx)
	for _, fieldNum := range idx.Fields {
		f, _ := obj.Get(fieldNum)
		key = appendFieldValue(key, f, model.isDateTimeField(fieldNum))
	}
	return key
}

// indexKey builds the full IndexKey for obj under idx: prefix ‖ each
// indexed field's order-preserving encoding ‖ objectId(12B), per
// spec.md §3/§6. The trailing objectId gives every entry a unique key
// even when two objects share identical indexed field values, which a
// non-unique index (the default) must allow without one overwriting
// the other's posting.
func indexKey(model *Model, topic string, idx IndexDef, obj *dataunit.Unit, id objectid.ObjectID) []byte {
	return append(indexFieldPrefix(model, topic, idx, obj), id.Bytes()...)
}

// TTLMark is the fixed 5-byte trailer appended to every persisted
// object value: expiryUnixSeconds(u32 LE) ‖ flag. flag is always 1 for
// objects with TTL enabled, 0 (with expiry 0) for objects without.
type TTLMark struct {
	Expiry  uint32
	Enabled bool
}

func (m TTLMark) encode() []byte {
	b := make([]byte, 5)
	binary.LittleEndian.PutUint32(b[0:4], m.Expiry)
	if m.Enabled {
		b[4] = 1
	}
	return b
}

func decodeTTLMark(b []byte) (TTLMark, []byte, bool) {
	if len(b) < 5 {
		return TTLMark{}, b, false
	}
	mark := TTLMark{
		Expiry:  binary.LittleEndian.Uint32(b[len(b)-5 : len(b)-1]),
		Enabled: b[len(b)-1] != 0,
	}
	return mark, b[:len(b)-5], true
}

func (m TTLMark) isExpired(now time.Time) bool {
	return m.Enabled && int64(m.Expiry) <= now.Unix()
}
