package db

import (
	"time"

	"github.com/evgeniums/hatn-sub006/pkg/dataunit"
	"github.com/evgeniums/hatn-sub006/pkg/objectid"
)

// NewObject starts a fresh object with a new ObjectId and created_at/
// updated_at both set to now, ready for caller-supplied fields to be
// added with (*dataunit.Unit).Set*.
func NewObject(name string) *dataunit.Unit {
	u := dataunit.New(name)
	now := time.Now()
	SetObjectID(u, objectid.New())
	setMillis(u, FieldCreatedAt, now)
	setMillis(u, FieldUpdatedAt, now)
	return u
}

// SetObjectID installs the object's _id field.
func SetObjectID(u *dataunit.Unit, id objectid.ObjectID) {
	u.SetBytes(FieldID, id.Bytes())
}

// ObjectIDOf extracts the object's _id field.
func ObjectIDOf(u *dataunit.Unit) (objectid.ObjectID, bool) {
	f, ok := u.Get(FieldID)
	if !ok || f.Kind != dataunit.KindBytes {
		return objectid.Nil, false
	}
	id, err := objectid.FromBytes(f.Bytes)
	if err != nil {
		return objectid.Nil, false
	}
	return id, true
}

// CreatedAt and UpdatedAt read the mandatory timestamp fields.
func CreatedAt(u *dataunit.Unit) (time.Time, bool) { return getMillis(u, FieldCreatedAt) }
func UpdatedAt(u *dataunit.Unit) (time.Time, bool) { return getMillis(u, FieldUpdatedAt) }

// touchUpdatedAt bumps updated_at to now, preserving the
// updated_at >= created_at invariant spec.md §3 requires.
func touchUpdatedAt(u *dataunit.Unit) {
	setMillis(u, FieldUpdatedAt, time.Now())
}

func setMillis(u *dataunit.Unit, field uint32, t time.Time) {
	u.SetInt(field, t.UnixMilli())
}

func getMillis(u *dataunit.Unit, field uint32) (time.Time, bool) {
	f, ok := u.Get(field)
	if !ok || f.Kind != dataunit.KindInt {
		return time.Time{}, false
	}
	return time.UnixMilli(f.Int).UTC(), true
}

// FieldTime is the public accessor used by callers and by index-key
// construction to read a millis-encoded timestamp field, e.g. the TTL
// or date-partition anchor field.
func FieldTime(u *dataunit.Unit, field uint32) (time.Time, bool) {
	return getMillis(u, field)
}

// SetFieldTime sets a millis-encoded timestamp field.
func SetFieldTime(u *dataunit.Unit, field uint32, t time.Time) {
	setMillis(u, field, t)
}
