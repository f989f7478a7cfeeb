package db

import "github.com/evgeniums/hatn-sub006/pkg/daterange"

// Reserved dataunit field numbers every object carries, per spec.md §3's
// Object data model. Model-specific fields start at FirstUserField.
const (
	FieldID        uint32 = 1
	FieldCreatedAt uint32 = 2
	FieldUpdatedAt uint32 = 3

	FirstUserField uint32 = 10
)

// IndexDef describes one secondary index on a Model: an ordered list of
// dataunit field numbers forming the index's composite key, per
// spec.md §3's IndexKey.
//
// ID is the 4-byte big-endian indexId embedded in every IndexKey per
// spec.md §6's grammar; it is assigned automatically by RegisterModel
// (1-based, in declaration order) unless set explicitly beforehand.
type IndexDef struct {
	ID         uint32
	Name       string
	Fields     []uint32
	Unique     bool
	TTLSeconds uint32
}

// Model is the compile-time schema description of spec.md §3: a
// collection name, its secondary indexes, and optional date-partition
// and TTL configuration.
type Model struct {
	// ID is the 8-byte model identifier embedded in every object key.
	ID   uint64
	Name string

	Indexes []IndexDef

	// Partitioned selects date-partitioned storage; PartitionType and
	// PartitionField (a dataunit field number holding a millis
	// timestamp) determine how objects route to partitions. When
	// PartitionField is 0, the ObjectId's embedded creation time is
	// used instead.
	Partitioned    bool
	PartitionType  daterange.Type
	PartitionField uint32

	// TTLField is the dataunit field number of the TTL anchor
	// (a millis timestamp); TTLSeconds is the offset added to it.
	// TTLField == 0 disables TTL for this model.
	TTLField   uint32
	TTLSeconds uint32

	// DateTimeFields lists additional dataunit field numbers (beyond
	// TTLField, PartitionField, and the mandatory created_at/updated_at
	// pair, which are always treated as datetime) that hold millis
	// timestamps, so index-key construction encodes them with
	// keyenc.TypeDateTime instead of the plain TypeInt a KindInt field
	// gets by default, per spec.md §6's grammar.
	DateTimeFields []uint32
}

func (m *Model) indexByName(name string) (IndexDef, bool) {
	for _, idx := range m.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return IndexDef{}, false
}

// isDateTimeField reports whether field holds a millis timestamp that
// must be index-key-encoded as keyenc.TypeDateTime rather than
// keyenc.TypeInt.
func (m *Model) isDateTimeField(field uint32) bool {
	switch field {
	case FieldCreatedAt, FieldUpdatedAt, m.TTLField, m.PartitionField:
		return field != 0
	}
	for _, f := range m.DateTimeFields {
		if f == field {
			return true
		}
	}
	return false
}
