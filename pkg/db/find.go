package db

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/evgeniums/hatn-sub006/pkg/daterange"
	"github.com/evgeniums/hatn-sub006/pkg/dataunit"
	"github.com/evgeniums/hatn-sub006/pkg/db/query"
	"github.com/evgeniums/hatn-sub006/pkg/herr"
	"github.com/evgeniums/hatn-sub006/pkg/keyenc"
	"github.com/evgeniums/hatn-sub006/pkg/objectid"
)

// Find executes q against its target model/index, per spec.md §4.3.4: a
// single read-only bbolt transaction provides snapshot isolation across
// every partition and topic the query touches.
func (d *DB) Find(q *query.Query) ([]*dataunit.Unit, error) {
	model, idx, conds, err := d.resolveQuery(q)
	if err != nil {
		return nil, err
	}

	var results []*dataunit.Unit
	err = d.view(func(tx *bolt.Tx) error {
		now := time.Now()
		return d.walk(tx, model, idx, conds, q, func(objB *bolt.Bucket, objKey []byte) (bool, error) {
			raw := objB.Get(objKey)
			if raw == nil {
				return true, nil
			}
			mark, body, valid := decodeTTLMark(raw)
			if !valid || mark.isExpired(now) {
				return true, nil
			}
			obj, err := dataunit.Unmarshal(model.Name, body)
			if err != nil {
				return false, herr.Wrap(herr.Fatal, "deserialize query result", err)
			}
			results = append(results, obj)
			return q.Limit <= 0 || len(results) < q.Limit, nil
		})
	})
	return results, err
}

// Count performs the same traversal as Find but skips deserializing
// object values, per spec.md §4.3.2.
func (d *DB) Count(q *query.Query) (int, error) {
	model, idx, conds, err := d.resolveQuery(q)
	if err != nil {
		return 0, err
	}

	n := 0
	err = d.view(func(tx *bolt.Tx) error {
		now := time.Now()
		return d.walk(tx, model, idx, conds, q, func(objB *bolt.Bucket, objKey []byte) (bool, error) {
			raw := objB.Get(objKey)
			if raw == nil {
				return true, nil
			}
			mark, _, valid := decodeTTLMark(raw)
			if !valid || mark.isExpired(now) {
				return true, nil
			}
			n++
			return q.Limit <= 0 || n < q.Limit, nil
		})
	})
	return n, err
}

func (d *DB) resolveQuery(q *query.Query) (*Model, IndexDef, map[uint32]query.Condition, error) {
	model, err := d.model(q.Model)
	if err != nil {
		return nil, IndexDef{}, nil, err
	}
	idx, ok := model.indexByName(q.Index)
	if !ok {
		return nil, IndexDef{}, nil, herr.New(herr.InvalidInput, "unknown index "+q.Index)
	}
	if len(q.Topics) == 0 {
		return nil, IndexDef{}, nil, herr.New(herr.InvalidInput, "query must specify at least one topic")
	}
	conds := make(map[uint32]query.Condition, len(q.Conditions))
	for _, c := range q.Conditions {
		conds[c.Field] = c
	}
	return model, idx, conds, nil
}

// walk drives the partition/topic/index traversal shared by Find and
// Count; visit returns (keepGoing, err).
func (d *DB) walk(tx *bolt.Tx, model *Model, idx IndexDef, conds map[uint32]query.Condition, q *query.Query, visit func(objB *bolt.Bucket, objKey []byte) (bool, error)) error {
	desc := q.Order == query.Desc
	for _, partition := range listPartitions(tx, model, desc) {
		if !partitionInRange(partition, model, q) {
			continue
		}
		part := partitionBucket(tx, model, partition)
		if part == nil {
			continue
		}
		idxB := part.Bucket(bucketIndexes)
		objB := part.Bucket(bucketObjects)
		for _, topic := range q.Topics {
			objKeys, err := scanIndex(idxB, model, topic, idx, conds, desc)
			if err != nil {
				return err
			}
			for _, objKey := range objKeys {
				keepGoing, err := visit(objB, objKey)
				if err != nil {
					return err
				}
				if !keepGoing {
					return nil
				}
			}
		}
	}
	return nil
}

func partitionInRange(partition string, model *Model, q *query.Query) bool {
	if !model.Partitioned || partition == defaultPartitionName {
		return true
	}
	if q.DateFrom == nil && q.DateTo == nil {
		return true
	}
	val, err := strconv.ParseUint(partition, 10, 32)
	if err != nil {
		return true
	}
	dr := daterange.FromValue(uint32(val))
	if q.DateFrom != nil && dr.End().Unix() < *q.DateFrom {
		return false
	}
	if q.DateTo != nil && dr.Begin().Unix() > *q.DateTo {
		return false
	}
	return true
}

// scanIndex returns, in the order visited, the object keys stored under
// matching index entries. The leading run of Eq conditions (in the
// index's declared field order) accelerates the scan into a prefix
// seek; anything after that degenerates into a decode-and-filter pass
// over a wider scan, per spec.md §4.3.4's edge-case rules.
func scanIndex(idxB *bolt.Bucket, model *Model, topic string, idx IndexDef, conds map[uint32]query.Condition, desc bool) ([][]byte, error) {
	eqPrefix := indexKeyPrefix(model, topic, idx)
	stopIdx := 0
	for _, fieldNum := range idx.Fields {
		c, ok := conds[fieldNum]
		if !ok || c.Op != query.Eq {
			break
		}
		f, err := conditionField(fieldNum, c.Value)
		if err != nil {
			return nil, err
		}
		eqPrefix = appendFieldValue(eqPrefix, f, model.isDateTimeField(fieldNum))
		stopIdx++
	}

	hasIn := false
	var inValues []any
	if stopIdx < len(idx.Fields) {
		if c, ok := conds[idx.Fields[stopIdx]]; ok && c.Op == query.In {
			hasIn = true
			inValues = append([]any(nil), c.Values...)
			sort.Slice(inValues, func(i, j int) bool {
				return fmt.Sprint(inValues[i]) < fmt.Sprint(inValues[j])
			})
		}
	}

	var objKeys [][]byte
	scanOne := func(prefix []byte, filterFrom int) error {
		c := idxB.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			rest := k[len(prefix):]
			ok, err := matchesRemaining(idx, filterFrom, conds, rest)
			if err != nil {
				return err
			}
			if ok {
				objKeys = append(objKeys, append([]byte(nil), v...))
			}
		}
		return nil
	}

	if hasIn {
		for _, val := range inValues {
			f, err := conditionField(idx.Fields[stopIdx], val)
			if err != nil {
				return nil, err
			}
			sub := appendFieldValue(append([]byte(nil), eqPrefix...), f, model.isDateTimeField(idx.Fields[stopIdx]))
			if err := scanOne(sub, stopIdx+1); err != nil {
				return nil, err
			}
		}
	} else if err := scanOne(eqPrefix, stopIdx); err != nil {
		return nil, err
	}

	if desc {
		for i, j := 0, len(objKeys)-1; i < j; i, j = i+1, j-1 {
			objKeys[i], objKeys[j] = objKeys[j], objKeys[i]
		}
	}
	return objKeys, nil
}

// matchesRemaining decodes idx.Fields[filterFrom:] out of rest and
// checks each one with a condition against its operator.
func matchesRemaining(idx IndexDef, filterFrom int, conds map[uint32]query.Condition, rest []byte) (bool, error) {
	for i := filterFrom; i < len(idx.Fields); i++ {
		fieldNum := idx.Fields[i]
		dec, next, err := keyenc.Next(rest)
		if err != nil {
			return false, err
		}
		rest = next
		c, ok := conds[fieldNum]
		if !ok {
			continue
		}
		pass, err := evalCondition(dec, c)
		if err != nil {
			return false, err
		}
		if !pass {
			return false, nil
		}
	}
	return true, nil
}

func evalCondition(dec keyenc.Decoded, c query.Condition) (bool, error) {
	switch c.Op {
	case query.In:
		for _, v := range c.Values {
			eq, err := decodedCompare(dec, v)
			if err != nil {
				return false, err
			}
			if eq == 0 {
				return true, nil
			}
		}
		return false, nil
	case query.Neq:
		cmp, err := decodedCompare(dec, c.Value)
		if err != nil {
			return false, err
		}
		return cmp != 0, nil
	case query.Eq:
		cmp, err := decodedCompare(dec, c.Value)
		if err != nil {
			return false, err
		}
		return cmp == 0, nil
	default:
		cmp, err := decodedCompare(dec, c.Value)
		if err != nil {
			return false, err
		}
		switch c.Op {
		case query.Gt:
			return cmp > 0, nil
		case query.Gte:
			return cmp >= 0, nil
		case query.Lt:
			return cmp < 0, nil
		case query.Lte:
			return cmp <= 0, nil
		}
		return false, herr.New(herr.InvalidInput, "unsupported query operator")
	}
}

// decodedCompare orders a keyenc-decoded value against a native Go
// condition value of the matching type, returning -1/0/1.
func decodedCompare(dec keyenc.Decoded, v any) (int, error) {
	switch dec.Type {
	case keyenc.TypeBool:
		b, ok := v.(bool)
		if !ok {
			return 0, herr.New(herr.InvalidInput, "condition value is not a bool")
		}
		if dec.Bool == b {
			return 0, nil
		}
		if !dec.Bool {
			return -1, nil
		}
		return 1, nil
	case keyenc.TypeUint:
		u, err := toUint64(v)
		if err != nil {
			return 0, err
		}
		return compareUint64(dec.Uint, u), nil
	case keyenc.TypeInt:
		n, err := toInt64(v)
		if err != nil {
			return 0, err
		}
		return compareInt64(dec.Int, n), nil
	case keyenc.TypeFloat:
		f, err := toFloat64(v)
		if err != nil {
			return 0, err
		}
		return compareFloat64(dec.Float, f), nil
	case keyenc.TypeString:
		s, ok := v.(string)
		if !ok {
			return 0, herr.New(herr.InvalidInput, "condition value is not a string")
		}
		return strings.Compare(dec.String, s), nil
	case keyenc.TypeDateTime:
		n, err := toInt64(v)
		if err != nil {
			return 0, err
		}
		return compareInt64(dec.Millis, n), nil
	case keyenc.TypeObjectID:
		id, ok := v.(objectid.ObjectID)
		if !ok {
			return 0, herr.New(herr.InvalidInput, "condition value is not an ObjectID")
		}
		return objectid.Compare(dec.OID, id), nil
	default:
		return 0, herr.New(herr.InvalidInput, "unsupported indexed field type")
	}
}

// conditionField converts a native Go condition value into the dataunit
// Field shape appendFieldValue expects, inferring Kind from its Go type.
func conditionField(field uint32, v any) (dataunit.Field, error) {
	switch val := v.(type) {
	case bool:
		return dataunit.Field{Number: field, Kind: dataunit.KindBool, Bool: val}, nil
	case int:
		return dataunit.Field{Number: field, Kind: dataunit.KindInt, Int: int64(val)}, nil
	case int64:
		return dataunit.Field{Number: field, Kind: dataunit.KindInt, Int: val}, nil
	case time.Time:
		return dataunit.Field{Number: field, Kind: dataunit.KindInt, Int: val.UnixMilli()}, nil
	case uint64:
		return dataunit.Field{Number: field, Kind: dataunit.KindUint, Uint: val}, nil
	case float64:
		return dataunit.Field{Number: field, Kind: dataunit.KindFloat, Float: val}, nil
	case string:
		return dataunit.Field{Number: field, Kind: dataunit.KindString, String: val}, nil
	case []byte:
		return dataunit.Field{Number: field, Kind: dataunit.KindBytes, Bytes: val}, nil
	case objectid.ObjectID:
		return dataunit.Field{Number: field, Kind: dataunit.KindBytes, Bytes: val.Bytes()}, nil
	default:
		return dataunit.Field{}, herr.New(herr.InvalidInput, "unsupported condition value type")
	}
}

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int:
		return uint64(n), nil
	case int64:
		return uint64(n), nil
	default:
		return 0, herr.New(herr.InvalidInput, "condition value is not an unsigned integer")
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case time.Time:
		return n.UnixMilli(), nil
	default:
		return 0, herr.New(herr.InvalidInput, "condition value is not an integer")
	}
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	default:
		return 0, herr.New(herr.InvalidInput, "condition value is not a float")
	}
}

func compareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
