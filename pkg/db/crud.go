package db

import (
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/evgeniums/hatn-sub006/pkg/dataunit"
	"github.com/evgeniums/hatn-sub006/pkg/herr"
	"github.com/evgeniums/hatn-sub006/pkg/metrics"
	"github.com/evgeniums/hatn-sub006/pkg/objectid"
)

// routingTime picks the instant used to choose obj's partition: the
// model's configured PartitionField if set, else the ObjectId's
// embedded creation time, per spec.md §4.3.3.
func routingTime(model *Model, obj *dataunit.Unit, id objectid.ObjectID) time.Time {
	if model.PartitionField != 0 {
		if t, ok := FieldTime(obj, model.PartitionField); ok {
			return t
		}
	}
	return id.Timestamp()
}

// ttlMarkFor computes the TTLMark obj should be stored with, per
// spec.md §4.3.5: expiry = ttlField + ttlSeconds, disabled if the
// model has no TTL field.
func ttlMarkFor(model *Model, obj *dataunit.Unit) TTLMark {
	if model.TTLField == 0 {
		return TTLMark{}
	}
	anchor, ok := FieldTime(obj, model.TTLField)
	if !ok {
		return TTLMark{}
	}
	expiry := anchor.Add(time.Duration(model.TTLSeconds) * time.Second)
	return TTLMark{Expiry: uint32(expiry.Unix()), Enabled: true}
}

func observeOp(model string, op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.StorageOpsTotal.WithLabelValues(model, op, status).Inc()
	metrics.StorageOpDurationSeconds.WithLabelValues(model, op).Observe(time.Since(start).Seconds())
}

// Create persists obj under modelName/topic within a write transaction,
// writing its indexes and TTL entry, per spec.md §4.3.2.
func (d *DB) Create(modelName, topic string, obj *dataunit.Unit, existingTx *bolt.Tx) (objectid.ObjectID, error) {
	start := time.Now()
	model, err := d.model(modelName)
	if err != nil {
		return objectid.Nil, err
	}
	id, ok := ObjectIDOf(obj)
	if !ok {
		return objectid.Nil, herr.New(herr.InvalidInput, "object missing _id; use db.NewObject")
	}

	err = d.transaction(existingTx, false, func(tx *bolt.Tx) error {
		partition := partitionName(model, routingTime(model, obj, id))
		part, err := ensurePartitionBuckets(tx, model, partition)
		if err != nil {
			return herr.Wrap(herr.Transient, "create partition buckets", err)
		}

		for _, idx := range model.Indexes {
			idxB := part.Bucket(bucketIndexes)
			fieldPrefix := indexFieldPrefix(model, topic, idx, obj)
			if idx.Unique && hasIndexEntry(idxB, fieldPrefix) {
				return herr.New(herr.UniqueViolation, "unique index "+idx.Name+" violated")
			}
			key := append(append([]byte(nil), fieldPrefix...), id.Bytes()...)
			if err := idxB.Put(key, objectKey(model, topic, id)); err != nil {
				return herr.Wrap(herr.Transient, "write index entry", err)
			}
		}

		mark := ttlMarkFor(model, obj)
		if mark.Enabled {
			ttlB := part.Bucket(bucketTTL)
			if err := ttlB.Put(ttlKey(time.Unix(int64(mark.Expiry), 0), id), objectKey(model, topic, id)); err != nil {
				return herr.Wrap(herr.Transient, "write ttl entry", err)
			}
		}

		value := append(obj.Marshal(), mark.encode()...)
		objB := part.Bucket(bucketObjects)
		return objB.Put(objectKey(model, topic, id), value)
	})

	observeOp(modelName, "create", start, err)
	if err != nil {
		return objectid.Nil, err
	}
	return id, nil
}

// readAt builds the object key for (model, topic, id, partitionTime),
// fetches it, checks the TTLMark, and deserializes it.
func readAt(tx *bolt.Tx, model *Model, topic string, id objectid.ObjectID, partitionTime time.Time) (*dataunit.Unit, []byte, *bolt.Bucket, error) {
	partition := partitionName(model, partitionTime)
	part := partitionBucket(tx, model, partition)
	if part == nil {
		return nil, nil, nil, herr.New(herr.NotFound, "object not found")
	}
	objB := part.Bucket(bucketObjects)
	key := objectKey(model, topic, id)
	raw := objB.Get(key)
	if raw == nil {
		return nil, nil, nil, herr.New(herr.NotFound, "object not found")
	}
	mark, body, ok := decodeTTLMark(raw)
	if !ok {
		return nil, nil, nil, herr.New(herr.Fatal, "corrupt object value: missing TTLMark")
	}
	if mark.isExpired(time.Now()) {
		return nil, nil, nil, herr.New(herr.Expired, "object expired")
	}
	obj, err := dataunit.Unmarshal(model.Name, body)
	if err != nil {
		return nil, nil, nil, herr.Wrap(herr.Fatal, "deserialize object", err)
	}
	return obj, key, part, nil
}

// Read fetches one object by id. If at is non-nil, it is used to route
// to an explicit partition (spec.md §4.3.3); otherwise the ObjectId's
// embedded timestamp is used.
func (d *DB) Read(modelName, topic string, id objectid.ObjectID, at *time.Time) (*dataunit.Unit, error) {
	start := time.Now()
	model, err := d.model(modelName)
	if err != nil {
		return nil, err
	}
	routeTime := id.Timestamp()
	if at != nil {
		routeTime = *at
	}

	var obj *dataunit.Unit
	err = d.view(func(tx *bolt.Tx) error {
		var rerr error
		obj, _, _, rerr = readAt(tx, model, topic, id, routeTime)
		return rerr
	})
	observeOp(modelName, "read", start, err)
	return obj, err
}

// Update applies mutate to the object in place within a write
// transaction, recomputing and diffing index keys, rewriting the TTL
// entry if the anchor field changed, per spec.md §4.3.2.
func (d *DB) Update(modelName, topic string, id objectid.ObjectID, at *time.Time, mutate func(*dataunit.Unit), mode UpdateMode, existingTx *bolt.Tx) (*dataunit.Unit, error) {
	start := time.Now()
	model, err := d.model(modelName)
	if err != nil {
		return nil, err
	}
	routeTime := id.Timestamp()
	if at != nil {
		routeTime = *at
	}

	var before, after *dataunit.Unit
	err = d.transaction(existingTx, true, func(tx *bolt.Tx) error {
		obj, _, part, rerr := readAt(tx, model, topic, id, routeTime)
		if rerr != nil {
			return rerr
		}
		before = cloneUnit(obj)

		oldMark := ttlMarkFor(model, obj)
		oldIndexKeys := make([][]byte, len(model.Indexes))
		for i, idx := range model.Indexes {
			oldIndexKeys[i] = indexKey(model, topic, idx, obj, id)
		}

		mutate(obj)
		touchUpdatedAt(obj)

		newMark := ttlMarkFor(model, obj)
		idxB := part.Bucket(bucketIndexes)
		for i, idx := range model.Indexes {
			fieldPrefix := indexFieldPrefix(model, topic, idx, obj)
			newKey := append(append([]byte(nil), fieldPrefix...), id.Bytes()...)
			if string(newKey) == string(oldIndexKeys[i]) {
				continue
			}
			if idx.Unique && hasIndexEntry(idxB, fieldPrefix) {
				return herr.New(herr.UniqueViolation, "unique index "+idx.Name+" violated")
			}
			if err := idxB.Delete(oldIndexKeys[i]); err != nil {
				return herr.Wrap(herr.Transient, "delete stale index entry", err)
			}
			if err := idxB.Put(newKey, objectKey(model, topic, id)); err != nil {
				return herr.Wrap(herr.Transient, "write index entry", err)
			}
		}

		if oldMark.Expiry != newMark.Expiry || oldMark.Enabled != newMark.Enabled {
			ttlB := part.Bucket(bucketTTL)
			if oldMark.Enabled {
				ttlB.Delete(ttlKey(time.Unix(int64(oldMark.Expiry), 0), id))
			}
			if newMark.Enabled {
				if err := ttlB.Put(ttlKey(time.Unix(int64(newMark.Expiry), 0), id), objectKey(model, topic, id)); err != nil {
					return herr.Wrap(herr.Transient, "write ttl entry", err)
				}
			}
		}

		value := append(obj.Marshal(), newMark.encode()...)
		objB := part.Bucket(bucketObjects)
		if err := objB.Put(objectKey(model, topic, id), value); err != nil {
			return herr.Wrap(herr.Transient, "rewrite object value", err)
		}
		after = obj
		return nil
	})

	observeOp(modelName, "update", start, err)
	if err != nil {
		return nil, err
	}
	switch mode {
	case UpdateBefore:
		return before, nil
	case UpdateAfter:
		return after, nil
	default:
		return nil, nil
	}
}

// Delete removes the object and all of its index/TTL entries within a
// write transaction, per spec.md §4.3.2.
func (d *DB) Delete(modelName, topic string, id objectid.ObjectID, at *time.Time, existingTx *bolt.Tx) error {
	start := time.Now()
	model, err := d.model(modelName)
	if err != nil {
		return err
	}
	routeTime := id.Timestamp()
	if at != nil {
		routeTime = *at
	}

	err = d.transaction(existingTx, true, func(tx *bolt.Tx) error {
		obj, key, part, rerr := readAt(tx, model, topic, id, routeTime)
		if rerr != nil {
			return rerr
		}
		idxB := part.Bucket(bucketIndexes)
		for _, idx := range model.Indexes {
			if err := idxB.Delete(indexKey(model, topic, idx, obj, id)); err != nil {
				return herr.Wrap(herr.Transient, "delete index entry", err)
			}
		}
		mark := ttlMarkFor(model, obj)
		if mark.Enabled {
			ttlB := part.Bucket(bucketTTL)
			ttlB.Delete(ttlKey(time.Unix(int64(mark.Expiry), 0), id))
		}
		objB := part.Bucket(bucketObjects)
		return objB.Delete(key)
	})

	observeOp(modelName, "delete", start, err)
	return err
}

func cloneUnit(u *dataunit.Unit) *dataunit.Unit {
	clone := dataunit.New(u.Name)
	clone.Fields = append([]dataunit.Field(nil), u.Fields...)
	return clone
}
