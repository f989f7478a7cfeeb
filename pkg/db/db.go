// Package db implements hatn's transactional storage engine: object
// CRUD, secondary indexes keyed by deterministic binary keys,
// date-partitioned column families, TTL compaction and sweeping, and a
// find/count query engine driven by the AST in pkg/db/query, per
// spec.md §4.3.
//
// Grounded on cuemby-warren/pkg/storage/boltdb.go's "one bucket per
// resource, db.View/db.Update" idiom, generalized from flat JSON-keyed
// buckets into a per-partition (objects, indexes, ttl) bucket family
// with binary order-preserving keys and Cursor-driven range scans.
// go.etcd.io/bbolt stands in for the RocksDB-like column-family engine
// the spec assumes as a backend black box.
package db

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/evgeniums/hatn-sub006/pkg/dataunit"
	"github.com/evgeniums/hatn-sub006/pkg/herr"
	"github.com/evgeniums/hatn-sub006/pkg/log"
	"github.com/evgeniums/hatn-sub006/pkg/metrics"
)

// UpdateMode selects what an Update call returns, per spec.md §4.3.2.
type UpdateMode int

const (
	UpdateNone UpdateMode = iota
	UpdateBefore
	UpdateAfter
)

// DB is a handle onto one bbolt-backed storage engine instance,
// registering Models the way cuemby-warren's BoltStore registers a
// fixed bucket list -- except here the bucket family is created lazily
// per Model, per partition, on first write.
type DB struct {
	bolt *bolt.DB

	mu     sync.RWMutex
	models map[string]*Model

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// Open opens (creating if necessary) a bbolt database file at path.
func Open(path string) (*DB, error) {
	bdb, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, herr.Wrap(herr.Transient, "open storage engine", err)
	}
	return &DB{bolt: bdb, models: make(map[string]*Model)}, nil
}

// Close stops any running TTL sweeper and closes the underlying store.
func (d *DB) Close() error {
	if d.sweepStop != nil {
		close(d.sweepStop)
		<-d.sweepDone
	}
	return d.bolt.Close()
}

// RegisterModel adds model to the engine's schema registry. Must be
// called before any operation referencing model.Name.
func (d *DB) RegisterModel(model *Model) error {
	if model.Name == "" {
		return herr.New(herr.InvalidInput, "model name must not be empty")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.models[model.Name]; exists {
		return herr.New(herr.InvalidInput, fmt.Sprintf("model %q already registered", model.Name))
	}
	for i := range model.Indexes {
		if model.Indexes[i].ID == 0 {
			model.Indexes[i].ID = uint32(i + 1)
		}
	}
	d.models[model.Name] = model
	return nil
}

func (d *DB) model(name string) (*Model, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.models[name]
	if !ok {
		return nil, herr.New(herr.InvalidInput, fmt.Sprintf("unknown model %q", name))
	}
	return m, nil
}

// transaction implements spec.md §4.3.6: if existingTx is non-nil fn
// runs inside it without committing; otherwise a fresh write
// transaction is opened, committed on success and rolled back on
// error, and attempted up to 3 times in total if fn fails with
// herr.Conflict and retryOnConflict is set.
func (d *DB) transaction(existingTx *bolt.Tx, retryOnConflict bool, fn func(tx *bolt.Tx) error) error {
	if existingTx != nil {
		return fn(existingTx)
	}
	const maxAttempts = 3
	var lastErr error
	attempts := 1
	if retryOnConflict {
		attempts = maxAttempts
	}
	for i := 0; i < attempts; i++ {
		lastErr = d.bolt.Update(fn)
		if lastErr == nil || !herr.Is(lastErr, herr.Conflict) {
			return lastErr
		}
	}
	return lastErr
}

func (d *DB) view(fn func(tx *bolt.Tx) error) error {
	return d.bolt.View(fn)
}

// StartTTLSweeper launches a background goroutine that walks the TTL
// index of every model with a TTLField, in each of its partitions,
// every interval, deleting expired
// objects proactively (spec.md §4.3.5's second enforcement mechanism,
// complementing the compaction-filter-style check every Read performs).
func (d *DB) StartTTLSweeper(interval time.Duration) {
	if d.sweepStop != nil {
		return
	}
	d.sweepStop = make(chan struct{})
	d.sweepDone = make(chan struct{})
	go func() {
		defer close(d.sweepDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-d.sweepStop:
				return
			case <-ticker.C:
				d.sweepOnce()
			}
		}
	}()
}

// SweepTTLOnce runs one synchronous TTL sweep pass over every registered
// model, without waiting for StartTTLSweeper's ticker. Exposed for
// callers (and tests) that need deterministic control over when expired
// objects get reaped.
func (d *DB) SweepTTLOnce() error {
	for _, m := range d.ttlModels() {
		if err := d.sweepModel(m); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) ttlModels() []*Model {
	d.mu.RLock()
	defer d.mu.RUnlock()
	models := make([]*Model, 0, len(d.models))
	for _, m := range d.models {
		if m.TTLField != 0 {
			models = append(models, m)
		}
	}
	return models
}

func (d *DB) sweepOnce() {
	for _, m := range d.ttlModels() {
		if err := d.sweepModel(m); err != nil {
			log.Errorf(fmt.Sprintf("ttl sweep model=%s", m.Name), err)
		}
	}
}

// sweepModel walks model's TTL index in every partition and, for each
// entry whose expiry has passed, deletes the object's index keys, its
// TTL entry, and the object key itself -- the same three deletions
// (*DB).Delete performs, per spec.md §4.3.2's Delete contract which
// §4.3.5 requires the sweeper to honor too.
func (d *DB) sweepModel(model *Model) error {
	return d.bolt.Update(func(tx *bolt.Tx) error {
		now := time.Now()
		for _, partition := range listPartitions(tx, model, false) {
			part := partitionBucket(tx, model, partition)
			if part == nil {
				continue
			}
			ttlB := part.Bucket(bucketTTL)
			objB := part.Bucket(bucketObjects)
			idxB := part.Bucket(bucketIndexes)
			if ttlB == nil || objB == nil {
				continue
			}
			c := ttlB.Cursor()
			var ttlKeys, objKeys [][]byte
			for k, v := c.First(); k != nil; k, v = c.Next() {
				expirySec := int64(binary.BigEndian.Uint32(k[:4]))
				if expirySec > now.Unix() {
					break
				}
				ttlKeys = append(ttlKeys, append([]byte(nil), k...))
				objKeys = append(objKeys, append([]byte(nil), v...))
			}
			for i, objKey := range objKeys {
				if raw := objB.Get(objKey); raw != nil {
					if _, body, ok := decodeTTLMark(raw); ok && idxB != nil {
						if obj, err := dataunit.Unmarshal(model.Name, body); err == nil {
							id, hasID := ObjectIDOf(obj)
							topic := topicFromObjectKey(objKey)
							for _, idx := range model.Indexes {
								if hasID {
									idxB.Delete(indexKey(model, topic, idx, obj, id))
								}
							}
						}
					}
					objB.Delete(objKey)
				}
				ttlB.Delete(ttlKeys[i])
				metrics.TTLExpiredTotal.WithLabelValues(model.Name, partition).Inc()
			}
		}
		return nil
	})
}
