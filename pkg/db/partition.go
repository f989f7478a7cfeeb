package db

import (
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/evgeniums/hatn-sub006/pkg/daterange"
)

const defaultPartitionName = "default"

var (
	bucketObjects = []byte("objects")
	bucketIndexes = []byte("indexes")
	bucketTTL     = []byte("ttl")
)

// partitionName returns the bucket name identifying the partition that
// owns t, per spec.md §4.3.3's "named by their DateRange serialization"
// rule. Non-partitioned models always use defaultPartitionName.
func partitionName(model *Model, t time.Time) string {
	if !model.Partitioned {
		return defaultPartitionName
	}
	dr := daterange.New(t, model.PartitionType)
	return fmt.Sprintf("%d", dr.Value())
}

// ensurePartitionBuckets creates (idempotently) the objects/indexes/ttl
// bucket family for the named partition under model's top-level bucket.
func ensurePartitionBuckets(tx *bolt.Tx, model *Model, partition string) (*bolt.Bucket, error) {
	top, err := tx.CreateBucketIfNotExists([]byte(model.Name))
	if err != nil {
		return nil, err
	}
	part, err := top.CreateBucketIfNotExists([]byte(partition))
	if err != nil {
		return nil, err
	}
	if _, err := part.CreateBucketIfNotExists(bucketObjects); err != nil {
		return nil, err
	}
	if _, err := part.CreateBucketIfNotExists(bucketIndexes); err != nil {
		return nil, err
	}
	if _, err := part.CreateBucketIfNotExists(bucketTTL); err != nil {
		return nil, err
	}
	return part, nil
}

// partitionBucket looks up an existing partition's bucket family without
// creating it, for read paths that must not materialize empty partitions.
func partitionBucket(tx *bolt.Tx, model *Model, partition string) *bolt.Bucket {
	top := tx.Bucket([]byte(model.Name))
	if top == nil {
		return nil
	}
	return top.Bucket([]byte(partition))
}

// listPartitions returns every partition bucket name registered for
// model, ordered ascending or descending by the embedded DateRange
// value (defaultPartitionName sorts as itself, for non-partitioned
// models there is always exactly one).
func listPartitions(tx *bolt.Tx, model *Model, descending bool) []string {
	top := tx.Bucket([]byte(model.Name))
	if top == nil {
		return nil
	}
	var names []string
	c := top.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if v == nil {
			names = append(names, string(k))
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if descending {
			return names[i] > names[j]
		}
		return names[i] < names[j]
	})
	return names
}
