package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/cuemby/rch/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var bucketBuildRecords = []byte("build_records")

// DefaultCapacity bounds the ring when a caller doesn't set one.
const DefaultCapacity = 5000

// BoltStore implements Store on top of a single BoltDB file.
type BoltStore struct {
	db       *bolt.DB
	capacity int
	seq      uint64
}

// NewBoltStore opens (creating if absent) a BoltDB file under dataDir.
func NewBoltStore(dataDir string, capacity int) (*BoltStore, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	dbPath := filepath.Join(dataDir, "rch.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var maxSeq uint64
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketBuildRecords)
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		if k, _ := b.Cursor().Last(); k != nil {
			var seq uint64
			if _, err := fmt.Sscanf(string(k), "%020d", &seq); err == nil {
				maxSeq = seq
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, capacity: capacity, seq: maxSeq}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// AppendBuildRecord implements Store.
func (s *BoltStore) AppendBuildRecord(record *types.BuildRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBuildRecords)

		s.seq++
		key := []byte(fmt.Sprintf("%020d", s.seq))

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal build record: %w", err)
		}
		if err := b.Put(key, data); err != nil {
			return err
		}

		return evictOverCapacity(b, s.capacity)
	})
}

// evictOverCapacity deletes the oldest entries until the bucket holds at
// most capacity records. Must be called inside the same write transaction
// that inserted the newest record.
func evictOverCapacity(b *bolt.Bucket, capacity int) error {
	// Count with a cursor: Bucket.Stats reads committed pages only and so
	// misses the record this transaction just put.
	count := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		count++
	}
	toEvict := count - capacity
	if toEvict <= 0 {
		return nil
	}

	cursor := b.Cursor()
	k, _ := cursor.First()
	for i := 0; i < toEvict && k != nil; i++ {
		if err := b.Delete(k); err != nil {
			return fmt.Errorf("evict old build record: %w", err)
		}
		k, _ = cursor.Next()
	}
	return nil
}

// ListBuildRecords implements Store, returning oldest-first.
func (s *BoltStore) ListBuildRecords(limit int) ([]*types.BuildRecord, error) {
	var records []*types.BuildRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBuildRecords)
		return b.ForEach(func(k, v []byte) error {
			var rec types.BuildRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal build record %s: %w", k, err)
			}
			records = append(records, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].StartedAt.Before(records[j].StartedAt) })

	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

// GetBuildRecord implements Store.
func (s *BoltStore) GetBuildRecord(id string) (*types.BuildRecord, error) {
	var found *types.BuildRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBuildRecords)
		return b.ForEach(func(k, v []byte) error {
			if found != nil {
				return nil
			}
			var rec types.BuildRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal build record %s: %w", k, err)
			}
			if rec.ID == id {
				found = &rec
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("build record not found: %s", id)
	}
	return found, nil
}
