package snapshot

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"tally/internal/platform/metrics"
	"tally/pkg/platform/sentinel"
)

var (
	boltBucket = []byte("snapshots")
	boltLatest = []byte("latest")
)

// BoltStore keeps the latest dataset in a local bbolt file so `serve` can
// start without a database.
type BoltStore struct {
	db      *bolt.DB
	metrics *metrics.Metrics
}

// OpenBolt opens or creates the bbolt file at path.
func OpenBolt(path string, m *metrics.Metrics) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltStore{db: db, metrics: m}, nil
}

func (s *BoltStore) Save(_ context.Context, ds *Dataset) error {
	start := time.Now()
	defer func() { s.metrics.ObserveStore("bolt", "save", time.Since(start)) }()

	raw, err := encode(ds)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put(boltLatest, raw)
	})
}

func (s *BoltStore) Latest(_ context.Context) (*Dataset, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveStore("bolt", "latest", time.Since(start)) }()

	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		// Values are only valid inside the transaction.
		if v := tx.Bucket(boltBucket).Get(boltLatest); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read bolt: %w", err)
	}
	if raw == nil {
		return nil, sentinel.ErrNotFound
	}
	return decode(raw)
}

// Close releases the file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
