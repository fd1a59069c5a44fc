package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"tally/pkg/platform/sentinel"
)

// Store persists published datasets. Latest returns sentinel.ErrNotFound
// when nothing has been saved and sentinel.ErrStale when the stored dataset
// was written by another Version.
type Store interface {
	Save(ctx context.Context, ds *Dataset) error
	Latest(ctx context.Context) (*Dataset, error)
}

// EventPublisher announces published datasets to downstream consumers.
type EventPublisher interface {
	Published(ctx context.Context, ev PublishedEvent) error
}

// MemoryStore keeps the latest dataset in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	latest *Dataset
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, ds *Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = ds
	return nil
}

func (s *MemoryStore) Latest(_ context.Context) (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, sentinel.ErrNotFound
	}
	if s.latest.Version != Version {
		return nil, sentinel.ErrStale
	}
	return s.latest, nil
}

// envelope is decoded first so a stale payload is reported without
// decoding the rest.
type envelope struct {
	Version int `json:"version"`
}

func encode(ds *Dataset) ([]byte, error) {
	raw, err := json.Marshal(ds)
	if err != nil {
		return nil, fmt.Errorf("encode dataset: %w", err)
	}
	return raw, nil
}

func decode(raw []byte) (*Dataset, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode dataset envelope: %w", err)
	}
	if env.Version != Version {
		return nil, fmt.Errorf("dataset version %d: %w", env.Version, sentinel.ErrStale)
	}
	var ds Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &ds, nil
}
