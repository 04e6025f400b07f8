package eventstore

import (
	"context"
	"sync"
	"time"

	"stallpos/internal/core/entity"
)

// collection keeps encoded payloads so readers never share memory with the store.
type collection struct {
	order []string
	rows  map[string][]byte
}

func newCollection() *collection {
	return &collection{rows: make(map[string][]byte)}
}

func (c *collection) put(id string, payload []byte) {
	if _, ok := c.rows[id]; !ok {
		c.order = append(c.order, id)
	}
	c.rows[id] = payload
}

func (c *collection) remove(id string) {
	if _, ok := c.rows[id]; !ok {
		return
	}
	delete(c.rows, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// MemoryStore keeps everything in process memory. It backs tests and agents
// started without a data file.
type MemoryStore struct {
	mu       sync.RWMutex
	kinds    map[entity.Kind]*collection
	lastSync time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{kinds: make(map[entity.Kind]*collection)}
}

func (s *MemoryStore) coll(kind entity.Kind) *collection {
	c, ok := s.kinds[kind]
	if !ok {
		c = newCollection()
		s.kinds[kind] = c
	}
	return c
}

func (s *MemoryStore) Upsert(_ context.Context, rec entity.Record) error {
	payload, err := Encode(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coll(rec.RecordKind()).put(rec.RecordID(), payload)
	return nil
}

func (s *MemoryStore) GetAll(_ context.Context, kind entity.Kind) ([]entity.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.kinds[kind]
	if !ok {
		return nil, nil
	}
	out := make([]entity.Record, 0, len(c.order))
	for _, id := range c.order {
		rec, err := Decode(kind, c.rows[id])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, kind entity.Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.kinds[kind]; ok {
		c.remove(id)
	}
	return nil
}

func (s *MemoryStore) Replace(_ context.Context, kind entity.Kind, recs []entity.Record) error {
	fresh := newCollection()
	for _, rec := range recs {
		payload, err := Encode(rec)
		if err != nil {
			return err
		}
		fresh.put(rec.RecordID(), payload)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds[kind] = fresh
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = make(map[entity.Kind]*collection)
	s.lastSync = time.Time{}
	return nil
}

func (s *MemoryStore) LastSync(_ context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync, nil
}

func (s *MemoryStore) SetLastSync(_ context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync = at
	return nil
}

func (s *MemoryStore) Close() error { return nil }
