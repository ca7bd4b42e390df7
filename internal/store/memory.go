package store

import (
	"context"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/thrillee/smppsim/internal/message"
)

type memoryEntry struct {
	rec     message.Record
	expires time.Time
}

// MemoryStore keeps records in a sharded concurrent map. A zero TTL keeps
// records forever.
type MemoryStore struct {
	items cmap.ConcurrentMap[string, memoryEntry]
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryStore creates an in-process store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		items: cmap.New[memoryEntry](),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (s *MemoryStore) PutOrUpdate(_ context.Context, id string, rec message.Record) bool {
	if id == "" {
		return false
	}
	e := memoryEntry{rec: rec}
	if s.ttl > 0 {
		e.expires = s.now().Add(s.ttl)
	}
	s.items.Set(id, e)
	return true
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (message.Record, bool) {
	e, ok := s.items.Get(id)
	if !ok {
		return message.Record{}, false
	}
	if s.expired(e) {
		s.items.RemoveCb(id, func(_ string, v memoryEntry, exists bool) bool {
			return exists && s.expired(v)
		})
		return message.Record{}, false
	}
	return e.rec, true
}

func (s *MemoryStore) List(_ context.Context, f message.Filter) ([]message.Record, error) {
	out := make([]message.Record, 0, s.items.Count())
	for item := range s.items.IterBuffered() {
		if s.expired(item.Val) {
			continue
		}
		out = append(out, item.Val.rec)
	}
	return f.Apply(out), nil
}

// Evict drops expired records and returns how many were removed.
func (s *MemoryStore) Evict() int {
	removed := 0
	for item := range s.items.IterBuffered() {
		if !s.expired(item.Val) {
			continue
		}
		if s.items.RemoveCb(item.Key, func(_ string, v memoryEntry, exists bool) bool {
			return exists && s.expired(v)
		}) {
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) expired(e memoryEntry) bool {
	return !e.expires.IsZero() && s.now().After(e.expires)
}
