package memory

import (
	"context"
	"sync"
	"time"

	"zedflip/internal/app/middleware"
)

// IdempotencyStore remembers command results for replay. Entries older than
// the TTL are treated as absent and pruned on the next save, mirroring the
// TTL index of the Mongo store.
type IdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	results map[string]middleware.IdempotencyRecord
}

// NewIdempotencyStore keeps results for ttl; zero keeps them forever.
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		ttl:     ttl,
		now:     time.Now,
		results: make(map[string]middleware.IdempotencyRecord),
	}
}

func (s *IdempotencyStore) Get(_ context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.results[key]
	if !ok || s.expired(rec) {
		return middleware.IdempotencyRecord{}, false, nil
	}
	return rec, true, nil
}

func (s *IdempotencyStore) Save(_ context.Context, rec middleware.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, existing := range s.results {
		if s.expired(existing) {
			delete(s.results, key)
		}
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = s.now().UTC()
	}
	s.results[rec.Key] = rec
	return nil
}

func (s *IdempotencyStore) expired(rec middleware.IdempotencyRecord) bool {
	return s.ttl > 0 && s.now().Sub(rec.OccurredAt) > s.ttl
}

var _ middleware.IdempotencyStore = (*IdempotencyStore)(nil)
