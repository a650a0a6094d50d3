package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	messageID uuid.UUID
	done      bool
	expiresAt time.Time
}

// MemoryStore is a single-process Store. Every entry carries its own expiry;
// expired entries are ignored on access and dropped by Sweep.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{entries: make(map[string]entry), ttl: ttl, now: time.Now}
}

func (s *MemoryStore) Reserve(_ context.Context, key string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		if !e.done {
			return Result{}, ErrInFlight
		}
		return Result{MessageID: e.messageID}, nil
	}

	s.entries[key] = entry{expiresAt: now.Add(s.ttl)}
	return Result{Reserved: true}, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, messageID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{messageID: messageID, done: true, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Sweep evicts expired entries and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
			n++
		}
	}
	return n
}

// RunJanitor calls Sweep every interval until ctx is done.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
