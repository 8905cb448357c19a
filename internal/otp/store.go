package otp

import (
	"context"
	"sync"
	"time"
)

// Op tells a store what to do with a record after an Update callback.
type Op int

const (
	OpKeep Op = iota
	OpPut
	OpDelete
)

// UpdateFunc receives the current record (found is false when absent) and
// returns the record to write together with the operation to apply.
type UpdateFunc func(rec Record, found bool) (Record, Op)

// Store holds per-identifier records keyed by the normalized identifier. It
// applies no business rules; RetainUntil is only an eviction deadline.
type Store interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	Put(ctx context.Context, key string, rec Record) error
	Delete(ctx context.Context, key string) error
	// Update runs fn and applies its result atomically with respect to other
	// Update calls for the same key.
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// MemoryStore is the single-process Store. A record past its RetainUntil is
// never returned; Sweep only reclaims the memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryStore builds an empty in-memory store. now decides when records
// lapse; nil means the wall clock.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{records: make(map[string]Record), now: now}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.load(key)
	return rec, ok, nil
}

// Put stores rec, or drops the key when rec is already past RetainUntil.
func (s *MemoryStore) Put(_ context.Context, key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(key, rec)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, key string, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.load(key)
	next, op := fn(rec, ok)
	switch op {
	case OpPut:
		s.store(key, next)
	case OpDelete:
		delete(s.records, key)
	}
	return nil
}

// load returns the record for key, evicting it if RetainUntil has passed so
// reads match the Redis key expiry without waiting for a sweep.
func (s *MemoryStore) load(key string) (Record, bool) {
	rec, ok := s.records[key]
	if !ok {
		return Record{}, false
	}
	if !rec.RetainUntil.After(s.now()) {
		delete(s.records, key)
		return Record{}, false
	}
	return rec, true
}

func (s *MemoryStore) store(key string, rec Record) {
	if !rec.RetainUntil.After(s.now()) {
		delete(s.records, key)
		return
	}
	s.records[key] = rec
}

// Len returns the number of records currently held, including ones past
// RetainUntil that have not been swept yet.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Sweep evicts records whose RetainUntil is not after now and returns how
// many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.records {
		if !rec.RetainUntil.After(now) {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps every interval until ctx is done.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
