package cache

import (
	"context"
	"sync"
	"time"

	"github.com/meterpay/backend/internal/domain/shared"
)

// MemoryDeliveryStore is a process-local delivery store for single-instance
// deployments and tests. Expired keys are dropped on access and by a periodic
// sweep.
type MemoryDeliveryStore struct {
	mu        sync.Mutex
	expiry    map[string]time.Time
	now       func() time.Time
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// MemoryStoreOption configures a MemoryDeliveryStore
type MemoryStoreOption func(*MemoryDeliveryStore)

// WithClock overrides time.Now
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryDeliveryStore) {
		s.now = now
	}
}

// NewMemoryDeliveryStore creates a store that sweeps expired keys every
// sweepInterval. A non-positive interval disables the sweep.
func NewMemoryDeliveryStore(sweepInterval time.Duration, opts ...MemoryStoreOption) *MemoryDeliveryStore {
	s := &MemoryDeliveryStore{
		expiry: make(map[string]time.Time),
		now:    time.Now,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if sweepInterval > 0 {
		go s.sweepLoop(sweepInterval)
	} else {
		close(s.done)
	}
	return s
}

// MarkProcessed records eventID for ttl. It returns false when the delivery
// was already recorded and has not expired.
func (s *MemoryDeliveryStore) MarkProcessed(_ context.Context, eventID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.expiry[eventID]; ok && now.Before(exp) {
		return false, nil
	}
	s.expiry[eventID] = now.Add(ttl)
	return true, nil
}

// IsProcessed reports whether eventID was recorded and has not expired
func (s *MemoryDeliveryStore) IsProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.expiry[eventID]
	if !ok {
		return false, nil
	}
	if !s.now().Before(exp) {
		delete(s.expiry, eventID)
		return false, nil
	}
	return true, nil
}

// Len returns the number of keys currently held, expired or not
func (s *MemoryDeliveryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expiry)
}

// Close stops the sweep. Safe to call more than once.
func (s *MemoryDeliveryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
	return nil
}

func (s *MemoryDeliveryStore) sweepLoop(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryDeliveryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, exp := range s.expiry {
		if !now.Before(exp) {
			delete(s.expiry, id)
		}
	}
}

var _ shared.IdempotencyStore = (*MemoryDeliveryStore)(nil)
