package marketapi

import (
	"context"
	"sync"
	"time"

	"github.com/bricksync/backend/internal/domain/marketplace"
)

// MemoryStateStore keeps QuotaState in process memory behind a mutex. It is
// suitable for tests and single-node deployments; distributed deployments
// must use the Redis store so concurrent instances share one counter.
type MemoryStateStore struct {
	mu      sync.Mutex
	buckets map[string]*marketplace.QuotaState
}

// NewMemoryStateStore creates an empty in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		buckets: make(map[string]*marketplace.QuotaState),
	}
}

// Consume implements marketplace.StateStore. The whole check-then-increment
// runs under one lock, so concurrent callers cannot both take the last slot.
func (s *MemoryStateStore) Consume(_ context.Context, bucket marketplace.Bucket, defaults marketplace.QuotaDefaults, now time.Time) (marketplace.QuotaDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load(bucket, defaults, now)

	if state.WindowExpired(now) {
		state.WindowStart = now
		state.RequestCount = 0
		state.AlertEmitted = false
	}

	if state.RequestCount >= state.Capacity {
		return marketplace.QuotaDecision{
			Granted:   false,
			Remaining: 0,
			ResetAt:   state.ResetAt(),
		}, nil
	}

	state.RequestCount++
	decision := marketplace.QuotaDecision{
		Granted:   true,
		Remaining: state.Capacity - state.RequestCount,
		ResetAt:   state.ResetAt(),
	}

	percentage := float64(state.RequestCount) / float64(state.Capacity)
	if percentage >= state.AlertThreshold && !state.AlertEmitted {
		state.AlertEmitted = true
		decision.Alert = true
	}
	return decision, nil
}

// RecordFailure implements marketplace.StateStore.
func (s *MemoryStateStore) RecordFailure(_ context.Context, bucket marketplace.Bucket, threshold int, cooldown time.Duration, now time.Time) (int, *time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load(bucket, marketplace.QuotaDefaults{}, now)
	state.ConsecutiveFailures++
	if state.ConsecutiveFailures >= threshold {
		openUntil := now.Add(cooldown)
		state.BreakerOpenUntil = &openUntil
	}
	return state.ConsecutiveFailures, state.BreakerOpenUntil, nil
}

// RecordSuccess implements marketplace.StateStore.
func (s *MemoryStateStore) RecordSuccess(_ context.Context, bucket marketplace.Bucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.buckets[bucket.Key()]; ok {
		state.ConsecutiveFailures = 0
		state.BreakerOpenUntil = nil
	}
	return nil
}

// BreakerOpenUntil implements marketplace.StateStore.
func (s *MemoryStateStore) BreakerOpenUntil(_ context.Context, bucket marketplace.Bucket, now time.Time) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.buckets[bucket.Key()]
	if !ok || state.BreakerOpenUntil == nil {
		return nil, nil
	}
	if !now.Before(*state.BreakerOpenUntil) {
		// Expired: the next request is effectively half-open and proceeds.
		return nil, nil
	}
	openUntil := *state.BreakerOpenUntil
	return &openUntil, nil
}

// State returns a copy of the bucket state, for tests and diagnostics.
func (s *MemoryStateStore) State(bucket marketplace.Bucket) (marketplace.QuotaState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.buckets[bucket.Key()]
	if !ok {
		return marketplace.QuotaState{}, false
	}
	return *state, true
}

// load fetches or lazily creates the bucket state. Callers must hold s.mu.
func (s *MemoryStateStore) load(bucket marketplace.Bucket, defaults marketplace.QuotaDefaults, now time.Time) *marketplace.QuotaState {
	key := bucket.Key()
	if state, ok := s.buckets[key]; ok {
		return state
	}
	capacity := defaults.Capacity
	if capacity <= 0 {
		capacity = 1
	}
	window := defaults.Window
	if window <= 0 {
		window = time.Minute
	}
	threshold := defaults.AlertThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}
	state := &marketplace.QuotaState{
		WindowStart:    now,
		Capacity:       capacity,
		WindowDuration: window,
		AlertThreshold: threshold,
	}
	s.buckets[key] = state
	return state
}

var _ marketplace.StateStore = (*MemoryStateStore)(nil)
