package marketapi

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bricksync/backend/internal/domain/marketplace"
)

const (
	// DefaultBreakerThreshold is the consecutive-failure count that opens
	// the breaker.
	DefaultBreakerThreshold = 5
	// DefaultBreakerCooldown is how long an opened breaker rejects calls.
	DefaultBreakerCooldown = 5 * time.Minute
)

// CircuitBreaker rejects calls for a bucket after repeated failures, without
// reaching the network. State is shared through the same durable store as the
// quota counters. The first request after the cooldown passes through
// (half-open) and its outcome decides whether the breaker re-opens.
type CircuitBreaker struct {
	store     marketplace.StateStore
	threshold int
	cooldown  time.Duration
	metrics   marketplace.MetricsSink
	logger    *zap.Logger
	clock     func() time.Time
}

// NewCircuitBreaker creates a breaker. Non-positive threshold or cooldown
// fall back to the defaults (5 failures, 5 minutes).
func NewCircuitBreaker(store marketplace.StateStore, threshold int, cooldown time.Duration, metrics marketplace.MetricsSink, logger *zap.Logger) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultBreakerCooldown
	}
	return &CircuitBreaker{
		store:     store,
		threshold: threshold,
		cooldown:  cooldown,
		metrics:   metrics,
		logger:    logger,
		clock:     time.Now,
	}
}

// Allow returns nil when the bucket may attempt a request, or the instant the
// breaker re-closes when it is open.
func (b *CircuitBreaker) Allow(ctx context.Context, bucket marketplace.Bucket) (*time.Time, error) {
	return b.store.BreakerOpenUntil(ctx, bucket, b.clock())
}

// OnSuccess resets the failure count and closes the breaker.
func (b *CircuitBreaker) OnSuccess(ctx context.Context, bucket marketplace.Bucket) error {
	return b.store.RecordSuccess(ctx, bucket)
}

// OnFailure records a failed attempt that reached the provider. When the
// consecutive-failure threshold is hit the breaker opens for the cooldown.
func (b *CircuitBreaker) OnFailure(ctx context.Context, bucket marketplace.Bucket) error {
	failures, openUntil, err := b.store.RecordFailure(ctx, bucket, b.threshold, b.cooldown, b.clock())
	if err != nil {
		return err
	}
	if openUntil != nil && failures == b.threshold {
		b.logger.Warn("circuit breaker opened",
			zap.String("bucket", bucket.Key()),
			zap.Int("consecutive_failures", failures),
			zap.Time("open_until", *openUntil),
		)
		b.metrics.Emit(ctx, EventBreakerOpened, marketplace.MetricAttrs{
			"provider": bucket.Provider,
			"account":  bucket.AccountID.String(),
		})
	}
	return nil
}
