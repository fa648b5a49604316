package marketplace

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// QuotaDefaults are the provider-level limits used when a bucket's state is
// created lazily on first use.
type QuotaDefaults struct {
	Capacity       int
	Window         time.Duration
	AlertThreshold float64
}

// StateStore is the durable, atomically-updatable home of QuotaState and
// circuit-breaker state. Callers are stateless compute units, so the store
// must serialize concurrent updates for the same bucket: two callers racing
// on the last slot of a window must not both be granted.
type StateStore interface {
	// Consume applies the rolling-window rules for the bucket in one atomic
	// step: reset the window if expired, deny if at capacity, otherwise
	// increment. Decision.Alert is set on the consumption that first crosses
	// the alert threshold within a window.
	Consume(ctx context.Context, bucket Bucket, defaults QuotaDefaults, now time.Time) (QuotaDecision, error)

	// RecordFailure increments the bucket's consecutive-failure counter and,
	// when it reaches threshold, opens the breaker until now+cooldown. It
	// returns the updated counter and the open-until instant, if any.
	RecordFailure(ctx context.Context, bucket Bucket, threshold int, cooldown time.Duration, now time.Time) (int, *time.Time, error)

	// RecordSuccess zeroes the consecutive-failure counter and closes the
	// breaker.
	RecordSuccess(ctx context.Context, bucket Bucket) error

	// BreakerOpenUntil returns the instant the breaker re-closes, or nil when
	// requests may pass through at now.
	BreakerOpenUntil(ctx context.Context, bucket Bucket, now time.Time) (*time.Time, error)
}

// IdempotencyStore records processed bulk items so a repeated invocation of
// the same bulk operation skips work that already completed.
type IdempotencyStore interface {
	// MarkProcessed marks a key as processed with a TTL. Returns true if the
	// key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks whether a key has already been processed.
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close releases store resources.
	Close() error
}

// Credentials carries the decrypted secrets for one account+provider pair.
// OAuth1.0a providers use the consumer/token pairs; API-key providers use
// APIKey. The engine never persists these.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	TokenValue     string
	TokenSecret    string
	APIKey         string
}

// CredentialProvider resolves decrypted credentials for a bucket.
type CredentialProvider interface {
	Credentials(ctx context.Context, accountID uuid.UUID, provider string) (Credentials, error)
}

// MetricAttrs are the attributes attached to an emitted metric event.
type MetricAttrs map[string]any

// MetricsSink receives one event per request attempt plus quota and breaker
// signals. Implementations must be non-blocking and must never fail the call.
type MetricsSink interface {
	Emit(ctx context.Context, event string, attrs MetricAttrs)
}

// ProgressFunc is the optional bulk progress callback. It is invoked after
// each batch completes and must not affect control flow.
type ProgressFunc func(progress BulkProgress)

// NewCorrelationID generates the tracing identifier attached to every
// operation result.
func NewCorrelationID() string {
	return uuid.NewString()
}
