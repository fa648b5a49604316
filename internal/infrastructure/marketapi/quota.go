package marketapi

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bricksync/backend/internal/domain/marketplace"
)

// Metric event names emitted by the engine.
const (
	EventRequestAttempt = "marketplace.request.attempt"
	EventQuotaAlert     = "marketplace.quota.alert"
	EventQuotaDenied    = "marketplace.quota.denied"
	EventBreakerOpened  = "marketplace.breaker.opened"
	EventBreakerClosed  = "marketplace.breaker.closed"
)

// QuotaTracker enforces per-bucket request quotas over a rolling window.
// Counting lives in the injected state store; the tracker adds provider
// defaults, alerting and telemetry.
type QuotaTracker struct {
	store    marketplace.StateStore
	defaults map[string]marketplace.QuotaDefaults
	metrics  marketplace.MetricsSink
	logger   *zap.Logger
	clock    func() time.Time
}

// NewQuotaTracker creates a tracker. defaults maps provider code to that
// provider's quota configuration; buckets for unknown providers fall back to
// a conservative 100 requests/minute.
func NewQuotaTracker(store marketplace.StateStore, defaults map[string]marketplace.QuotaDefaults, metrics marketplace.MetricsSink, logger *zap.Logger) *QuotaTracker {
	return &QuotaTracker{
		store:    store,
		defaults: defaults,
		metrics:  metrics,
		logger:   logger,
		clock:    time.Now,
	}
}

// Consume attempts to take one request slot for the bucket. A denied decision
// carries the window reset instant so callers can surface a wait estimate.
// Crossing the alert threshold emits a side-channel signal, never a failure.
func (t *QuotaTracker) Consume(ctx context.Context, bucket marketplace.Bucket) (marketplace.QuotaDecision, error) {
	decision, err := t.store.Consume(ctx, bucket, t.defaultsFor(bucket.Provider), t.clock())
	if err != nil {
		return marketplace.QuotaDecision{}, err
	}

	if decision.Alert {
		t.logger.Warn("quota alert threshold crossed",
			zap.String("bucket", bucket.Key()),
			zap.Int("remaining", decision.Remaining),
			zap.Time("reset_at", decision.ResetAt),
		)
		t.metrics.Emit(ctx, EventQuotaAlert, marketplace.MetricAttrs{
			"provider": bucket.Provider,
			"account":  bucket.AccountID.String(),
		})
	}
	if !decision.Granted {
		t.metrics.Emit(ctx, EventQuotaDenied, marketplace.MetricAttrs{
			"provider": bucket.Provider,
			"account":  bucket.AccountID.String(),
		})
	}
	return decision, nil
}

func (t *QuotaTracker) defaultsFor(provider string) marketplace.QuotaDefaults {
	if d, ok := t.defaults[provider]; ok {
		return d
	}
	return marketplace.QuotaDefaults{
		Capacity:       100,
		Window:         time.Minute,
		AlertThreshold: 0.8,
	}
}
