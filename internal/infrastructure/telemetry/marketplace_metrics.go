package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bricksync/backend/internal/domain/marketplace"
	"github.com/bricksync/backend/internal/infrastructure/marketapi"
)

// MarketplaceMetrics translates engine metric events into OpenTelemetry
// instruments. It implements marketplace.MetricsSink.
type MarketplaceMetrics struct {
	attempts        *Counter
	attemptDuration *Histogram
	quotaAlerts     *Counter
	quotaDenied     *Counter
	breakerOpened   *Counter
	breakerClosed   *Counter
}

var _ marketplace.MetricsSink = (*MarketplaceMetrics)(nil)

// NewMarketplaceMetrics creates the upstream request instruments on the given meter.
func NewMarketplaceMetrics(meter metric.Meter) (*MarketplaceMetrics, error) {
	attempts, err := NewCounter(meter,
		"marketplace_request_attempts_total",
		"Total upstream request attempts, including retries",
		"{attempt}",
	)
	if err != nil {
		return nil, err
	}

	attemptDuration, err := NewHistogram(meter, HistogramOpts{
		Name:        "marketplace_request_duration_seconds",
		Description: "Upstream request attempt duration",
		Unit:        "s",
		Boundaries:  UpstreamDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	quotaAlerts, err := NewCounter(meter,
		"marketplace_quota_alerts_total",
		"Quota alert threshold crossings",
		"{event}",
	)
	if err != nil {
		return nil, err
	}

	quotaDenied, err := NewCounter(meter,
		"marketplace_quota_denied_total",
		"Requests denied by the rolling-window quota",
		"{request}",
	)
	if err != nil {
		return nil, err
	}

	breakerOpened, err := NewCounter(meter,
		"marketplace_breaker_opened_total",
		"Circuit breaker open transitions",
		"{event}",
	)
	if err != nil {
		return nil, err
	}

	breakerClosed, err := NewCounter(meter,
		"marketplace_breaker_closed_total",
		"Circuit breaker close transitions",
		"{event}",
	)
	if err != nil {
		return nil, err
	}

	return &MarketplaceMetrics{
		attempts:        attempts,
		attemptDuration: attemptDuration,
		quotaAlerts:     quotaAlerts,
		quotaDenied:     quotaDenied,
		breakerOpened:   breakerOpened,
		breakerClosed:   breakerClosed,
	}, nil
}

// Emit implements marketplace.MetricsSink. Unknown events are dropped;
// emission never fails the caller.
func (m *MarketplaceMetrics) Emit(ctx context.Context, event string, attrs marketplace.MetricAttrs) {
	switch event {
	case marketapi.EventRequestAttempt:
		kv := []attribute.KeyValue{
			AttrProvider.String(stringAttr(attrs, "provider")),
			AttrOperation.String(stringAttr(attrs, "operation")),
			AttrHTTPMethod.String(stringAttr(attrs, "method")),
			AttrHTTPStatusCode.Int(intAttr(attrs, "status")),
		}
		m.attempts.Inc(ctx, kv...)
		m.attemptDuration.Record(ctx, float64(int64Attr(attrs, "duration_ms"))/float64(time.Second.Milliseconds()), kv...)
	case marketapi.EventQuotaAlert:
		m.quotaAlerts.Inc(ctx, bucketAttrs(attrs)...)
	case marketapi.EventQuotaDenied:
		m.quotaDenied.Inc(ctx, bucketAttrs(attrs)...)
	case marketapi.EventBreakerOpened:
		m.breakerOpened.Inc(ctx, bucketAttrs(attrs)...)
	case marketapi.EventBreakerClosed:
		m.breakerClosed.Inc(ctx, bucketAttrs(attrs)...)
	}
}

func bucketAttrs(attrs marketplace.MetricAttrs) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrProvider.String(stringAttr(attrs, "provider")),
		AttrAccountID.String(stringAttr(attrs, "account")),
	}
}

func stringAttr(attrs marketplace.MetricAttrs, key string) string {
	switch v := attrs[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

func intAttr(attrs marketplace.MetricAttrs, key string) int {
	switch v := attrs[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

func int64Attr(attrs marketplace.MetricAttrs, key string) int64 {
	switch v := attrs[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
