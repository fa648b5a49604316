package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/bricksync/backend/internal/domain/marketplace"
	"github.com/bricksync/backend/internal/infrastructure/marketapi"
	"github.com/bricksync/backend/internal/infrastructure/telemetry"
)

func newTestMeter(t *testing.T) (*sdkmetric.ManualReader, *telemetry.MarketplaceMetrics) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	mm, err := telemetry.NewMarketplaceMetrics(provider.Meter("test"))
	require.NoError(t, err)
	return reader, mm
}

func collectMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) (metricdata.Metrics, bool) {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestMarketplaceMetrics_RequestAttempt(t *testing.T) {
	reader, mm := newTestMeter(t)

	mm.Emit(context.Background(), marketapi.EventRequestAttempt, marketplace.MetricAttrs{
		"operation":      "inventory.push",
		"method":         "POST",
		"provider":       "bricklink",
		"status":         502,
		"error":          "bad gateway",
		"attempt":        1,
		"duration_ms":    int64(250),
		"correlation_id": "corr-1",
	})

	m, ok := collectMetric(t, reader, "marketplace_request_attempts_total")
	require.True(t, ok)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)

	dp := sum.DataPoints[0]
	assert.Equal(t, int64(1), dp.Value)

	provider, _ := dp.Attributes.Value(attribute.Key("provider"))
	assert.Equal(t, "bricklink", provider.AsString())
	operation, _ := dp.Attributes.Value(attribute.Key("operation"))
	assert.Equal(t, "inventory.push", operation.AsString())
	status, _ := dp.Attributes.Value(attribute.Key("http.status_code"))
	assert.Equal(t, int64(502), status.AsInt64())
}

func TestMarketplaceMetrics_RequestDuration(t *testing.T) {
	reader, mm := newTestMeter(t)

	mm.Emit(context.Background(), marketapi.EventRequestAttempt, marketplace.MetricAttrs{
		"operation":   "orders.pull",
		"method":      "GET",
		"provider":    "brickowl",
		"status":      200,
		"attempt":     1,
		"duration_ms": int64(1500),
	})

	m, ok := collectMetric(t, reader, "marketplace_request_duration_seconds")
	require.True(t, ok)

	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)

	dp := hist.DataPoints[0]
	assert.Equal(t, uint64(1), dp.Count)
	assert.InDelta(t, 1.5, dp.Sum, 0.0001)
}

func TestMarketplaceMetrics_QuotaAndBreakerEvents(t *testing.T) {
	reader, mm := newTestMeter(t)
	ctx := context.Background()

	bucket := marketplace.MetricAttrs{
		"provider": "bricklink",
		"account":  "11111111-2222-3333-4444-555555555555",
	}

	mm.Emit(ctx, marketapi.EventQuotaAlert, bucket)
	mm.Emit(ctx, marketapi.EventQuotaDenied, bucket)
	mm.Emit(ctx, marketapi.EventQuotaDenied, bucket)
	mm.Emit(ctx, marketapi.EventBreakerOpened, bucket)
	mm.Emit(ctx, marketapi.EventBreakerClosed, bucket)

	cases := []struct {
		name  string
		total int64
	}{
		{"marketplace_quota_alerts_total", 1},
		{"marketplace_quota_denied_total", 2},
		{"marketplace_breaker_opened_total", 1},
		{"marketplace_breaker_closed_total", 1},
	}

	for _, tc := range cases {
		m, ok := collectMetric(t, reader, tc.name)
		require.True(t, ok, tc.name)

		sum, ok := m.Data.(metricdata.Sum[int64])
		require.True(t, ok, tc.name)
		require.Len(t, sum.DataPoints, 1, tc.name)
		assert.Equal(t, tc.total, sum.DataPoints[0].Value, tc.name)

		account, _ := sum.DataPoints[0].Attributes.Value(attribute.Key("account_id"))
		assert.Equal(t, "11111111-2222-3333-4444-555555555555", account.AsString())
	}
}

func TestMarketplaceMetrics_UnknownEventIgnored(t *testing.T) {
	reader, mm := newTestMeter(t)

	assert.NotPanics(t, func() {
		mm.Emit(context.Background(), "marketplace.unknown", marketplace.MetricAttrs{"provider": "x"})
	})

	_, ok := collectMetric(t, reader, "marketplace_request_attempts_total")
	assert.False(t, ok)
}
