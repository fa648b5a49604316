package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newMeterAndRouter(t *testing.T) (*sdkmetric.ManualReader, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	router := gin.New()
	router.Use(HTTPMetricsWithMeter(mp.Meter("http.server"), true))
	return reader, router
}

func collectMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) (metricdata.Metrics, bool) {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestHTTPMetricsCountsRequests(t *testing.T) {
	reader, router := newMeterAndRouter(t)
	router.GET("/api/v1/accounts/:account_id/journal", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"items": []string{}})
	})

	for _, id := range []string{"a1", "a2", "a3", "a4"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/accounts/"+id+"/journal", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	m, ok := collectMetric(t, reader, "http_server_request_total")
	require.True(t, ok)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	// All four land on one series: the route label is the pattern, not the
	// concrete account path, so cardinality stays bounded.
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(4), sum.DataPoints[0].Value)

	route, ok := sum.DataPoints[0].Attributes.Value("http.route")
	require.True(t, ok)
	assert.Equal(t, "/api/v1/accounts/:account_id/journal", route.AsString())
}

func TestHTTPMetricsSplitsByStatus(t *testing.T) {
	reader, router := newMeterAndRouter(t)
	router.POST("/api/v1/accounts/a1/inventory", func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"queued": true})
	})
	router.POST("/api/v1/accounts/a1/push", func(c *gin.Context) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream"})
	})

	serve := func(path string) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
	}
	serve("/api/v1/accounts/a1/inventory")
	serve("/api/v1/accounts/a1/inventory")
	serve("/api/v1/accounts/a1/push")

	m, ok := collectMetric(t, reader, "http_server_request_total")
	require.True(t, ok)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 2, "one series per status code")

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(3), total)
}

func TestHTTPMetricsRecordsDurationAndSizes(t *testing.T) {
	reader, router := newMeterAndRouter(t)
	router.POST("/api/v1/accounts/a1/inventory", func(c *gin.Context) {
		time.Sleep(20 * time.Millisecond)
		c.JSON(http.StatusOK, gin.H{"accepted": 40, "rejected": 0})
	})

	body := strings.NewReader(`{"lots":[{"item_no":"3001","qty":40}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts/a1/inventory", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	duration, ok := collectMetric(t, reader, "http_server_request_duration_seconds")
	require.True(t, ok)
	durHist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, durHist.DataPoints, 1)
	assert.Greater(t, durHist.DataPoints[0].Sum, 0.02)

	reqSize, ok := collectMetric(t, reader, "http_server_request_size_bytes")
	require.True(t, ok)
	reqHist := reqSize.Data.(metricdata.Histogram[float64])
	require.Len(t, reqHist.DataPoints, 1)
	assert.Greater(t, reqHist.DataPoints[0].Sum, float64(0))

	respSize, ok := collectMetric(t, reader, "http_server_response_size_bytes")
	require.True(t, ok)
	respHist := respSize.Data.(metricdata.Histogram[float64])
	require.Len(t, respHist.DataPoints, 1)
	assert.Greater(t, respHist.DataPoints[0].Sum, float64(0))
}

func TestHTTPMetricsActiveRequestsReturnToZero(t *testing.T) {
	reader, router := newMeterAndRouter(t)
	router.GET("/api/v1/system/info", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/system/info", nil))
	require.Equal(t, http.StatusOK, w.Code)

	m, ok := collectMetric(t, reader, "http_server_active_requests")
	require.True(t, ok)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	if len(sum.DataPoints) > 0 {
		assert.Equal(t, int64(0), sum.DataPoints[0].Value)
	}
}

func TestHTTPMetricsDisabledIsPassThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for name, mw := range map[string]gin.HandlerFunc{
		"disabled in config":  HTTPMetrics(HTTPMetricsConfig{Enabled: false}),
		"nil meter provider":  HTTPMetrics(HTTPMetricsConfig{Enabled: true, MeterProvider: nil}),
		"disabled with meter": HTTPMetricsWithMeter(sdkmetric.NewMeterProvider().Meter("test"), false),
	} {
		t.Run(name, func(t *testing.T) {
			router := gin.New()
			router.Use(mw)
			router.GET("/api/v1/system/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/system/ping", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestGetRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("route", getRoutePattern(c))
	})
	router.GET("/api/v1/journal/:correlation_id", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("route"))
	})
	router.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, c.GetString("route"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/journal/corr-42", nil))
	assert.Equal(t, "/api/v1/journal/:correlation_id", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nonexistent", nil))
	assert.Equal(t, "unknown", w.Body.String(), "unmatched paths collapse into one label")
}

func TestGetRequestSize(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, tc := range []struct {
		name          string
		contentLength int64
		want          int64
	}{
		{"declared length", 100, 100},
		{"no body", 0, 0},
		{"chunked", -1, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var got int64
			router := gin.New()
			router.POST("/inventory", func(c *gin.Context) {
				got = getRequestSize(c)
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/inventory", nil)
			req.ContentLength = tc.contentLength
			router.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDefaultHTTPMetricsConfig(t *testing.T) {
	cfg := DefaultHTTPMetricsConfig()

	assert.Equal(t, "bricksync-backend", cfg.ServiceName)
	assert.True(t, cfg.Enabled)
	assert.Nil(t, cfg.MeterProvider)
}
