package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	t.Run("grants the full window budget", func(t *testing.T) {
		limiter := NewRateLimiter(5, time.Minute)

		for i := 0; i < 5; i++ {
			assert.True(t, limiter.Allow("10.0.0.1"), "request %d should be allowed", i+1)
		}
		assert.False(t, limiter.Allow("10.0.0.1"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		limiter := NewRateLimiter(2, time.Minute)

		assert.True(t, limiter.Allow("10.0.0.1"))
		assert.True(t, limiter.Allow("10.0.0.1"))
		assert.False(t, limiter.Allow("10.0.0.1"))

		assert.True(t, limiter.Allow("10.0.0.2"))
	})

	t.Run("window rolls over", func(t *testing.T) {
		limiter := NewRateLimiter(1, 40*time.Millisecond)

		assert.True(t, limiter.Allow("10.0.0.1"))
		assert.False(t, limiter.Allow("10.0.0.1"))

		time.Sleep(50 * time.Millisecond)
		assert.True(t, limiter.Allow("10.0.0.1"))
	})

	t.Run("remaining reports the unused budget", func(t *testing.T) {
		limiter := NewRateLimiter(5, time.Minute)

		assert.Equal(t, 5, limiter.Remaining("10.0.0.1"))
		limiter.Allow("10.0.0.1")
		limiter.Allow("10.0.0.1")
		assert.Equal(t, 3, limiter.Remaining("10.0.0.1"))
	})

	t.Run("concurrent callers never overshoot the budget", func(t *testing.T) {
		limiter := NewRateLimiter(100, time.Minute)

		var wg sync.WaitGroup
		var mu sync.Mutex
		allowed := 0
		for i := 0; i < 150; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if limiter.Allow("shared") {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 100, allowed)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(limiter *RateLimiter, path string) *gin.Engine {
		router := gin.New()
		router.Use(RateLimit(limiter))
		router.GET(path, func(c *gin.Context) { c.String(http.StatusOK, "ok") })
		return router
	}
	serve := func(router *gin.Engine, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	t.Run("passes until the budget runs out", func(t *testing.T) {
		router := newRouter(NewRateLimiter(2, time.Minute), "/system/ping")

		assert.Equal(t, http.StatusOK, serve(router, "/system/ping").Code)
		assert.Equal(t, http.StatusOK, serve(router, "/system/ping").Code)

		w := serve(router, "/system/ping")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "RATE_LIMITED")
	})

	t.Run("advertises the budget in headers", func(t *testing.T) {
		router := newRouter(NewRateLimiter(5, time.Minute), "/system/ping")

		w := serve(router, "/system/ping")
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("scopes the budget per account", func(t *testing.T) {
		router := newRouter(NewRateLimiter(1, time.Minute), "/accounts/:account_id/journal")

		assert.Equal(t, http.StatusOK, serve(router, "/accounts/acct-1/journal").Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(router, "/accounts/acct-1/journal").Code)

		// A different account behind the same IP keeps its own budget
		assert.Equal(t, http.StatusOK, serve(router, "/accounts/acct-2/journal").Code)
	})
}
