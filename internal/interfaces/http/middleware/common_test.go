package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func corsRouter(cfg CORSConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORSWithConfig(cfg))
	router.GET("/accounts/a1/journal", func(c *gin.Context) { c.String(http.StatusOK, "entries") })
	return router
}

func corsRequest(router *gin.Engine, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/accounts/a1/journal", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	dashboard := "https://dashboard.example.com"

	t.Run("default config grants nothing", func(t *testing.T) {
		router := corsRouter(DefaultCORSConfig())

		w := corsRequest(router, http.MethodGet, dashboard)
		assert.Equal(t, http.StatusOK, w.Code, "the request itself still runs")
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("allowlisted origin is granted", func(t *testing.T) {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = []string{dashboard}
		router := corsRouter(cfg)

		w := corsRequest(router, http.MethodGet, dashboard)
		assert.Equal(t, dashboard, w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Correlation-ID")
		assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
	})

	t.Run("unlisted origin is not granted", func(t *testing.T) {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = []string{dashboard}
		router := corsRouter(cfg)

		w := corsRequest(router, http.MethodGet, "https://evil.example.com")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("wildcard grants any origin without credentials", func(t *testing.T) {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = []string{"*"}
		router := corsRouter(cfg)

		w := corsRequest(router, http.MethodGet, dashboard)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"),
			"credentials must not combine with a wildcard origin")
	})

	t.Run("preflight is answered even for unknown origins", func(t *testing.T) {
		router := corsRouter(DefaultCORSConfig())

		w := corsRequest(router, http.MethodOptions, dashboard)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight for an allowed origin carries the grant", func(t *testing.T) {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = []string{dashboard}
		cfg.MaxAge = time.Hour
		router := corsRouter(cfg)

		w := corsRequest(router, http.MethodOptions, dashboard)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, dashboard, w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
		assert.Equal(t, "3600", w.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("same-origin request gets no CORS headers", func(t *testing.T) {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = []string{dashboard}
		router := corsRouter(cfg)

		w := corsRequest(router, http.MethodGet, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestSecure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Secure())
	router.GET("/system/info", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/system/info", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
