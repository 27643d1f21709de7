package cache

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsboard/sopmatch/internal/monitoring"
)

func TestCacheSetGet(t *testing.T) {
	c := NewCache(time.Minute)

	c.Set("key", []byte("payload"))
	data, found := c.Get("key")
	require.True(t, found)
	assert.Equal(t, []byte("payload"), data)

	_, found = c.Get("missing")
	assert.False(t, found)
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(10 * time.Millisecond)

	c.Set("key", []byte("payload"))
	time.Sleep(25 * time.Millisecond)

	_, found := c.Get("key")
	assert.False(t, found)
}

func TestCacheClearAndSize(t *testing.T) {
	c := NewCache(time.Minute)

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	assert.Equal(t, 2, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestCacheStats(t *testing.T) {
	c := NewCache(time.Minute)
	c.Set("a", []byte("1"))

	stats := c.Stats()
	assert.Equal(t, 1, stats["total_items"])
	assert.Equal(t, 0, stats["expired_items"])
	assert.Equal(t, 1, stats["active_items"])
	assert.Equal(t, 60.0, stats["ttl_seconds"])
}

func cachedRouter(c *Cache) (*gin.Engine, *int) {
	gin.SetMode(gin.TestMode)
	metrics := monitoring.NewMetrics()
	logger := monitoring.NewLogger(slog.LevelError)

	handlerCalls := 0
	router := gin.New()
	router.Use(c.Middleware(metrics, logger, "/matching"))
	router.GET("/matching", func(ctx *gin.Context) {
		handlerCalls++
		ctx.JSON(http.StatusOK, gin.H{"success": true})
	})
	router.POST("/matching", func(ctx *gin.Context) {
		handlerCalls++
		ctx.JSON(http.StatusOK, gin.H{"success": true})
	})
	return router, &handlerCalls
}

func TestMiddlewareServesSecondRequestFromCache(t *testing.T) {
	router, calls := cachedRouter(NewCache(time.Minute))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/matching?limit=5", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success": true}`, w.Body.String())
	}

	assert.Equal(t, 1, *calls)
}

func TestMiddlewareKeysOnFullURI(t *testing.T) {
	router, calls := cachedRouter(NewCache(time.Minute))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/matching?limit=5", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/matching?limit=10", nil))

	assert.Equal(t, 2, *calls)
}

func TestMiddlewareSkipsWrites(t *testing.T) {
	router, calls := cachedRouter(NewCache(time.Minute))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/matching", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/matching", nil))

	assert.Equal(t, 2, *calls)
}
