package web

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestRateLimitMiddlewareRejectsOverBudget(t *testing.T) {
	gin.SetMode(gin.TestMode)
	g := gin.New()
	g.Use(RateLimitMiddleware(NewRateLimiter(rate.Limit(1), 1)))
	g.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRecorder()
	g.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("First request should pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	g.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("Second request should be limited, got %d", second.Code)
	}
}

func TestRateLimitMiddlewareSpawnsNoGoroutines(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1)
	time.Sleep(10 * time.Millisecond)

	before := runtime.NumGoroutine()
	for i := 0; i < 20; i++ {
		RateLimitMiddleware(rl)
	}
	time.Sleep(10 * time.Millisecond)
	after := runtime.NumGoroutine()

	// The single cleanup goroutine belongs to the limiter, not to the
	// middleware wrappers.
	if after > before+1 {
		t.Errorf("Middleware wrappers leaked goroutines: %d before, %d after", before, after)
	}
}
