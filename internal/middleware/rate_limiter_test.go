package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestKeyedLimiterPerKey(t *testing.T) {
	l := NewKeyedLimiter(2)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst should allow two events")
	}
	if l.Allow("a") {
		t.Error("third event should be limited")
	}
	if !l.Allow("b") {
		t.Error("other key should have its own bucket")
	}

	now = now.Add(30 * time.Second)
	if !l.Allow("a") {
		t.Error("bucket should refill after 30s at 2/min")
	}
}

func TestKeyedLimiterCleanup(t *testing.T) {
	l := NewKeyedLimiter(1)
	now := time.Now()
	l.now = func() time.Time { return now }
	l.Allow("a")
	now = now.Add(2 * time.Hour)
	l.Allow("b")
	l.Cleanup()
	if len(l.entries) != 1 {
		t.Errorf("entries = %d, want 1", len(l.entries))
	}
	if _, ok := l.entries["b"]; !ok {
		t.Error("recent entry removed")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/x", NewKeyedLimiter(1).RateLimit(), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 2)
	for i := range codes {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes[i] = w.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}
}

func TestRequestSizeLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/x", RequestSizeLimit(8), func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		body string
		want int
	}{
		{"small", http.StatusOK},
		{"much too large", http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(tt.body)))
		if w.Code != tt.want {
			t.Errorf("body %q: status = %d, want %d", tt.body, w.Code, tt.want)
		}
	}
}
