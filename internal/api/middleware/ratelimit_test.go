package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestNewRateLimiter_InvalidConfig(t *testing.T) {
	if _, err := NewRateLimiter(0, time.Minute); err == nil {
		t.Fatal("expected error for zero request limit")
	}
	if _, err := NewRateLimiter(10, 0); err == nil {
		t.Fatal("expected error for zero period")
	}
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mw, err := NewRateLimiter(5, time.Minute)
	if err != nil {
		t.Fatalf("NewRateLimiter failed: %v", err)
	}

	r := gin.New()
	r.Use(mw)
	r.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mw, err := NewRateLimiter(2, time.Minute)
	if err != nil {
		t.Fatalf("NewRateLimiter failed: %v", err)
	}

	r := gin.New()
	r.Use(mw)
	r.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	var last int
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "10.0.0.2:1234"
		r.ServeHTTP(w, req)
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after exceeding limit, got %d", last)
	}
}
