package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// mockHealthDB implements DatabaseHealthChecker for testing.
type mockHealthDB struct {
	pingErr error
}

func (m *mockHealthDB) Ping(_ context.Context) error { return m.pingErr }

func (m *mockHealthDB) PoolStats() map[string]any {
	return map[string]any{
		"total_conns":    int32(5),
		"acquired_conns": int32(1),
		"idle_conns":     int32(4),
		"max_conns":      int32(25),
	}
}

// mockHealthBroker implements BrokerHealthChecker for testing.
type mockHealthBroker struct {
	pingErr error
}

func (m *mockHealthBroker) Ping(_ context.Context) error { return m.pingErr }

type staticSessionCount int

func (s staticSessionCount) SessionCount() int { return int(s) }

func setupHealthRouter(db DatabaseHealthChecker, broker BrokerHealthChecker, sessions SessionCounter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHealthHandler(db, broker, sessions, zerolog.Nop())
	handler.RegisterPublicRoutes(r)
	return r
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		r := setupHealthRouter(&mockHealthDB{}, &mockHealthBroker{}, staticSessionCount(3))

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/healthz", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}

		var resp HealthResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if resp.Status != HealthStatusHealthy {
			t.Fatalf("expected healthy, got %s", resp.Status)
		}
		if resp.Checks["database"].Status != HealthStatusHealthy {
			t.Fatal("expected healthy database check")
		}
		sessions, ok := resp.Checks["sessions"]
		if !ok {
			t.Fatal("expected sessions check")
		}
		if count, ok := sessions.Details["count"].(float64); !ok || count != 3 {
			t.Fatalf("expected session count 3, got %v", sessions.Details["count"])
		}
	})

	t.Run("database down", func(t *testing.T) {
		r := setupHealthRouter(&mockHealthDB{pingErr: errors.New("connection refused")}, nil, staticSessionCount(0))

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/healthz", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected status 503, got %d", w.Code)
		}

		var resp HealthResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if resp.Status != HealthStatusUnhealthy {
			t.Fatalf("expected unhealthy, got %s", resp.Status)
		}
	})

	t.Run("broker down", func(t *testing.T) {
		r := setupHealthRouter(&mockHealthDB{}, &mockHealthBroker{pingErr: errors.New("redis gone")}, staticSessionCount(0))

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/healthz", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected status 503, got %d", w.Code)
		}
	})

	t.Run("no broker configured", func(t *testing.T) {
		r := setupHealthRouter(&mockHealthDB{}, nil, staticSessionCount(0))

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/healthz", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}

		var resp HealthResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		broker := resp.Checks["broker"]
		if broker.Status != HealthStatusHealthy {
			t.Fatal("expected in-memory broker to report healthy")
		}
		if configured, ok := broker.Details["configured"].(bool); !ok || configured {
			t.Fatalf("expected configured false, got %v", broker.Details["configured"])
		}
	})
}
