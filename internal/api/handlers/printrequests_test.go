package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/realworldtech/props-print-service/internal/db"
	"github.com/realworldtech/props-print-service/internal/models"
)

// mockRequestStore implements PrintRequestStore for testing.
type mockRequestStore struct {
	clients    map[uuid.UUID]*models.PrintClient
	requests   map[uuid.UUID]*models.PrintRequest
	created    []*models.PrintRequest
	lastFilter models.PrintRequestFilter
	createErr  error
	listErr    error
}

func newMockRequestStore() *mockRequestStore {
	return &mockRequestStore{
		clients:  make(map[uuid.UUID]*models.PrintClient),
		requests: make(map[uuid.UUID]*models.PrintRequest),
	}
}

func (m *mockRequestStore) GetPrintClient(_ context.Context, id uuid.UUID) (*models.PrintClient, error) {
	if c, ok := m.clients[id]; ok {
		return c, nil
	}
	return nil, db.ErrNotFound
}

func (m *mockRequestStore) CreatePrintRequest(_ context.Context, req *models.PrintRequest) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, req)
	m.requests[req.ID] = req
	return nil
}

func (m *mockRequestStore) GetPrintRequest(_ context.Context, id uuid.UUID) (*models.PrintRequest, error) {
	if r, ok := m.requests[id]; ok {
		return r, nil
	}
	return nil, db.ErrNotFound
}

func (m *mockRequestStore) ListPrintRequests(_ context.Context, filter models.PrintRequestFilter) ([]*models.PrintRequest, error) {
	m.lastFilter = filter
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.PrintRequest
	for _, r := range m.requests {
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.PrintClientID != nil && (r.PrintClientID == nil || *r.PrintClientID != *filter.PrintClientID) {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

// mockJobDispatcher simulates the dispatcher: it transitions the request the
// way the real one does and reports the configured outcome.
type mockJobDispatcher struct {
	succeed bool
	calls   []*models.PrintRequest
}

func (m *mockJobDispatcher) Dispatch(_ context.Context, req *models.PrintRequest) bool {
	m.calls = append(m.calls, req)
	if m.succeed {
		_ = req.TransitionTo(models.PrintRequestStatusSent, "")
		return true
	}
	_ = req.TransitionTo(models.PrintRequestStatusFailed, "Client disconnected")
	return false
}

// mockDispatchRecorder records dispatch outcomes.
type mockDispatchRecorder struct {
	outcomes []string
}

func (m *mockDispatchRecorder) RecordDispatch(outcome string) {
	m.outcomes = append(m.outcomes, outcome)
}

func setupRequestTestRouter(store PrintRequestStore, dispatcher JobDispatcher, rec DispatchRecorder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewPrintRequestsHandler(store, dispatcher, rec, zerolog.Nop())
	api := r.Group("/api/v1")
	handler.RegisterRoutes(api)
	return r
}

// connectedRequestClient seeds a client that passes every create-time check.
func connectedRequestClient(store *mockRequestStore, protocolVersion string) *models.PrintClient {
	client := models.NewPrintClient("stage-door", "placeholder-hash")
	client.Status = models.PrintClientStatusApproved
	client.IsConnected = true
	client.ProtocolVersion = protocolVersion
	client.Printers = []models.Printer{{ID: "zebra-1", Name: "Stage Door Zebra", Type: "zpl", Status: "online"}}
	store.clients[client.ID] = client
	return client
}

func submitBody(clientID uuid.UUID, labelType string, extra map[string]any) string {
	body := map[string]any{
		"print_client_id": clientID.String(),
		"label_type":      labelType,
		"printer_id":      "zebra-1",
		"quantity":        2,
	}
	for k, v := range extra {
		body[k] = v
	}
	data, _ := json.Marshal(body)
	return string(data)
}

func TestCreatePrintRequest(t *testing.T) {
	t.Run("asset label dispatched", func(t *testing.T) {
		store := newMockRequestStore()
		client := connectedRequestClient(store, "1")
		dispatcher := &mockJobDispatcher{succeed: true}
		rec := &mockDispatchRecorder{}
		r := setupRequestTestRouter(store, dispatcher, rec)

		assetID := uuid.New()
		w := httptest.NewRecorder()
		body := submitBody(client.ID, "asset", map[string]any{"asset_id": assetID.String(), "requested_by": "props-admin"})
		req, _ := http.NewRequest("POST", "/api/v1/print-requests", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
		}

		if len(store.created) != 1 {
			t.Fatalf("expected 1 created request, got %d", len(store.created))
		}
		created := store.created[0]
		if created.PrintClientID == nil || *created.PrintClientID != client.ID {
			t.Fatalf("request bound to wrong client: %+v", created.PrintClientID)
		}
		if created.AssetID == nil || *created.AssetID != assetID {
			t.Fatalf("asset id not carried: %+v", created.AssetID)
		}
		if created.Quantity != 2 || created.PrinterID != "zebra-1" {
			t.Fatalf("unexpected request fields: %+v", created)
		}
		if created.RequestedBy != "props-admin" {
			t.Fatalf("requested_by not carried: %q", created.RequestedBy)
		}

		if len(dispatcher.calls) != 1 {
			t.Fatalf("expected 1 dispatch, got %d", len(dispatcher.calls))
		}

		var resp struct {
			Request    *models.PrintRequest `json:"request"`
			Dispatched bool                 `json:"dispatched"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if !resp.Dispatched {
			t.Fatal("expected dispatched true")
		}
		if resp.Request.Status != models.PrintRequestStatusSent {
			t.Fatalf("expected request sent, got %s", resp.Request.Status)
		}

		if len(rec.outcomes) != 1 || rec.outcomes[0] != "dispatched" {
			t.Fatalf("expected dispatched outcome recorded, got %v", rec.outcomes)
		}
	})

	t.Run("dispatch failure reported", func(t *testing.T) {
		store := newMockRequestStore()
		client := connectedRequestClient(store, "1")
		dispatcher := &mockJobDispatcher{succeed: false}
		rec := &mockDispatchRecorder{}
		r := setupRequestTestRouter(store, dispatcher, rec)

		w := httptest.NewRecorder()
		body := submitBody(client.ID, "asset", map[string]any{"asset_id": uuid.NewString()})
		req, _ := http.NewRequest("POST", "/api/v1/print-requests", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		// The row exists either way; the response carries the outcome.
		if w.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d", w.Code)
		}
		var resp struct {
			Request    *models.PrintRequest `json:"request"`
			Dispatched bool                 `json:"dispatched"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if resp.Dispatched {
			t.Fatal("expected dispatched false")
		}
		if resp.Request.Status != models.PrintRequestStatusFailed {
			t.Fatalf("expected request failed, got %s", resp.Request.Status)
		}
		if len(rec.outcomes) != 1 || rec.outcomes[0] != "failed" {
			t.Fatalf("expected failed outcome recorded, got %v", rec.outcomes)
		}
	})

	t.Run("location label", func(t *testing.T) {
		store := newMockRequestStore()
		client := connectedRequestClient(store, "2")
		dispatcher := &mockJobDispatcher{succeed: true}
		r := setupRequestTestRouter(store, dispatcher, nil)

		locationID := uuid.New()
		w := httptest.NewRecorder()
		body := submitBody(client.ID, "location", map[string]any{"location_id": locationID.String()})
		req, _ := http.NewRequest("POST", "/api/v1/print-requests", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
		}
		if store.created[0].LocationID == nil || *store.created[0].LocationID != locationID {
			t.Fatalf("location id not carried: %+v", store.created[0].LocationID)
		}
	})

	// Every rejection must happen before anything is written or dispatched.
	failFast := []struct {
		name       string
		setup      func(store *mockRequestStore) string // returns request body
		wantStatus int
	}{
		{
			name: "asset label without asset_id",
			setup: func(store *mockRequestStore) string {
				client := connectedRequestClient(store, "1")
				return submitBody(client.ID, "asset", nil)
			},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "location label without location_id",
			setup: func(store *mockRequestStore) string {
				client := connectedRequestClient(store, "2")
				return submitBody(client.ID, "location", nil)
			},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "client not found",
			setup: func(store *mockRequestStore) string {
				return submitBody(uuid.New(), "asset", map[string]any{"asset_id": uuid.NewString()})
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "client not approved",
			setup: func(store *mockRequestStore) string {
				client := connectedRequestClient(store, "1")
				client.Status = models.PrintClientStatusPending
				return submitBody(client.ID, "asset", map[string]any{"asset_id": uuid.NewString()})
			},
			wantStatus: http.StatusConflict,
		},
		{
			name: "client deactivated",
			setup: func(store *mockRequestStore) string {
				client := connectedRequestClient(store, "1")
				client.IsActive = false
				return submitBody(client.ID, "asset", map[string]any{"asset_id": uuid.NewString()})
			},
			wantStatus: http.StatusConflict,
		},
		{
			name: "client disconnected",
			setup: func(store *mockRequestStore) string {
				client := connectedRequestClient(store, "1")
				client.IsConnected = false
				return submitBody(client.ID, "asset", map[string]any{"asset_id": uuid.NewString()})
			},
			wantStatus: http.StatusConflict,
		},
		{
			name: "printer not declared",
			setup: func(store *mockRequestStore) string {
				client := connectedRequestClient(store, "1")
				client.Printers = []models.Printer{{ID: "brother-2", Type: "zpl"}}
				return submitBody(client.ID, "asset", map[string]any{"asset_id": uuid.NewString()})
			},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "location label unsupported by protocol",
			setup: func(store *mockRequestStore) string {
				client := connectedRequestClient(store, "1")
				return submitBody(client.ID, "location", map[string]any{"location_id": uuid.NewString()})
			},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "quantity over limit",
			setup: func(store *mockRequestStore) string {
				client := connectedRequestClient(store, "1")
				return fmt.Sprintf(`{"print_client_id":%q,"label_type":"asset","asset_id":%q,"printer_id":"zebra-1","quantity":101}`,
					client.ID, uuid.NewString())
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "quantity zero",
			setup: func(store *mockRequestStore) string {
				client := connectedRequestClient(store, "1")
				return fmt.Sprintf(`{"print_client_id":%q,"label_type":"asset","asset_id":%q,"printer_id":"zebra-1","quantity":0}`,
					client.ID, uuid.NewString())
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unknown label type",
			setup: func(store *mockRequestStore) string {
				client := connectedRequestClient(store, "1")
				return submitBody(client.ID, "badge", nil)
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range failFast {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockRequestStore()
			body := tt.setup(store)
			dispatcher := &mockJobDispatcher{succeed: true}
			r := setupRequestTestRouter(store, dispatcher, nil)

			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/api/v1/print-requests", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if len(store.created) != 0 {
				t.Fatalf("expected no request created, got %d", len(store.created))
			}
			if len(dispatcher.calls) != 0 {
				t.Fatalf("expected no dispatch, got %d", len(dispatcher.calls))
			}
		})
	}
}

func TestDispatchPrintRequest(t *testing.T) {
	t.Run("pending dispatched", func(t *testing.T) {
		store := newMockRequestStore()
		client := connectedRequestClient(store, "1")
		pending := models.NewPrintRequest(client.ID, models.LabelTypeAsset, "zebra-1", 1)
		assetID := uuid.New()
		pending.AssetID = &assetID
		store.requests[pending.ID] = pending

		dispatcher := &mockJobDispatcher{succeed: true}
		rec := &mockDispatchRecorder{}
		r := setupRequestTestRouter(store, dispatcher, rec)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/print-requests/"+pending.ID.String()+"/dispatch", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		if len(dispatcher.calls) != 1 {
			t.Fatalf("expected 1 dispatch, got %d", len(dispatcher.calls))
		}
		if len(rec.outcomes) != 1 || rec.outcomes[0] != "dispatched" {
			t.Fatalf("expected dispatched outcome, got %v", rec.outcomes)
		}
	})

	t.Run("not pending", func(t *testing.T) {
		store := newMockRequestStore()
		client := connectedRequestClient(store, "1")
		sent := models.NewPrintRequest(client.ID, models.LabelTypeAsset, "zebra-1", 1)
		if err := sent.TransitionTo(models.PrintRequestStatusSent, ""); err != nil {
			t.Fatalf("seed transition failed: %v", err)
		}
		store.requests[sent.ID] = sent

		dispatcher := &mockJobDispatcher{succeed: true}
		r := setupRequestTestRouter(store, dispatcher, nil)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/print-requests/"+sent.ID.String()+"/dispatch", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d", w.Code)
		}
		if len(dispatcher.calls) != 0 {
			t.Fatalf("expected no dispatch, got %d", len(dispatcher.calls))
		}
	})

	t.Run("not found", func(t *testing.T) {
		store := newMockRequestStore()
		r := setupRequestTestRouter(store, &mockJobDispatcher{}, nil)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/print-requests/"+uuid.NewString()+"/dispatch", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", w.Code)
		}
	})
}

func TestListPrintRequests(t *testing.T) {
	store := newMockRequestStore()
	client := connectedRequestClient(store, "1")
	reqA := models.NewPrintRequest(client.ID, models.LabelTypeAsset, "zebra-1", 1)
	store.requests[reqA.ID] = reqA

	r := setupRequestTestRouter(store, &mockJobDispatcher{}, nil)

	t.Run("default limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/print-requests", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		if store.lastFilter.Limit != 100 {
			t.Fatalf("expected default limit 100, got %d", store.lastFilter.Limit)
		}
	})

	t.Run("status filter", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/print-requests?status=pending", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		if store.lastFilter.Status == nil || *store.lastFilter.Status != models.PrintRequestStatusPending {
			t.Fatalf("status filter not applied: %+v", store.lastFilter.Status)
		}
	})

	t.Run("client filter", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/print-requests?client="+client.ID.String(), nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		if store.lastFilter.PrintClientID == nil || *store.lastFilter.PrintClientID != client.ID {
			t.Fatalf("client filter not applied: %+v", store.lastFilter.PrintClientID)
		}
	})

	t.Run("invalid status", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/print-requests?status=bogus", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
	})

	t.Run("invalid client", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/print-requests?client=not-a-uuid", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
	})

	t.Run("limit out of range", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/print-requests?limit=501", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
	})
}

func TestGetPrintRequest(t *testing.T) {
	store := newMockRequestStore()
	client := connectedRequestClient(store, "1")
	request := models.NewPrintRequest(client.ID, models.LabelTypeAsset, "zebra-1", 1)
	store.requests[request.ID] = request

	r := setupRequestTestRouter(store, &mockJobDispatcher{}, nil)

	t.Run("success", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/print-requests/"+request.ID.String(), nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		var got models.PrintRequest
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if got.ID != request.ID || got.JobID != request.JobID {
			t.Fatalf("unexpected request in response: %+v", got)
		}
	})

	t.Run("not found", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/print-requests/"+uuid.NewString(), nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", w.Code)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/print-requests/nope", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
	})
}
