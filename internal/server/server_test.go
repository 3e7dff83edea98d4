package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/trailhead/internal/store"
	"github.com/rahul/trailhead/internal/tour"
)

const testTours = `
tours:
  - name: admin-dashboard
    steps: [{title: Welcome}]
  - name: inventory-intro
    steps: [{title: Stock}]
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	statuses, err := store.NewStatusStore(filepath.Join(t.TempDir(), "tours.db"))
	require.NoError(t, err)
	t.Cleanup(func() { statuses.Close() })

	cat, err := tour.Parse([]byte(testTours))
	require.NoError(t, err)

	return New(Config{Statuses: statuses, Catalog: cat})
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func do(t *testing.T, srv *Server, method, path string, body any) (int, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	return rec.Code, resp
}

func TestGetStatus_ReportsEveryKnownTour(t *testing.T) {
	srv := newTestServer(t)

	code, resp := do(t, srv, http.MethodGet, "/api/tour-status/u1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)

	var got statusResponse
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, map[string]bool{"admin-dashboard": false, "inventory-intro": false}, got.Tours)
}

func TestUpdateStatus_RoundTrip(t *testing.T) {
	srv := newTestServer(t)

	code, resp := do(t, srv, http.MethodPost, "/api/tour-status/update",
		updateRequest{UserID: "u1", TourName: "admin-dashboard", Completed: true})
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.JSONEq(t, `{"admin-dashboard":true}`, string(resp.Data))

	_, resp = do(t, srv, http.MethodGet, "/api/tour-status/u1", nil)
	var got statusResponse
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.True(t, got.Tours["admin-dashboard"])
	assert.False(t, got.Tours["inventory-intro"])
}

func TestUpdateStatus_Validation(t *testing.T) {
	srv := newTestServer(t)

	code, resp := do(t, srv, http.MethodPost, "/api/tour-status/update", map[string]any{"tourName": "admin-dashboard"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "User ID and tour name are required", resp.Error)

	code, resp = do(t, srv, http.MethodPost, "/api/tour-status/update", updateRequest{UserID: "u1", TourName: "nope"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid tour name", resp.Error)

	code, _ = do(t, srv, http.MethodPost, "/api/tour-status/update", map[string]any{"userId": "u1", "extra": 1})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestBulkUpdate_AndStats(t *testing.T) {
	srv := newTestServer(t)

	code, resp := do(t, srv, http.MethodPost, "/api/tour-status/bulk-update", bulkUpdateRequest{
		UserID: "u1",
		Tours:  map[string]bool{"admin-dashboard": true, "inventory-intro": true},
	})
	require.Equal(t, http.StatusOK, code, resp.Error)
	code, _ = do(t, srv, http.MethodPost, "/api/tour-status/bulk-update", bulkUpdateRequest{
		UserID: "u2",
		Tours:  map[string]bool{"admin-dashboard": true},
	})
	require.Equal(t, http.StatusOK, code)

	code, resp = do(t, srv, http.MethodGet, "/api/tour-stats", nil)
	require.Equal(t, http.StatusOK, code)
	var stats store.Stats
	require.NoError(t, json.Unmarshal(resp.Data, &stats))
	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, map[string]int{"admin-dashboard": 2, "inventory-intro": 1}, stats.Completed)
}

func TestBulkUpdate_RejectsUnknownTours(t *testing.T) {
	srv := newTestServer(t)

	code, resp := do(t, srv, http.MethodPost, "/api/tour-status/bulk-update", bulkUpdateRequest{
		UserID: "u1",
		Tours:  map[string]bool{"admin-dashboard": true, "zzz": true},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid tour name: zzz", resp.Error)

	code, _ = do(t, srv, http.MethodPost, "/api/tour-status/bulk-update", bulkUpdateRequest{UserID: "u1"})
	assert.Equal(t, http.StatusBadRequest, code)

	_, resp = do(t, srv, http.MethodGet, "/api/tour-status/u1", nil)
	var got statusResponse
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.False(t, got.Tours["admin-dashboard"], "rejected bulk update wrote nothing")
}

func TestListTours(t *testing.T) {
	srv := newTestServer(t)
	code, resp := do(t, srv, http.MethodGet, "/api/tours", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `["admin-dashboard","inventory-intro"]`, string(resp.Data))
}
