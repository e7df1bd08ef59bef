package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrous-os/ferrous/internal/capability"
	"github.com/ferrous-os/ferrous/internal/events"
	"github.com/ferrous-os/ferrous/internal/infrastructure/config"
	"github.com/ferrous-os/ferrous/internal/infrastructure/logging"
	"github.com/ferrous-os/ferrous/internal/kernel"
)

func newTestAPI(t *testing.T) (*gin.Engine, *kernel.Kernel) {
	t.Helper()
	journal := events.NewJournal(128)
	k := kernel.New(kernel.Options{Sink: journal})
	h := NewHandlers(k, journal, nil, logging.NewNop())
	return NewRouter(h, nil, config.Default()), k
}

func get(t *testing.T, r *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)

	var body map[string]any
	if w.Header().Get("Content-Encoding") == "" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestHealth(t *testing.T) {
	r, _ := newTestAPI(t)
	w, body := get(t, r, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestStats(t *testing.T) {
	r, k := newTestAPI(t)
	k.CreateProcess("init", 0)

	w, body := get(t, r, "/stats")
	assert.Equal(t, http.StatusOK, w.Code)
	stats := body["stats"].(map[string]any)
	assert.Equal(t, float64(1), stats["processes"])
}

func TestProcessesAndCapabilities(t *testing.T) {
	r, k := newTestAPI(t)
	p := k.CreateProcess("init", 0)
	_, err := k.MintSystem(p.ID(), capability.SystemCreateEndpoint)
	require.NoError(t, err)

	w, body := get(t, r, "/processes")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["processes"], 1)

	w, body = get(t, r, "/processes/1/capabilities")
	assert.Equal(t, http.StatusOK, w.Code)
	caps := body["capabilities"].([]any)
	require.Len(t, caps, 1)
	assert.Equal(t, "system", caps[0].(map[string]any)["kind"])
}

func TestProcessCapabilitiesErrors(t *testing.T) {
	r, _ := newTestAPI(t)

	w, _ := get(t, r, "/processes/notanumber/capabilities")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = get(t, r, "/processes/42/capabilities")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEndpoints(t *testing.T) {
	r, k := newTestAPI(t)
	p := k.CreateProcess("init", 0)
	_, err := k.MintSystem(p.ID(), capability.SystemCreateEndpoint)
	require.NoError(t, err)
	_, err = k.CreateEndpoint(p.ID())
	require.NoError(t, err)

	w, body := get(t, r, "/endpoints")
	assert.Equal(t, http.StatusOK, w.Code)
	eps := body["endpoints"].([]any)
	require.Len(t, eps, 1)
	assert.Equal(t, "unconnected", eps[0].(map[string]any)["state"])
}

func TestEventsTail(t *testing.T) {
	r, k := newTestAPI(t)
	k.CreateProcess("a", 0)
	k.CreateProcess("b", 0)

	w, body := get(t, r, "/events")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["events"], 2)

	w, body = get(t, r, "/events?n=1")
	assert.Equal(t, http.StatusOK, w.Code)
	evs := body["events"].([]any)
	require.Len(t, evs, 1)
	assert.Equal(t, "process.created", evs[0].(map[string]any)["kind"])

	w, _ = get(t, r, "/events?n=bogus")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventsExportGzipped(t *testing.T) {
	r, k := newTestAPI(t)
	k.CreateProcess("a", 0)

	w, _ := get(t, r, "/events/export")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.NotEmpty(t, w.Body.Bytes())
}

func TestSweep(t *testing.T) {
	r, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sweep", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["reclaimed"])
}
