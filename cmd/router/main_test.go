package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/relay/internal/cluster"
	"github.com/dreamware/relay/internal/config"
	"github.com/dreamware/relay/internal/state"
)

// fakeWorker is an httptest-backed /chat endpoint that echoes the session id
// and counts how many turns it served.
type fakeWorker struct {
	srv   *httptest.Server
	calls atomic.Int64
}

func newFakeWorker(t *testing.T, name string) *fakeWorker {
	t.Helper()
	fw := &fakeWorker{}
	fw.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/chat":
			fw.calls.Add(1)
			var req cluster.ChatRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "bad json", http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			_ = json.NewEncoder(w).Encode(cluster.ChatResponse{
				Response:  fmt.Sprintf("%s answered", name),
				SessionID: req.SessionID,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(fw.srv.Close)
	return fw
}

func newTestServer(t *testing.T, workers ...*fakeWorker) *server {
	t.Helper()
	cfg := &config.Router{
		SessionTTL:     time.Hour,
		ProbeInterval:  time.Hour,
		ProbeTimeout:   time.Second,
		ForwardTimeout: 5 * time.Second,
	}
	for i, fw := range workers {
		cfg.Workers = append(cfg.Workers, config.StaticWorker{
			ID:   fmt.Sprintf("w%d", i+1),
			Addr: fw.srv.URL,
			Tag:  "general",
		})
	}
	store, err := state.New(state.StoreTypeMemory)
	require.NoError(t, err)
	return newServer(cfg, store)
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouteForwardsToWorker(t *testing.T) {
	fw := newFakeWorker(t, "w1")
	srv := newTestServer(t, fw)

	rec := postJSON(t, srv.routes(), "/route", cluster.RouteRequest{
		SessionID: "s1", Message: "hello",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp cluster.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "w1 answered", resp.Response)
	assert.Equal(t, "s1", resp.SessionID)
}

func TestRouteMintsSessionID(t *testing.T) {
	fw := newFakeWorker(t, "w1")
	srv := newTestServer(t, fw)

	rec := postJSON(t, srv.routes(), "/route", cluster.RouteRequest{Message: "hello"})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp cluster.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID, "empty sessionId should be minted server-side")
}

func TestRouteValidation(t *testing.T) {
	srv := newTestServer(t, newFakeWorker(t, "w1"))
	h := srv.routes()

	rec := postJSON(t, h, "/route", cluster.RouteRequest{SessionID: "s1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "message is required")

	req := httptest.NewRequest(http.MethodPost, "/route", strings.NewReader("{not json"))
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestRouteStickySameWorker(t *testing.T) {
	w1, w2, w3 := newFakeWorker(t, "w1"), newFakeWorker(t, "w2"), newFakeWorker(t, "w3")
	srv := newTestServer(t, w1, w2, w3)
	h := srv.routes()

	var first string
	for i := 0; i < 5; i++ {
		rec := postJSON(t, h, "/route", cluster.RouteRequest{SessionID: "sticky-s", Message: "hi"})
		require.Equal(t, http.StatusOK, rec.Code)
		var resp cluster.ChatResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		if first == "" {
			first = resp.Response
		}
		assert.Equal(t, first, resp.Response, "turn %d moved workers", i)
	}

	served := 0
	for _, fw := range []*fakeWorker{w1, w2, w3} {
		if fw.calls.Load() > 0 {
			served++
			assert.EqualValues(t, 5, fw.calls.Load())
		}
	}
	assert.Equal(t, 1, served, "all turns should hit exactly one worker")
}

func TestRouteNoHealthyWorkers(t *testing.T) {
	srv := newTestServer(t) // empty pool
	rec := postJSON(t, srv.routes(), "/route", cluster.RouteRequest{SessionID: "s1", Message: "hi"})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "routing_unavailable", body["kind"])
}

// TestRouteRetriesOnceAfterForwardFailure points the session at a dead
// address and verifies the turn still lands on a live worker.
func TestRouteRetriesOnceAfterForwardFailure(t *testing.T) {
	live := newFakeWorker(t, "live")
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	cfg := &config.Router{
		SessionTTL:     time.Hour,
		ProbeInterval:  time.Hour,
		ProbeTimeout:   time.Second,
		ForwardTimeout: 2 * time.Second,
		Workers: []config.StaticWorker{
			{ID: "w-dead", Addr: deadURL, Tag: "general"},
			{ID: "w-live", Addr: live.srv.URL, Tag: "general"},
		},
	}
	store, err := state.New(state.StoreTypeMemory)
	require.NoError(t, err)
	srv := newServer(cfg, store)

	// Pin the session to the dead worker so the first forward must fail.
	err = store.PutAffinity(context.Background(), "s-retry", &state.AffinityRecord{
		SessionID:  "s-retry",
		WorkerAddr: deadURL,
		WorkerTag:  "general",
		AssignedAt: time.Now(),
	}, time.Hour)
	require.NoError(t, err)

	rec := postJSON(t, srv.routes(), "/route", cluster.RouteRequest{SessionID: "s-retry", Message: "hi"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp cluster.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "live answered", resp.Response)
	assert.EqualValues(t, 1, live.calls.Load())

	// The failed forward also demoted the dead worker.
	w, ok := srv.registry.Lookup(deadURL)
	require.True(t, ok)
	assert.False(t, w.Healthy)
}

// TestRouteRelaysWorkerErrorsVerbatim: an HTTP error status from the worker
// is its answer, not a transport failure, so no retry happens.
func TestRouteRelaysWorkerErrorsVerbatim(t *testing.T) {
	var calls atomic.Int64
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"reasoning failed","kind":"generation_failure"}`))
	}))
	defer worker.Close()

	cfg := &config.Router{
		SessionTTL:     time.Hour,
		ProbeInterval:  time.Hour,
		ProbeTimeout:   time.Second,
		ForwardTimeout: 2 * time.Second,
		Workers:        []config.StaticWorker{{ID: "w1", Addr: worker.URL, Tag: "general"}},
	}
	store, err := state.New(state.StoreTypeMemory)
	require.NoError(t, err)
	srv := newServer(cfg, store)

	rec := postJSON(t, srv.routes(), "/route", cluster.RouteRequest{SessionID: "s1", Message: "hi"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "generation_failure")
	assert.EqualValues(t, 1, calls.Load(), "worker errors must not trigger a retry")
}

func TestRegisterAndListWorkers(t *testing.T) {
	srv := newTestServer(t)
	h := srv.routes()

	rec := postJSON(t, h, "/register", cluster.RegisterRequest{
		Worker: cluster.WorkerInstance{ID: "w1", Addr: "http://host-a:8081"},
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/workers", nil)
	listRec := httptest.NewRecorder()
	h.ServeHTTP(listRec, req)
	require.Equal(t, http.StatusOK, listRec.Code)

	var body struct {
		Workers []cluster.WorkerInstance `json:"workers"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &body))
	require.Len(t, body.Workers, 1)
	assert.Equal(t, "w1", body.Workers[0].ID)
	assert.Equal(t, config.DefaultTag, body.Workers[0].Tag, "tag defaults on register")
	assert.True(t, body.Workers[0].Healthy, "registered workers start healthy")
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t)
	rec := postJSON(t, srv.routes(), "/register", cluster.RegisterRequest{
		Worker: cluster.WorkerInstance{ID: "w1"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
