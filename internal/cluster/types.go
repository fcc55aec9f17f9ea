package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WorkerInstance describes one reasoning worker as seen by the router.
//
// Identity (ID, Addr, Tag) is immutable after registration; only the health
// monitor mutates Healthy and LastProbed. Instances are never removed from
// the registry, only marked unhealthy, so a recovering worker resumes
// receiving traffic without re-registering.
type WorkerInstance struct {
	// ID uniquely identifies this worker in the cluster.
	// Format: typically "worker-{number}" or a UUID.
	ID string `json:"id"`

	// Addr is the worker's base URL, e.g. "http://10.0.0.5:8081".
	Addr string `json:"addr"`

	// Tag is the capability tag this worker serves, e.g. "general".
	// Routing only considers workers whose tag matches the request.
	Tag string `json:"tag"`

	// Healthy is the current liveness classification.
	// Written only by the health monitor; read by the router.
	Healthy bool `json:"healthy"`

	// LastProbed is when the health monitor last checked this worker.
	LastProbed time.Time `json:"last_probed,omitempty"`
}

// RegisterRequest is sent by a worker announcing itself to the router.
type RegisterRequest struct {
	Worker WorkerInstance `json:"worker"`
}

// RouteRequest is the edge payload accepted by the router's /route endpoint.
// An empty SessionID asks the router to mint one; an empty Tag means the
// default capability tag.
type RouteRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Tag       string `json:"tag,omitempty"`
}

// ChatRequest is the per-turn payload the router forwards to a worker's
// /chat endpoint. Same shape as RouteRequest, but SessionID is always set.
type ChatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// ChatResponse is a worker's reply for one completed turn.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"sessionId"`
}

// httpClient is shared by the helpers so connection pooling works across
// calls. The 5s timeout bounds registration and control traffic; chat
// forwarding in cmd/router uses its own client with a generous timeout
// because reasoning turns can be slow.
var httpClient = &http.Client{Timeout: 5 * time.Second}

// PostJSON marshals body, POSTs it to url, and decodes the response into out
// when out is non-nil. Any status >= 300 is an error.
func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetJSON performs a GET against url and decodes the response into out.
// Any status >= 300 is an error.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
