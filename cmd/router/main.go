// Package main implements the relay router, the edge service that keeps
// each conversation pinned to one reasoning worker.
//
// The router is the coordinator of the pool, responsible for:
//   - Tracking registered workers and probing their health
//   - Resolving session affinity (sticky routing with hash fallback)
//   - Forwarding chat turns to the selected worker's /chat endpoint
//   - Retrying once against a re-resolved worker when a forward fails
//
// Configuration (environment, .env honored):
//   - ROUTER_ADDR: listen address (default ":8080")
//   - REDIS_ADDR / REDIS_DB: session store location
//   - STORE_DRIVER: "redis" (default) or "memory" (single-process dev)
//   - WORKERS: comma-separated worker base URLs, or WORKERS_FILE: YAML list
//   - SESSION_TTL, PROBE_INTERVAL, PROBE_TIMEOUT, FORWARD_TIMEOUT
//
// Example:
//
//	WORKERS=http://localhost:8081,http://localhost:8082 ./router
//
//	curl -X POST localhost:8080/route \
//	  -d '{"sessionId":"s1","message":"hello"}'
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dreamware/relay/internal/cluster"
	"github.com/dreamware/relay/internal/config"
	"github.com/dreamware/relay/internal/fault"
	"github.com/dreamware/relay/internal/logging"
	"github.com/dreamware/relay/internal/metrics"
	"github.com/dreamware/relay/internal/registry"
	"github.com/dreamware/relay/internal/router"
	"github.com/dreamware/relay/internal/state"
)

// server wires the router's components behind its HTTP handlers.
type server struct {
	registry *registry.Registry
	monitor  *registry.Monitor
	resolver *router.Resolver
	store    state.Store
	forward  *http.Client
	log      *zap.Logger
}

func newServer(cfg *config.Router, store state.Store) *server {
	reg := registry.New()
	pool := make([]cluster.WorkerInstance, 0, len(cfg.Workers))
	for _, w := range cfg.Workers {
		pool = append(pool, cluster.WorkerInstance{ID: w.ID, Addr: w.Addr, Tag: w.Tag})
	}
	reg.Seed(pool)
	return &server{
		registry: reg,
		monitor:  registry.NewMonitor(reg, cfg.ProbeInterval, cfg.ProbeTimeout),
		resolver: router.New(reg, store, cfg.SessionTTL),
		store:    store,
		forward:  &http.Client{Timeout: cfg.ForwardTimeout},
		log:      logging.Named("server"),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/route", s.handleRoute)
	r.Post("/register", s.handleRegister)
	r.Get("/workers", s.handleListWorkers)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

// handleRoute resolves the session's worker and forwards the turn there,
// relaying the worker's JSON response verbatim. A transport failure marks
// the worker unhealthy and retries exactly once against a freshly resolved
// instance.
func (s *server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req cluster.RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	tag := req.Tag
	if tag == "" {
		tag = config.DefaultTag
	}

	target, err := s.resolver.Resolve(r.Context(), req.SessionID, tag)
	if err != nil {
		fault.WriteError(w, err)
		return
	}

	status, body, err := s.forwardChat(r.Context(), target, req)
	if err != nil {
		// The worker may have died between the last probe and now. Record
		// the failure, then retry once against a re-resolved instance.
		s.log.Warn("forward failed, re-resolving",
			zap.String("session", req.SessionID),
			zap.String("worker", target.ID),
			zap.Error(err))
		s.monitor.Probe(r.Context(), target)
		metrics.ForwardRetries.Inc()

		retryTarget, rerr := s.resolver.Resolve(r.Context(), req.SessionID, tag)
		if rerr != nil {
			fault.WriteError(w, rerr)
			return
		}
		status, body, err = s.forwardChat(r.Context(), retryTarget, req)
		if err != nil {
			fault.WriteError(w, fault.Wrap(err, fault.KindUpstreamUnreachable,
				"worker did not respond after retry"))
			return
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// forwardChat POSTs the turn to the worker's /chat endpoint and returns the
// response verbatim. Only transport-level failures return an error; an HTTP
// error status is the worker's own answer and is relayed as-is.
func (s *server) forwardChat(ctx context.Context, target cluster.WorkerInstance, req cluster.RouteRequest) (int, []byte, error) {
	payload, err := json.Marshal(cluster.ChatRequest{SessionID: req.SessionID, Message: req.Message})
	if err != nil {
		return 0, nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target.Addr+"/chat", bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.forward.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// handleRegister lets a worker announce itself. Re-registration with the
// same ID replaces the descriptor.
func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req cluster.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Worker.ID == "" || req.Worker.Addr == "" {
		http.Error(w, "missing id/addr", http.StatusBadRequest)
		return
	}
	if req.Worker.Tag == "" {
		req.Worker.Tag = config.DefaultTag
	}
	s.registry.Register(req.Worker)
	s.log.Info("worker registered",
		zap.String("worker", req.Worker.ID),
		zap.String("addr", req.Worker.Addr),
		zap.String("tag", req.Worker.Tag))
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(struct {
		Workers []cluster.WorkerInstance `json:"workers"`
	}{Workers: s.registry.All()})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func main() {
	_ = godotenv.Load() // .env is optional

	cfg, err := config.LoadRouter()
	if err != nil {
		logging.L().Fatal("config", zap.Error(err))
	}
	logging.Init(logging.Config{
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Service: "router",
	})
	defer func() { _ = logging.Sync() }()
	log := logging.Named("main")

	store, err := buildStore(cfg)
	if err != nil {
		log.Fatal("store", zap.Error(err))
	}
	defer store.Close()

	srv := newServer(cfg, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.monitor.Start(ctx)
	defer srv.monitor.Stop()

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("router listening",
			zap.String("addr", cfg.ListenAddr),
			zap.Int("workers", len(cfg.Workers)))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	log.Info("router stopped")
}

func buildStore(cfg *config.Router) (state.Store, error) {
	if cfg.StoreDriver == string(state.StoreTypeMemory) {
		return state.New(state.StoreTypeMemory)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	return state.New(state.StoreTypeRedis, state.WithRedisClient(client))
}
