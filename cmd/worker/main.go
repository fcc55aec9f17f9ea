// Package main implements a relay reasoning worker: a stateless service
// that executes chat turns for whichever sessions the router sends it.
//
// The worker is stateless by contract. Its only session-scoped memory is
// the bounded workflow cache, which is a performance artifact: the durable
// transcript lives in the shared session store, so any worker can pick up
// any session after a fetch.
//
// Configuration (environment, .env honored):
//   - WORKER_ID: unique identifier (required)
//   - WORKER_ADDR: listen address (default ":8081")
//   - WORKER_PUBLIC_ADDR: base URL advertised to the router
//   - WORKER_TAG: capability tag (default "general")
//   - ROUTER_URL: when set, the worker registers itself at startup
//   - REDIS_ADDR / REDIS_DB / STORE_DRIVER: session store location
//   - SESSION_TTL, GENERATE_TIMEOUT, CACHE_CAPACITY, CACHE_IDLE_WINDOW
//   - OPENAI_API_KEY / OPENAI_MODEL: reasoning backend
//
// Example:
//
//	WORKER_ID=worker-1 \
//	WORKER_PUBLIC_ADDR=http://localhost:8081 \
//	ROUTER_URL=http://localhost:8080 \
//	./worker
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dreamware/relay/internal/cluster"
	"github.com/dreamware/relay/internal/config"
	"github.com/dreamware/relay/internal/fault"
	"github.com/dreamware/relay/internal/llm"
	"github.com/dreamware/relay/internal/logging"
	"github.com/dreamware/relay/internal/metrics"
	"github.com/dreamware/relay/internal/pipeline"
	"github.com/dreamware/relay/internal/state"
	"github.com/dreamware/relay/internal/workflow"
)

// server holds the worker's HTTP surface over the turn pipeline.
type server struct {
	pipeline *pipeline.Pipeline
	log      *zap.Logger
}

func newServer(p *pipeline.Pipeline) *server {
	return &server{pipeline: p, log: logging.Named("server")}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/chat", s.handleChat)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

// handleChat runs one turn through the pipeline. Failures come back as the
// standard structured error body with a stable kind.
func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req cluster.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || req.Message == "" {
		http.Error(w, "sessionId and message required", http.StatusBadRequest)
		return
	}

	reply, err := s.pipeline.ProcessTurn(r.Context(), req.SessionID, req.Message)
	if err != nil {
		s.log.Error("turn failed", zap.String("session", req.SessionID), zap.Error(err))
		fault.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(cluster.ChatResponse{
		Response:  reply,
		SessionID: req.SessionID,
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// register announces this worker to the router, retrying with backoff so a
// worker starting before the router still joins the pool.
func register(ctx context.Context, cfg *config.Worker, log *zap.Logger) {
	req := cluster.RegisterRequest{Worker: cluster.WorkerInstance{
		ID:   cfg.ID,
		Addr: cfg.PublicAddr,
		Tag:  cfg.Tag,
	}}

	for attempt := 1; attempt <= 5; attempt++ {
		err := cluster.PostJSON(ctx, cfg.RouterAddr+"/register", req, nil)
		if err == nil {
			log.Info("registered with router", zap.String("router", cfg.RouterAddr))
			return
		}
		log.Warn("registration failed",
			zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-time.After(time.Duration(attempt) * time.Second):
		case <-ctx.Done():
			return
		}
	}
	log.Error("giving up on registration; router must be configured statically")
}

func main() {
	_ = godotenv.Load() // .env is optional

	cfg, err := config.LoadWorker()
	if err != nil {
		logging.L().Fatal("config", zap.Error(err))
	}
	logging.Init(logging.Config{
		Env:        cfg.Env,
		Level:      cfg.LogLevel,
		Service:    "worker",
		InstanceID: cfg.ID,
	})
	defer func() { _ = logging.Sync() }()
	log := logging.Named("main")

	store, err := buildStore(cfg)
	if err != nil {
		log.Fatal("store", zap.Error(err))
	}
	defer store.Close()

	cache, err := workflow.NewCache(cfg.CacheCapacity, cfg.CacheIdleWindow)
	if err != nil {
		log.Fatal("cache", zap.Error(err))
	}
	defer cache.Purge()

	if cfg.OpenAIKey == "" {
		log.Warn("OPENAI_API_KEY not set; generation will fail")
	}
	gen := llm.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel)

	p := pipeline.New(store, cache, gen, cfg.SessionTTL, cfg.GenerateTimeout)
	srv := newServer(p)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		log.Info("worker listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("tag", cfg.Tag))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	if cfg.RouterAddr != "" {
		go register(ctx, cfg, log)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	log.Info("worker stopped")
}

func buildStore(cfg *config.Worker) (state.Store, error) {
	if cfg.StoreDriver == string(state.StoreTypeMemory) {
		return state.New(state.StoreTypeMemory)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	return state.New(state.StoreTypeRedis, state.WithRedisClient(client))
}
