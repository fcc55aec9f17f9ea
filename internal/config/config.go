// Package config loads service configuration from the environment, with an
// optional YAML file for the router's static worker list.
//
// Configuration is environment-first to match how the services deploy: each
// process reads its own variables at startup and never reloads. Defaults are
// chosen so a local two-worker cluster runs with nothing set except
// OPENAI_API_KEY.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults shared by both services. The session TTL and probe timeout are
// part of the external contract, not tuning knobs.
const (
	DefaultSessionTTL      = 3600 * time.Second
	DefaultProbeTimeout    = 5 * time.Second
	DefaultProbeInterval   = 10 * time.Second
	DefaultGenerateTimeout = 120 * time.Second
	DefaultForwardTimeout  = 300 * time.Second
	DefaultCacheCapacity   = 10000
	DefaultCacheIdleWindow = 3600 * time.Second
	DefaultTag             = "general"
)

// StaticWorker is one entry of the router's configured worker pool.
type StaticWorker struct {
	ID   string `yaml:"id"`
	Addr string `yaml:"addr"`
	Tag  string `yaml:"tag"`
}

// workersFile is the YAML shape of WORKERS_FILE.
type workersFile struct {
	Workers []StaticWorker `yaml:"workers"`
}

// Router holds the edge service configuration.
type Router struct {
	ListenAddr     string
	RedisAddr      string
	RedisDB        int
	StoreDriver    string // "redis" or "memory"
	SessionTTL     time.Duration
	ProbeInterval  time.Duration
	ProbeTimeout   time.Duration
	ForwardTimeout time.Duration
	Workers        []StaticWorker
	Env            string
	LogLevel       string
}

// Worker holds the reasoning worker configuration.
type Worker struct {
	ListenAddr      string
	PublicAddr      string // address advertised to the router
	ID              string
	Tag             string
	RouterAddr      string // when set, the worker registers itself at startup
	RedisAddr       string
	RedisDB         int
	StoreDriver     string
	SessionTTL      time.Duration
	GenerateTimeout time.Duration
	CacheCapacity   int
	CacheIdleWindow time.Duration
	OpenAIKey       string
	OpenAIModel     string
	Env             string
	LogLevel        string
}

// LoadRouter reads the router configuration from the environment.
//
// Worker pool sources, in precedence order:
//  1. WORKERS_FILE: YAML file with full descriptors
//  2. WORKERS: comma-separated base URLs, ids minted as worker-1..n with
//     WORKER_TAG (or "general") as the shared tag
//  3. empty pool: workers must register themselves via POST /register
func LoadRouter() (*Router, error) {
	cfg := &Router{
		ListenAddr:     getenv("ROUTER_ADDR", ":8080"),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		RedisDB:        getint("REDIS_DB", 0),
		StoreDriver:    getenv("STORE_DRIVER", "redis"),
		SessionTTL:     getdur("SESSION_TTL", DefaultSessionTTL),
		ProbeInterval:  getdur("PROBE_INTERVAL", DefaultProbeInterval),
		ProbeTimeout:   getdur("PROBE_TIMEOUT", DefaultProbeTimeout),
		ForwardTimeout: getdur("FORWARD_TIMEOUT", DefaultForwardTimeout),
		Env:            getenv("ENV", "dev"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
	}

	if path := os.Getenv("WORKERS_FILE"); path != "" {
		workers, err := ParseWorkersFile(path)
		if err != nil {
			return nil, fmt.Errorf("load workers file: %w", err)
		}
		cfg.Workers = workers
	} else if list := os.Getenv("WORKERS"); list != "" {
		tag := getenv("WORKER_TAG", DefaultTag)
		for i, addr := range splitNonEmpty(list) {
			cfg.Workers = append(cfg.Workers, StaticWorker{
				ID:   fmt.Sprintf("worker-%d", i+1),
				Addr: addr,
				Tag:  tag,
			})
		}
	}

	return cfg, nil
}

// LoadWorker reads the worker configuration from the environment.
// WORKER_ID is required; everything else has a default.
func LoadWorker() (*Worker, error) {
	id := os.Getenv("WORKER_ID")
	if id == "" {
		return nil, fmt.Errorf("WORKER_ID is required")
	}

	listen := getenv("WORKER_ADDR", ":8081")
	return &Worker{
		ListenAddr:      listen,
		PublicAddr:      getenv("WORKER_PUBLIC_ADDR", "http://127.0.0.1"+listen),
		ID:              id,
		Tag:             getenv("WORKER_TAG", DefaultTag),
		RouterAddr:      os.Getenv("ROUTER_URL"),
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		RedisDB:         getint("REDIS_DB", 0),
		StoreDriver:     getenv("STORE_DRIVER", "redis"),
		SessionTTL:      getdur("SESSION_TTL", DefaultSessionTTL),
		GenerateTimeout: getdur("GENERATE_TIMEOUT", DefaultGenerateTimeout),
		CacheCapacity:   getint("CACHE_CAPACITY", DefaultCacheCapacity),
		CacheIdleWindow: getdur("CACHE_IDLE_WINDOW", DefaultCacheIdleWindow),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     getenv("OPENAI_MODEL", "gpt-4o-mini"),
		Env:             getenv("ENV", "dev"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
	}, nil
}

// ParseWorkersFile reads a YAML worker list:
//
//	workers:
//	  - id: worker-1
//	    addr: http://orchestrator-1:8000
//	    tag: general
func ParseWorkersFile(path string) ([]StaticWorker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f workersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i := range f.Workers {
		w := &f.Workers[i]
		if w.Addr == "" {
			return nil, fmt.Errorf("%s: worker %d has no addr", path, i)
		}
		if w.ID == "" {
			w.ID = fmt.Sprintf("worker-%d", i+1)
		}
		if w.Tag == "" {
			w.Tag = DefaultTag
		}
	}
	return f.Workers, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// getdur accepts either a Go duration ("90s", "2m") or a bare number of
// seconds, the format the original deployment used.
func getdur(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

func splitNonEmpty(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
