package state

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Factory and driver errors.
var (
	ErrInvalidStoreType = errors.New("invalid store type")
	ErrInvalidConfig    = errors.New("invalid store config")
)

// Keys under which session state lives in the shared store. The formats are
// inherited from the original deployment and must not change while old
// records may still be live.
const (
	transcriptKeyPrefix = "session:"
	affinityKeyPrefix   = "session_route:"
)

// Store is the shared, TTL-backed session state store.
//
// All methods are safe for concurrent use. The store offers per-key
// atomicity only; the pipeline layers per-session mutual exclusion on top
// for its read-modify-write turn sequence.
type Store interface {
	// GetTranscript returns the session's transcript. Absence is not an
	// error: an untouched session yields an empty transcript with nil
	// CreatedAt.
	GetTranscript(ctx context.Context, sessionID string) (*Transcript, error)

	// PutTranscript unconditionally overwrites the transcript and refreshes
	// its TTL. Idempotent.
	PutTranscript(ctx context.Context, sessionID string, t *Transcript, ttl time.Duration) error

	// GetAffinity returns the session's routing assignment, or (nil, nil)
	// when none exists or it has expired.
	GetAffinity(ctx context.Context, sessionID string) (*AffinityRecord, error)

	// PutAffinity overwrites the assignment and refreshes its TTL.
	PutAffinity(ctx context.Context, sessionID string, rec *AffinityRecord, ttl time.Duration) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases driver resources.
	Close() error
}

// StoreType selects a driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

type storeConfig struct {
	redisClient *redis.Client
}

// StoreOption configures the factory.
type StoreOption func(*storeConfig)

// WithRedisClient supplies the client for the redis driver.
func WithRedisClient(c *redis.Client) StoreOption {
	return func(cfg *storeConfig) { cfg.redisClient = c }
}

// New creates a Store of the given type.
// The redis driver requires WithRedisClient.
func New(storeType StoreType, opts ...StoreOption) (Store, error) {
	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	switch storeType {
	case StoreTypeMemory:
		return newMemoryStore(), nil
	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return &redisStore{client: cfg.redisClient}, nil
	default:
		return nil, ErrInvalidStoreType
	}
}
