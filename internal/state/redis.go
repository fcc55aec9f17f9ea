package state

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore implements Store on a shared redis instance. Expiry is
// delegated entirely to redis key TTLs; this driver never sweeps.
type redisStore struct {
	client *redis.Client
}

func (s *redisStore) GetTranscript(ctx context.Context, sessionID string) (*Transcript, error) {
	raw, err := s.client.Get(ctx, transcriptKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewTranscript(sessionID), nil
	}
	if err != nil {
		return nil, err
	}
	var t Transcript
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *redisStore) PutTranscript(ctx context.Context, sessionID string, t *Transcript, ttl time.Duration) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, transcriptKeyPrefix+sessionID, raw, ttl).Err()
}

func (s *redisStore) GetAffinity(ctx context.Context, sessionID string) (*AffinityRecord, error) {
	raw, err := s.client.Get(ctx, affinityKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec AffinityRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *redisStore) PutAffinity(ctx context.Context, sessionID string, rec *AffinityRecord, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, affinityKeyPrefix+sessionID, raw, ttl).Err()
}

func (s *redisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
