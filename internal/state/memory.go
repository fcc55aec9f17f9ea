package state

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// memoryStore implements Store with an in-process map, for tests and
// single-node development. Values are stored as marshaled JSON so the
// driver behaves byte-for-byte like the redis driver, including the
// copy-on-read guarantee: callers never share memory with the store.
type memoryStore struct {
	mu   sync.RWMutex
	data map[string]memEntry
}

type memEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]memEntry)}
}

func (m *memoryStore) GetTranscript(ctx context.Context, sessionID string) (*Transcript, error) {
	raw, ok := m.get(transcriptKeyPrefix + sessionID)
	if !ok {
		return NewTranscript(sessionID), nil
	}
	var t Transcript
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (m *memoryStore) PutTranscript(ctx context.Context, sessionID string, t *Transcript, ttl time.Duration) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	m.set(transcriptKeyPrefix+sessionID, raw, ttl)
	return nil
}

func (m *memoryStore) GetAffinity(ctx context.Context, sessionID string) (*AffinityRecord, error) {
	raw, ok := m.get(affinityKeyPrefix + sessionID)
	if !ok {
		return nil, nil
	}
	var rec AffinityRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m *memoryStore) PutAffinity(ctx context.Context, sessionID string, rec *AffinityRecord, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	m.set(affinityKeyPrefix+sessionID, raw, ttl)
	return nil
}

func (m *memoryStore) Ping(ctx context.Context) error { return nil }

func (m *memoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}

// get returns the live value for key, lazily dropping it when expired.
func (m *memoryStore) get(key string) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.data, key)
		m.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (m *memoryStore) set(key string, value []byte, ttl time.Duration) {
	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.data[key] = e
	m.mu.Unlock()
}
