package router

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/relay/internal/cluster"
	"github.com/dreamware/relay/internal/fault"
	"github.com/dreamware/relay/internal/registry"
	"github.com/dreamware/relay/internal/state"
)

// faultyStore wraps a real store and forces errors on selected operations.
type faultyStore struct {
	state.Store
	failReads  bool
	failWrites bool
}

func (f *faultyStore) GetAffinity(ctx context.Context, sessionID string) (*state.AffinityRecord, error) {
	if f.failReads {
		return nil, errors.New("store read failed")
	}
	return f.Store.GetAffinity(ctx, sessionID)
}

func (f *faultyStore) PutAffinity(ctx context.Context, sessionID string, rec *state.AffinityRecord, ttl time.Duration) error {
	if f.failWrites {
		return errors.New("store write failed")
	}
	return f.Store.PutAffinity(ctx, sessionID, rec, ttl)
}

func newTestPool(t *testing.T, n int) (*registry.Registry, state.Store) {
	t.Helper()
	reg := registry.New()
	for i := 1; i <= n; i++ {
		reg.Register(cluster.WorkerInstance{
			ID:   fmt.Sprintf("w%d", i),
			Addr: fmt.Sprintf("http://host-%d:8081", i),
			Tag:  "general",
		})
	}
	store, err := state.New(state.StoreTypeMemory)
	require.NoError(t, err)
	return reg, store
}

func TestResolveIsDeterministic(t *testing.T) {
	reg, store := newTestPool(t, 3)
	r := New(reg, store, time.Hour)

	first, err := r.Resolve(context.Background(), "session-abc", "general")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		w, err := r.Resolve(context.Background(), "session-abc", "general")
		require.NoError(t, err)
		assert.Equal(t, first.ID, w.ID, "repeated resolution moved the session")
	}
}

func TestResolveSticksAcrossPoolGrowth(t *testing.T) {
	reg, store := newTestPool(t, 2)
	r := New(reg, store, time.Hour)

	first, err := r.Resolve(context.Background(), "session-grow", "general")
	require.NoError(t, err)

	// A new worker joins. The stored affinity must pin the session to its
	// original worker even though the hash target may have moved.
	reg.Register(cluster.WorkerInstance{ID: "w9", Addr: "http://host-9:8081", Tag: "general"})

	w, err := r.Resolve(context.Background(), "session-grow", "general")
	require.NoError(t, err)
	assert.Equal(t, first.ID, w.ID)
}

func TestResolveRebalancesOffUnhealthyWorker(t *testing.T) {
	reg, store := newTestPool(t, 3)
	r := New(reg, store, time.Hour)

	first, err := r.Resolve(context.Background(), "session-move", "general")
	require.NoError(t, err)

	markUnhealthy(reg, first.ID)

	w, err := r.Resolve(context.Background(), "session-move", "general")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, w.ID, "session stayed on an unhealthy worker")
	assert.True(t, w.Healthy)

	// The new assignment is recorded: further resolutions stay put.
	again, err := r.Resolve(context.Background(), "session-move", "general")
	require.NoError(t, err)
	assert.Equal(t, w.ID, again.ID)
}

func TestResolveNoHealthyWorkers(t *testing.T) {
	reg, store := newTestPool(t, 2)
	r := New(reg, store, time.Hour)

	markUnhealthy(reg, "w1")
	markUnhealthy(reg, "w2")

	for _, sid := range []string{"s1", "s2", "another-session"} {
		_, err := r.Resolve(context.Background(), sid, "general")
		require.Error(t, err)
		assert.True(t, fault.IsKind(err, fault.KindRoutingUnavailable), "want routing_unavailable for %q", sid)
	}
}

func TestResolveFiltersByTag(t *testing.T) {
	reg, store := newTestPool(t, 2)
	reg.Register(cluster.WorkerInstance{ID: "wc", Addr: "http://host-c:8081", Tag: "code"})
	r := New(reg, store, time.Hour)

	w, err := r.Resolve(context.Background(), "session-tag", "code")
	require.NoError(t, err)
	assert.Equal(t, "wc", w.ID)

	_, err = r.Resolve(context.Background(), "session-tag", "math")
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindRoutingUnavailable))
}

// TestResolveIgnoresStaleTagAffinity: an affinity written for one tag must
// not satisfy a request for another.
func TestResolveIgnoresStaleTagAffinity(t *testing.T) {
	reg, store := newTestPool(t, 1)
	reg.Register(cluster.WorkerInstance{ID: "wc", Addr: "http://host-c:8081", Tag: "code"})
	r := New(reg, store, time.Hour)

	w, err := r.Resolve(context.Background(), "session-x", "general")
	require.NoError(t, err)
	assert.Equal(t, "w1", w.ID)

	w, err = r.Resolve(context.Background(), "session-x", "code")
	require.NoError(t, err)
	assert.Equal(t, "wc", w.ID)
}

func TestResolveDegradesOnStoreReadFailure(t *testing.T) {
	reg, store := newTestPool(t, 3)
	r := New(reg, &faultyStore{Store: store, failReads: true}, time.Hour)

	// Resolution still succeeds; selection falls back to pure hashing and
	// stays deterministic because the healthy set is stable.
	first, err := r.Resolve(context.Background(), "session-deg", "general")
	require.NoError(t, err)

	w, err := r.Resolve(context.Background(), "session-deg", "general")
	require.NoError(t, err)
	assert.Equal(t, first.ID, w.ID)
}

func TestResolveSurvivesStoreWriteFailure(t *testing.T) {
	reg, store := newTestPool(t, 3)
	r := New(reg, &faultyStore{Store: store, failWrites: true}, time.Hour)

	_, err := r.Resolve(context.Background(), "session-w", "general")
	assert.NoError(t, err, "affinity write failure must not fail resolution")
}

func TestHashIndexStable(t *testing.T) {
	for _, tt := range []struct {
		sessionID string
		n         int
	}{
		{"s1", 1},
		{"s1", 2},
		{"s1", 7},
		{"user:alice:chat", 3},
		{"", 5},
	} {
		got := hashIndex(tt.sessionID, tt.n)
		assert.GreaterOrEqual(t, got, 0)
		assert.Less(t, got, tt.n)
		assert.Equal(t, got, hashIndex(tt.sessionID, tt.n), "hashIndex not stable for %q", tt.sessionID)
	}
}

// TestHashIndexDistributes is a weak sanity check that the hash does not
// collapse onto a single index.
func TestHashIndexDistributes(t *testing.T) {
	seen := map[int]int{}
	for i := 0; i < 200; i++ {
		seen[hashIndex(fmt.Sprintf("session-%d", i), 4)]++
	}
	assert.Len(t, seen, 4, "all indices should be hit over 200 sessions")
}

func markUnhealthy(reg *registry.Registry, id string) {
	m := registry.NewMonitor(reg, time.Hour, time.Second)
	m.SetCheckFunc(func(ctx context.Context, addr string) error {
		return errors.New("down")
	})
	for _, w := range reg.All() {
		if w.ID == id {
			m.Probe(context.Background(), w)
		}
	}
}
