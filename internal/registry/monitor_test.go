package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/relay/internal/cluster"
)

// TestSweepMarksFailingWorkers verifies that one failed probe is enough to
// mark a worker unhealthy, and one success to recover it.
func TestSweepMarksFailingWorkers(t *testing.T) {
	reg := New()
	reg.Register(cluster.WorkerInstance{ID: "w1", Addr: "http://host-a:8081", Tag: "general"})
	reg.Register(cluster.WorkerInstance{ID: "w2", Addr: "http://host-b:8081", Tag: "general"})

	var mu sync.Mutex
	failing := map[string]bool{"http://host-a:8081": true}

	m := NewMonitor(reg, time.Hour, time.Second)
	m.SetCheckFunc(func(ctx context.Context, addr string) error {
		mu.Lock()
		defer mu.Unlock()
		if failing[addr] {
			return fmt.Errorf("connection refused")
		}
		return nil
	})

	m.Sweep(context.Background())

	healthy := reg.Healthy("general")
	require.Len(t, healthy, 1)
	assert.Equal(t, "w2", healthy[0].ID)

	// Recovery on the next sweep.
	mu.Lock()
	failing["http://host-a:8081"] = false
	mu.Unlock()
	m.Sweep(context.Background())

	assert.Len(t, reg.Healthy("general"), 2)
}

func TestSweepStampsLastProbed(t *testing.T) {
	reg := New()
	reg.Register(cluster.WorkerInstance{ID: "w1", Addr: "http://host-a:8081", Tag: "general"})

	m := NewMonitor(reg, time.Hour, time.Second)
	m.SetCheckFunc(func(ctx context.Context, addr string) error { return nil })

	before := time.Now()
	m.Sweep(context.Background())

	all := reg.All()
	require.Len(t, all, 1)
	assert.False(t, all[0].LastProbed.Before(before), "LastProbed not updated")
}

// TestStartPerformsInitialSweep verifies liveness is populated immediately,
// not only after the first interval elapses.
func TestStartPerformsInitialSweep(t *testing.T) {
	reg := New()
	reg.Register(cluster.WorkerInstance{ID: "w1", Addr: "http://host-a:8081", Tag: "general"})

	var mu sync.Mutex
	calls := 0

	m := NewMonitor(reg, time.Hour, time.Second)
	m.SetCheckFunc(func(ctx context.Context, addr string) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return fmt.Errorf("down")
	})

	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 1
	}, time.Second, 10*time.Millisecond)

	assert.Empty(t, reg.Healthy("general"))
}

// TestDefaultProbe exercises the real HTTP probe against httptest servers.
func TestDefaultProbe(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	m := NewMonitor(New(), time.Hour, time.Second)

	assert.NoError(t, m.defaultProbe(context.Background(), healthy.URL))
	assert.Error(t, m.defaultProbe(context.Background(), broken.URL), "non-2xx must be unhealthy")

	// Connection failure: a closed server.
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()
	assert.Error(t, m.defaultProbe(context.Background(), deadURL))
}
