package registry

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/relay/internal/cluster"
	"github.com/dreamware/relay/internal/logging"
	"github.com/dreamware/relay/internal/metrics"
)

// Monitor probes every registered worker's /health endpoint on a fixed
// interval and keeps the registry's liveness flags current.
//
// A single failed probe (transport error, timeout, or non-2xx) marks the
// worker unhealthy; a single success marks it healthy again. Health state
// is eventually consistent: a request may race a transition, so the router
// treats a mid-request failure as a retryable routing error rather than
// trusting the flag absolutely.
type Monitor struct {
	registry  *Registry
	interval  time.Duration
	timeout   time.Duration
	checkFunc func(ctx context.Context, addr string) error
	client    *http.Client
	log       *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a monitor over the given registry.
//
// Parameters:
//   - reg: registry whose liveness flags this monitor owns
//   - interval: how often to sweep all workers (recommended: 10s)
//   - timeout: per-probe bound (default contract: 5s)
func NewMonitor(reg *Registry, interval, timeout time.Duration) *Monitor {
	m := &Monitor{
		registry: reg,
		interval: interval,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
		log:      logging.Named("monitor"),
	}
	m.checkFunc = m.defaultProbe
	return m
}

// SetCheckFunc overrides the probe implementation. Used by tests to avoid
// real network calls.
func (m *Monitor) SetCheckFunc(fn func(ctx context.Context, addr string) error) {
	m.checkFunc = fn
}

// Start launches the sweep loop in its own goroutine, beginning with an
// immediate sweep so liveness is populated before the first tick.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.log.Info("health monitor started", zap.Duration("interval", m.interval))
		m.Sweep(ctx)

		for {
			select {
			case <-ticker.C:
				m.Sweep(ctx)
			case <-ctx.Done():
				m.log.Info("health monitor stopped")
				return
			}
		}
	}()
}

// Stop cancels the sweep loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Sweep probes every registered worker once, in parallel, and records the
// outcomes. Exported so the router can probe on demand after a forward
// failure.
func (m *Monitor) Sweep(ctx context.Context) {
	workers := m.registry.All()

	g, ctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(func() error {
			m.Probe(ctx, w)
			return nil
		})
	}
	_ = g.Wait()
}

// Probe checks a single worker and updates its liveness flag.
func (m *Monitor) Probe(ctx context.Context, w cluster.WorkerInstance) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.checkFunc(probeCtx, w.Addr)
	now := time.Now()
	if err != nil {
		metrics.ProbeFailures.Inc()
		if w.Healthy {
			m.log.Warn("worker became unhealthy",
				zap.String("worker", w.ID),
				zap.String("addr", w.Addr),
				zap.Error(err))
		}
		m.registry.setHealth(w.ID, false, now)
		return false
	}
	if !w.Healthy {
		m.log.Info("worker recovered", zap.String("worker", w.ID), zap.String("addr", w.Addr))
	}
	m.registry.setHealth(w.ID, true, now)
	return true
}

// defaultProbe performs GET {addr}/health. Any transport error or non-2xx
// status is a failure.
func (m *Monitor) defaultProbe(ctx context.Context, addr string) error {
	url := addr
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	url = strings.TrimRight(url, "/") + "/health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("health probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health probe returned status %d", resp.StatusCode)
	}
	return nil
}
