// Package router resolves which worker instance should handle a session's
// next turn, keeping conversations sticky to one worker while the pool is
// stable and rebalancing deterministically when it is not.
package router

import (
	"context"
	"crypto/md5"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/relay/internal/cluster"
	"github.com/dreamware/relay/internal/fault"
	"github.com/dreamware/relay/internal/logging"
	"github.com/dreamware/relay/internal/metrics"
	"github.com/dreamware/relay/internal/registry"
	"github.com/dreamware/relay/internal/state"
)

// Resolver implements session-affinity routing over a registry snapshot and
// the shared affinity records in the session store.
type Resolver struct {
	registry *registry.Registry
	store    state.Store
	ttl      time.Duration
	log      *zap.Logger
}

// New creates a resolver. ttl is the affinity record lifetime, refreshed on
// every fresh assignment.
func New(reg *registry.Registry, store state.Store, ttl time.Duration) *Resolver {
	return &Resolver{
		registry: reg,
		store:    store,
		ttl:      ttl,
		log:      logging.Named("router"),
	}
}

// Resolve returns the worker that should handle sessionID for the given
// capability tag.
//
// Resolution order:
//  1. Sticky path: if the stored affinity record names a worker that is
//     currently healthy and tag-matched, return it without writing.
//  2. Otherwise hash the session id over the deterministically ordered
//     healthy set and overwrite the affinity record with a refreshed TTL.
//
// Selection is md5(sessionID) taken as a 128-bit unsigned integer, modulo
// the healthy count. Plain modulo remaps many sessions when the healthy
// set's size changes; a rendezvous hash would shrink that footprint, but the
// modulo scheme is kept so routing stays observably identical to the
// original deployment (see DESIGN.md).
//
// Store failures degrade rather than fail: an unreadable affinity record
// falls through to hashing, an unwritable one costs only stickiness, since
// resolution is idempotent per request. The only terminal error is
// fault.KindRoutingUnavailable, when no healthy worker matches the tag.
func (r *Resolver) Resolve(ctx context.Context, sessionID, tag string) (cluster.WorkerInstance, error) {
	rec, err := r.store.GetAffinity(ctx, sessionID)
	if err != nil {
		r.log.Warn("affinity read failed, degrading to hash selection",
			zap.String("session", sessionID), zap.Error(err))
		rec = nil
	}
	if rec != nil && rec.WorkerTag == tag {
		if w, ok := r.registry.Lookup(rec.WorkerAddr); ok && w.Healthy && w.Tag == tag {
			metrics.RoutingDecisions.WithLabelValues("sticky").Inc()
			return w, nil
		}
	}

	healthy := r.registry.Healthy(tag)
	if len(healthy) == 0 {
		return cluster.WorkerInstance{}, fault.New(fault.KindRoutingUnavailable,
			"no healthy worker for tag "+tag)
	}

	selected := healthy[hashIndex(sessionID, len(healthy))]

	newRec := &state.AffinityRecord{
		SessionID:  sessionID,
		WorkerAddr: selected.Addr,
		WorkerTag:  selected.Tag,
		AssignedAt: time.Now().UTC(),
	}
	if err := r.store.PutAffinity(ctx, sessionID, newRec, r.ttl); err != nil {
		// Losing the record costs stickiness, not correctness.
		r.log.Warn("affinity write failed",
			zap.String("session", sessionID), zap.Error(err))
	}

	metrics.RoutingDecisions.WithLabelValues("hashed").Inc()
	r.log.Info("assigned session",
		zap.String("session", sessionID),
		zap.String("worker", selected.ID),
		zap.String("addr", selected.Addr))
	return selected, nil
}

// hashIndex maps a session id onto [0, n) using the md5 digest as a 128-bit
// unsigned integer. Stable across processes and runs.
func hashIndex(sessionID string, n int) int {
	sum := md5.Sum([]byte(sessionID))
	v := new(big.Int).SetBytes(sum[:])
	return int(v.Mod(v, big.NewInt(int64(n))).Int64())
}
