// Package registry tracks the pool of reasoning workers and their liveness.
//
// # Overview
//
// The Registry is the router's authoritative view of which workers exist
// and which capability tag each one serves. The Monitor keeps each worker's
// liveness flag current by probing /health on a fixed interval with a
// bounded timeout.
//
// Responsibilities are split deliberately:
//
//	Registry: identity (who exists, immutable after registration)
//	Monitor:  liveness (who is answering right now)
//
// # Liveness Semantics
//
// Probes are all-or-nothing per attempt: one failed probe (transport error,
// timeout, non-2xx) marks a worker unhealthy, one success marks it healthy.
// Workers are never removed, so a worker that crashes and restarts resumes
// receiving traffic at the next successful sweep without re-registering.
//
// Health state is eventually consistent. A request the router sends in the
// gap between a worker dying and the next sweep will fail in flight; the
// router handles that as a retryable routing error, re-resolving against a
// fresh snapshot rather than trusting the stale flag.
//
// # Ordering
//
// All registry reads return workers ordered by address. Deterministic order
// is load-bearing: the affinity router selects by hash modulo position, so
// repeated reads within one liveness snapshot must enumerate identically.
//
// # Concurrency Model
//
// The registry serializes access with an RWMutex and returns copies from
// every read, so snapshots stay stable while the monitor mutates flags.
// Sweeps probe all workers in parallel; no lock is held during network I/O.
package registry
