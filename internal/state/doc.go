// Package state implements the distributed session state store: the durable
// transcript and routing-affinity records shared by every relay service.
//
// # Overview
//
// Two kinds of record live in the store, under independent TTL-backed keys:
//
//	session:<id>        the Transcript (ordered user/assistant turns)
//	session_route:<id>  the AffinityRecord (which worker owns the session)
//
// Both keys expire after the configured session TTL (default 3600s) and are
// independently refreshed on every write. Expiry is delegated to the store
// technology; no component sweeps keys.
//
// # Consistency Model
//
// The store guarantees per-key atomicity only. It deliberately provides no
// multi-key transactions and no compare-and-set for transcripts: the
// pipeline's per-session mutual exclusion (see internal/pipeline) is what
// prevents lost updates in the fetch-append-write turn sequence, and a
// missing affinity record only costs stickiness, never correctness, because
// resolution is idempotent per request.
//
// # Drivers
//
// Two drivers sit behind the New factory:
//
//   - redis: production driver over a shared redis instance, values are
//     JSON, TTL via SET expiry
//   - memory: in-process driver with the same observable behavior including
//     TTL expiry, for tests and single-node development
//
// Absence is never an error: an untouched session reads back as an empty
// transcript with a nil creation time, and a nil affinity record.
package state
