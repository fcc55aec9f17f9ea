// Package pipeline implements the per-turn request orchestration on a
// reasoning worker.
//
// # State Machine
//
// Each turn walks a fixed sequence:
//
//	ROUTING -> FETCHING -> REASONING -> PERSISTING -> DONE
//	                \           \            \
//	                 `-----------`------------`---> FAILED
//
// ROUTING happens at the edge (cmd/router); the worker pipeline begins at
// FETCHING. Any unhandled error short-circuits to FAILED, surfaces a
// classified fault to the caller, and leaves the store untouched: the
// single unconditional transcript write in PERSISTING is the only write a
// turn performs, so partial failure means the old transcript, never a
// half-updated one.
//
// # Lost-Update Prevention
//
// FETCHING through PERSISTING is a read-modify-write over shared store
// state. Without exclusion, two concurrent turns for the same session each
// read N turns, each append two, and the second write erases the first.
// The pipeline therefore serializes turns per session id with an in-process
// keyed mutex, held from fetch to persist. This is a correctness fix over
// the naive flow, not an optimization; see the concurrency test for the
// interleaving it prevents.
//
// The lock is deliberately not distributed. The router keeps one worker
// sticky per session in the steady state, so the lock's process scope
// matches the ownership scope. During a reassignment race two workers can
// briefly both accept turns for one session and interleave independent
// reads and writes; the window is bounded by the affinity TTL and resolves
// with last-write-wins semantics.
//
// # Cancellation
//
// A client disconnect before PERSISTING does not abort the turn: the reply
// is still generated and persisted so the transcript stays consistent for
// the next turn, and only response delivery is skipped. The generate call
// carries its own timeout, independent of the client's context.
package pipeline
