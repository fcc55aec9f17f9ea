// Package cluster defines the shared wire contract between the relay router
// and its pool of reasoning workers: worker descriptors, chat turn payloads,
// and the JSON-over-HTTP helpers both sides use to talk to each other.
//
// # Overview
//
// Relay is a coordinator-based topology. A single router fronts many
// stateless workers and keeps each conversation pinned to one of them:
//
//	              ┌──────────────┐
//	              │    Router    │
//	              │              │
//	              │ - Registry   │
//	              │ - Health Mon │
//	              │ - Affinity   │
//	              └──────┬───────┘
//	                     │
//	      ┌──────────────┼──────────────┐
//	      │              │              │
//	┌─────▼─────┐ ┌─────▼─────┐ ┌─────▼─────┐
//	│ Worker 1  │ │ Worker 2  │ │ Worker 3  │
//	│           │ │           │ │           │
//	│ tag:      │ │ tag:      │ │ tag:      │
//	│ general   │ │ general   │ │ general   │
//	└─────┬─────┘ └─────┬─────┘ └─────┬─────┘
//	      └──────────────┼──────────────┘
//	                     │
//	              ┌──────▼───────┐
//	              │ Session Store│
//	              │ (redis, TTL) │
//	              └──────────────┘
//
// # Communication Protocol
//
// All inter-service communication is HTTP/JSON:
//
// Worker Registration (POST /register on the router):
//   - Workers announce identity, address, and capability tag at startup
//   - Re-registration with the same ID replaces the previous descriptor
//
// Health Checking (GET /health on each worker):
//   - Periodic liveness probes from the router's health monitor
//   - Timeout or non-2xx marks the worker unhealthy
//
// Turn Routing (POST /route on the router):
//   - The router resolves the session's sticky worker and forwards the
//     turn to that worker's /chat endpoint, relaying the reply verbatim
//
// # Concurrency Model
//
// Types in this package are plain data. The router copies descriptors out
// of its registry under lock before handing them to callers, so a
// WorkerInstance received from any API is safe to read without
// synchronization.
//
// # See Also
//
// Related packages:
//   - internal/registry: worker registry and health monitoring
//   - internal/router: session-affinity resolution
//   - internal/state: durable transcript and affinity storage
//   - internal/pipeline: per-turn orchestration on the worker
package cluster
