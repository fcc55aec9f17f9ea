// Package workflow manages the worker-local cache of instantiated
// reasoning workflows.
//
// The cache exists purely for performance: building a workflow per turn is
// wasted work, but nothing in it is authoritative. The transcript in the
// session store is the source of truth, so eviction is always safe and the
// cache is never consulted to decide where a session should run. Routing,
// not cache presence, is authoritative; a stale entry on a worker that lost
// a session's affinity simply ages out.
//
// The naive version of this map grows without bound under sustained
// traffic, one entry per session ever seen. The cache therefore enforces a
// capacity bound with LRU eviction plus an idle window, both configurable.
package workflow
