package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/relay/internal/fault"
	"github.com/dreamware/relay/internal/llm"
	"github.com/dreamware/relay/internal/logging"
	"github.com/dreamware/relay/internal/metrics"
	"github.com/dreamware/relay/internal/state"
	"github.com/dreamware/relay/internal/workflow"
)

// Pipeline executes one chat turn on a worker: fetch the transcript, run
// reasoning, persist the result. One Pipeline instance serves every
// in-flight request on the worker; it is created at worker start and torn
// down at shutdown, never a process-wide singleton.
type Pipeline struct {
	store           state.Store
	cache           *workflow.Cache
	gen             llm.Generator
	sessionTTL      time.Duration
	generateTimeout time.Duration
	locks           *sessionLocks
	log             *zap.Logger
}

// New wires a pipeline from its collaborators.
func New(store state.Store, cache *workflow.Cache, gen llm.Generator, sessionTTL, generateTimeout time.Duration) *Pipeline {
	return &Pipeline{
		store:           store,
		cache:           cache,
		gen:             gen,
		sessionTTL:      sessionTTL,
		generateTimeout: generateTimeout,
		locks:           newSessionLocks(),
		log:             logging.Named("pipeline"),
	}
}

// ProcessTurn runs the FETCHING -> REASONING -> PERSISTING sequence for one
// turn and returns the assistant reply. (ROUTING happened at the edge; the
// worker receives only turns it was selected for.)
//
// Correctness notes, both deliberate:
//
//   - The whole sequence holds the session's exclusion lock. The sequence
//     is a read-modify-write over shared store state, and two concurrent
//     turns for one session would otherwise silently lose an update. The
//     lock is process-local, scoped to the worker holding affinity; during
//     a reassignment race two workers can briefly interleave independent
//     writes, a window bounded by the affinity TTL and resolved
//     last-write-wins. No distributed lock, accepted tradeoff.
//
//   - Once reasoning has produced a reply, persistence proceeds even if the
//     client has disconnected: dropping the reply would leave the user's
//     message in the transcript with no answer on the next turn. Only
//     response delivery is skipped by the caller.
//
// The store write in PERSISTING is the turn's only write and it is
// unconditional, so a failure at any point leaves the old transcript
// intact, never a half-updated one.
func (p *Pipeline) ProcessTurn(ctx context.Context, sessionID, message string) (string, error) {
	start := time.Now()
	reply, err := p.processTurn(ctx, sessionID, message)
	metrics.TurnDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TurnsTotal.WithLabelValues(string(fault.From(err).Kind)).Inc()
		return "", err
	}
	metrics.TurnsTotal.WithLabelValues("ok").Inc()
	return reply, nil
}

func (p *Pipeline) processTurn(ctx context.Context, sessionID, message string) (string, error) {
	release := p.locks.acquire(sessionID)
	defer release()

	// FETCHING
	transcript, err := p.store.GetTranscript(ctx, sessionID)
	if err != nil {
		return "", fault.Wrap(err, fault.KindStoreUnavailable, "transcript fetch failed")
	}

	// REASONING: the user turn is appended in memory only; nothing is
	// visible in the store until the single write below.
	transcript.Append(state.RoleUser, message)

	wf := p.cache.GetOrCreate(sessionID, func() *workflow.Workflow {
		return workflow.New(sessionID, p.gen)
	})

	// The generate call and the persist step run on a context detached
	// from the client: a disconnect must not lose the reply.
	detached := context.WithoutCancel(ctx)

	genCtx, cancel := context.WithTimeout(detached, p.generateTimeout)
	reply, err := wf.RunTurn(genCtx, transcript.Turns)
	cancel()
	if err != nil {
		// A slow or failed generation fails the turn, not the worker.
		return "", fault.Wrap(err, fault.KindGenerationFailure, "reasoning failed")
	}

	// PERSISTING
	transcript.Append(state.RoleAssistant, reply)
	if err := p.store.PutTranscript(detached, sessionID, transcript, p.sessionTTL); err != nil {
		return "", fault.Wrap(err, fault.KindStoreUnavailable, "transcript write failed")
	}

	p.log.Info("turn completed",
		zap.String("session", sessionID),
		zap.Int("turns", len(transcript.Turns)))
	return reply, nil
}
