package workflow

import (
	"context"
	"time"

	"github.com/dreamware/relay/internal/llm"
	"github.com/dreamware/relay/internal/state"
)

// Workflow is the instantiated reasoning workflow for one session: the
// per-session handle a worker builds once and reuses across turns.
//
// A Workflow is a performance artifact, never a source of truth. Dropping
// one is always safe; the next turn rebuilds it from the transcript in the
// session store.
type Workflow struct {
	sessionID string
	gen       llm.Generator
	createdAt time.Time
}

// New builds a workflow binding a session to a generator.
func New(sessionID string, gen llm.Generator) *Workflow {
	return &Workflow{
		sessionID: sessionID,
		gen:       gen,
		createdAt: time.Now(),
	}
}

// SessionID returns the session this workflow serves.
func (w *Workflow) SessionID() string { return w.sessionID }

// CreatedAt returns when the workflow was instantiated.
func (w *Workflow) CreatedAt() time.Time { return w.createdAt }

// RunTurn produces the assistant reply for the given history.
// It has no side effects: persisting the reply is the pipeline's job.
func (w *Workflow) RunTurn(ctx context.Context, turns []state.Turn) (string, error) {
	return w.gen.Generate(ctx, turns)
}
