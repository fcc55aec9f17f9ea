// Package llm abstracts the reasoning call: the black-box function that
// turns a conversation history into the next assistant reply.
package llm

import (
	"context"

	"github.com/dreamware/relay/internal/state"
)

// Generator produces the assistant reply for a conversation history.
//
// Implementations must be safe for concurrent use: one Generator instance
// is shared by every in-flight turn on a worker. Generate must honor ctx;
// the pipeline wraps each call in its own deadline because reasoning may be
// slow and a hung call must fail the turn, not the worker.
type Generator interface {
	Generate(ctx context.Context, turns []state.Turn) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, turns []state.Turn) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, turns []state.Turn) (string, error) {
	return f(ctx, turns)
}
