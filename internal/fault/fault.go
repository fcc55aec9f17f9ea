// Package fault defines the stable error taxonomy surfaced by the relay
// services. Every user-visible failure carries a machine-readable kind and a
// human-readable detail; raw stack traces never leave the process.
package fault

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable identifier for a class of failure. Kinds are part of
// the external contract: clients may switch on them, so values never change.
type Kind string

const (
	// KindRoutingUnavailable means no healthy worker matched the requested
	// capability tag. Surfaced as 503; the client may retry later.
	KindRoutingUnavailable Kind = "routing_unavailable"

	// KindUpstreamUnreachable means the selected worker failed to respond,
	// including after one retry against a re-resolved instance.
	KindUpstreamUnreachable Kind = "upstream_unreachable"

	// KindStoreUnavailable means a transcript read or write against the
	// session store failed. Affinity store failures are absorbed and never
	// carry this kind.
	KindStoreUnavailable Kind = "store_unavailable"

	// KindGenerationFailure means the reasoning call errored or timed out.
	// The stored transcript is left unmodified.
	KindGenerationFailure Kind = "generation_failure"

	// KindInternal is the catch-all for unexpected failures.
	KindInternal Kind = "internal"
)

// Error is a classified failure with an HTTP mapping.
// The wrapped cause is for logs only and is never serialized.
type Error struct {
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail"`
	Status int    `json:"-"`
	Err    error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Detail)
}

// Unwrap exposes the cause to errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind. Status is derived from the kind.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail, Status: statusFor(kind)}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(err error, kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail, Status: statusFor(kind), Err: err}
}

// From classifies an arbitrary error. Errors that already carry a kind pass
// through; anything else becomes KindInternal with a generic detail so the
// original message (which may embed internals) is not exposed.
func From(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return Wrap(err, KindInternal, "internal error")
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == kind
}

func statusFor(kind Kind) int {
	switch kind {
	case KindRoutingUnavailable:
		return http.StatusServiceUnavailable
	case KindUpstreamUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse controls exactly which fields reach the client.
type errorResponse struct {
	Error  string `json:"error"`
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// WriteError renders err as the standard JSON error body with the status
// code mapped from its kind.
func WriteError(w http.ResponseWriter, err error) {
	fe := From(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(fe.Status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:  string(fe.Kind),
		Kind:   fe.Kind,
		Detail: fe.Detail,
	})
}
