// Package faults defines the shared error taxonomy for outbound service
// calls and pipeline runs.
//
// Resource-local kinds (RateLimited, QuotaExhausted, CircuitOpen) are mostly
// absorbed into waiting inside the scheduler; they surface when the wait
// cannot fit the caller's deadline or when retries run out.
// Run-local kinds (RenderError, PublishError, Timeout) terminate a single
// pipeline run and are recorded by the orchestrator.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and reporting decisions.
type Kind string

const (
	// RateLimited indicates the remote service throttled the request. Retryable.
	RateLimited Kind = "rate_limited"
	// QuotaExhausted indicates a daily quota would be exceeded. Retryable only
	// after the quota resets; backoff does not help.
	QuotaExhausted Kind = "quota_exhausted"
	// TransientNetwork indicates a timeout or 5xx-class failure. Retryable with
	// bounded attempts.
	TransientNetwork Kind = "transient_network"
	// AuthError indicates rejected credentials. Fatal, never retried.
	AuthError Kind = "auth_error"
	// ValidationError indicates a malformed request or item. Fatal for the
	// current item; does not imply the resource is unhealthy.
	ValidationError Kind = "validation_error"
	// CircuitOpen indicates the circuit breaker is rejecting submissions for
	// the resource until its cooldown elapses.
	CircuitOpen Kind = "circuit_open"
	// RenderError indicates the render service terminally failed the job.
	RenderError Kind = "render_error"
	// PublishError indicates the publish step terminally failed.
	PublishError Kind = "publish_error"
	// Timeout indicates the run-scoped deadline expired.
	Timeout Kind = "timeout"
	// RetriesExhausted is the terminal wrapper produced by the scheduler when
	// all attempts for a request failed; it wraps the last observed cause.
	RetriesExhausted Kind = "retries_exhausted"
)

// Error attaches a taxonomy kind to an underlying cause.
type Error struct {
	Kind     Kind
	Resource string // resource the error is local to, if any
	Err      error
}

// Error returns a string representation including the kind.
func (e *Error) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Resource, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error from a format string.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies an existing error. If err is already classified the
// original kind is replaced; the cause chain is preserved either way.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// WrapResource classifies an error as local to a resource.
func WrapResource(kind Kind, resource string, err error) *Error {
	return &Error{Kind: kind, Resource: resource, Err: err}
}

// KindOf returns the taxonomy kind of err, or "" if unclassified.
// It unwraps through the error chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if fe, ok := e.(*Error); ok && fe.Kind == kind {
			return true
		}
	}
	return false
}

// Retryable reports whether the scheduler may retry the request after
// backoff. Quota exhaustion is excluded: waiting out a backoff delay cannot
// replenish a daily quota.
func Retryable(err error) bool {
	switch KindOf(err) {
	case RateLimited, TransientNetwork:
		return true
	default:
		return false
	}
}
