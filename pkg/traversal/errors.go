package traversal

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned by New when the source or configuration is unusable.
	ErrInvalidConfig = errors.New("invalid traverser config")

	// ErrAlreadyStarted is returned when TraverseTree is called on a traverser
	// that is running or has already terminated.
	ErrAlreadyStarted = errors.New("traverser already started")
)

// Phase identifies the drain in which a node failed.
type Phase string

const (
	// PhaseTraverse marks a failure while expanding a node.
	PhaseTraverse Phase = "traverse"

	// PhaseProcess marks a failure while processing a node.
	PhaseProcess Phase = "process"
)

// ErrorEntry is one record of the error log.
type ErrorEntry[N any] struct {
	Phase Phase  `json:"phase"`
	Node  N      `json:"node"`
	Error string `json:"error"`

	cause error
}

func newErrorEntry[N any](phase Phase, node N, err error) ErrorEntry[N] {
	return ErrorEntry[N]{
		Phase: phase,
		Node:  node,
		Error: err.Error(),
		cause: err,
	}
}

// Cause returns the original error. Entries restored from a snapshot only
// carry the message, so a plain error is rebuilt from it.
func (e ErrorEntry[N]) Cause() error {
	if e.cause != nil {
		return e.cause
	}
	return errors.New(e.Error)
}

// PanicError wraps a panic recovered from a Source call.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("source panicked: %v", e.Value)
}
