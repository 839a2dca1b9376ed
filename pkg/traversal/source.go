package traversal

import (
	"context"
	"fmt"
	"strings"
)

// Source supplies the shape of the tree and the work to perform on it.
// All methods may block and may fail.
type Source[N any] interface {
	// HasChildren reports whether expansion should be attempted for node.
	HasChildren(ctx context.Context, node N) (bool, error)

	// GetChildren returns the direct children of node. It is only called
	// when HasChildren returned true.
	GetChildren(ctx context.Context, node N) ([]N, error)

	// ShouldProcess reports whether node qualifies for processing.
	ShouldProcess(ctx context.Context, node N) (bool, error)

	// Process performs the side effect for node. A failure is terminal for that node.
	Process(ctx context.Context, node N) error
}

// SourceFuncs adapts four plain functions to a Source.
type SourceFuncs[N any] struct {
	HasChildrenFn   func(ctx context.Context, node N) (bool, error)
	GetChildrenFn   func(ctx context.Context, node N) ([]N, error)
	ShouldProcessFn func(ctx context.Context, node N) (bool, error)
	ProcessFn       func(ctx context.Context, node N) error
}

// Ensure SourceFuncs implements Source.
var _ Source[string] = SourceFuncs[string]{}

// HasChildren implements Source.
func (f SourceFuncs[N]) HasChildren(ctx context.Context, node N) (bool, error) {
	return f.HasChildrenFn(ctx, node)
}

// GetChildren implements Source.
func (f SourceFuncs[N]) GetChildren(ctx context.Context, node N) ([]N, error) {
	return f.GetChildrenFn(ctx, node)
}

// ShouldProcess implements Source.
func (f SourceFuncs[N]) ShouldProcess(ctx context.Context, node N) (bool, error) {
	return f.ShouldProcessFn(ctx, node)
}

// Process implements Source.
func (f SourceFuncs[N]) Process(ctx context.Context, node N) error {
	return f.ProcessFn(ctx, node)
}

// Validate reports which capability functions are missing.
func (f SourceFuncs[N]) Validate() error {
	var missing []string
	if f.GetChildrenFn == nil {
		missing = append(missing, "GetChildrenFn")
	}
	if f.HasChildrenFn == nil {
		missing = append(missing, "HasChildrenFn")
	}
	if f.ProcessFn == nil {
		missing = append(missing, "ProcessFn")
	}
	if f.ShouldProcessFn == nil {
		missing = append(missing, "ShouldProcessFn")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing fields: %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}
	return nil
}

type validator interface {
	Validate() error
}

func validateSource[N any](source Source[N]) error {
	if source == nil {
		return fmt.Errorf("%w: source is required", ErrInvalidConfig)
	}
	if v, ok := source.(validator); ok {
		return v.Validate()
	}
	return nil
}
