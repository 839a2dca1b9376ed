package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrInjected is returned by Tree methods whose node has a pending failure.
var ErrInjected = errors.New("injected failure")

// Tree is an in-memory node source keyed by node name. Its methods match the
// traversal source capability set for string nodes.
type Tree struct {
	mu          sync.Mutex
	children    map[string][]string
	processable map[string]bool
	expandFail  map[string]int
	processFail map[string]bool
	processed   []string
	calls       map[string]int

	// Delay is slept inside Process to simulate slow work.
	Delay time.Duration

	// OnProcess, when set, is called after a node is recorded as processed.
	OnProcess func(node string)
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{
		children:    make(map[string][]string),
		processable: make(map[string]bool),
		expandFail:  make(map[string]int),
		processFail: make(map[string]bool),
		calls:       make(map[string]int),
	}
}

// AddFolder registers a node with the given children.
func (t *Tree) AddFolder(name string, children ...string) *Tree {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.children[name] = append(t.children[name], children...)
	return t
}

// AddAsset registers a processable leaf.
func (t *Tree) AddAsset(name string) *Tree {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processable[name] = true
	return t
}

// FailExpansion makes the next n expansions of node fail.
func (t *Tree) FailExpansion(node string, n int) *Tree {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expandFail[node] = n
	return t
}

// FailProcessing makes every Process call for node fail.
func (t *Tree) FailProcessing(node string) *Tree {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processFail[node] = true
	return t
}

// HasChildren reports whether node has registered children. A pending
// injected failure is consumed here.
func (t *Tree) HasChildren(_ context.Context, node string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls[node]++
	if t.expandFail[node] > 0 {
		t.expandFail[node]--
		return false, fmt.Errorf("expand %s: %w", node, ErrInjected)
	}
	return len(t.children[node]) > 0, nil
}

// GetChildren returns the registered children of node.
func (t *Tree) GetChildren(_ context.Context, node string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.children[node]...), nil
}

// ShouldProcess reports whether node was added with AddAsset.
func (t *Tree) ShouldProcess(_ context.Context, node string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.processable[node], nil
}

// Process records node as processed unless a failure is injected.
func (t *Tree) Process(_ context.Context, node string) error {
	if t.Delay > 0 {
		time.Sleep(t.Delay)
	}

	t.mu.Lock()
	if t.processFail[node] {
		t.mu.Unlock()
		return fmt.Errorf("process %s: %w", node, ErrInjected)
	}
	t.processed = append(t.processed, node)
	hook := t.OnProcess
	t.mu.Unlock()

	if hook != nil {
		hook(node)
	}
	return nil
}

// Processed returns the processed nodes sorted by name.
func (t *Tree) Processed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := append([]string(nil), t.processed...)
	sort.Strings(out)
	return out
}

// ExpansionCalls returns how many times HasChildren was called for node.
func (t *Tree) ExpansionCalls(node string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[node]
}
