package traversal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// State is a serializable snapshot of a traverser. Passing it to New resumes
// the walk where the snapshot was taken.
type State[N any] struct {
	Errors          []ErrorEntry[N] `json:"errors"`
	Processed       int             `json:"processed"`
	Traversed       int             `json:"traversed"`
	TraversalQueue  []N             `json:"traversalQueue"`
	ProcessingQueue []N             `json:"processingQueue"`

	// TraversalBatch and ProcessingBatch hold the batches that were being
	// dispatched when the snapshot was taken. They are empty once a batch completes.
	TraversalBatch  []N `json:"traversalBatch"`
	ProcessingBatch []N `json:"processingBatch"`

	// TraversalRetried lists indexes into TraversalQueue whose node already
	// used its one expansion retry. TraversalBatchRetried does the same for TraversalBatch.
	TraversalRetried      []int `json:"traversalRetried,omitempty"`
	TraversalBatchRetried []int `json:"traversalBatchRetried,omitempty"`
}

// WithBatchesRequeued returns a copy of the state with the in-flight batches
// put back at the front of their queues. Use it when the snapshot was taken
// without letting the dispatched batches finish; nodes of those batches that
// already completed will be attempted again.
func (s State[N]) WithBatchesRequeued() State[N] {
	traversal := append(toQueued(s.TraversalBatch, s.TraversalBatchRetried), toQueued(s.TraversalQueue, s.TraversalRetried)...)
	nodes, retried := fromQueued(traversal)

	out := s
	out.Errors = append([]ErrorEntry[N](nil), s.Errors...)
	out.TraversalQueue = nodes
	out.TraversalRetried = retried
	out.ProcessingQueue = append(append([]N{}, s.ProcessingBatch...), s.ProcessingQueue...)
	out.TraversalBatch = []N{}
	out.TraversalBatchRetried = nil
	out.ProcessingBatch = []N{}
	return out
}

// queued is a traversal queue entry. The retry marker lives here so the
// caller's node value is never touched.
type queued[N any] struct {
	node    N
	retried bool
}

func toQueued[N any](nodes []N, retried []int) []queued[N] {
	out := make([]queued[N], len(nodes))
	for i, n := range nodes {
		out[i] = queued[N]{node: n}
	}
	for _, idx := range retried {
		if idx >= 0 && idx < len(out) {
			out[idx].retried = true
		}
	}
	return out
}

func fromQueued[N any](items []queued[N]) ([]N, []int) {
	nodes := make([]N, len(items))
	var retried []int
	for i, item := range items {
		nodes[i] = item.node
		if item.retried {
			retried = append(retried, i)
		}
	}
	return nodes, retried
}

// Result summarises a finished (or stopped) run.
type Result[N any] struct {
	Duration  time.Duration
	Errors    []ErrorEntry[N]
	Processed int

	// Traversed counts nodes whose expansion succeeded. A node that still
	// fails after its retry is not counted; it appears only in Errors.
	Traversed int

	// Stopped is true when the run ended through Stop or context
	// cancellation rather than by exhausting the tree.
	Stopped bool
}

type resultJSON[N any] struct {
	Duration  int64           `json:"duration"`
	Errors    []ErrorEntry[N] `json:"errors"`
	Processed int             `json:"processed"`
	Traversed int             `json:"traversed"`
	Stopped   bool            `json:"stopped,omitempty"`
}

// MarshalJSON encodes the duration in milliseconds.
func (r Result[N]) MarshalJSON() ([]byte, error) {
	errs := r.Errors
	if errs == nil {
		errs = []ErrorEntry[N]{}
	}
	return json.Marshal(resultJSON[N]{
		Duration:  r.Duration.Milliseconds(),
		Errors:    errs,
		Processed: r.Processed,
		Traversed: r.Traversed,
		Stopped:   r.Stopped,
	})
}

// UnmarshalJSON decodes the millisecond duration written by MarshalJSON.
func (r *Result[N]) UnmarshalJSON(data []byte) error {
	var raw resultJSON[N]
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Result[N]{
		Duration:  time.Duration(raw.Duration) * time.Millisecond,
		Errors:    raw.Errors,
		Processed: raw.Processed,
		Traversed: raw.Traversed,
		Stopped:   raw.Stopped,
	}
	return nil
}

// Err folds the error log into a single error. It returns nil when the run
// had no failures.
func (r Result[N]) Err() error {
	var merr *multierror.Error
	for _, entry := range r.Errors {
		merr = multierror.Append(merr, fmt.Errorf("%s %v: %w", entry.Phase, entry.Node, entry.Cause()))
	}
	return merr.ErrorOrNil()
}
