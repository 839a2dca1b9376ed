package traversal

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Status is the lifecycle state of a Traverser.
type Status string

const (
	// StatusIdle is a freshly constructed or restored traverser.
	StatusIdle Status = "idle"

	// StatusRunning means both drains are active.
	StatusRunning Status = "running"

	// StatusDraining means expansion is done but processing work remains.
	StatusDraining Status = "draining"

	// StatusTerminated means the run is over and the traverser is inert.
	StatusTerminated Status = "terminated"
)

// Traverser walks a tree supplied by a Source and processes qualifying nodes.
type Traverser[N any] struct {
	source Source[N]
	config Config[N]
	logger zerolog.Logger

	// mu guards everything below, including the run flags.
	mu              sync.Mutex
	traversalQueue  []queued[N]
	processingQueue []N
	traversalBatch  []queued[N]
	processingBatch []N
	errors          []ErrorEntry[N]
	processed       int
	traversed       int
	running         bool
	moreNodes       bool
	started         bool
	terminated      bool
	stopped         bool
}

// New creates a traverser. When state is non-nil its queues, batches,
// counters and error log are restored verbatim.
func New[N any](source Source[N], config Config[N], state *State[N]) (*Traverser[N], error) {
	if err := validateSource(source); err != nil {
		return nil, err
	}

	config = config.normalize()
	t := &Traverser[N]{
		source: source,
		config: config,
		logger: *config.Logger,
	}

	if state != nil {
		t.logger.Info().
			Int("processed", state.Processed).
			Int("traversed", state.Traversed).
			Int("errors", len(state.Errors)).
			Int("traversal_queue_size", len(state.TraversalQueue)).
			Int("processing_queue_size", len(state.ProcessingQueue)).
			Msg("Resuming from state")

		t.errors = append([]ErrorEntry[N](nil), state.Errors...)
		t.processed = state.Processed
		t.traversed = state.Traversed
		t.traversalQueue = toQueued(state.TraversalQueue, state.TraversalRetried)
		t.processingQueue = append([]N(nil), state.ProcessingQueue...)
		t.traversalBatch = toQueued(state.TraversalBatch, state.TraversalBatchRetried)
		t.processingBatch = append([]N(nil), state.ProcessingBatch...)
	}

	return t, nil
}

// GetState returns a snapshot of the queues, in-flight batches, counters and
// error log. The returned slices are copies.
func (t *Traverser[N]) GetState() State[N] {
	t.mu.Lock()
	defer t.mu.Unlock()

	traversalQueue, traversalRetried := fromQueued(t.traversalQueue)
	traversalBatch, traversalBatchRetried := fromQueued(t.traversalBatch)

	return State[N]{
		Errors:                append([]ErrorEntry[N]{}, t.errors...),
		Processed:             t.processed,
		Traversed:             t.traversed,
		TraversalQueue:        traversalQueue,
		ProcessingQueue:       append([]N{}, t.processingQueue...),
		TraversalBatch:        traversalBatch,
		ProcessingBatch:       append([]N{}, t.processingBatch...),
		TraversalRetried:      traversalRetried,
		TraversalBatchRetried: traversalBatchRetried,
	}
}

// Status reports the lifecycle state.
func (t *Traverser[N]) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.terminated:
		return StatusTerminated
	case !t.started:
		return StatusIdle
	case t.running && !t.moreNodes && len(t.processingQueue) > 0:
		return StatusDraining
	case t.running:
		return StatusRunning
	default:
		// Stop was requested and in-flight batches are finishing.
		return StatusDraining
	}
}

// Stop requests a cooperative stop. No further batches are started; batches
// already dispatched run to completion before TraverseTree returns.
func (t *Traverser[N]) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		t.logger.Info().Msg("Stop requested")
	}
	if t.started && !t.terminated {
		t.stopped = true
	}
	t.running = false
	t.moreNodes = false
}

// TraverseTree seeds the traversal queue with roots (none when resuming from
// a snapshot) and runs both drains until the tree is exhausted or the run is
// stopped. Cancelling ctx is equivalent to calling Stop; node operations
// already dispatched are not cancelled.
//
// Node failures never surface as an error here: they are recorded in the
// result's error log.
func (t *Traverser[N]) TraverseTree(ctx context.Context, roots ...N) (Result[N], error) {
	start := time.Now()

	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return Result[N]{}, ErrAlreadyStarted
	}
	for _, root := range roots {
		t.traversalQueue = append(t.traversalQueue, queued[N]{node: root})
	}
	t.started = true
	t.running = true
	t.moreNodes = true
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.moreNodes = false
		t.running = false
		t.terminated = true
		t.mu.Unlock()
	}()

	opCtx := context.WithoutCancel(ctx)
	drained := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		t.drainTraversal(opCtx)
	}()
	go func() {
		defer wg.Done()
		t.drainProcessing(opCtx)
	}()
	go func() {
		wg.Wait()
		close(drained)
	}()

	ticker := time.NewTicker(t.config.WaitDuration)
	defer ticker.Stop()

	done := ctx.Done()
	interval := 0
	for t.isRunning() {
		select {
		case <-done:
			t.logger.Warn().Err(ctx.Err()).Msg("Context done, stopping traversal")
			t.Stop()
			done = nil
		case <-drained:
		case <-ticker.C:
			interval++
			if interval%t.config.ProgressEvery == 0 {
				t.logProgress(start)
			}
		}
	}

	// In-flight batches always finish before the traverser becomes inert.
	<-drained

	t.mu.Lock()
	result := Result[N]{
		Duration:  time.Since(start),
		Errors:    append([]ErrorEntry[N]{}, t.errors...),
		Processed: t.processed,
		Traversed: t.traversed,
		Stopped:   t.stopped,
	}
	t.mu.Unlock()

	t.logger.Info().
		Dur("duration", result.Duration).
		Int("errors", len(result.Errors)).
		Int("processed", result.Processed).
		Int("traversed", result.Traversed).
		Bool("stopped", result.Stopped).
		Msg("Finished traversing tree")

	return result, nil
}

func (t *Traverser[N]) isRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Traverser[N]) logProgress(start time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.logger.Info().
		Dur("duration", time.Since(start)).
		Int("errors", len(t.errors)).
		Int("processed", t.processed).
		Int("processing_queue_size", len(t.processingQueue)).
		Int("traversed", t.traversed).
		Int("traversal_queue_size", len(t.traversalQueue)).
		Msg("Traversal in progress")
}

// drainTraversal expands nodes batch by batch until the traversal queue is
// empty or a stop is requested, then clears moreNodes.
func (t *Traverser[N]) drainTraversal(ctx context.Context) {
	traversalStart := time.Now()

	for {
		t.mu.Lock()
		if !t.running || len(t.traversalQueue) == 0 {
			t.moreNodes = false
			traversed := t.traversed
			t.mu.Unlock()

			t.logger.Info().
				Dur("duration", time.Since(traversalStart)).
				Int("traversed", traversed).
				Msg("Traversal complete")
			return
		}
		batch := t.traversalQueue
		t.traversalQueue = nil
		t.traversalBatch = batch
		t.mu.Unlock()

		batchStart := time.Now()
		t.logger.Info().Int("batch_size", len(batch)).Msg("Traversing batch")
		batchSize.WithLabelValues("traverse").Observe(float64(len(batch)))

		g := new(errgroup.Group)
		g.SetLimit(t.config.TraversalConcurrency)
		for _, item := range batch {
			g.Go(func() error {
				t.traverseNode(ctx, item)
				return nil
			})
		}
		_ = g.Wait()

		t.mu.Lock()
		t.traversalBatch = nil
		t.mu.Unlock()

		batchDuration.WithLabelValues("traverse").Observe(time.Since(batchStart).Seconds())
		t.logger.Info().
			Int("batch_size", len(batch)).
			Dur("duration", time.Since(batchStart)).
			Msg("Batch traversed")
	}
}

// drainProcessing processes batches while expansion may still produce work
// or the processing queue is non-empty. Its exit is the only place a run
// terminates on its own.
func (t *Traverser[N]) drainProcessing(ctx context.Context) {
	processingStart := time.Now()

	for {
		t.mu.Lock()
		if !t.running || (!t.moreNodes && len(t.processingQueue) == 0) {
			t.running = false
			traversed := t.traversed
			processed := t.processed
			t.mu.Unlock()

			t.logger.Info().
				Dur("duration", time.Since(processingStart)).
				Int("traversed", traversed).
				Int("processed", processed).
				Msg("Processing complete")
			return
		}
		batch := t.processingQueue
		t.processingQueue = nil
		if len(batch) > 0 {
			t.processingBatch = batch
		}
		t.mu.Unlock()

		if len(batch) > 0 {
			batchStart := time.Now()
			t.logger.Info().Int("batch_size", len(batch)).Msg("Processing batch")
			batchSize.WithLabelValues("process").Observe(float64(len(batch)))

			g := new(errgroup.Group)
			g.SetLimit(t.config.ProcessConcurrency)
			for _, node := range batch {
				g.Go(func() error {
					t.processNode(ctx, node)
					return nil
				})
			}
			_ = g.Wait()

			t.mu.Lock()
			t.processingBatch = nil
			t.mu.Unlock()

			batchDuration.WithLabelValues("process").Observe(time.Since(batchStart).Seconds())
			t.logger.Info().
				Int("batch_size", len(batch)).
				Dur("duration", time.Since(batchStart)).
				Msg("Batch processed")
		}

		t.mu.Lock()
		idle := len(t.processingQueue) == 0
		t.mu.Unlock()
		if idle {
			time.Sleep(t.config.WaitDuration)
		}
	}
}

// traverseNode runs the read-only Source calls for one node and applies their
// outcome to the queues in a single locked step, so a failure never leaves a
// partial mutation behind.
func (t *Traverser[N]) traverseNode(ctx context.Context, item queued[N]) {
	loggable := t.config.FormatForLog(item.node)
	t.logger.Debug().Interface("node", loggable).Msg("Traversing node")

	var children []N
	hasChildren, err := callSource(func() (bool, error) { return t.source.HasChildren(ctx, item.node) })
	if err == nil && hasChildren {
		children, err = callSource(func() ([]N, error) { return t.source.GetChildren(ctx, item.node) })
		if err == nil && len(children) > 0 {
			t.logger.Debug().
				Interface("node", loggable).
				Int("count", len(children)).
				Msg("Found children")
		}
	}
	var shouldProcess bool
	if err == nil {
		shouldProcess, err = callSource(func() (bool, error) { return t.source.ShouldProcess(ctx, item.node) })
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.logger.Warn().
			Err(err).
			Interface("node", loggable).
			Bool("retried", item.retried).
			Msg("Failed to traverse node")

		if !item.retried {
			t.traversalQueue = append(t.traversalQueue, queued[N]{node: item.node, retried: true})
			expansionRetriesTotal.Inc()
			return
		}
		t.errors = append(t.errors, newErrorEntry(PhaseTraverse, item.node, err))
		nodeErrorsTotal.WithLabelValues(string(PhaseTraverse)).Inc()
		return
	}

	for _, child := range children {
		t.traversalQueue = append(t.traversalQueue, queued[N]{node: child})
	}
	if shouldProcess {
		t.logger.Debug().Interface("node", loggable).Msg("Adding node to processing queue")
		t.processingQueue = append(t.processingQueue, item.node)
	}
	t.traversed++
	nodesTraversedTotal.Inc()
}

func (t *Traverser[N]) processNode(ctx context.Context, node N) {
	loggable := t.config.FormatForLog(node)
	t.logger.Debug().Interface("node", loggable).Msg("Processing node")

	_, err := callSource(func() (struct{}, error) { return struct{}{}, t.source.Process(ctx, node) })

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.logger.Warn().Err(err).Interface("node", loggable).Msg("Failed to process node")
		t.errors = append(t.errors, newErrorEntry(PhaseProcess, node, err))
		nodeErrorsTotal.WithLabelValues(string(PhaseProcess)).Inc()
		return
	}
	t.processed++
	nodesProcessedTotal.Inc()
}

// callSource invokes a Source method and turns a panic into a PanicError.
func callSource[T any](fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn()
}
