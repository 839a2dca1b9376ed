// Package batch runs a traversal as a resumable batch job: the state is
// loaded from a snapshot store before the run, saved when the run is stopped
// and deleted once the tree is exhausted.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/content-traverser/pkg/logging"
	"github.com/Sternrassler/content-traverser/pkg/snapshot"
	"github.com/Sternrassler/content-traverser/pkg/traversal"
)

// ErrInvalidConfig is returned by NewExecutor for an unusable configuration.
var ErrInvalidConfig = errors.New("invalid batch config")

// StopCheck reports whether the job the run belongs to should stop.
type StopCheck func(ctx context.Context) (bool, error)

// Config holds executor configuration.
type Config[N any] struct {
	// Store persists the traversal state between runs (REQUIRED).
	Store snapshot.Store

	// Key identifies the snapshot in Store (REQUIRED).
	Key string

	// Traversal configures the underlying traverser.
	Traversal traversal.Config[N]

	// Budget bounds a single run. When it elapses the run is stopped and
	// checkpointed. Zero means unbounded.
	Budget time.Duration

	// StopCheck is polled every CheckInterval while the run is active.
	StopCheck StopCheck

	// CheckInterval is the StopCheck polling interval (default: 5s).
	CheckInterval time.Duration

	// Logger receives executor logs (default: component "batch").
	Logger *zerolog.Logger
}

// Outcome describes one run.
type Outcome[N any] struct {
	Result traversal.Result[N] `json:"result"`

	// Complete is true when the tree was exhausted and the snapshot removed.
	Complete bool `json:"complete"`

	// Resumed is true when the run continued from a stored snapshot.
	Resumed bool `json:"resumed"`

	// JobStopped is true when StopCheck reported the job stopped, before or
	// during the run. The snapshot is removed: a stopped job never resumes.
	JobStopped bool `json:"jobStopped,omitempty"`
}

// Executor runs resumable traversals of one source.
type Executor[N any] struct {
	source traversal.Source[N]
	config Config[N]
	logger zerolog.Logger
}

// NewExecutor creates an executor for source.
func NewExecutor[N any](source traversal.Source[N], cfg Config[N]) (*Executor[N], error) {
	if source == nil {
		return nil, fmt.Errorf("%w: source is required", ErrInvalidConfig)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, fmt.Errorf("%w: key is required", ErrInvalidConfig)
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 5 * time.Second
	}
	if cfg.Logger == nil {
		logger := logging.NewLogger("batch")
		cfg.Logger = &logger
	}

	return &Executor[N]{
		source: source,
		config: cfg,
		logger: cfg.Logger.With().Str("key", cfg.Key).Logger(),
	}, nil
}

// Run traverses from the stored snapshot, or from root when none exists.
// Cancelling ctx stops the run and checkpoints it like an elapsed budget.
func (e *Executor[N]) Run(ctx context.Context, root N) (Outcome[N], error) {
	e.logger.Info().Msg("Run batch")

	if e.config.StopCheck != nil {
		stop, err := e.config.StopCheck(ctx)
		if err != nil {
			return Outcome[N]{}, fmt.Errorf("stop check: %w", err)
		}
		if stop {
			e.logger.Info().Msg("Job stopped, skipping run")
			outcome := Outcome[N]{JobStopped: true}
			if err := e.removeState(context.WithoutCancel(ctx)); err != nil {
				return outcome, err
			}
			return outcome, nil
		}
	}

	state, err := e.loadState(ctx)
	if err != nil {
		return Outcome[N]{}, err
	}
	resumed := state != nil

	tr, err := traversal.New(e.source, e.config.Traversal, state)
	if err != nil {
		return Outcome[N]{}, err
	}

	runCtx := ctx
	if e.config.Budget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.config.Budget)
		defer cancel()
	}

	done := make(chan struct{})
	var (
		wg         sync.WaitGroup
		jobStopped bool
	)
	if e.config.StopCheck != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			jobStopped = e.watchStop(runCtx, tr, done)
		}()
	}

	var roots []N
	if !resumed {
		e.logger.Info().Msg("Starting from root")
		roots = []N{root}
	}
	result, err := tr.TraverseTree(runCtx, roots...)
	close(done)
	wg.Wait()
	if err != nil {
		return Outcome[N]{}, err
	}

	outcome := Outcome[N]{Result: result, Resumed: resumed, JobStopped: jobStopped}

	// The parent context may already be cancelled; persisting must still happen.
	persistCtx := context.WithoutCancel(ctx)
	if jobStopped {
		if err := e.removeState(persistCtx); err != nil {
			return outcome, err
		}
		return outcome, nil
	}
	if result.Stopped {
		e.logger.Info().
			Int("processed", result.Processed).
			Int("traversed", result.Traversed).
			Msg("Saving state")
		if err := snapshot.Save(persistCtx, e.config.Store, e.config.Key, tr.GetState()); err != nil {
			return outcome, fmt.Errorf("save state: %w", err)
		}
		return outcome, nil
	}

	if err := e.removeState(persistCtx); err != nil {
		return outcome, err
	}
	outcome.Complete = true

	e.logger.Info().
		Int("errors", len(result.Errors)).
		Int("processed", result.Processed).
		Int("traversed", result.Traversed).
		Msg("Batch run complete")
	return outcome, nil
}

// loadState returns the stored state, nil when there is none or when the
// stored payload is unreadable.
func (e *Executor[N]) loadState(ctx context.Context) (*traversal.State[N], error) {
	state, err := snapshot.Load[N](ctx, e.config.Store, e.config.Key)
	switch {
	case err == nil:
		e.logger.Info().Msg("Reading state")
		return state, nil
	case errors.Is(err, snapshot.ErrNotFound):
		return nil, nil
	case errors.Is(err, snapshot.ErrInvalidSnapshot):
		e.logger.Warn().Err(err).Msg("Failed to read state, starting over")
		return nil, nil
	default:
		return nil, fmt.Errorf("load state: %w", err)
	}
}

func (e *Executor[N]) removeState(ctx context.Context) error {
	e.logger.Debug().Msg("Removing state")
	if err := e.config.Store.Delete(ctx, e.config.Key); err != nil {
		return fmt.Errorf("remove state: %w", err)
	}
	return nil
}

// watchStop polls StopCheck and stops tr once it reports true, which it
// returns. Check errors are logged and the run continues.
func (e *Executor[N]) watchStop(ctx context.Context, tr *traversal.Traverser[N], done <-chan struct{}) bool {
	ticker := time.NewTicker(e.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return false
		case <-ticker.C:
		}

		// Stop is a no-op before the run starts.
		if tr.Status() == traversal.StatusIdle {
			continue
		}
		stop, err := e.config.StopCheck(ctx)
		if err != nil {
			e.logger.Warn().Err(err).Msg("Stop check failed")
			continue
		}
		if stop {
			e.logger.Info().Msg("Job stopped, stopping traversal")
			tr.Stop()
			return true
		}
	}
}
