package traversal

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/content-traverser/pkg/logging"
)

// Config holds traverser configuration.
type Config[N any] struct {
	// ProcessConcurrency is the maximum number of concurrent Process calls
	// within a processing batch.
	ProcessConcurrency int

	// TraversalConcurrency is the maximum number of concurrent node expansions
	// within a traversal batch.
	TraversalConcurrency int

	// WaitDuration is the polling interval of TraverseTree and the idle wait
	// of the processing drain.
	WaitDuration time.Duration

	// ProgressEvery is the number of poll ticks between progress log lines.
	ProgressEvery int

	// FormatForLog projects a node into a loggable value. Diagnostics only.
	FormatForLog func(node N) any

	// Logger receives all traverser logs (default: component "traverser").
	Logger *zerolog.Logger
}

// DefaultConfig returns the default configuration: serial expansion and
// processing with a 100ms polling interval.
func DefaultConfig[N any]() Config[N] {
	return Config[N]{
		ProcessConcurrency:   1,
		TraversalConcurrency: 1,
		WaitDuration:         100 * time.Millisecond,
		ProgressEvery:        10,
	}
}

func (c Config[N]) normalize() Config[N] {
	if c.ProcessConcurrency <= 0 {
		c.ProcessConcurrency = 1
	}
	if c.TraversalConcurrency <= 0 {
		c.TraversalConcurrency = 1
	}
	if c.WaitDuration <= 0 {
		c.WaitDuration = 100 * time.Millisecond
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = 10
	}
	if c.FormatForLog == nil {
		c.FormatForLog = func(node N) any { return node }
	}
	if c.Logger == nil {
		logger := logging.NewLogger("traverser")
		c.Logger = &logger
	}
	return c
}
