// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs per-node events and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs batch and lifecycle events and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs node failures, retries and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs errors only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(string(cfg.Level)))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to a zerolog.Level. Unknown names map to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: one line per node
//   - Node expansion and child counts
//   - Node added to the processing queue
//   - Snapshot store reads and writes
//
// Info: batches and lifecycle
//   - Batch dispatched / completed, with size and duration
//   - Periodic traversal progress
//   - Run resumed from a snapshot, run finished, snapshot saved or deleted
//   - Server startup/shutdown
//
// Warn: failures that do not stop the run
//   - Failed node expansion (retried or recorded)
//   - Failed node processing
//   - Ingestion retries and rejected assets
//   - Unreadable snapshots (run restarts from the root)
//
// Error: failures that abort a command
//   - Snapshot store unavailable when checkpointing
//   - Invalid configuration
//
// Context Fields:
//   - component: emitting package (traverser, batch, snapshot, ingestor, jobs, fswalk, extractor)
//   - node: loggable projection of a node
//   - batch_size: nodes in the drained batch
//   - duration: elapsed time of a batch or run
//   - traversed / processed / errors: run counters
//   - key: snapshot key
//   - source_id / job_id: extraction job identity
