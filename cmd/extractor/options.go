package main

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	_ "modernc.org/sqlite"

	"github.com/Sternrassler/content-traverser/pkg/fswalk"
	"github.com/Sternrassler/content-traverser/pkg/ingestor"
	"github.com/Sternrassler/content-traverser/pkg/jobs"
	"github.com/Sternrassler/content-traverser/pkg/snapshot"
	"github.com/Sternrassler/content-traverser/pkg/traversal"
)

const (
	backendFile   = "file"
	backendRedis  = "redis"
	backendSQLite = "sqlite"
)

// options is the resolved configuration shared by all commands.
type options struct {
	SourceID       string
	SourceType     string
	CompanyID      string
	SpaceID        string
	IngestorURL    string
	IngestorAPIKey string
	DryRun         bool

	StateBackend string
	StateDir     string
	RedisAddr    string
	RedisTTL     time.Duration
	SQLitePath   string

	ProcessConcurrency   int
	TraversalConcurrency int
	Include              []string
	Exclude              []string
	SkipHidden           bool
}

func loadOptions(v *viper.Viper) options {
	return options{
		SourceID:             v.GetString("source-id"),
		SourceType:           v.GetString("source-type"),
		CompanyID:            v.GetString("company-id"),
		SpaceID:              v.GetString("space-id"),
		IngestorURL:          v.GetString("ingestor-url"),
		IngestorAPIKey:       v.GetString("ingestor-api-key"),
		DryRun:               v.GetBool("dry-run"),
		StateBackend:         v.GetString("state-backend"),
		StateDir:             v.GetString("state-dir"),
		RedisAddr:            v.GetString("redis-addr"),
		RedisTTL:             v.GetDuration("redis-ttl"),
		SQLitePath:           v.GetString("sqlite-path"),
		ProcessConcurrency:   v.GetInt("process-concurrency"),
		TraversalConcurrency: v.GetInt("traversal-concurrency"),
		Include:              v.GetStringSlice("include"),
		Exclude:              v.GetStringSlice("exclude"),
		SkipHidden:           v.GetBool("skip-hidden"),
	}
}

func (o options) traversalConfig() traversal.Config[string] {
	cfg := traversal.DefaultConfig[string]()
	cfg.ProcessConcurrency = o.ProcessConcurrency
	cfg.TraversalConcurrency = o.TraversalConcurrency
	return cfg
}

func (o options) sourceConfig(handler fswalk.Handler) fswalk.Config {
	return fswalk.Config{
		Include:    o.Include,
		Exclude:    o.Exclude,
		SkipHidden: o.SkipHidden,
		Handler:    handler,
	}
}

// newIngestor returns nil in dry-run mode.
func (o options) newIngestor(jobID string) (*ingestor.Client, error) {
	if o.DryRun {
		return nil, nil
	}
	cfg := ingestor.DefaultConfig(o.IngestorURL, o.IngestorAPIKey)
	cfg.CompanyID = o.CompanyID
	cfg.SpaceID = o.SpaceID
	cfg.JobID = jobID
	return ingestor.New(cfg)
}

// backends holds the opened state stores.
type backends struct {
	snapshots snapshot.Store
	settings  jobs.SettingsStore
	closers   []func() error
}

func (b *backends) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openBackends opens the configured snapshot store. Job settings live in
// Redis with the redis backend and in memory otherwise.
func openBackends(ctx context.Context, o options) (*backends, error) {
	b := &backends{}

	switch o.StateBackend {
	case backendFile:
		store, err := snapshot.NewFileStore(o.StateDir)
		if err != nil {
			return nil, err
		}
		b.snapshots = store

	case backendRedis:
		client := redis.NewClient(&redis.Options{Addr: o.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", o.RedisAddr, err)
		}
		b.closers = append(b.closers, client.Close)
		b.snapshots = snapshot.NewRedisStore(client, snapshot.WithTTL(o.RedisTTL))
		b.settings = jobs.NewRedisSettingsStore(client, "")

	case backendSQLite:
		db, err := sql.Open("sqlite", filepath.Clean(o.SQLitePath))
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", o.SQLitePath, err)
		}
		b.closers = append(b.closers, db.Close)
		store, err := snapshot.NewSQLiteStore(db)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.snapshots = store

	default:
		return nil, fmt.Errorf("unknown state backend %q (want %s, %s or %s)", o.StateBackend, backendFile, backendRedis, backendSQLite)
	}

	if b.settings == nil {
		b.settings = jobs.NewMemorySettingsStore()
	}
	return b, nil
}
