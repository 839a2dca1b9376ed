package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sternrassler/content-traverser/pkg/logging"
)

const envPrefix = "EXTRACTOR"

// newRootCmd builds the command tree. Every flag can also be set through an
// EXTRACTOR_ environment variable (dashes become underscores) or a config file.
func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "extractor",
		Short:         "Resumable content extraction into an ingestion service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("bind flags: %w", err)
			}
			v.SetEnvPrefix(envPrefix)
			v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
			v.AutomaticEnv()

			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config %s: %w", cfgFile, err)
				}
			}

			logging.Setup(logging.Config{
				Level:  logging.LogLevel(v.GetString("log-level")),
				Pretty: v.GetBool("log-pretty"),
				Output: cmd.ErrOrStderr(),
			})
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (json, yaml or toml)")
	flags.String("log-level", string(logging.LevelInfo), "log level (debug, info, warn, error)")
	flags.Bool("log-pretty", false, "human-readable console logs")

	flags.String("source-id", "", "source id reported to the ingestion service")
	flags.String("source-type", "fs", "source type reported to the ingestion service")
	flags.String("company-id", "", "company id reported to the ingestion service")
	flags.String("space-id", "", "space id reported to the ingestion service")
	flags.String("ingestor-url", "", "ingestion service endpoint")
	flags.String("ingestor-api-key", "", "ingestion service API key")
	flags.Bool("dry-run", false, "log matching files instead of submitting them")

	flags.String("state-backend", backendFile, "snapshot backend (file, redis, sqlite)")
	flags.String("state-dir", ".state", "snapshot directory of the file backend")
	flags.String("redis-addr", "localhost:6379", "Redis address of the redis backend")
	flags.Duration("redis-ttl", 0, "expiry of Redis snapshots (0 keeps them)")
	flags.String("sqlite-path", "state.db", "database file of the sqlite backend")

	flags.Int("process-concurrency", 1, "concurrent file submissions per batch")
	flags.Int("traversal-concurrency", 1, "concurrent directory reads per batch")
	flags.StringSlice("include", nil, "glob patterns of files to submit (default all)")
	flags.StringSlice("exclude", nil, "glob patterns of files and directories to skip")
	flags.Bool("skip-hidden", true, "skip dot files and directories")

	cmd.AddCommand(newRunCmd(v), newServeCmd(v))
	return cmd
}
