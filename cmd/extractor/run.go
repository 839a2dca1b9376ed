package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sternrassler/content-traverser/pkg/batch"
	"github.com/Sternrassler/content-traverser/pkg/fswalk"
	"github.com/Sternrassler/content-traverser/pkg/jobs"
	"github.com/Sternrassler/content-traverser/pkg/logging"
	"github.com/Sternrassler/content-traverser/pkg/snapshot"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run DIR",
		Short: "Extract DIR, resuming from a saved snapshot when there is one",
		Long: `Walks DIR and submits every matching file to the ingestion service.
On SIGINT or SIGTERM the walk stops after the in-flight batch and its state
is saved; running the same command again resumes it. The command exits
non-zero when any file or directory failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runExtract(ctx, cmd.OutOrStdout(), loadOptions(v), args[0], v.GetString("state-key"), v.GetString("job-id"))
		},
	}

	cmd.Flags().String("state-key", "", "snapshot key (default: source id, else the absolute DIR)")
	cmd.Flags().String("job-id", "", "job id sent with every submission (default: the job id of the resumed run, else a new full job id)")
	return cmd
}

func runExtract(ctx context.Context, out io.Writer, o options, dir, key, jobID string) error {
	logger := logging.NewLogger("extractor")

	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	if !o.DryRun && o.SourceID == "" {
		return errors.New("source-id is required unless --dry-run is set")
	}

	if key == "" {
		key = o.SourceID
	}
	if key == "" {
		if key, err = filepath.Abs(dir); err != nil {
			return err
		}
	}
	b, err := openBackends(ctx, o)
	if err != nil {
		return err
	}
	defer b.Close()

	jobKey := key + jobKeySuffix
	if jobID, err = resolveJobID(ctx, b.snapshots, jobKey, jobID); err != nil {
		return err
	}

	client, err := o.newIngestor(jobID)
	if err != nil {
		return err
	}
	handler := dryRunHandler(logger)
	if client != nil {
		handler = fswalk.IngestHandler(client, o.SourceID, o.SourceType)
	}

	source, err := fswalk.NewSource(os.DirFS(dir), o.sourceConfig(handler))
	if err != nil {
		return err
	}
	exec, err := batch.NewExecutor[string](source, batch.Config[string]{
		Store:     b.snapshots,
		Key:       key,
		Traversal: o.traversalConfig(),
	})
	if err != nil {
		return err
	}

	logger.Info().Str("dir", dir).Str("key", key).Str("job_id", jobID).Msg("Starting extraction")
	outcome, err := exec.Run(ctx, fswalk.Root)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcome); err != nil {
		return err
	}

	if outcome.Complete {
		if err := b.snapshots.Delete(context.WithoutCancel(ctx), jobKey); err != nil {
			return err
		}
	} else {
		logger.Info().Str("key", key).Msg("Extraction stopped, state saved; run again to resume")
	}
	return outcome.Result.Err()
}

// jobKeySuffix names the entry next to a snapshot that holds the job id of
// the run that wrote it.
const jobKeySuffix = "#job"

// resolveJobID returns jobID, or the id stored under jobKey by an unfinished
// run, or a new full job id. The result is stored under jobKey so a resumed
// run submits under the same job.
func resolveJobID(ctx context.Context, store snapshot.Store, jobKey, jobID string) (string, error) {
	if jobID == "" {
		data, err := store.Load(ctx, jobKey)
		switch {
		case err == nil:
			jobID = strings.TrimSpace(string(data))
		case !errors.Is(err, snapshot.ErrNotFound):
			return "", fmt.Errorf("load job id: %w", err)
		}
	}
	if jobID == "" {
		jobID = jobs.NewFullJobID()
	}
	if err := store.Save(ctx, jobKey, []byte(jobID)); err != nil {
		return "", fmt.Errorf("save job id: %w", err)
	}
	return jobID, nil
}

func dryRunHandler(logger zerolog.Logger) fswalk.Handler {
	return func(_ context.Context, file fswalk.File) error {
		logger.Info().Str("path", file.Path).Int64("size", file.Size).Msg("Would submit file")
		return nil
	}
}
