package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sternrassler/content-traverser/pkg/batch"
	"github.com/Sternrassler/content-traverser/pkg/fswalk"
	"github.com/Sternrassler/content-traverser/pkg/ingestor"
	"github.com/Sternrassler/content-traverser/pkg/jobs"
	"github.com/Sternrassler/content-traverser/pkg/logging"
	"github.com/Sternrassler/content-traverser/pkg/metrics"
	"github.com/Sternrassler/content-traverser/pkg/snapshot"
	"github.com/Sternrassler/content-traverser/pkg/traversal"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve budgeted extraction slices over HTTP",
		Long: `Each POST /extract runs one slice of a job for at most its budget and
saves the state; callers repeat the request with the returned jobId until
the answer reports complete. A stopped job is answered with 409 and its
state is discarded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			o := loadOptions(v)
			b, err := openBackends(ctx, o)
			if err != nil {
				return err
			}
			defer b.Close()

			srv, err := newServer(o, b.snapshots, b.settings, v.GetDuration("budget"))
			if err != nil {
				return err
			}
			return srv.listenAndServe(ctx, v.GetString("addr"))
		},
	}

	cmd.Flags().String("addr", ":8080", "listen address")
	cmd.Flags().Duration("budget", 5*time.Minute, "default time budget of one extraction slice")
	return cmd
}

// extractRequest starts or continues a job.
type extractRequest struct {
	SourceID      string `json:"sourceId"`
	JobID         string `json:"jobId"`
	Root          string `json:"root"`
	BudgetSeconds int    `json:"budgetSeconds"`
}

// Extraction slice statuses.
const (
	statusComplete = "complete"
	statusPartial  = "partial"
	statusStopped  = "stopped"
)

// extractResponse answers one slice. A stopped job is answered with 409 and
// status "stopped"; its state is gone and the jobId must not be retried.
type extractResponse struct {
	JobID    string                   `json:"jobId"`
	Status   string                   `json:"status"`
	Complete bool                     `json:"complete"`
	Resumed  bool                     `json:"resumed"`
	Result   traversal.Result[string] `json:"result"`
}

type stopRequest struct {
	JobID string `json:"jobId"`
}

type server struct {
	options  options
	store    snapshot.Store
	settings jobs.SettingsStore
	jobs     *jobs.Helper
	client   *ingestor.Client
	budget   time.Duration
	logger   zerolog.Logger
}

func newServer(o options, store snapshot.Store, settings jobs.SettingsStore, budget time.Duration) (*server, error) {
	client, err := o.newIngestor("")
	if err != nil {
		return nil, err
	}
	return &server{
		options:  o,
		store:    store,
		settings: settings,
		jobs:     jobs.NewHelper(settings),
		client:   client,
		budget:   budget,
		logger:   logging.NewLogger("extractor"),
	}, nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /extract", s.handleExtract)
	mux.HandleFunc("POST /jobs/{sourceId}/stop", s.handleStop)
	return mux
}

func (s *server) listenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting extraction server")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down extraction server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (s *server) handleExtract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.SourceID == "" {
		req.SourceID = s.options.SourceID
	}
	if req.SourceID == "" || strings.TrimSpace(req.Root) == "" {
		writeError(w, http.StatusBadRequest, errors.New("sourceId and root are required"))
		return
	}
	if info, err := os.Stat(req.Root); err != nil || !info.IsDir() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("root %q is not a directory", req.Root))
		return
	}

	if req.JobID == "" {
		req.JobID = jobs.NewFullJobID()
		if _, err := s.jobs.Start(ctx, req.SourceID, req.JobID); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	logger := s.logger.With().Str("source_id", req.SourceID).Str("job_id", req.JobID).Logger()

	handler := dryRunHandler(logger)
	if s.client != nil {
		handler = fswalk.IngestHandler(s.client.WithJob(req.JobID), req.SourceID, s.options.SourceType)
	}
	source, err := fswalk.NewSource(os.DirFS(req.Root), s.options.sourceConfig(handler))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	budget := s.budget
	if req.BudgetSeconds > 0 {
		budget = time.Duration(req.BudgetSeconds) * time.Second
	}
	jobID, sourceID := req.JobID, req.SourceID
	exec, err := batch.NewExecutor[string](source, batch.Config[string]{
		Store:     s.store,
		Key:       sourceID + "/" + jobID,
		Traversal: s.options.traversalConfig(),
		Budget:    budget,
		StopCheck: func(ctx context.Context) (bool, error) {
			return s.jobs.ShouldStop(ctx, jobID, sourceID)
		},
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	outcome, err := exec.Run(ctx, fswalk.Root)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if outcome.Complete {
		if err := s.jobs.Complete(context.WithoutCancel(ctx), jobID, sourceID, ""); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	resp := extractResponse{
		JobID:    jobID,
		Status:   statusPartial,
		Complete: outcome.Complete,
		Resumed:  outcome.Resumed,
		Result:   outcome.Result,
	}
	code := http.StatusOK
	switch {
	case outcome.JobStopped:
		resp.Status = statusStopped
		code = http.StatusConflict
	case outcome.Complete:
		resp.Status = statusComplete
	}

	logger.Info().
		Str("status", resp.Status).
		Bool("resumed", outcome.Resumed).
		Int("processed", outcome.Result.Processed).
		Msg("Extraction slice finished")

	writeJSON(w, code, resp)
}

func (s *server) handleStop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sourceID := r.PathValue("sourceId")

	var req stopRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
			return
		}
	}

	if req.JobID == "" {
		settings, err := s.settings.GetSettings(ctx, sourceID)
		if errors.Is(err, jobs.ErrSettingsNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		req.JobID = settings.CurrentJobID
	}

	if err := s.jobs.Stop(ctx, req.JobID, sourceID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
