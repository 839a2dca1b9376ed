package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/content-traverser/pkg/logging"
)

const (
	// FullJobPrefix marks a job that walks the whole source.
	FullJobPrefix = "FULL::"

	// UpdateJobPrefix marks an incremental job that resumes from a cursor.
	UpdateJobPrefix = "UPDATE::"
)

// NewFullJobID returns a fresh full-extraction job id.
func NewFullJobID() string {
	return FullJobPrefix + uuid.NewString()
}

// NewUpdateJobID returns a fresh incremental job id.
func NewUpdateJobID() string {
	return UpdateJobPrefix + uuid.NewString()
}

// IsCurrentRunningJob reports whether jobID is a full job that matches the
// current job of settings and is still running.
func IsCurrentRunningJob(settings *Settings, jobID string) bool {
	return settings != nil &&
		strings.HasPrefix(jobID, FullJobPrefix) &&
		settings.CurrentJobID == jobID &&
		settings.CurrentJobStatus == StatusRunning
}

// IsUpdateJob reports whether jobID is an incremental job.
func IsUpdateJob(jobID string) bool {
	return strings.HasPrefix(jobID, UpdateJobPrefix)
}

// Helper applies job lifecycle transitions on top of a SettingsStore.
type Helper struct {
	store  SettingsStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewHelper creates a Helper.
func NewHelper(store SettingsStore) *Helper {
	if store == nil {
		panic("settings store cannot be nil")
	}
	return &Helper{
		store:  store,
		logger: logging.NewLogger("jobs"),
		now:    time.Now,
	}
}

// Start makes jobID the current running job of the source, creating the
// settings when none exist.
func (h *Helper) Start(ctx context.Context, sourceID, jobID string) (*Settings, error) {
	settings, err := h.store.GetSettings(ctx, sourceID)
	if errors.Is(err, ErrSettingsNotFound) {
		settings = &Settings{SourceID: sourceID}
	} else if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}

	settings.CurrentJobID = jobID
	settings.CurrentJobStatus = StatusRunning
	settings.CurrentJobDone = ""
	if err := h.store.PutSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("put settings: %w", err)
	}

	h.logger.Info().Str("source_id", sourceID).Str("job_id", jobID).Msg("Job started")
	return settings, nil
}

// Complete marks jobID complete when it is the current running job and
// stores cursor. Update jobs only store the cursor.
func (h *Helper) Complete(ctx context.Context, jobID, sourceID, cursor string) error {
	settings, err := h.store.GetSettings(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("get settings: %w", err)
	}

	current := IsCurrentRunningJob(settings, jobID)
	if current {
		settings.CurrentJobStatus = StatusComplete
		settings.CurrentJobDone = timestamp(h.now())
	}
	if !current && !IsUpdateJob(jobID) {
		h.logger.Debug().Str("source_id", sourceID).Str("job_id", jobID).Msg("Ignoring completion of stale job")
		return nil
	}

	settings.Cursor = cursor
	if err := h.store.PutSettings(ctx, settings); err != nil {
		return fmt.Errorf("put settings: %w", err)
	}
	h.logger.Info().Str("source_id", sourceID).Str("job_id", jobID).Msg("Job completed")
	return nil
}

// ShouldStop reports whether work for jobID should stop. Update jobs never
// stop; full jobs stop once they are no longer the current running job,
// including when the source has no settings.
func (h *Helper) ShouldStop(ctx context.Context, jobID, sourceID string) (bool, error) {
	if IsUpdateJob(jobID) {
		return false, nil
	}
	settings, err := h.store.GetSettings(ctx, sourceID)
	if errors.Is(err, ErrSettingsNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("get settings: %w", err)
	}
	return !IsCurrentRunningJob(settings, jobID), nil
}

// Stop marks jobID stopped when it is the current running job.
func (h *Helper) Stop(ctx context.Context, jobID, sourceID string) error {
	settings, err := h.store.GetSettings(ctx, sourceID)
	if errors.Is(err, ErrSettingsNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get settings: %w", err)
	}
	if !IsCurrentRunningJob(settings, jobID) {
		return nil
	}

	settings.CurrentJobStatus = StatusStopped
	settings.CurrentJobDone = timestamp(h.now())
	if err := h.store.PutSettings(ctx, settings); err != nil {
		return fmt.Errorf("put settings: %w", err)
	}
	h.logger.Info().Str("source_id", sourceID).Str("job_id", jobID).Msg("Job stopped")
	return nil
}
