// Package jobs tracks extraction jobs per source: which job is current,
// whether it is running, and where an incremental update should resume.
package jobs

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSettingsNotFound indicates no settings are stored for the source.
	ErrSettingsNotFound = errors.New("settings not found")

	// ErrInvalidQuery indicates a Find call without a spaceId or sourceType.
	ErrInvalidQuery = errors.New("either spaceId or sourceType is required")
)

// JobStatus is the lifecycle state of the current job of a source.
type JobStatus string

const (
	// StatusRunning marks a job that is still extracting.
	StatusRunning JobStatus = "RUNNING"

	// StatusStopped marks a job that was stopped before finishing.
	StatusStopped JobStatus = "STOPPED"

	// StatusComplete marks a job that finished.
	StatusComplete JobStatus = "COMPLETE"
)

// Settings is the persisted job bookkeeping for one source.
type Settings struct {
	SourceID         string    `json:"sourceId"`
	SpaceID          string    `json:"spaceId,omitempty"`
	SourceType       string    `json:"sourceType,omitempty"`
	CurrentJobID     string    `json:"currentJobId,omitempty"`
	CurrentJobStatus JobStatus `json:"currentJobStatus,omitempty"`
	CurrentJobDone   string    `json:"currentJobDone,omitempty"`
	Cursor           string    `json:"cursor,omitempty"`
}

// FindOptions selects settings by source type or space. SourceType wins
// when both are set.
type FindOptions struct {
	SpaceID    string
	SourceType string
}

func (o FindOptions) validate() error {
	if o.SpaceID == "" && o.SourceType == "" {
		return ErrInvalidQuery
	}
	return nil
}

func (o FindOptions) matches(s Settings) bool {
	if o.SourceType != "" {
		return s.SourceType == o.SourceType
	}
	return s.SpaceID == o.SpaceID
}

// SettingsStore persists Settings keyed by source id.
type SettingsStore interface {
	// GetSettings returns the settings of a source or ErrSettingsNotFound.
	GetSettings(ctx context.Context, sourceID string) (*Settings, error)

	// PutSettings creates or replaces the settings of settings.SourceID.
	PutSettings(ctx context.Context, settings *Settings) error

	// DeleteSettings removes the settings of a source. Missing settings are not an error.
	DeleteSettings(ctx context.Context, sourceID string) error

	// FindSettings returns all settings matching opts.
	FindSettings(ctx context.Context, opts FindOptions) ([]Settings, error)
}

func timestamp(now time.Time) string {
	return now.UTC().Format(time.RFC3339Nano)
}
