package fswalk

import (
	"context"
	"fmt"
	"mime"
	"path"

	"github.com/Sternrassler/content-traverser/pkg/ingestor"
)

// Submitter sends one asset for ingestion.
type Submitter interface {
	Submit(ctx context.Context, request ingestor.IngestionRequest) (*ingestor.IngestionResponse, error)
}

// IngestHandler returns a Handler that submits every file as an asset of
// sourceID. A rejected submission fails the node with ingestor.ErrNotAccepted.
func IngestHandler(submitter Submitter, sourceID, sourceType string) Handler {
	return func(ctx context.Context, file File) error {
		modified := file.ModTime
		request := ingestor.IngestionRequest{
			Data: ingestor.SourceData{
				SourceAssetID: file.Path,
				SourceID:      sourceID,
				SourceType:    sourceType,
				Name:          file.Name,
				Size:          file.Size,
				Path:          "/" + file.Path,
			},
		}
		if !modified.IsZero() {
			request.Data.LastModified = &modified
		}
		if contentType := mime.TypeByExtension(path.Ext(file.Name)); contentType != "" {
			request.Binary = &ingestor.BinaryRequest{
				URL:     "file:///" + file.Path,
				Headers: map[string]string{"Content-Type": contentType},
			}
		}

		resp, err := submitter.Submit(ctx, request)
		if err != nil {
			return fmt.Errorf("submit %s: %w", file.Path, err)
		}
		if !resp.Accepted {
			status := 0
			if resp.Reason != nil {
				status = resp.Reason.ResponseStatus
			}
			return fmt.Errorf("%w: %s (status %d)", ingestor.ErrNotAccepted, file.Path, status)
		}
		return nil
	}
}
