// Package ingestor submits extracted assets to the ingestion service.
package ingestor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/content-traverser/pkg/logging"
)

// maxBodyBytes bounds how much of a rejection body is kept.
const maxBodyBytes = 64 << 10

// Config holds the client configuration.
type Config struct {
	// URL of the ingestion endpoint (REQUIRED)
	URL string

	// APIKey sent as X-API-Key (REQUIRED)
	APIKey string

	// Job identity merged into every request body
	CompanyID string
	SpaceID   string
	JobID     string

	// HTTPClient overrides the default client (30s timeout)
	HTTPClient *http.Client

	// Retry controls retries of 5xx, 429 and network failures
	Retry RetryConfig
}

// DefaultConfig returns a default configuration for url and apiKey.
func DefaultConfig(url, apiKey string) Config {
	return Config{
		URL:    url,
		APIKey: apiKey,
		Retry:  DefaultRetryConfig(),
	}
}

// Client submits assets for ingestion.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new ingestion client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrInvalidConfig)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	cfg.Retry = cfg.Retry.normalize()

	return &Client{
		httpClient: httpClient,
		config:     cfg,
		logger:     logging.NewLogger("ingestor"),
	}, nil
}

// WithJob returns a client that submits on behalf of another job. The HTTP
// client is shared.
func (c *Client) WithJob(jobID string) *Client {
	clone := *c
	clone.config.JobID = jobID
	return &clone
}

// Submit posts request to the ingestion service.
//
// A 2xx answer yields Accepted. Any other final answer (after retries for 5xx
// and 429) yields a rejected response with the status and body and a nil
// error. An error is returned only when no answer could be obtained.
func (c *Client) Submit(ctx context.Context, request IngestionRequest) (*IngestionResponse, error) {
	start := time.Now()
	defer func() {
		ingestRequestDuration.Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(wireRequest{
		IngestionRequest: request,
		JobID:            c.config.JobID,
		CompanyID:        c.config.CompanyID,
		SpaceID:          c.config.SpaceID,
		RequestID:        uuid.NewString(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	logger := c.logger.With().
		Str("url", c.config.URL).
		Str("source_asset_id", request.Data.SourceAssetID).
		Str("source_id", request.Data.SourceID).
		Str("name", request.Data.Name).
		Str("job_id", c.config.JobID).
		Logger()
	logger.Debug().Msg("Submitting for ingestion")

	var status int
	var header http.Header
	var respBody []byte

	retryErr := retryWithBackoff(ctx, c.config.Retry, logger, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("X-API-Key", c.config.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			ingestRequestsTotal.WithLabelValues("network_error").Inc()
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
			}
			return &IngestError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err}
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		header = resp.Header
		respBody, _ = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		ingestRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()

		errClass := classifyStatus(status)
		if shouldRetry(errClass) {
			logger.Warn().
				Int("status", status).
				Str("error_class", string(errClass)).
				Msg("Ingestion request error")
			return &IngestError{
				StatusCode: status,
				ErrorClass: errClass,
				Message:    resp.Status,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			}
		}
		return nil
	})

	var ingestErr *IngestError
	if retryErr != nil && (!errors.As(retryErr, &ingestErr) || ingestErr.StatusCode == 0) {
		logger.Warn().Err(retryErr).Dur("duration", time.Since(start)).Msg("Failed to reach ingestion service")
		return nil, retryErr
	}

	if status >= 200 && status < 300 {
		logger.Info().
			Int("response_status", status).
			Dur("duration", time.Since(start)).
			Msg("Asset submitted successfully")
		return &IngestionResponse{Accepted: true}, nil
	}

	reason := &RejectReason{ResponseStatus: status, ResponseBody: decodeBody(respBody)}
	logger.Warn().
		Int("response_status", status).
		Interface("response_body", reason.ResponseBody).
		Interface("response_headers", header).
		Dur("duration", time.Since(start)).
		Msg("Failed to submit asset for ingestion")
	return &IngestionResponse{Accepted: false, Reason: reason}, nil
}

// decodeBody returns the JSON value of body, or its text when it is not JSON.
func decodeBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err == nil {
		return decoded
	}
	return string(body)
}
