package ingestor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryConfig_Normalize(t *testing.T) {
	got := RetryConfig{MaxAttempts: 5}.normalize()
	if got.MaxAttempts != 5 || got.InitialBackoff != time.Second || got.BackoffMultiplier != 2.0 {
		t.Errorf("normalize() = %+v", got)
	}
}

func TestRetryWithBackoff(t *testing.T) {
	serverErr := &IngestError{StatusCode: 502, ErrorClass: ErrorClassServer}
	clientErr := &IngestError{StatusCode: 400, ErrorClass: ErrorClassClient}

	tests := []struct {
		name      string
		failures  []error
		wantCalls int
		wantErr   error
	}{
		{"success first try", nil, 1, nil},
		{"success after server error", []error{serverErr}, 2, nil},
		{"client error not retried", []error{clientErr}, 1, clientErr},
		{"plain error not retried", []error{errors.New("boom")}, 1, nil},
		{"exhausted", []error{serverErr, serverErr, serverErr}, 3, ErrRetryExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := retryWithBackoff(context.Background(), fastRetry(), zerolog.Nop(), func() error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && len(tt.failures) == 0 && err != nil {
				t.Errorf("error = %v, want nil", err)
			}
		})
	}
}

func TestRetryWithBackoff_ExhaustedWrapsLastError(t *testing.T) {
	last := &IngestError{StatusCode: 503, ErrorClass: ErrorClassServer}
	err := retryWithBackoff(context.Background(), fastRetry(), zerolog.Nop(), func() error { return last })

	var ingestErr *IngestError
	if !errors.As(err, &ingestErr) || ingestErr.StatusCode != 503 {
		t.Errorf("error = %v, want it to wrap the last IngestError", err)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := fastRetry()
	config.InitialBackoff = time.Minute
	config.MaxBackoff = time.Minute

	calls := 0
	err := retryWithBackoff(ctx, config, zerolog.Nop(), func() error {
		calls++
		cancel()
		return &IngestError{StatusCode: 500, ErrorClass: ErrorClassServer}
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("error = %v, want ErrContextCancelled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithBackoff_RetryAfterIsCapped(t *testing.T) {
	config := fastRetry()
	config.MaxAttempts = 2

	start := time.Now()
	calls := 0
	_ = retryWithBackoff(context.Background(), config, zerolog.Nop(), func() error {
		calls++
		if calls == 1 {
			return &IngestError{StatusCode: 429, ErrorClass: ErrorClassRateLimit, RetryAfter: time.Hour}
		}
		return nil
	})

	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Retry-After was not capped by MaxBackoff: waited %v", elapsed)
	}
}
