package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/content-traverser/pkg/traversal"
)

var (
	// ErrNotFound indicates no snapshot is stored under the key.
	ErrNotFound = errors.New("snapshot not found")

	// ErrInvalidSnapshot indicates a stored payload could not be decoded.
	ErrInvalidSnapshot = errors.New("invalid snapshot")

	// ErrInvalidKey indicates an empty or unusable key.
	ErrInvalidKey = errors.New("invalid snapshot key")
)

// Store persists snapshot payloads by key.
type Store interface {
	// Save stores data under key, replacing any previous payload.
	Save(ctx context.Context, key string, data []byte) error

	// Load returns the payload stored under key or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)

	// Delete removes the payload under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Save encodes state as JSON and stores it under key.
func Save[N any](ctx context.Context, store Store, key string, state traversal.State[N]) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return store.Save(ctx, key, data)
}

// Load reads and decodes the state stored under key. It returns ErrNotFound
// when nothing is stored and ErrInvalidSnapshot when the payload is corrupt.
func Load[N any](ctx context.Context, store Store, key string) (*traversal.State[N], error) {
	data, err := store.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	var state traversal.State[N]
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return &state, nil
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidKey)
	}
	return nil
}
