package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// MemorySettingsStore is an in-process SettingsStore for tests and single
// process deployments.
type MemorySettingsStore struct {
	mu       sync.RWMutex
	settings map[string]Settings
}

// Ensure MemorySettingsStore implements SettingsStore.
var _ SettingsStore = (*MemorySettingsStore)(nil)

// NewMemorySettingsStore creates an empty store.
func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{settings: make(map[string]Settings)}
}

// GetSettings implements SettingsStore.
func (m *MemorySettingsStore) GetSettings(_ context.Context, sourceID string) (*Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.settings[sourceID]
	if !ok {
		return nil, ErrSettingsNotFound
	}
	return &s, nil
}

// PutSettings implements SettingsStore.
func (m *MemorySettingsStore) PutSettings(_ context.Context, settings *Settings) error {
	if settings == nil || settings.SourceID == "" {
		return errors.New("settings with a sourceId are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[settings.SourceID] = *settings
	return nil
}

// DeleteSettings implements SettingsStore.
func (m *MemorySettingsStore) DeleteSettings(_ context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.settings, sourceID)
	return nil
}

// FindSettings implements SettingsStore. Results are sorted by source id.
func (m *MemorySettingsStore) FindSettings(_ context.Context, opts FindOptions) ([]Settings, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Settings
	for _, s := range m.settings {
		if opts.matches(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out, nil
}
