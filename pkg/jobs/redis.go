package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces settings hashes in a shared Redis.
const DefaultRedisPrefix = "traverser:settings:"

// RedisSettingsStore keeps one Redis hash per source.
type RedisSettingsStore struct {
	redis  *redis.Client
	prefix string
}

// Ensure RedisSettingsStore implements SettingsStore.
var _ SettingsStore = (*RedisSettingsStore)(nil)

// NewRedisSettingsStore creates a settings store with Redis backend. An
// empty prefix selects DefaultRedisPrefix.
func NewRedisSettingsStore(redisClient *redis.Client, prefix string) *RedisSettingsStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisSettingsStore{redis: redisClient, prefix: prefix}
}

func (s *RedisSettingsStore) key(sourceID string) string {
	return s.prefix + sourceID
}

// GetSettings implements SettingsStore.
func (s *RedisSettingsStore) GetSettings(ctx context.Context, sourceID string) (*Settings, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(sourceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrSettingsNotFound
	}
	settings := fromHash(fields)
	return &settings, nil
}

// PutSettings implements SettingsStore. The hash is replaced as a whole so
// cleared fields do not linger.
func (s *RedisSettingsStore) PutSettings(ctx context.Context, settings *Settings) error {
	if settings == nil || settings.SourceID == "" {
		return errors.New("settings with a sourceId are required")
	}
	key := s.key(settings.SourceID)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, toHash(*settings))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// DeleteSettings implements SettingsStore.
func (s *RedisSettingsStore) DeleteSettings(ctx context.Context, sourceID string) error {
	if err := s.redis.Del(ctx, s.key(sourceID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// FindSettings implements SettingsStore by scanning the prefix. Results are
// sorted by source id.
func (s *RedisSettingsStore) FindSettings(ctx context.Context, opts FindOptions) ([]Settings, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	var out []Settings
	iter := s.redis.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		fields, err := s.redis.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			return nil, fmt.Errorf("redis hgetall: %w", err)
		}
		if len(fields) == 0 {
			continue
		}
		if settings := fromHash(fields); opts.matches(settings) {
			out = append(out, settings)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out, nil
}

func toHash(s Settings) map[string]any {
	fields := map[string]any{"sourceId": s.SourceID}
	set := func(name, value string) {
		if value != "" {
			fields[name] = value
		}
	}
	set("spaceId", s.SpaceID)
	set("sourceType", s.SourceType)
	set("currentJobId", s.CurrentJobID)
	set("currentJobStatus", string(s.CurrentJobStatus))
	set("currentJobDone", s.CurrentJobDone)
	set("cursor", s.Cursor)
	return fields
}

func fromHash(fields map[string]string) Settings {
	return Settings{
		SourceID:         fields["sourceId"],
		SpaceID:          fields["spaceId"],
		SourceType:       fields["sourceType"],
		CurrentJobID:     fields["currentJobId"],
		CurrentJobStatus: JobStatus(fields["currentJobStatus"]),
		CurrentJobDone:   fields["currentJobDone"],
		Cursor:           fields["cursor"],
	}
}
