package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oxx-labs/oxx-backend/pkg/redis"
)

// RedisClient is the subset of *redis.Client the store needs.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SAdd(ctx context.Context, key string, members ...interface{}) error
	SRem(ctx context.Context, key string, members ...interface{}) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

var _ RedisClient = (*redis.Client)(nil)

const defaultRedisPrefix = "oxx:journal"

// RedisStore keeps each entry as a JSON string and the IDs of open entries in a set.
type RedisStore struct {
	client RedisClient
	prefix string
}

func NewRedisStore(client RedisClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) entryKey(id uuid.UUID) string {
	return s.prefix + ":entry:" + id.String()
}

func (s *RedisStore) openKey() string {
	return s.prefix + ":open"
}

func (s *RedisStore) Load(ctx context.Context, id uuid.UUID) (Entry, error) {
	raw, err := s.client.Get(ctx, s.entryKey(id))
	if errors.Is(err, redis.ErrNotFound) {
		return Entry{}, ErrEntryNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to load journal entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Entry{}, fmt.Errorf("failed to decode journal entry %s: %w", id, err)
	}
	return entry, nil
}

func (s *RedisStore) Save(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	if err := s.client.Set(ctx, s.entryKey(entry.ID), data, 0); err != nil {
		return fmt.Errorf("failed to store journal entry: %w", err)
	}

	if entry.Status.Terminal() {
		err = s.client.SRem(ctx, s.openKey(), entry.ID.String())
	} else {
		err = s.client.SAdd(ctx, s.openKey(), entry.ID.String())
	}
	if err != nil {
		return fmt.Errorf("failed to update open journal index: %w", err)
	}
	return nil
}

func (s *RedisStore) ListOpen(ctx context.Context) ([]Entry, error) {
	ids, err := s.client.SMembers(ctx, s.openKey())
	if err != nil {
		return nil, fmt.Errorf("failed to list open journal entries: %w", err)
	}

	open := make([]Entry, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		entry, err := s.Load(ctx, id)
		if errors.Is(err, ErrEntryNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !entry.Status.Terminal() {
			open = append(open, entry)
		}
	}
	sortByCreation(open)
	return open, nil
}
