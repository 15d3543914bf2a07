package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradebot/backoffice/internal/domain"
)

// MemoryStore is an in-process Store for single-instance deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	snap      domain.BalanceSnapshot
	expiresAt time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, address string) (*domain.BalanceSnapshot, error) {
	s.mu.RLock()
	e, ok := s.entries[address]
	s.mu.RUnlock()
	if !ok || !s.now().Before(e.expiresAt) {
		return nil, nil
	}
	snap := e.snap
	return &snap, nil
}

func (s *MemoryStore) Set(_ context.Context, snap domain.BalanceSnapshot, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[snap.Address] = memoryEntry{snap: snap, expiresAt: s.now().Add(ttl)}

	// Prune once the map grows past the recently active wallets.
	if len(s.entries) > 1024 {
		now := s.now()
		for k, e := range s.entries {
			if !now.Before(e.expiresAt) {
				delete(s.entries, k)
			}
		}
	}
	return nil
}

// RedisStore shares the cache across instances.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore parses url and pings the server.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisStore{client: client, prefix: "balance:"}, nil
}

func (s *RedisStore) Get(ctx context.Context, address string) (*domain.BalanceSnapshot, error) {
	raw, err := s.client.Get(ctx, s.prefix+address).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var snap domain.BalanceSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode cached balance: %w", err)
	}
	return &snap, nil
}

func (s *RedisStore) Set(ctx context.Context, snap domain.BalanceSnapshot, ttl time.Duration) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode balance: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+snap.Address, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping reports whether redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
