package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradebot/backoffice/internal/domain"
)

const balanceKeyPrefix = "balance:"

// CacheEntry represents an entry in the system_cache table.
type CacheEntry struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// CacheRepository is the durable key/value store behind degraded mode. It
// keeps the last balance seen per wallet with no expiry.
type CacheRepository struct {
	db *pgxpool.Pool
}

// NewCacheRepository creates a new CacheRepository.
func NewCacheRepository(db *pgxpool.Pool) *CacheRepository {
	return &CacheRepository{db: db}
}

// Get retrieves a cache entry by key.
func (r *CacheRepository) Get(ctx context.Context, key string) (*CacheEntry, error) {
	row := r.db.QueryRow(ctx, `SELECT key, data, updated_at FROM system_cache WHERE key = $1`, key)

	var entry CacheEntry
	err := row.Scan(&entry.Key, &entry.Data, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to scan system_cache entry: %w", err)
	}
	return &entry, nil
}

// Set inserts or updates a cache entry. data is stored as JSON.
func (r *CacheRepository) Set(ctx context.Context, key string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode system_cache entry: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO system_cache (key, data, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET data = EXCLUDED.data, updated_at = NOW()
	`, key, raw)
	if err != nil {
		return fmt.Errorf("failed to set system_cache entry: %w", err)
	}
	return nil
}

// LoadBalance returns the last balance stored for address, or nil.
func (r *CacheRepository) LoadBalance(ctx context.Context, address string) (*domain.BalanceSnapshot, error) {
	entry, err := r.Get(ctx, balanceKeyPrefix+address)
	if err != nil || entry == nil {
		return nil, err
	}
	var snap domain.BalanceSnapshot
	if err := json.Unmarshal(entry.Data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode balance snapshot: %w", err)
	}
	return &snap, nil
}

// SaveBalance stores snap as the last-known balance for its address. An
// older snapshot never replaces a newer one.
func (r *CacheRepository) SaveBalance(ctx context.Context, snap domain.BalanceSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode balance snapshot: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO system_cache (key, data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
		WHERE system_cache.updated_at <= EXCLUDED.updated_at
	`, balanceKeyPrefix+snap.Address, raw, snap.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to save balance snapshot: %w", err)
	}
	return nil
}
