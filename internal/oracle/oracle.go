// Package oracle serves wallet balances to the rest of the back-office. Reads
// go through a short-lived shared cache; when the upstream is unreachable the
// last balance ever seen for the wallet is served instead and flagged stale.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/tradebot/backoffice/internal/domain"
	"github.com/tradebot/backoffice/internal/metrics"
	"github.com/tradebot/backoffice/pkg/chain"
)

// Lookup outcomes, used as metric labels.
const (
	outcomeCacheHit = "cache_hit"
	outcomeFetched  = "fetched"
	outcomeFallback = "fallback"
	outcomeFailed   = "failed"
)

const (
	MinTTL     = 10 * time.Second
	MaxTTL     = 30 * time.Second
	DefaultTTL = 20 * time.Second
)

// Fetcher reads a balance from the source of truth. It fails with
// chain.ErrInvalidAddress or chain.ErrNetwork.
type Fetcher interface {
	FetchBalance(ctx context.Context, address string) (decimal.Decimal, error)
}

// Store is the shared short-lived balance cache.
type Store interface {
	Get(ctx context.Context, address string) (*domain.BalanceSnapshot, error)
	Set(ctx context.Context, snap domain.BalanceSnapshot, ttl time.Duration) error
}

// LastKnown durably keeps the most recent balance per wallet, with no expiry.
type LastKnown interface {
	LoadBalance(ctx context.Context, address string) (*domain.BalanceSnapshot, error)
	SaveBalance(ctx context.Context, snap domain.BalanceSnapshot) error
}

// Reading is a balance as served to callers.
type Reading struct {
	Amount    decimal.Decimal `json:"amount"`
	FetchedAt time.Time       `json:"fetchedAt"`
	Stale     bool            `json:"stale"`
}

// Config tunes the oracle.
type Config struct {
	TTL          time.Duration
	FetchTimeout time.Duration
}

// ClampTTL keeps ttl within [MinTTL, MaxTTL]; zero means DefaultTTL.
func ClampTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl == 0:
		return DefaultTTL
	case ttl < MinTTL:
		return MinTTL
	case ttl > MaxTTL:
		return MaxTTL
	}
	return ttl
}

// Oracle is safe for concurrent use.
type Oracle struct {
	fetcher   Fetcher
	cache     Store
	lastKnown LastKnown
	ttl       time.Duration
	timeout   time.Duration
	group     singleflight.Group
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates an oracle. lastKnown may be nil, which disables degraded mode.
func New(fetcher Fetcher, cache Store, lastKnown LastKnown, cfg Config, logger zerolog.Logger) *Oracle {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Oracle{
		fetcher:   fetcher,
		cache:     cache,
		lastKnown: lastKnown,
		ttl:       ClampTTL(cfg.TTL),
		timeout:   timeout,
		logger:    logger.With().Str("component", "oracle").Logger(),
		now:       time.Now,
	}
}

func normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Balance returns a cached balance when one is fresh, otherwise fetches it.
// Concurrent misses for one wallet share a single upstream call. If the fetch
// fails the last-known balance is returned with Stale set.
func (o *Oracle) Balance(ctx context.Context, address string) (Reading, error) {
	addr := normalize(address)

	if snap, err := o.cache.Get(ctx, addr); err != nil {
		o.logger.Warn().Err(err).Str("address", addr).Msg("balance cache read failed")
	} else if snap != nil && o.now().Sub(snap.FetchedAt) < o.ttl {
		metrics.RecordBalanceLookup(outcomeCacheHit)
		return Reading{Amount: snap.Amount, FetchedAt: snap.FetchedAt}, nil
	}

	v, err, _ := o.group.Do(addr, func() (interface{}, error) {
		return o.fetch(ctx, addr)
	})
	if err == nil {
		snap := v.(domain.BalanceSnapshot)
		return Reading{Amount: snap.Amount, FetchedAt: snap.FetchedAt}, nil
	}
	if errors.Is(err, chain.ErrInvalidAddress) {
		return Reading{}, domain.ErrValidation(fmt.Sprintf("wallet address %q is invalid", address))
	}

	if o.lastKnown != nil {
		snap, lerr := o.lastKnown.LoadBalance(ctx, addr)
		if lerr != nil {
			o.logger.Error().Err(lerr).Str("address", addr).Msg("last-known balance lookup failed")
		} else if snap != nil {
			metrics.RecordBalanceLookup(outcomeFallback)
			o.logger.Warn().Err(err).Str("address", addr).Time("fetched_at", snap.FetchedAt).
				Msg("balance fetch failed, serving last-known value")
			return Reading{Amount: snap.Amount, FetchedAt: snap.FetchedAt, Stale: true}, nil
		}
	}

	metrics.RecordBalanceLookup(outcomeFailed)
	return Reading{}, domain.ErrUpstream("balance is temporarily unavailable", err)
}

// LiveBalance always goes upstream and never falls back. A successful read
// refreshes the cache.
func (o *Oracle) LiveBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	addr := normalize(address)
	snap, err := o.fetch(ctx, addr)
	if err != nil {
		if errors.Is(err, chain.ErrInvalidAddress) {
			return decimal.Zero, domain.ErrValidation(fmt.Sprintf("wallet address %q is invalid", address))
		}
		metrics.RecordBalanceLookup(outcomeFailed)
		return decimal.Zero, domain.ErrUpstream("balance is temporarily unavailable", err)
	}
	return snap.Amount, nil
}

// fetch runs under its own timeout, detached from the caller's cancellation
// since the result may be shared with other waiters.
func (o *Oracle) fetch(ctx context.Context, addr string) (domain.BalanceSnapshot, error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	start := time.Now()
	amount, err := o.fetcher.FetchBalance(fctx, addr)
	metrics.ObserveBalanceFetch(time.Since(start))
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}
	if amount.IsNegative() {
		return domain.BalanceSnapshot{}, fmt.Errorf("%w: negative balance %s", chain.ErrNetwork, amount)
	}

	snap := domain.BalanceSnapshot{Address: addr, Amount: amount, FetchedAt: o.now()}
	metrics.RecordBalanceLookup(outcomeFetched)

	if err := o.cache.Set(fctx, snap, o.ttl); err != nil {
		o.logger.Warn().Err(err).Str("address", addr).Msg("balance cache write failed")
	}
	if o.lastKnown != nil {
		if err := o.lastKnown.SaveBalance(fctx, snap); err != nil {
			o.logger.Warn().Err(err).Str("address", addr).Msg("last-known balance write failed")
		}
	}
	return snap, nil
}
