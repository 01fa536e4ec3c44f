// Package snapshot serves immutable read snapshots of pricing data.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/printcore/prism/internal/domain"
)

// Loader reads modifier sets and attribute price tables through the cache.
// Snapshots are cached whole, so a pricing request either sees a complete
// set or misses and falls back to the repository. Cache failures degrade to
// direct repository reads rather than failing the request.
type Loader struct {
	repo  domain.Repository
	cache domain.Cache
	ttl   time.Duration
}

// NewLoader creates a snapshot loader. A zero TTL disables caching.
func NewLoader(repo domain.Repository, cache domain.Cache, ttl time.Duration) *Loader {
	return &Loader{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
	}
}

// Modifiers returns the active modifier set for one pricing request. The
// query's pricing keys are sorted first so equivalent requests share a
// cache entry.
func (l *Loader) Modifiers(ctx context.Context, q domain.ModifierQuery) ([]*domain.PricingModifier, error) {
	sort.Strings(q.PricingKeys)
	key := q.CacheKey()

	if l.cacheEnabled() {
		if data, err := l.cache.Get(ctx, key); err != nil {
			slog.Warn("modifier snapshot cache read failed", "key", key, "error", err)
		} else if data != nil {
			var mods []*domain.PricingModifier
			if err := json.Unmarshal(data, &mods); err == nil {
				return mods, nil
			}
			slog.Warn("modifier snapshot cache entry corrupt", "key", key)
		}
	}

	mods, err := l.repo.ListActiveModifiers(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to load modifiers: %w", err)
	}

	if l.cacheEnabled() {
		if data, err := json.Marshal(mods); err == nil {
			if err := l.cache.Set(ctx, key, data, l.ttl); err != nil {
				slog.Warn("modifier snapshot cache write failed", "key", key, "error", err)
			}
		}
	}

	return mods, nil
}

// AttributePrices returns a product's attribute price table keyed by
// pricing key.
func (l *Loader) AttributePrices(ctx context.Context, productID string) (map[string]domain.AttributePrice, error) {
	key := "prices:" + productID

	if l.cacheEnabled() {
		if data, err := l.cache.Get(ctx, key); err != nil {
			slog.Warn("price table cache read failed", "key", key, "error", err)
		} else if data != nil {
			var table map[string]domain.AttributePrice
			if err := json.Unmarshal(data, &table); err == nil {
				return table, nil
			}
			slog.Warn("price table cache entry corrupt", "key", key)
		}
	}

	table, err := l.repo.GetAttributePrices(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attribute prices: %w", err)
	}

	if l.cacheEnabled() {
		if data, err := json.Marshal(table); err == nil {
			if err := l.cache.Set(ctx, key, data, l.ttl); err != nil {
				slog.Warn("price table cache write failed", "key", key, "error", err)
			}
		}
	}

	return table, nil
}

// Invalidate drops the cached price table for a product. Called on catalog
// change events; modifier snapshots are short-lived and expire on their own.
func (l *Loader) Invalidate(ctx context.Context, productID string) {
	if !l.cacheEnabled() {
		return
	}
	if err := l.cache.Delete(ctx, "prices:"+productID); err != nil {
		slog.Warn("price table invalidation failed", "product_id", productID, "error", err)
	}
}

func (l *Loader) cacheEnabled() bool {
	return l.cache != nil && l.ttl > 0
}
