// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// ads.go caches the active ad inventory in Valkey so feed requests do not
// query PostgreSQL for it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"promptdeck/internal/models"
)

const (
	// adsKey is the Valkey key holding the encoded active ad list.
	adsKey = "ads:active"

	// DefaultAdTTL is how long the active ad list stays cached.
	DefaultAdTTL = time.Minute
)

// AdLister reads the active ads from the database.
type AdLister interface {
	ListActive(ctx context.Context) ([]models.Ad, error)
}

// AdCache serves the active ad inventory from Valkey, falling back to
// the database on a miss.
type AdCache struct {
	client *redis.Client
	source AdLister
	ttl    time.Duration
}

// NewAdCache creates an ad cache over source.
func NewAdCache(client *redis.Client, source AdLister, ttl time.Duration) *AdCache {
	if ttl == 0 {
		ttl = DefaultAdTTL
	}
	return &AdCache{client: client, source: source, ttl: ttl}
}

// ActiveAds returns the active ads. Cache errors are logged and fall
// through to the database.
func (ac *AdCache) ActiveAds(ctx context.Context) ([]models.Ad, error) {
	val, err := ac.client.Get(ctx, adsKey).Bytes()
	switch {
	case err == nil:
		var ads []models.Ad
		if err := json.Unmarshal(val, &ads); err == nil {
			slog.Debug("ad cache hit", "count", len(ads))
			return ads, nil
		}
		slog.Warn("ad cache entry undecodable, reloading")
	case !errors.Is(err, redis.Nil):
		slog.Warn("ad cache get error", "error", err)
	}

	ads, err := ac.source.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active ads: %w", err)
	}
	ac.set(ctx, ads)
	return ads, nil
}

func (ac *AdCache) set(ctx context.Context, ads []models.Ad) {
	if ads == nil {
		ads = []models.Ad{}
	}
	b, err := json.Marshal(ads)
	if err != nil {
		slog.Warn("ad cache encode error", "error", err)
		return
	}
	if err := ac.client.Set(ctx, adsKey, b, ac.ttl).Err(); err != nil {
		slog.Warn("ad cache set error", "error", err)
	}
}

// Invalidate drops the cached list so the next read hits the database.
func (ac *AdCache) Invalidate(ctx context.Context) {
	if err := ac.client.Del(ctx, adsKey).Err(); err != nil {
		slog.Warn("ad cache invalidate error", "error", err)
	}
	slog.Debug("ad cache invalidated")
}
