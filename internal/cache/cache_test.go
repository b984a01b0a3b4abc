// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cache

import (
	"context"
	"os"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"promptdeck/internal/models"
)

// testValkeyClient returns a Redis client for tests.
// Skips if Valkey is unavailable.
func testValkeyClient(t *testing.T) *redis.Client {
	t.Helper()

	host := envOr("VALKEY_HOST", "localhost")
	port := envOr("VALKEY_PORT", "6379")
	password := os.Getenv("VALKEY_PASSWORD")

	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Password: password,
		DB:       15, // Use DB 15 for tests.
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("skipping integration test: Valkey not reachable: %v", err)
	}

	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, "ads:*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	})

	return client
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestConnectValkey(t *testing.T) {
	host := envOr("VALKEY_HOST", "localhost")
	port := envOr("VALKEY_PORT", "6379")

	client, err := ConnectValkey(host, port, "", 15)
	if err != nil {
		t.Skipf("skipping: Valkey not available: %v", err)
	}
	defer client.Close()

	// Verify connection.
	ctx := context.Background()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if pong != "PONG" {
		t.Errorf("expected PONG, got %q", pong)
	}
}

type fakeLister struct {
	ads   []models.Ad
	err   error
	calls atomic.Int32
}

func (f *fakeLister) ListActive(context.Context) ([]models.Ad, error) {
	f.calls.Add(1)
	return f.ads, f.err
}

func TestAdCacheMissThenHit(t *testing.T) {
	client := testValkeyClient(t)
	ctx := context.Background()
	client.Del(ctx, adsKey)

	src := &fakeLister{ads: []models.Ad{
		{ID: "a1", Type: models.AdTypeInline, Status: models.AdStatusActive, Content: []byte(`{"text":"hi"}`)},
	}}
	ac := NewAdCache(client, src, time.Minute)

	for i := 0; i < 3; i++ {
		ads, err := ac.ActiveAds(ctx)
		if err != nil {
			t.Fatalf("ActiveAds: %v", err)
		}
		if len(ads) != 1 || ads[0].ID != "a1" || string(ads[0].Content) != `{"text":"hi"}` {
			t.Fatalf("ads = %+v", ads)
		}
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("source calls = %d, want 1", n)
	}

	ac.Invalidate(ctx)
	if _, err := ac.ActiveAds(ctx); err != nil {
		t.Fatal(err)
	}
	if n := src.calls.Load(); n != 2 {
		t.Errorf("source calls after invalidate = %d, want 2", n)
	}
}

func TestAdCacheEmptyListIsCached(t *testing.T) {
	client := testValkeyClient(t)
	ctx := context.Background()
	client.Del(ctx, adsKey)

	src := &fakeLister{}
	ac := NewAdCache(client, src, time.Minute)
	ac.ActiveAds(ctx)
	ac.ActiveAds(ctx)
	if n := src.calls.Load(); n != 1 {
		t.Errorf("source calls = %d, want 1", n)
	}
}

func TestAdCacheSourceError(t *testing.T) {
	client := testValkeyClient(t)
	ctx := context.Background()
	client.Del(ctx, adsKey)

	ac := NewAdCache(client, &fakeLister{err: errors.New("db down")}, time.Minute)
	if _, err := ac.ActiveAds(ctx); err == nil {
		t.Error("expected error from failing source")
	}
}

func TestNewAdCacheDefaultTTL(t *testing.T) {
	ac := NewAdCache(nil, &fakeLister{}, 0)
	if ac.ttl != DefaultAdTTL {
		t.Errorf("expected DefaultAdTTL (%v), got %v", DefaultAdTTL, ac.ttl)
	}
}
