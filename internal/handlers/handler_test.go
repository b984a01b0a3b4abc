// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// handler_test.go provides shared test infrastructure for handler tests.
// The default environment runs on the in-memory remote store; tests using
// PostgreSQL or Valkey are skipped when those are unavailable.
package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"

	"promptdeck/internal/database"
	"promptdeck/internal/feed"
	"promptdeck/internal/gateway"
	"promptdeck/internal/middleware"
	"promptdeck/internal/models"
	"promptdeck/internal/records"
	"promptdeck/internal/remote"
	"promptdeck/internal/session"
	"promptdeck/internal/subscription"
	"promptdeck/internal/taxonomy"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testDB opens a connection to the test PostgreSQL and runs migrations.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "promptdeck")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "promptdeck")
	dsn := "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Skipf("skipping: cannot open DB: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping: DB not reachable: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}
	goose.SetBaseFS(nil)

	t.Cleanup(func() { db.Close() })
	return db
}

// testValkeyClient returns a Redis client for handler tests on DB 15.
func testValkeyClient(t *testing.T) *redis.Client {
	t.Helper()

	host := envOr("VALKEY_HOST", "localhost")
	port := envOr("VALKEY_PORT", "6379")
	password := os.Getenv("VALKEY_PASSWORD")

	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Password: password,
		DB:       15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("skipping: Valkey not reachable: %v", err)
	}

	t.Cleanup(func() {
		for _, pattern := range []string{"session:*", "ads:*"} {
			keys, _ := client.Keys(ctx, pattern).Result()
			if len(keys) > 0 {
				client.Del(ctx, keys...)
			}
		}
		client.Close()
	})

	return client
}

// testEnv holds every dependency of the catalog handlers.
type testEnv struct {
	Transport remote.Transport
	Writer    remote.Writer
	Records   *records.Repository
	Taxonomy  *taxonomy.Store
	Manager   *subscription.Manager
	Leases    *subscription.Leases
	Gateway   *gateway.Gateway
	Overlay   *feed.Overlay
	Catalog   *Catalog
	Sync      *Sync

	Admin *models.Actor
	Alice *models.Actor
	Bob   *models.Actor
}

// backend is a remote store usable as both transport and writer.
type backend interface {
	remote.Transport
	remote.Writer
}

// newTestEnv wires the catalog over the in-memory remote store with the
// public partitions live and a small ad inventory.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ads := feed.NewInventory(
		models.Ad{ID: "banner", Type: models.AdTypeBanner, Status: models.AdStatusActive, Content: json.RawMessage(`{}`)},
		models.Ad{ID: "inline", Type: models.AdTypeInline, Status: models.AdStatusActive, Content: json.RawMessage(`{}`)},
	)
	return newTestEnvWith(t, remote.NewMemory(), ads)
}

func newTestEnvWith(t *testing.T, b backend, ads feed.AdSource) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &testEnv{
		Transport: b,
		Writer:    b,
		Records:   records.New(),
		Taxonomy:  taxonomy.New(),
		Admin:     &models.Actor{ID: uuid.New(), Role: models.RoleAdmin, DisplayName: "Admin"},
		Alice:     &models.Actor{ID: uuid.New(), Role: models.RoleMember, DisplayName: "Alice"},
		Bob:       &models.Actor{ID: uuid.New(), Role: models.RoleMember, DisplayName: "Bob"},
	}
	env.Manager = subscription.NewManager(b, env.Records, env.Taxonomy, subscription.Config{
		BaseDelay:     5 * time.Millisecond,
		MaxDelay:      20 * time.Millisecond,
		MaxRetries:    3,
		StallCooldown: 50 * time.Millisecond,
	}, logger)
	t.Cleanup(env.Manager.Close)

	for _, res := range []models.Resource{models.ResourceCategories, models.ResourcePrompts} {
		h, err := env.Manager.Subscribe(models.PublicPartition(res))
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = h.WaitLive(ctx)
		cancel()
		if err != nil {
			t.Fatalf("WaitLive: %v", err)
		}
		t.Cleanup(h.Release)
	}

	env.Leases = subscription.NewLeases(env.Manager, 16, time.Minute)
	t.Cleanup(env.Leases.Close)

	env.Gateway = gateway.New(b, env.Taxonomy, gateway.WithLogger(logger))
	env.Overlay = feed.NewOverlay(64, time.Minute)
	t.Cleanup(env.Records.Observe(env.Overlay.Observe))

	composer, err := feed.New(env.Records, env.Overlay, feed.Config{PageSize: 5})
	if err != nil {
		t.Fatalf("feed.New: %v", err)
	}
	env.Catalog = NewCatalog(env.Gateway, env.Records, env.Taxonomy, composer, env.Overlay, ads, env.Leases)
	env.Sync = NewSync(env.Manager)
	return env
}

// seedCategory creates a public category as the admin and waits for it
// to sync.
func (env *testEnv) seedCategory(t *testing.T, id, name string) {
	t.Helper()
	if _, err := env.Gateway.UpsertCategory(context.Background(), env.Admin, models.PublicScope(), gateway.CategoryInput{ID: id, Name: name}); err != nil {
		t.Fatalf("seed category %s: %v", id, err)
	}
	eventually(t, "category "+id+" synced", func() bool {
		_, ok := env.Taxonomy.Get(models.PublicScope(), id)
		return ok
	})
}

// ctxWithSession adds session data for actor to a context using the
// middleware key. A nil actor leaves the context anonymous.
func ctxWithSession(ctx context.Context, actor *models.Actor) context.Context {
	if actor == nil {
		return ctx
	}
	sess := &session.Data{
		UserID:      actor.ID,
		Email:       actor.DisplayName + "@test.local",
		DisplayName: actor.DisplayName,
		Role:        string(actor.Role),
	}
	return context.WithValue(ctx, middleware.SessionKey, sess)
}

// withURLParams adds chi URL parameters, given as name/value pairs, to
// the request context.
func withURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// call runs handler h for a request by actor with an optional JSON body.
func call(t *testing.T, h http.HandlerFunc, actor *models.Actor, method, target string, body any, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(ctxWithSession(req.Context(), actor))
	req = withURLParams(req, params...)

	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

// decode unmarshals a response body into v.
func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
