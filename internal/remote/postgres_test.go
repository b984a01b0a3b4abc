// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package remote

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"

	"promptdeck/internal/apperr"
	"promptdeck/internal/database"
	"promptdeck/internal/models"
	"promptdeck/internal/store"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testPostgres wires a Postgres remote against the test database and
// Valkey. Skips if either is unavailable.
func testPostgres(t *testing.T) (*Postgres, *sql.DB) {
	t.Helper()

	dsn := "postgres://" + envOr("POSTGRES_USER", "promptdeck") + ":" +
		envOr("POSTGRES_PASSWORD", "changeme") + "@" + envOr("POSTGRES_HOST", "localhost") + ":" +
		envOr("POSTGRES_PORT", "5432") + "/" + envOr("POSTGRES_DB", "promptdeck") + "?sslmode=disable"
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Skipf("skipping integration test: cannot open DB: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping integration test: DB not reachable: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	goose.SetBaseFS(nil)

	rdb := redis.NewClient(&redis.Options{
		Addr:     envOr("VALKEY_HOST", "localhost") + ":" + envOr("VALKEY_PORT", "6379"),
		Password: os.Getenv("VALKEY_PASSWORD"),
		DB:       15,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		db.Close()
		t.Skipf("skipping integration test: Valkey not reachable: %v", err)
	}

	t.Cleanup(func() {
		rdb.Close()
		db.Close()
	})
	return NewPostgres(store.NewPromptStore(db), store.NewCategoryStore(db), rdb), db
}

func TestPostgresPrivateStreamAndRevoke(t *testing.T) {
	pg, db := testPostgres(t)
	ctx := context.Background()

	owner := uuid.New()
	path := models.PrivatePartition(models.ResourcePrompts, owner).Path()
	p := testPrompt(owner, models.VisibilityPrivate)
	t.Cleanup(func() { db.Exec("DELETE FROM prompts WHERE owner_id = $1", owner) })

	if err := pg.PutPrompt(ctx, p); err != nil {
		t.Fatalf("PutPrompt: %v", err)
	}

	ch, err := pg.Attach(ctx, path)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer pg.Detach(path)

	snap := next(t, ch)
	if snap.Kind != EventSnapshot {
		t.Fatalf("first event = %v, want snapshot", snap.Kind)
	}
	if _, ok := snap.Entries[p.ID.String()]; !ok {
		t.Error("snapshot missing stored prompt")
	}

	if _, err := pg.ToggleLike(ctx, uuid.New(), p.ID); err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	if ev := next(t, ch); ev.Kind != EventPatch || ev.Key != p.ID.String() {
		t.Errorf("event = %+v, want patch for %s", ev, p.ID)
	}

	// Access control publishes the revocation on the partition channel.
	if err := pg.rdb.Publish(ctx, Channel(path), `{"key":"","revoked":true}`).Err(); err != nil {
		t.Fatalf("publish revocation: %v", err)
	}
	if ev := next(t, ch); !errors.Is(ev.Err, ErrPermissionRevoked) {
		t.Errorf("event = %+v, want ErrPermissionRevoked", ev)
	}
}

func TestPostgresAttachFailureIsTransient(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	pg := NewPostgres(nil, nil, rdb)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := pg.Attach(ctx, publicPrompts)
	if !errors.Is(err, apperr.ErrTransientTransport) {
		t.Fatalf("Attach() = %v, want ErrTransientTransport", err)
	}
}
