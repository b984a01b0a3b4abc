// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"promptdeck/internal/apperr"
	"promptdeck/internal/models"
	"promptdeck/internal/store"
)

// channelPrefix is the Valkey pub/sub channel prefix for partition patches.
const channelPrefix = "catalog:"

// Channel returns the pub/sub channel carrying patches for path.
func Channel(path string) string {
	return channelPrefix + path
}

// Postgres is the production remote store. PostgreSQL is the source of
// truth; every successful write publishes a patch on the partition's
// Valkey channel, and attached subscribers receive a snapshot read from
// PostgreSQL followed by those patches.
type Postgres struct {
	prompts    *store.PromptStore
	categories *store.CategoryStore
	rdb        *redis.Client

	mu      sync.Mutex
	streams map[string]*pgStream
}

type pgStream struct {
	cancel context.CancelFunc
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewPostgres creates a remote store over the given stores and Valkey client.
func NewPostgres(prompts *store.PromptStore, categories *store.CategoryStore, rdb *redis.Client) *Postgres {
	return &Postgres{
		prompts:    prompts,
		categories: categories,
		rdb:        rdb,
		streams:    make(map[string]*pgStream),
	}
}

// Attach implements Transport. It subscribes to the partition channel
// before reading the snapshot so no write between the two is lost; a patch
// that is already part of the snapshot is applied again as a no-op.
func (pg *Postgres) Attach(ctx context.Context, path string) (<-chan Event, error) {
	part, err := models.ParsePartition(path)
	if err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}

	pg.Detach(path)

	streamCtx, cancel := context.WithCancel(context.Background())
	pubsub := pg.rdb.Subscribe(ctx, Channel(path))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		pubsub.Close()
		return nil, apperr.Transient(fmt.Errorf("subscribe %s: %w", path, err))
	}

	entries, err := pg.snapshot(ctx, part)
	if err != nil {
		cancel()
		pubsub.Close()
		return nil, apperr.Transient(err)
	}

	s := &pgStream{cancel: cancel, pubsub: pubsub, done: make(chan struct{})}
	pg.mu.Lock()
	pg.streams[path] = s
	pg.mu.Unlock()

	out := make(chan Event)
	go pg.forward(streamCtx, s, path, entries, out)
	return out, nil
}

func (pg *Postgres) forward(ctx context.Context, s *pgStream, path string, entries map[string]json.RawMessage, out chan<- Event) {
	defer close(s.done)
	defer close(out)

	send := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !send(Event{Kind: EventSnapshot, Entries: entries}) {
		return
	}
	for {
		msg, err := s.pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				send(Event{Kind: EventError, Err: apperr.Transient(fmt.Errorf("receive %s: %w", path, err))})
			}
			return
		}
		var pm patchMessage
		if err := json.Unmarshal([]byte(msg.Payload), &pm); err != nil {
			slog.Warn("undecodable catalog patch", "channel", msg.Channel, "error", err)
			continue
		}
		if pm.Revoked {
			send(Event{Kind: EventError, Err: ErrPermissionRevoked})
			return
		}
		if !send(Event{Kind: EventPatch, Key: pm.Key, Value: pm.Value}) {
			return
		}
	}
}

// Detach implements Transport. It waits for the forwarding goroutine.
func (pg *Postgres) Detach(path string) {
	pg.mu.Lock()
	s := pg.streams[path]
	delete(pg.streams, path)
	pg.mu.Unlock()

	if s == nil {
		return
	}
	s.cancel()
	if err := s.pubsub.Close(); err != nil {
		slog.Debug("pubsub close", "path", path, "error", err)
	}
	<-s.done
}

func (pg *Postgres) snapshot(ctx context.Context, part models.Partition) (map[string]json.RawMessage, error) {
	entries := make(map[string]json.RawMessage)
	switch part.Resource {
	case models.ResourcePrompts:
		items, err := pg.prompts.ListByScope(ctx, part.Scope)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", part.Path(), err)
		}
		for _, p := range items {
			doc, err := json.Marshal(p)
			if err != nil {
				return nil, fmt.Errorf("encode prompt %s: %w", p.ID, err)
			}
			entries[p.ID.String()] = doc
		}
	case models.ResourceCategories:
		items, err := pg.categories.ListByScope(ctx, part.Scope)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", part.Path(), err)
		}
		for _, c := range items {
			doc, err := json.Marshal(c)
			if err != nil {
				return nil, fmt.Errorf("encode category %s: %w", c.ID, err)
			}
			entries[c.ID] = doc
		}
	}
	return entries, nil
}

// publish sends a patch for key on path. A nil item publishes a removal.
// Publishing is best-effort: the write already committed, and subscribers
// converge on their next snapshot.
func (pg *Postgres) publish(ctx context.Context, path, key string, item any) {
	pm := patchMessage{Key: key}
	if item != nil {
		doc, err := json.Marshal(item)
		if err != nil {
			slog.Warn("encode catalog patch", "path", path, "key", key, "error", err)
			return
		}
		pm.Value = doc
	}
	payload, err := json.Marshal(pm)
	if err != nil {
		slog.Warn("encode catalog patch", "path", path, "key", key, "error", err)
		return
	}
	if err := pg.rdb.Publish(ctx, Channel(path), payload).Err(); err != nil {
		slog.Warn("publish catalog patch", "path", path, "key", key, "error", err)
	}
}

func promptPath(p *models.Prompt) string {
	return models.Partition{Resource: models.ResourcePrompts, Scope: p.Scope()}.Path()
}

// GetPrompt implements Writer.
func (pg *Postgres) GetPrompt(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	p, err := pg.prompts.FindByID(ctx, id)
	if err != nil {
		return nil, apperr.Transient(err)
	}
	if p == nil {
		return nil, fmt.Errorf("prompt %s: %w", id, apperr.ErrNotFound)
	}
	return p, nil
}

// PutPrompt implements Writer.
func (pg *Postgres) PutPrompt(ctx context.Context, p *models.Prompt) error {
	prev, err := pg.prompts.FindByID(ctx, p.ID)
	if err != nil {
		return apperr.Transient(err)
	}
	stored, err := pg.prompts.Upsert(ctx, p)
	if err != nil {
		return apperr.Transient(err)
	}
	if prev != nil && promptPath(prev) != promptPath(stored) {
		pg.publish(ctx, promptPath(prev), p.ID.String(), nil)
	}
	// The patch carries the stored counters and revision.
	pg.publish(ctx, promptPath(stored), p.ID.String(), stored)
	return nil
}

// DeletePrompt implements Writer.
func (pg *Postgres) DeletePrompt(ctx context.Context, id uuid.UUID) error {
	p, err := pg.GetPrompt(ctx, id)
	if err != nil {
		return apperr.Transient(err)
	}
	deleted, err := pg.prompts.Delete(ctx, id)
	if err != nil {
		return apperr.Transient(err)
	}
	if !deleted {
		return fmt.Errorf("prompt %s: %w", id, apperr.ErrNotFound)
	}
	pg.publish(ctx, promptPath(p), id.String(), nil)
	return nil
}

// ToggleLike implements Writer.
func (pg *Postgres) ToggleLike(ctx context.Context, actorID, promptID uuid.UUID) (bool, error) {
	liked, p, err := pg.prompts.ToggleLike(ctx, actorID, promptID)
	if err != nil {
		return false, apperr.Transient(err)
	}
	if p == nil {
		return false, fmt.Errorf("prompt %s: %w", promptID, apperr.ErrNotFound)
	}
	pg.publish(ctx, promptPath(p), p.ID.String(), p)
	return liked, nil
}

// IncrementDownloads implements Writer.
func (pg *Postgres) IncrementDownloads(ctx context.Context, id uuid.UUID) error {
	p, err := pg.prompts.IncrementDownloads(ctx, id)
	if err != nil {
		return apperr.Transient(err)
	}
	if p == nil {
		return fmt.Errorf("prompt %s: %w", id, apperr.ErrNotFound)
	}
	pg.publish(ctx, promptPath(p), p.ID.String(), p)
	return nil
}

// GetCategory implements Writer.
func (pg *Postgres) GetCategory(ctx context.Context, scope models.Scope, id string) (*models.Category, error) {
	c, err := pg.categories.FindByID(ctx, scope, id)
	if err != nil {
		return nil, apperr.Transient(err)
	}
	if c == nil {
		return nil, fmt.Errorf("category %s: %w", id, apperr.ErrNotFound)
	}
	return c, nil
}

// PutCategory implements Writer.
func (pg *Postgres) PutCategory(ctx context.Context, c *models.Category) error {
	if err := pg.categories.Upsert(ctx, c); err != nil {
		return apperr.Transient(err)
	}
	stored, err := pg.categories.FindByID(ctx, c.Scope(), c.ID)
	if err != nil || stored == nil {
		stored = c
	}
	pg.publish(ctx, categoryPath(c.Scope()), c.ID, stored)
	return nil
}

// DeleteCategory implements Writer.
func (pg *Postgres) DeleteCategory(ctx context.Context, scope models.Scope, id string) error {
	deleted, err := pg.categories.Delete(ctx, scope, id)
	if err != nil {
		return apperr.Transient(err)
	}
	if !deleted {
		return fmt.Errorf("category %s: %w", id, apperr.ErrNotFound)
	}
	pg.publish(ctx, categoryPath(scope), id, nil)
	return nil
}

// IncrementCategoryCount implements Writer.
func (pg *Postgres) IncrementCategoryCount(ctx context.Context, scope models.Scope, id string, delta int) error {
	c, err := pg.categories.IncrementCount(ctx, scope, id, delta)
	if err != nil {
		return apperr.Transient(err)
	}
	if c == nil {
		return fmt.Errorf("category %s: %w", id, apperr.ErrNotFound)
	}
	pg.publish(ctx, categoryPath(scope), id, c)
	return nil
}
