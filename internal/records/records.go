// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package records holds the materialized prompt records, partitioned into
// the public partition and one private partition per observed owner.
// Reads never block on I/O; the only mutator is ApplyDiff, fed by the
// subscription manager.
package records

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"promptdeck/internal/apperr"
	"promptdeck/internal/models"
)

// Observer receives every diff that changed local state, after it has
// been applied. Observers run on the applying goroutine and must not block.
type Observer func(scope models.Scope, d models.PromptDiff)

// Repository is a concurrency-safe in-memory prompt index.
type Repository struct {
	mu      sync.RWMutex
	parts   map[models.Scope]map[uuid.UUID]*models.Prompt
	version uint64

	obsMu     sync.RWMutex
	observers map[int]Observer
	nextObs   int
}

// New creates an empty repository.
func New() *Repository {
	return &Repository{
		parts:     make(map[models.Scope]map[uuid.UUID]*models.Prompt),
		observers: make(map[int]Observer),
	}
}

// canRead reports whether actor may read the private partition of owner.
func canRead(actor *models.Actor, owner uuid.UUID) bool {
	return actor.Owns(owner) || actor.IsAdmin()
}

// Get returns the prompt if it exists in scope and actor may see it.
// Unauthorized access to a private prompt is reported as ErrNotFound so
// existence is never leaked.
func (r *Repository) Get(actor *models.Actor, scope models.Scope, id uuid.UUID) (*models.Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var p *models.Prompt
	switch scope.Kind {
	case models.ScopePublic:
		p = r.parts[models.PublicScope()][id]
	case models.ScopePrivate:
		if canRead(actor, scope.Owner) {
			p = r.parts[scope][id]
		}
	case models.ScopeOwned:
		if pub, ok := r.parts[models.PublicScope()][id]; ok && pub.OwnerID == scope.Owner {
			p = pub
		} else if canRead(actor, scope.Owner) {
			p = r.parts[models.PrivateScope(scope.Owner)][id]
		}
	}
	if p == nil || !p.VisibleTo(actor) {
		return nil, apperr.ErrNotFound
	}
	return p.Clone(), nil
}

// List returns the prompts of scope matching f, in no particular order.
// A private or owned scope that actor may not read yields only what is
// public.
func (r *Repository) List(actor *models.Actor, scope models.Scope, f Filter) []models.Prompt {
	m := f.matcher()

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Prompt
	collect := func(part map[uuid.UUID]*models.Prompt, owner uuid.UUID) {
		for _, p := range part {
			if owner != uuid.Nil && p.OwnerID != owner {
				continue
			}
			if p.VisibleTo(actor) && m.match(p) {
				out = append(out, *p.Clone())
			}
		}
	}

	switch scope.Kind {
	case models.ScopePublic:
		collect(r.parts[models.PublicScope()], uuid.Nil)
	case models.ScopePrivate:
		if canRead(actor, scope.Owner) {
			collect(r.parts[scope], uuid.Nil)
		}
	case models.ScopeOwned:
		collect(r.parts[models.PublicScope()], scope.Owner)
		if canRead(actor, scope.Owner) {
			collect(r.parts[models.PrivateScope(scope.Owner)], uuid.Nil)
		}
	}
	return out
}

// Keys returns the ids stored in the partition of scope.
func (r *Repository) Keys(scope models.Scope) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.parts[scope]))
	for id := range r.parts[scope] {
		keys = append(keys, id.String())
	}
	return keys
}

// Version returns a counter that increases on every effective change.
func (r *Repository) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// ApplyDiff applies one change to the partition of scope and reports
// whether local state changed. Added and Updated are last-write-wins by
// revision, or by UpdatedAt for records without one; applying the same
// diff twice is a no-op. Removing an absent id is a no-op. Items that do
// not belong to the partition are dropped.
func (r *Repository) ApplyDiff(scope models.Scope, d models.PromptDiff) bool {
	id, err := uuid.Parse(d.Key)
	if err != nil {
		slog.Warn("prompt diff with invalid id", "scope", scope.String(), "key", d.Key)
		return false
	}

	changed, applied := r.apply(scope, id, d)
	if changed {
		r.notify(scope, applied)
	}
	return changed
}

func (r *Repository) apply(scope models.Scope, id uuid.UUID, d models.PromptDiff) (bool, models.PromptDiff) {
	r.mu.Lock()
	defer r.mu.Unlock()

	part := r.parts[scope]

	switch d.Kind {
	case models.DiffRemoved:
		if _, ok := part[id]; !ok {
			return false, d
		}
		delete(part, id)
		r.version++
		return true, models.PromptDiff{Kind: models.DiffRemoved, Key: d.Key}

	case models.DiffAdded, models.DiffUpdated:
		if d.Item == nil {
			return false, d
		}
		if d.Item.ID != id || d.Item.Scope() != scope {
			slog.Warn("prompt diff outside its partition",
				"scope", scope.String(), "id", d.Key, "visibility", d.Item.Visibility)
			return false, d
		}
		kind := models.DiffAdded
		if cur, ok := part[id]; ok {
			if !d.Item.Supersedes(cur) || samePrompt(cur, d.Item) {
				return false, d
			}
			kind = models.DiffUpdated
		}
		if part == nil {
			part = make(map[uuid.UUID]*models.Prompt)
			r.parts[scope] = part
		}
		p := d.Item.Clone()
		p.LikeCount = max(p.LikeCount, 0)
		p.DownloadCount = max(p.DownloadCount, 0)
		part[id] = p
		r.version++
		return true, models.PromptDiff{Kind: kind, Key: d.Key, Item: p.Clone()}
	}
	return false, d
}

// Clear drops the partition of scope, notifying observers of each removal.
// Used when access to a private partition is revoked.
func (r *Repository) Clear(scope models.Scope) {
	r.mu.Lock()
	part := r.parts[scope]
	delete(r.parts, scope)
	if len(part) > 0 {
		r.version++
	}
	r.mu.Unlock()

	for id := range part {
		r.notify(scope, models.PromptDiff{Kind: models.DiffRemoved, Key: id.String()})
	}
}

// Observe registers fn for every effective diff and returns a function
// that unregisters it.
func (r *Repository) Observe(fn Observer) (cancel func()) {
	r.obsMu.Lock()
	id := r.nextObs
	r.nextObs++
	r.observers[id] = fn
	r.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.obsMu.Lock()
			delete(r.observers, id)
			r.obsMu.Unlock()
		})
	}
}

func (r *Repository) notify(scope models.Scope, d models.PromptDiff) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, fn := range r.observers {
		fn(scope, d)
	}
}

// samePrompt reports whether two prompts carry identical state.
func samePrompt(a, b *models.Prompt) bool {
	return a.ID == b.ID &&
		a.Title == b.Title &&
		a.Content == b.Content &&
		a.Description == b.Description &&
		slices.Equal(a.Tags, b.Tags) &&
		a.CategoryID == b.CategoryID &&
		a.SubcategoryID == b.SubcategoryID &&
		a.OwnerID == b.OwnerID &&
		a.OwnerDisplayName == b.OwnerDisplayName &&
		a.Visibility == b.Visibility &&
		a.CreatedAt.Equal(b.CreatedAt) &&
		a.UpdatedAt.Equal(b.UpdatedAt) &&
		a.LikeCount == b.LikeCount &&
		a.DownloadCount == b.DownloadCount &&
		a.Revision == b.Revision
}
