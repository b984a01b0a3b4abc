// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package taxonomy holds the materialized category tree for the public
// scope and for every observed private scope. It is read by the gateway
// and the HTTP layer and written only through ApplyDiff, which the
// subscription manager calls with diffs decoded from the remote store.
package taxonomy

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"promptdeck/internal/apperr"
	"promptdeck/internal/models"
)

// Store is a concurrency-safe in-memory category index keyed by scope.
type Store struct {
	mu    sync.RWMutex
	parts map[models.Scope]map[string]*models.Category
}

// New creates an empty taxonomy store.
func New() *Store {
	return &Store{
		parts: make(map[models.Scope]map[string]*models.Category),
	}
}

// List returns the categories of scope ordered by sort order, then name,
// then id. The returned values are copies.
func (s *Store) List(scope models.Scope) []models.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()

	part := s.parts[scope]
	out := make([]models.Category, 0, len(part))
	for _, c := range part {
		out = append(out, *c.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return out
}

// Get returns a copy of the category, or false if it is not known locally.
func (s *Store) Get(scope models.Scope, id string) (*models.Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.parts[scope][id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Resolve checks that categoryID exists in scope and, if subcategoryID is
// set, that it names one of its subcategories.
func (s *Store) Resolve(scope models.Scope, categoryID, subcategoryID string) error {
	c, ok := s.Get(scope, categoryID)
	if !ok {
		return apperr.Validationf("Category %q does not exist.", categoryID)
	}
	if subcategoryID != "" && !c.HasSubcategory(subcategoryID) {
		return apperr.Validationf("Subcategory %q does not exist in %q.", subcategoryID, categoryID)
	}
	return nil
}

// FindByName returns the id of the category in scope whose name matches
// name case-insensitively.
func (s *Store) FindByName(scope models.Scope, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, c := range s.parts[scope] {
		if strings.EqualFold(c.Name, name) {
			return id, true
		}
	}
	return "", false
}

// Keys returns the ids known locally for scope.
func (s *Store) Keys(scope models.Scope) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.parts[scope]))
	for id := range s.parts[scope] {
		keys = append(keys, id)
	}
	return keys
}

// ApplyDiff applies one change to scope and reports whether local state
// changed. Added and Updated are last-write-wins by revision, falling
// back to UpdatedAt: an item older than the stored one is ignored.
// Removing an absent id is a no-op. Removing a category drops its
// subcategories with it.
func (s *Store) ApplyDiff(scope models.Scope, d models.CategoryDiff) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	part := s.parts[scope]

	switch d.Kind {
	case models.DiffRemoved:
		if _, ok := part[d.Key]; !ok {
			return false
		}
		delete(part, d.Key)
		slog.Debug("category removed", "scope", scope.String(), "id", d.Key)
		return true

	case models.DiffAdded, models.DiffUpdated:
		if d.Item == nil {
			return false
		}
		if scope.IsPublic() != (d.Item.OwnerID == nil) ||
			(d.Item.OwnerID != nil && *d.Item.OwnerID != scope.Owner) {
			slog.Warn("category diff outside its partition",
				"scope", scope.String(), "id", d.Key)
			return false
		}
		if cur, ok := part[d.Key]; ok {
			if !d.Item.Supersedes(cur) {
				return false
			}
			if sameCategory(cur, d.Item) {
				return false
			}
		}
		if part == nil {
			part = make(map[string]*models.Category)
			s.parts[scope] = part
		}
		c := d.Item.Clone()
		if c.ItemCount < 0 {
			c.ItemCount = 0
		}
		part[d.Key] = c
		return true
	}
	return false
}

// Clear drops every category of scope. Used when access to a private
// partition is revoked.
func (s *Store) Clear(scope models.Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.parts, scope)
	slog.Debug("taxonomy scope cleared", "scope", scope.String())
}

// sameCategory reports whether two categories carry identical state.
func sameCategory(a, b *models.Category) bool {
	if a.ID != b.ID || a.Name != b.Name || a.Description != b.Description ||
		a.ItemCount != b.ItemCount || a.SortOrder != b.SortOrder ||
		!a.CreatedAt.Equal(b.CreatedAt) || !a.UpdatedAt.Equal(b.UpdatedAt) || a.Revision != b.Revision ||
		len(a.Subcategories) != len(b.Subcategories) {
		return false
	}
	for id, sub := range a.Subcategories {
		if other, ok := b.Subcategories[id]; !ok || other != sub {
			return false
		}
	}
	return true
}
