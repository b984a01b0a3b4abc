package subscription

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"promptdeck/internal/models"
	"promptdeck/internal/records"
	"promptdeck/internal/slug"
	"promptdeck/internal/taxonomy"
)

// sink adapts one local store partition to raw remote documents.
type sink interface {
	keys() []string
	upsert(key string, raw json.RawMessage, kind models.DiffKind) (bool, error)
	remove(key string) bool
	clear()
}

type recordSink struct {
	repo  *records.Repository
	tax   *taxonomy.Store
	scope models.Scope
}

func (s *recordSink) keys() []string {
	return s.repo.Keys(s.scope)
}

func (s *recordSink) upsert(key string, raw json.RawMessage, kind models.DiffKind) (bool, error) {
	var p models.Prompt
	if err := json.Unmarshal(raw, &p); err != nil {
		return false, fmt.Errorf("decode prompt: %w", err)
	}
	if p.ID == uuid.Nil {
		id, err := uuid.Parse(key)
		if err != nil {
			return false, fmt.Errorf("decode prompt: invalid key %q", key)
		}
		p.ID = id
	}
	normalizeLegacyCategory(&p, s.tax)
	return s.repo.ApplyDiff(s.scope, models.PromptDiff{Kind: kind, Key: key, Item: &p}), nil
}

func (s *recordSink) remove(key string) bool {
	return s.repo.ApplyDiff(s.scope, models.PromptDiff{Kind: models.DiffRemoved, Key: key})
}

func (s *recordSink) clear() {
	s.repo.Clear(s.scope)
}

// normalizeLegacyCategory resolves the display name carried by records
// written before category ids existed. The owner's private taxonomy is
// searched first, then the public one; an unknown name falls back to its
// slug, which is how category ids are derived.
func normalizeLegacyCategory(p *models.Prompt, tax *taxonomy.Store) {
	name := p.LegacyCategory
	p.LegacyCategory = ""
	if p.CategoryID != "" || name == "" {
		return
	}
	if p.IsPrivate() {
		if id, ok := tax.FindByName(models.PrivateScope(p.OwnerID), name); ok {
			p.CategoryID = id
			return
		}
	}
	if id, ok := tax.FindByName(models.PublicScope(), name); ok {
		p.CategoryID = id
		return
	}
	p.CategoryID = slug.Generate(name)
}

type categorySink struct {
	store *taxonomy.Store
	scope models.Scope
}

func (s *categorySink) keys() []string {
	return s.store.Keys(s.scope)
}

func (s *categorySink) upsert(key string, raw json.RawMessage, kind models.DiffKind) (bool, error) {
	var c models.Category
	if err := json.Unmarshal(raw, &c); err != nil {
		return false, fmt.Errorf("decode category: %w", err)
	}
	if c.ID == "" {
		c.ID = key
	}
	if c.OwnerID == nil && !s.scope.IsPublic() {
		owner := s.scope.Owner
		c.OwnerID = &owner
	}
	if c.Subcategories == nil {
		c.Subcategories = make(map[string]models.Subcategory)
	}
	return s.store.ApplyDiff(s.scope, models.CategoryDiff{Kind: kind, Key: key, Item: &c}), nil
}

func (s *categorySink) remove(key string) bool {
	return s.store.ApplyDiff(s.scope, models.CategoryDiff{Kind: models.DiffRemoved, Key: key})
}

func (s *categorySink) clear() {
	s.store.Clear(s.scope)
}
