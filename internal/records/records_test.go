// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package records

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"promptdeck/internal/apperr"
	"promptdeck/internal/models"
)

var t0 = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func newPrompt(owner uuid.UUID, vis models.Visibility, title string, at time.Time) *models.Prompt {
	return &models.Prompt{
		ID:         uuid.New(),
		Title:      title,
		Content:    "content of " + title,
		CategoryID: "dev",
		OwnerID:    owner,
		Visibility: vis,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

func diff(kind models.DiffKind, p *models.Prompt) models.PromptDiff {
	return models.PromptDiff{Kind: kind, Key: p.ID.String(), Item: p}
}

func TestApplyDiffLastWriteWins(t *testing.T) {
	r := New()
	pub := models.PublicScope()
	owner := uuid.New()

	p := newPrompt(owner, models.VisibilityPublic, "v2", t0.Add(time.Minute))
	older := p.Clone()
	older.Title = "v1"
	older.UpdatedAt = t0

	r.ApplyDiff(pub, diff(models.DiffUpdated, p))
	if r.ApplyDiff(pub, diff(models.DiffUpdated, older)) {
		t.Error("older update should not change state")
	}

	got, err := r.Get(nil, pub, p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "v2" {
		t.Errorf("Title = %q, want v2", got.Title)
	}
}

func TestApplyDiffIdempotent(t *testing.T) {
	r := New()
	pub := models.PublicScope()
	p := newPrompt(uuid.New(), models.VisibilityPublic, "hello", t0)

	if !r.ApplyDiff(pub, diff(models.DiffAdded, p)) {
		t.Fatal("first add should apply")
	}
	v := r.Version()
	if r.ApplyDiff(pub, diff(models.DiffAdded, p)) {
		t.Error("second add should be a no-op")
	}
	if r.Version() != v {
		t.Error("no-op diff bumped the version")
	}

	removed := models.PromptDiff{Kind: models.DiffRemoved, Key: p.ID.String()}
	if !r.ApplyDiff(pub, removed) {
		t.Error("remove should apply")
	}
	if r.ApplyDiff(pub, removed) {
		t.Error("removing an absent id should be a no-op")
	}
}

// TestFinalStateEqualsLastDiffPerID applies a shuffled history and checks
// that only the newest state per id survives.
func TestFinalStateEqualsLastDiffPerID(t *testing.T) {
	r := New()
	pub := models.PublicScope()
	owner := uuid.New()

	a := newPrompt(owner, models.VisibilityPublic, "a0", t0)
	b := newPrompt(owner, models.VisibilityPublic, "b0", t0)

	history := []models.PromptDiff{diff(models.DiffAdded, a), diff(models.DiffAdded, b)}
	for i := 1; i <= 3; i++ {
		na := a.Clone()
		na.Title = "a" + string(rune('0'+i))
		na.UpdatedAt = t0.Add(time.Duration(i) * time.Second)
		history = append(history, diff(models.DiffUpdated, na))
	}
	// Deliver the updates newest first: the older ones must lose.
	for i := len(history) - 1; i >= 0; i-- {
		r.ApplyDiff(pub, history[i])
	}

	got, _ := r.Get(nil, pub, a.ID)
	if got.Title != "a3" {
		t.Errorf("Title = %q, want a3", got.Title)
	}
	if _, err := r.Get(nil, pub, b.ID); err != nil {
		t.Errorf("b missing: %v", err)
	}
}

func TestApplyDiffRejectsWrongPartition(t *testing.T) {
	r := New()
	owner := uuid.New()

	private := newPrompt(owner, models.VisibilityPrivate, "secret", t0)
	if r.ApplyDiff(models.PublicScope(), diff(models.DiffAdded, private)) {
		t.Error("private prompt accepted into the public partition")
	}
	if r.ApplyDiff(models.PrivateScope(uuid.New()), diff(models.DiffAdded, private)) {
		t.Error("private prompt accepted into another owner's partition")
	}
	if !r.ApplyDiff(models.PrivateScope(owner), diff(models.DiffAdded, private)) {
		t.Error("private prompt rejected by its own partition")
	}
}

func TestPrivateGetIsNotFoundForOthers(t *testing.T) {
	r := New()
	ownerA := uuid.New()
	actorA := &models.Actor{ID: ownerA, Role: models.RoleMember}
	actorB := &models.Actor{ID: uuid.New(), Role: models.RoleMember}
	admin := &models.Actor{ID: uuid.New(), Role: models.RoleAdmin}

	p := newPrompt(ownerA, models.VisibilityPrivate, "secret", t0)
	scope := models.PrivateScope(ownerA)
	r.ApplyDiff(scope, diff(models.DiffAdded, p))

	if _, err := r.Get(actorB, scope, p.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("actor B: err = %v, want ErrNotFound", err)
	}
	if _, err := r.Get(nil, scope, p.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("anonymous: err = %v, want ErrNotFound", err)
	}
	if _, err := r.Get(actorB, models.PublicScope(), p.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("public scope: err = %v, want ErrNotFound", err)
	}
	if _, err := r.Get(actorA, scope, p.ID); err != nil {
		t.Errorf("owner: err = %v, want nil", err)
	}
	if _, err := r.Get(admin, scope, p.ID); err != nil {
		t.Errorf("admin: err = %v, want nil", err)
	}
}

func TestListNeverLeaksPrivatePrompts(t *testing.T) {
	r := New()
	ownerA := uuid.New()
	actorB := &models.Actor{ID: uuid.New(), Role: models.RoleMember}

	pub := newPrompt(ownerA, models.VisibilityPublic, "public", t0)
	priv := newPrompt(ownerA, models.VisibilityPrivate, "private", t0)
	r.ApplyDiff(models.PublicScope(), diff(models.DiffAdded, pub))
	r.ApplyDiff(models.PrivateScope(ownerA), diff(models.DiffAdded, priv))

	scopes := []models.Scope{
		models.PublicScope(),
		models.PrivateScope(ownerA),
		models.OwnedScope(ownerA),
	}
	for _, actor := range []*models.Actor{nil, actorB} {
		for _, scope := range scopes {
			for _, p := range r.List(actor, scope, Filter{}) {
				if p.ID == priv.ID {
					t.Errorf("private prompt listed for %v in scope %s", actor, scope)
				}
			}
		}
	}

	owned := r.List(&models.Actor{ID: ownerA}, models.OwnedScope(ownerA), Filter{})
	ids := []string{}
	for _, p := range owned {
		ids = append(ids, p.Title)
	}
	sort.Strings(ids)
	if diff := cmp.Diff([]string{"private", "public"}, ids); diff != "" {
		t.Errorf("owned scope mismatch (-want +got):\n%s", diff)
	}
}

func TestListFilter(t *testing.T) {
	r := New()
	pub := models.PublicScope()
	owner := uuid.New()
	now := t0

	old := newPrompt(owner, models.VisibilityPublic, "Old SQL tricks", now.AddDate(0, 0, -20))
	week := newPrompt(owner, models.VisibilityPublic, "Weekly Go", now.AddDate(0, 0, -3))
	today := newPrompt(uuid.New(), models.VisibilityPublic, "Fresh", now.Add(-time.Hour))
	today.Content = "Write a haiku about GOROUTINES"
	today.CategoryID = "writing"
	today.SubcategoryID = "poetry"

	for _, p := range []*models.Prompt{old, week, today} {
		r.ApplyDiff(pub, diff(models.DiffAdded, p))
	}

	tests := []struct {
		name string
		f    Filter
		want []string
	}{
		{"all", Filter{Now: now}, []string{"Fresh", "Old SQL tricks", "Weekly Go"}},
		{"today", Filter{Window: WindowToday, Now: now}, []string{"Fresh"}},
		{"week", Filter{Window: WindowWeek, Now: now}, []string{"Fresh", "Weekly Go"}},
		{"month", Filter{Window: WindowMonth, Now: now}, []string{"Fresh", "Old SQL tricks", "Weekly Go"}},
		{"category", Filter{CategoryID: "writing", Now: now}, []string{"Fresh"}},
		{"subcategory", Filter{CategoryID: "writing", SubcategoryID: "prose", Now: now}, nil},
		{"owner", Filter{OwnerID: owner, Now: now}, []string{"Old SQL tricks", "Weekly Go"}},
		{"query title", Filter{Query: "sql", Now: now}, []string{"Old SQL tricks"}},
		{"query content", Filter{Query: "goroutines", Now: now}, []string{"Fresh"}},
		{"query both", Filter{Query: "go", Now: now}, []string{"Fresh", "Weekly Go"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, p := range r.List(nil, pub, tt.f) {
				got = append(got, p.Title)
			}
			sort.Strings(got)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("List() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestObserveAndClear(t *testing.T) {
	r := New()
	owner := uuid.New()
	scope := models.PrivateScope(owner)

	var seen []models.DiffKind
	cancel := r.Observe(func(s models.Scope, d models.PromptDiff) {
		if s != scope {
			t.Errorf("observer scope = %v, want %v", s, scope)
		}
		seen = append(seen, d.Kind)
	})

	p := newPrompt(owner, models.VisibilityPrivate, "x", t0)
	r.ApplyDiff(scope, diff(models.DiffAdded, p))
	p2 := p.Clone()
	p2.LikeCount = 1
	r.ApplyDiff(scope, diff(models.DiffAdded, p2))
	r.Clear(scope)

	want := []models.DiffKind{models.DiffAdded, models.DiffUpdated, models.DiffRemoved}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("observed kinds mismatch (-want +got):\n%s", diff)
	}

	cancel()
	cancel()
	r.ApplyDiff(scope, diff(models.DiffAdded, newPrompt(owner, models.VisibilityPrivate, "y", t0)))
	if len(seen) != len(want) {
		t.Error("observer called after cancel")
	}
	if len(r.Keys(scope)) != 1 {
		t.Errorf("Keys() = %v, want one id", r.Keys(scope))
	}
}

func TestParseWindow(t *testing.T) {
	for in, want := range map[string]Window{"": WindowAll, "ALL": WindowAll, "today": WindowToday, " week ": WindowWeek, "month": WindowMonth} {
		got, err := ParseWindow(in)
		if err != nil || got != want {
			t.Errorf("ParseWindow(%q) = (%q, %v), want %q", in, got, err, want)
		}
	}
	if _, err := ParseWindow("year"); err == nil {
		t.Error("ParseWindow(year) expected error")
	}
}

// TestRevisionOrdersCounterPatches delivers two like-count patches that
// share an updated_at out of order. The revision decides.
func TestRevisionOrdersCounterPatches(t *testing.T) {
	r := New()
	pub := models.PublicScope()
	p := newPrompt(uuid.New(), models.VisibilityPublic, "liked", t0)
	p.Revision = 1
	r.ApplyDiff(pub, diff(models.DiffAdded, p))

	two := p.Clone()
	two.LikeCount, two.Revision = 2, 3
	one := p.Clone()
	one.LikeCount, one.Revision = 1, 2

	if !r.ApplyDiff(pub, diff(models.DiffUpdated, two)) {
		t.Fatal("newer revision should apply")
	}
	if r.ApplyDiff(pub, diff(models.DiffUpdated, one)) {
		t.Error("older revision with the same timestamp should not apply")
	}
	got, err := r.Get(nil, pub, p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.LikeCount != 2 || got.Revision != 3 {
		t.Errorf("likes %d at revision %d, want 2 at 3", got.LikeCount, got.Revision)
	}
}
