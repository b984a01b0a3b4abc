// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package gateway is the single entry point for every catalog mutation.
// It authenticates and authorizes the actor, validates input against the
// taxonomy, writes to the remote store, and adjusts the advisory category
// counters as a best-effort side effect. Local materialized state is never
// touched here; it catches up through the subscription manager.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"promptdeck/internal/apperr"
	"promptdeck/internal/models"
	"promptdeck/internal/remote"
	"promptdeck/internal/taxonomy"
)

var mutations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "catalog_gateway_mutations_total",
	Help: "Gateway mutation calls by operation and result.",
}, []string{"op", "result"})

var counterFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "catalog_gateway_counter_failures_total",
	Help: "Advisory category counter adjustments that failed and were dropped.",
})

// Auditor records successful mutations. Implementations are best-effort.
type Auditor interface {
	Log(ctx context.Context, actorID uuid.UUID, entityType, entityID, action string)
}

type nopAuditor struct{}

func (nopAuditor) Log(context.Context, uuid.UUID, string, string, string) {}

// Gateway validates and performs mutations.
type Gateway struct {
	writer   remote.Writer
	taxonomy *taxonomy.Store
	audit    Auditor
	logger   *slog.Logger
	now      func() time.Time
	newID    func() uuid.UUID
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithAuditor sets the audit log sink.
func WithAuditor(a Auditor) Option {
	return func(g *Gateway) { g.audit = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithIDGenerator overrides uuid.New for new prompt ids.
func WithIDGenerator(f func() uuid.UUID) Option {
	return func(g *Gateway) { g.newID = f }
}

// New creates a Gateway writing through w and validating against tax.
func New(w remote.Writer, tax *taxonomy.Store, opts ...Option) *Gateway {
	g := &Gateway{
		writer:   w,
		taxonomy: tax,
		audit:    nopAuditor{},
		logger:   slog.Default(),
		now:      time.Now,
		newID:    uuid.New,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "gateway")
	return g
}

// observe counts the outcome of op and passes err through.
func observe(op string, err error) error {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrValidation):
		result = "invalid"
	case errors.Is(err, apperr.ErrUnauthenticated):
		result = "unauthenticated"
	case errors.Is(err, apperr.ErrPermissionDenied):
		result = "denied"
	case errors.Is(err, apperr.ErrNotFound):
		result = "not_found"
	case errors.Is(err, apperr.ErrTransientTransport):
		result = "unavailable"
	default:
		result = "error"
	}
	mutations.WithLabelValues(op, result).Inc()
	return err
}

// authorizeRecord allows the owner and admins. Others get NotFound for a
// private prompt, so its existence is not revealed, and PermissionDenied
// for a public one.
func authorizeRecord(actor *models.Actor, p *models.Prompt) error {
	if actor == nil {
		return apperr.ErrUnauthenticated
	}
	if actor.Owns(p.OwnerID) || actor.IsAdmin() {
		return nil
	}
	if p.IsPrivate() {
		return apperr.ErrNotFound
	}
	return apperr.ErrPermissionDenied
}

// loadVisible reads a prompt from the remote store and hides private
// prompts from everyone but their owner and admins.
func (g *Gateway) loadVisible(ctx context.Context, actor *models.Actor, id uuid.UUID) (*models.Prompt, error) {
	p, err := g.writer.GetPrompt(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.VisibleTo(actor) {
		return nil, fmt.Errorf("prompt %s: %w", id, apperr.ErrNotFound)
	}
	return p, nil
}

// categoryScope finds the taxonomy holding categoryID for a prompt of the
// given visibility and owner, and checks subcategoryID against it. A
// private prompt may use the owner's private taxonomy or the public one;
// a public prompt only the public one. The local taxonomy is consulted
// first and the remote store on a miss, so a category created moments ago
// is usable before its patch arrives.
func (g *Gateway) categoryScope(ctx context.Context, vis models.Visibility, owner uuid.UUID, categoryID, subcategoryID string) (models.Scope, error) {
	scopes := []models.Scope{models.PublicScope()}
	if vis == models.VisibilityPrivate {
		scopes = []models.Scope{models.PrivateScope(owner), models.PublicScope()}
	}

	for _, scope := range scopes {
		c, ok := g.taxonomy.Get(scope, categoryID)
		if !ok {
			remoteCat, err := g.writer.GetCategory(ctx, scope, categoryID)
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			if err != nil {
				return models.Scope{}, fmt.Errorf("resolve category: %w", err)
			}
			c = remoteCat
		}
		if subcategoryID != "" && !c.HasSubcategory(subcategoryID) {
			return models.Scope{}, apperr.Validationf("Unknown subcategory %q in category %q.", subcategoryID, categoryID)
		}
		return scope, nil
	}
	return models.Scope{}, apperr.Validationf("Unknown category %q.", categoryID)
}

// laterOf keeps timestamps monotonic when the clock is behind the stored
// value.
func laterOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return b
	}
	return a
}

// adjustCount moves a category counter. Failures are logged and dropped:
// the record mutation already succeeded and counters are advisory.
func (g *Gateway) adjustCount(ctx context.Context, scope models.Scope, categoryID string, delta int) {
	if categoryID == "" {
		return
	}
	if err := g.writer.IncrementCategoryCount(ctx, scope, categoryID, delta); err != nil {
		counterFailures.Inc()
		g.logger.Warn("category counter update failed",
			"scope", scope.String(), "category", categoryID, "delta", delta, "error", err)
	}
}

// CreatePrompt validates draft and writes a new prompt owned by actor, then
// increments its category's count.
func (g *Gateway) CreatePrompt(ctx context.Context, actor *models.Actor, draft models.PromptDraft) (*models.Prompt, error) {
	p, err := g.createPrompt(ctx, actor, draft)
	return p, observe("create_prompt", err)
}

func (g *Gateway) createPrompt(ctx context.Context, actor *models.Actor, draft models.PromptDraft) (*models.Prompt, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthenticated
	}

	vis := draft.Visibility
	if vis == "" {
		vis = models.VisibilityPublic
	}
	if !vis.Valid() {
		return nil, apperr.Validationf("Unknown visibility %q.", vis)
	}
	categoryID := strings.TrimSpace(draft.CategoryID)
	subcategoryID := strings.TrimSpace(draft.SubcategoryID)
	tags := normalizeTags(draft.Tags)

	if msg := validatePrompt(draft.Title, draft.Content, categoryID); msg != "" {
		return nil, apperr.Validation(msg)
	}
	if msg := validateMetadata(draft.Description, tags); msg != "" {
		return nil, apperr.Validation(msg)
	}

	catScope, err := g.categoryScope(ctx, vis, actor.ID, categoryID, subcategoryID)
	if err != nil {
		return nil, err
	}

	now := g.now()
	p := &models.Prompt{
		ID:               g.newID(),
		Title:            strings.TrimSpace(draft.Title),
		Content:          draft.Content,
		Description:      strings.TrimSpace(draft.Description),
		Tags:             tags,
		CategoryID:       categoryID,
		SubcategoryID:    subcategoryID,
		OwnerID:          actor.ID,
		OwnerDisplayName: actor.DisplayName,
		Visibility:       vis,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := g.writer.PutPrompt(ctx, p); err != nil {
		return nil, fmt.Errorf("create prompt: %w", err)
	}

	g.adjustCount(ctx, catScope, categoryID, +1)
	g.audit.Log(ctx, actor.ID, "prompt", p.ID.String(), "create")
	g.logger.Info("prompt created", "id", p.ID, "owner", actor.ID, "visibility", vis)
	return p, nil
}

// UpdatePrompt applies patch to a prompt owned by actor (or any prompt for
// an admin). A category change moves one unit of count from the old
// category to the new one, best-effort.
func (g *Gateway) UpdatePrompt(ctx context.Context, actor *models.Actor, id uuid.UUID, patch models.PromptPatch) (*models.Prompt, error) {
	p, err := g.updatePrompt(ctx, actor, id, patch)
	return p, observe("update_prompt", err)
}

func (g *Gateway) updatePrompt(ctx context.Context, actor *models.Actor, id uuid.UUID, patch models.PromptPatch) (*models.Prompt, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthenticated
	}
	cur, err := g.writer.GetPrompt(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeRecord(actor, cur); err != nil {
		return nil, err
	}

	next := cur.Clone()
	if patch.Title != nil {
		next.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Content != nil {
		next.Content = *patch.Content
	}
	if patch.Description != nil {
		next.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Tags != nil {
		next.Tags = normalizeTags(*patch.Tags)
	}
	if patch.CategoryID != nil {
		next.CategoryID = strings.TrimSpace(*patch.CategoryID)
		// A new category invalidates the old subcategory unless one is given.
		if next.CategoryID != cur.CategoryID && patch.SubcategoryID == nil {
			next.SubcategoryID = ""
		}
	}
	if patch.SubcategoryID != nil {
		next.SubcategoryID = strings.TrimSpace(*patch.SubcategoryID)
	}
	if patch.Visibility != nil {
		if !patch.Visibility.Valid() {
			return nil, apperr.Validationf("Unknown visibility %q.", *patch.Visibility)
		}
		next.Visibility = *patch.Visibility
	}

	if msg := validatePrompt(next.Title, next.Content, next.CategoryID); msg != "" {
		return nil, apperr.Validation(msg)
	}
	if msg := validateMetadata(next.Description, next.Tags); msg != "" {
		return nil, apperr.Validation(msg)
	}

	newScope, err := g.categoryScope(ctx, next.Visibility, next.OwnerID, next.CategoryID, next.SubcategoryID)
	if err != nil {
		return nil, err
	}

	next.UpdatedAt = laterOf(g.now(), cur.UpdatedAt)

	if err := g.writer.PutPrompt(ctx, next); err != nil {
		return nil, fmt.Errorf("update prompt: %w", err)
	}

	if cur.CategoryID != next.CategoryID || cur.Visibility != next.Visibility {
		oldScope, err := g.categoryScope(ctx, cur.Visibility, cur.OwnerID, cur.CategoryID, "")
		switch {
		case err != nil:
			g.logger.Warn("old category not found, skipping decrement",
				"id", id, "category", cur.CategoryID, "error", err)
			g.adjustCount(ctx, newScope, next.CategoryID, +1)
		case oldScope != newScope || cur.CategoryID != next.CategoryID:
			g.adjustCount(ctx, oldScope, cur.CategoryID, -1)
			g.adjustCount(ctx, newScope, next.CategoryID, +1)
		}
	}

	g.audit.Log(ctx, actor.ID, "prompt", id.String(), "update")
	return next, nil
}

// SetCategory files a prompt under another category and optional
// subcategory.
func (g *Gateway) SetCategory(ctx context.Context, actor *models.Actor, id uuid.UUID, categoryID, subcategoryID string) (*models.Prompt, error) {
	p, err := g.updatePrompt(ctx, actor, id, models.PromptPatch{
		CategoryID:    &categoryID,
		SubcategoryID: &subcategoryID,
	})
	return p, observe("set_category", err)
}

// DeletePrompt removes a prompt owned by actor (or any prompt for an
// admin) and decrements its category's count.
func (g *Gateway) DeletePrompt(ctx context.Context, actor *models.Actor, id uuid.UUID) error {
	return observe("delete_prompt", g.deletePrompt(ctx, actor, id))
}

func (g *Gateway) deletePrompt(ctx context.Context, actor *models.Actor, id uuid.UUID) error {
	if actor == nil {
		return apperr.ErrUnauthenticated
	}
	cur, err := g.writer.GetPrompt(ctx, id)
	if err != nil {
		return err
	}
	if err := authorizeRecord(actor, cur); err != nil {
		return err
	}
	if err := g.writer.DeletePrompt(ctx, id); err != nil {
		return fmt.Errorf("delete prompt: %w", err)
	}

	if scope, err := g.categoryScope(ctx, cur.Visibility, cur.OwnerID, cur.CategoryID, ""); err != nil {
		g.logger.Warn("category not found, skipping decrement",
			"id", id, "category", cur.CategoryID, "error", err)
	} else {
		g.adjustCount(ctx, scope, cur.CategoryID, -1)
	}

	g.audit.Log(ctx, actor.ID, "prompt", id.String(), "delete")
	g.logger.Info("prompt deleted", "id", id, "by", actor.ID)
	return nil
}

// ToggleLike likes the prompt for actor, or unlikes it if already liked.
// It reports whether the prompt is liked afterwards.
func (g *Gateway) ToggleLike(ctx context.Context, actor *models.Actor, id uuid.UUID) (bool, error) {
	liked, err := g.toggleLike(ctx, actor, id)
	return liked, observe("toggle_like", err)
}

func (g *Gateway) toggleLike(ctx context.Context, actor *models.Actor, id uuid.UUID) (bool, error) {
	if actor == nil {
		return false, apperr.ErrUnauthenticated
	}
	if _, err := g.loadVisible(ctx, actor, id); err != nil {
		return false, err
	}
	liked, err := g.writer.ToggleLike(ctx, actor.ID, id)
	if err != nil {
		return false, fmt.Errorf("toggle like: %w", err)
	}
	action := "unlike"
	if liked {
		action = "like"
	}
	g.audit.Log(ctx, actor.ID, "prompt", id.String(), action)
	return liked, nil
}

// RecordDownload counts one download of a visible prompt. Anonymous
// downloads of public prompts are counted too.
func (g *Gateway) RecordDownload(ctx context.Context, actor *models.Actor, id uuid.UUID) error {
	return observe("record_download", g.recordDownload(ctx, actor, id))
}

func (g *Gateway) recordDownload(ctx context.Context, actor *models.Actor, id uuid.UUID) error {
	if _, err := g.loadVisible(ctx, actor, id); err != nil {
		return err
	}
	if err := g.writer.IncrementDownloads(ctx, id); err != nil {
		return fmt.Errorf("record download: %w", err)
	}
	return nil
}
