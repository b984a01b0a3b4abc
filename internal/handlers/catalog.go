// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"promptdeck/internal/apperr"
	"promptdeck/internal/feed"
	"promptdeck/internal/gateway"
	"promptdeck/internal/middleware"
	"promptdeck/internal/models"
	"promptdeck/internal/records"
	"promptdeck/internal/taxonomy"
)

// leaseWait bounds how long a request waits for a private partition's
// first snapshot before serving what is already local.
const leaseWait = 3 * time.Second

// Leaser keeps an owner's private partitions subscribed while they are
// being read.
type Leaser interface {
	Acquire(ctx context.Context, owner uuid.UUID) error
}

// Catalog groups the feed, prompt and category handlers.
type Catalog struct {
	gateway  *gateway.Gateway
	records  *records.Repository
	taxonomy *taxonomy.Store
	composer *feed.Composer
	overlay  *feed.Overlay
	ads      feed.AdSource
	leases   Leaser
	now      func() time.Time
}

// NewCatalog creates the catalog handler group. overlay, ads and leases
// may be nil: changes are then only visible once synced, pages carry no
// ads, and private partitions must already be subscribed.
func NewCatalog(gw *gateway.Gateway, repo *records.Repository, tax *taxonomy.Store, composer *feed.Composer, overlay *feed.Overlay, ads feed.AdSource, leases Leaser) *Catalog {
	return &Catalog{
		gateway:  gw,
		records:  repo,
		taxonomy: tax,
		composer: composer,
		overlay:  overlay,
		ads:      ads,
		leases:   leases,
		now:      time.Now,
	}
}

// canReadPrivate reports whether actor may read owner's private partitions.
func canReadPrivate(actor *models.Actor, owner uuid.UUID) bool {
	return actor.Owns(owner) || actor.IsAdmin()
}

// lease makes sure owner's private partitions are subscribed. Failures are
// logged and the request is served from local state.
func (c *Catalog) lease(ctx context.Context, actor *models.Actor, owner uuid.UUID) {
	if c.leases == nil || owner == uuid.Nil || !canReadPrivate(actor, owner) {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, leaseWait)
	defer cancel()
	if err := c.leases.Acquire(ctx, owner); err != nil {
		slog.Warn("lease private partitions", "owner", owner, "error", err)
	}
}

// parseOwner returns the owner named by the query string, defaulting to
// the actor.
func parseOwner(raw string, actor *models.Actor) (uuid.UUID, error) {
	if raw = strings.TrimSpace(raw); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, apperr.Validation("Owner must be a valid id.")
		}
		return id, nil
	}
	if actor == nil {
		return uuid.Nil, apperr.ErrUnauthenticated
	}
	return actor.ID, nil
}

// parseFeedQuery builds a feed query from the request's query string.
func parseFeedQuery(r *http.Request, actor *models.Actor) (feed.Query, error) {
	v := r.URL.Query()
	var q feed.Query

	switch kind := models.ScopeKind(strings.ToLower(v.Get("scope"))); kind {
	case "", models.ScopePublic:
		q.Scope = models.PublicScope()
		if raw := v.Get("owner"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return q, apperr.Validation("Owner must be a valid id.")
			}
			q.Filter.OwnerID = id
		}
	case models.ScopePrivate, models.ScopeOwned:
		owner, err := parseOwner(v.Get("owner"), actor)
		if err != nil {
			return q, err
		}
		q.Scope = models.Scope{Kind: kind, Owner: owner}
	default:
		return q, apperr.Validationf("Unknown scope %q.", v.Get("scope"))
	}

	window, err := records.ParseWindow(v.Get("window"))
	if err != nil {
		return q, apperr.Validationf("Unknown time window %q.", v.Get("window"))
	}
	q.Filter.Window = window
	q.Filter.CategoryID = strings.TrimSpace(v.Get("category"))
	q.Filter.SubcategoryID = strings.TrimSpace(v.Get("subcategory"))
	q.Filter.Query = v.Get("q")

	key, err := feed.ParseSort(v.Get("sort"))
	if err != nil {
		return q, err
	}
	q.Order.Key = key
	if raw := v.Get("asc"); raw != "" {
		asc, err := strconv.ParseBool(raw)
		if err != nil {
			return q, apperr.Validation("asc must be true or false.")
		}
		q.Order.Asc = asc
	}
	if raw := v.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return q, apperr.Validation("limit must be a positive integer.")
		}
		q.PageSize = n
	}
	q.Cursor = v.Get("cursor")
	return q, nil
}

// activeAds returns the ads to interleave. Ads are optional: a failing
// source yields a page without them.
func (c *Catalog) activeAds(ctx context.Context) []models.Ad {
	if c.ads == nil {
		return nil
	}
	ads, err := c.ads.ActiveAds(ctx)
	if err != nil {
		slog.Warn("load active ads", "error", err)
		return nil
	}
	return ads
}

// Feed serves one page of the prompt feed.
func (c *Catalog) Feed(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	q, err := parseFeedQuery(r, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !q.Scope.IsPublic() {
		c.lease(r.Context(), actor, q.Scope.Owner)
	}

	page, err := c.composer.Compose(actor, q, c.activeAds(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetPrompt returns one prompt. Public prompts are found directly; a
// private one is looked up in the partition of ?owner, defaulting to the
// actor's own.
func (c *Catalog) GetPrompt(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	actor := middleware.ActorFromCtx(r.Context())

	p, err := c.records.Get(actor, models.PublicScope(), id)
	if errors.Is(err, apperr.ErrNotFound) && actor != nil {
		owner, perr := parseOwner(r.URL.Query().Get("owner"), actor)
		if perr != nil {
			writeError(w, r, perr)
			return
		}
		c.lease(r.Context(), actor, owner)
		p, err = c.records.Get(actor, models.PrivateScope(owner), id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreatePrompt creates a prompt owned by the actor.
func (c *Catalog) CreatePrompt(w http.ResponseWriter, r *http.Request) {
	var draft models.PromptDraft
	if err := decodeJSON(w, r, &draft); err != nil {
		writeError(w, r, err)
		return
	}
	actor := middleware.ActorFromCtx(r.Context())
	if draft.Visibility == models.VisibilityPrivate && actor != nil {
		// The private category may only exist in the owner's partition.
		c.lease(r.Context(), actor, actor.ID)
	}

	p, err := c.gateway.CreatePrompt(r.Context(), actor, draft)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c.stage(actor, p)
	writeJSON(w, http.StatusCreated, p)
}

// UpdatePrompt applies a partial update to a prompt.
func (c *Catalog) UpdatePrompt(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch models.PromptPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	actor := middleware.ActorFromCtx(r.Context())
	if actor != nil {
		c.lease(r.Context(), actor, actor.ID)
	}

	p, err := c.gateway.UpdatePrompt(r.Context(), actor, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c.stage(actor, p)
	writeJSON(w, http.StatusOK, p)
}

// categoryRequest is the body of PUT /api/prompts/{id}/category.
type categoryRequest struct {
	CategoryID    string `json:"category_id"`
	SubcategoryID string `json:"subcategory_id"`
}

// SetCategory files a prompt under another category.
func (c *Catalog) SetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	actor := middleware.ActorFromCtx(r.Context())
	if actor != nil {
		c.lease(r.Context(), actor, actor.ID)
	}

	p, err := c.gateway.SetCategory(r.Context(), actor, id, req.CategoryID, req.SubcategoryID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c.stage(actor, p)
	writeJSON(w, http.StatusOK, p)
}

// DeletePrompt deletes a prompt.
func (c *Catalog) DeletePrompt(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	actor := middleware.ActorFromCtx(r.Context())
	if err := c.gateway.DeletePrompt(r.Context(), actor, id); err != nil {
		writeError(w, r, err)
		return
	}
	if c.overlay != nil {
		c.overlay.StageDelete(actor.ID, id, c.now())
	}
	w.WriteHeader(http.StatusNoContent)
}

// likeResponse reports the like state after a toggle.
type likeResponse struct {
	Liked bool `json:"liked"`
}

// ToggleLike likes or unlikes a prompt for the actor.
func (c *Catalog) ToggleLike(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	liked, err := c.gateway.ToggleLike(r.Context(), middleware.ActorFromCtx(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, likeResponse{Liked: liked})
}

// RecordDownload counts one download of a prompt.
func (c *Catalog) RecordDownload(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := c.gateway.RecordDownload(r.Context(), middleware.ActorFromCtx(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// stage shows the actor's own write in their feeds until it syncs back.
func (c *Catalog) stage(actor *models.Actor, p *models.Prompt) {
	if c.overlay == nil || actor == nil || p == nil {
		return
	}
	c.overlay.Stage(actor.ID, p)
}

// sessionResponse describes the caller to API clients.
type sessionResponse struct {
	Actor     *models.Actor `json:"actor"`
	CSRFToken string        `json:"csrf_token"`
}

// Session returns the current actor, or null, and the CSRF token that
// write requests must echo in the X-CSRF-Token header.
func (c *Catalog) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionResponse{
		Actor:     middleware.ActorFromCtx(r.Context()),
		CSRFToken: middleware.CSRFTokenFromCtx(r.Context()),
	})
}
