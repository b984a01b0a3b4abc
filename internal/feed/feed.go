// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package feed composes paginated, ad-interleaved pages of prompts from
// the materialized record repository. Composition never blocks on I/O:
// the ad pool is passed in by the caller.
package feed

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"promptdeck/internal/models"
	"promptdeck/internal/records"
)

var (
	candidateCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_feed_cache_hits_total",
		Help: "Feed pages served from a memoized sorted candidate list.",
	})
	candidateCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_feed_cache_misses_total",
		Help: "Feed pages that had to list and sort candidates.",
	})
	composeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_feed_compose_duration_seconds",
		Help:    "Time spent composing one feed page.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ItemKind tells records and ads apart in a page.
type ItemKind string

const (
	ItemPrompt ItemKind = "prompt"
	ItemAd     ItemKind = "ad"
)

// Item is one entry of a page: a prompt or an ad.
type Item struct {
	Kind   ItemKind       `json:"kind"`
	Prompt *models.Prompt `json:"prompt,omitempty"`
	Ad     *models.Ad     `json:"ad,omitempty"`
	// Pending marks the actor's own change that is not confirmed yet.
	Pending bool `json:"pending,omitempty"`
}

// Page is one composed page. NextCursor is nil when the feed is exhausted.
type Page struct {
	Items      []Item  `json:"items"`
	NextCursor *string `json:"next_cursor"`
}

// Prompts returns the prompt items of the page in order.
func (p *Page) Prompts() []models.Prompt {
	var out []models.Prompt
	for _, it := range p.Items {
		if it.Kind == ItemPrompt {
			out = append(out, *it.Prompt)
		}
	}
	return out
}

// Query selects and orders a feed.
type Query struct {
	Scope    models.Scope
	Filter   records.Filter
	Order    Order
	PageSize int
	Cursor   string
}

// Config sizes the composer.
type Config struct {
	PageSize  int
	CacheSize int
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 || c.PageSize > MaxPageSize {
		c.PageSize = DefaultPageSize
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 256
	}
	return c
}

// Composer builds feed pages.
type Composer struct {
	repo     *records.Repository
	overlay  *Overlay
	cache    *lru.Cache[string, []models.Prompt]
	pageSize int
}

// New creates a Composer over repo. overlay may be nil.
func New(repo *records.Repository, overlay *Overlay, cfg Config) (*Composer, error) {
	cfg = cfg.withDefaults()
	cache, err := lru.New[string, []models.Prompt](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create candidate cache: %w", err)
	}
	return &Composer{
		repo:     repo,
		overlay:  overlay,
		cache:    cache,
		pageSize: cfg.PageSize,
	}, nil
}

// Compose returns the page of q visible to actor, interleaved with ads.
// An empty candidate set is an empty page. A cursor whose prompt has since
// been deleted resumes after the prompt's last known position.
func (c *Composer) Compose(actor *models.Actor, q Query, ads []models.Ad) (*Page, error) {
	defer func(start time.Time) {
		composeDuration.Observe(time.Since(start).Seconds())
	}(time.Now())

	if q.Order.Key == "" {
		q.Order.Key = SortCreated
	}
	if _, err := ParseSort(string(q.Order.Key)); err != nil {
		return nil, err
	}
	size := q.PageSize
	switch {
	case size <= 0:
		size = c.pageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}

	cands, pendingIDs := c.candidates(actor, q)

	// The window is applied after the cache so rolling windows do not
	// defeat memoization.
	if since := q.Filter.Since(); !since.IsZero() {
		cands = slices.DeleteFunc(slices.Clone(cands), func(p models.Prompt) bool {
			return p.CreatedAt.Before(since)
		})
	}

	start := 0
	if q.Cursor != "" {
		last, err := decodeCursor(q.Cursor, q.Order)
		if err != nil {
			return nil, err
		}
		start = sort.Search(len(cands), func(i int) bool {
			return q.Order.compare(positionOf(&cands[i]), last) > 0
		})
	}
	end := min(start+size, len(cands))

	page := &Page{Items: make([]Item, 0, end-start+1)}
	if start >= end {
		return page, nil
	}

	banners, inline := adPools(ads)
	if ad, ok := bannerFor(start, size, banners); ok {
		page.Items = append(page.Items, Item{Kind: ItemAd, Ad: &ad})
	}
	for g := start; g < end; g++ {
		p := cands[g].Clone()
		page.Items = append(page.Items, Item{Kind: ItemPrompt, Prompt: p, Pending: pendingIDs[p.ID]})
		if ad, ok := inlineAfter(g, inline); ok {
			page.Items = append(page.Items, Item{Kind: ItemAd, Ad: &ad})
		}
	}
	if end < len(cands) {
		next := encodeCursor(q.Order, positionOf(&cands[end-1]))
		page.NextCursor = &next
	}
	return page, nil
}

// candidates returns the sorted prompts of q ignoring its time window.
// Lists are memoized by repository version unless actor has pending
// changes.
func (c *Composer) candidates(actor *models.Actor, q Query) ([]models.Prompt, map[uuid.UUID]bool) {
	f := q.Filter
	f.Window = records.WindowAll

	var staged []pending
	if actor != nil && c.overlay != nil {
		staged = c.overlay.entries(actor.ID)
	}

	key := cacheKey(actor, q.Scope, f, q.Order, c.repo.Version())
	if len(staged) == 0 {
		if cached, ok := c.cache.Get(key); ok {
			candidateCacheHits.Inc()
			return cached, nil
		}
	}
	candidateCacheMisses.Inc()

	list := c.repo.List(actor, q.Scope, f)
	var pendingIDs map[uuid.UUID]bool
	if len(staged) > 0 {
		list, pendingIDs = applyPending(actor, q.Scope, f, list, staged)
	}
	slices.SortFunc(list, func(a, b models.Prompt) int {
		return q.Order.compare(positionOf(&a), positionOf(&b))
	})
	if len(staged) == 0 {
		c.cache.Add(key, list)
	}
	return list, pendingIDs
}

func cacheKey(actor *models.Actor, scope models.Scope, f records.Filter, o Order, version uint64) string {
	viewer := "anon"
	if actor != nil {
		viewer = actor.ID.String() + "/" + string(actor.Role)
	}
	return fmt.Sprintf("%d|%s|%s|%s|%s|%s|%q|%s|%t",
		version, viewer, scope, f.CategoryID, f.SubcategoryID, f.OwnerID, f.Query, o.Key, o.Asc)
}

// applyPending merges an actor's staged changes into list.
func applyPending(actor *models.Actor, scope models.Scope, f records.Filter, list []models.Prompt, staged []pending) ([]models.Prompt, map[uuid.UUID]bool) {
	byID := make(map[uuid.UUID]models.Prompt, len(list))
	for _, p := range list {
		byID[p.ID] = p
	}
	ids := make(map[uuid.UUID]bool, len(staged))
	for _, e := range staged {
		delete(byID, e.id)
		if e.prompt == nil || !inScope(scope, e.prompt) || !e.prompt.VisibleTo(actor) || !f.Match(e.prompt) {
			continue
		}
		byID[e.id] = *e.prompt.Clone()
		ids[e.id] = true
	}
	out := make([]models.Prompt, 0, len(byID))
	for _, p := range byID {
		out = append(out, p)
	}
	return out, ids
}

// inScope reports whether p belongs to the partitions selected by scope.
func inScope(scope models.Scope, p *models.Prompt) bool {
	switch scope.Kind {
	case models.ScopePublic:
		return !p.IsPrivate()
	case models.ScopePrivate:
		return p.IsPrivate() && p.OwnerID == scope.Owner
	case models.ScopeOwned:
		return p.OwnerID == scope.Owner
	}
	return false
}
