// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package feed

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"promptdeck/internal/models"
)

// pending is one unconfirmed mutation made by an actor.
type pending struct {
	id     uuid.UUID
	prompt *models.Prompt // nil for a delete
	at     time.Time
}

// Overlay holds an actor's own mutations that the gateway accepted but
// whose authoritative diff has not arrived yet. It only affects what that
// actor sees in a feed; the repository is never touched. Entries expire
// after the TTL in case the diff is lost.
type Overlay struct {
	lru *expirable.LRU[overlayKey, pending]

	// The indexes may name keys the LRU already dropped; lookups skip them.
	// idxMu is never held while calling into the LRU.
	idxMu    sync.Mutex
	byPrompt map[uuid.UUID]map[uuid.UUID]struct{} // prompt -> actors
	byActor  map[uuid.UUID]map[uuid.UUID]struct{} // actor -> prompts
}

type overlayKey struct {
	actor, id uuid.UUID
}

// NewOverlay creates an overlay holding at most size entries.
func NewOverlay(size int, ttl time.Duration) *Overlay {
	o := &Overlay{
		byPrompt: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		byActor:  make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
	o.lru = expirable.NewLRU[overlayKey, pending](size, o.onEvict, ttl)
	return o
}

func (o *Overlay) onEvict(k overlayKey, _ pending) {
	o.idxMu.Lock()
	defer o.idxMu.Unlock()
	o.unindexLocked(k)
}

func (o *Overlay) add(k overlayKey, e pending) {
	o.lru.Add(k, e)

	o.idxMu.Lock()
	defer o.idxMu.Unlock()
	link(o.byPrompt, k.id, k.actor)
	link(o.byActor, k.actor, k.id)
}

func (o *Overlay) unindexLocked(k overlayKey) {
	unlink(o.byPrompt, k.id, k.actor)
	unlink(o.byActor, k.actor, k.id)
}

func link(idx map[uuid.UUID]map[uuid.UUID]struct{}, from, to uuid.UUID) {
	set, ok := idx[from]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		idx[from] = set
	}
	set[to] = struct{}{}
}

func unlink(idx map[uuid.UUID]map[uuid.UUID]struct{}, from, to uuid.UUID) {
	if set, ok := idx[from]; ok {
		delete(set, to)
		if len(set) == 0 {
			delete(idx, from)
		}
	}
}

func members(idx map[uuid.UUID]map[uuid.UUID]struct{}, from uuid.UUID) []uuid.UUID {
	set := idx[from]
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Stage records that actor created or updated p.
func (o *Overlay) Stage(actor uuid.UUID, p *models.Prompt) {
	o.add(overlayKey{actor, p.ID}, pending{id: p.ID, prompt: p.Clone(), at: p.UpdatedAt})
}

// StageDelete records that actor deleted id at time at.
func (o *Overlay) StageDelete(actor, id uuid.UUID, at time.Time) {
	o.add(overlayKey{actor, id}, pending{id: id, at: at})
}

// Observe discards pending entries confirmed by d. It has the signature
// of a records.Observer. Only entries for d's prompt are visited.
func (o *Overlay) Observe(_ models.Scope, d models.PromptDiff) {
	id, err := uuid.Parse(d.Key)
	if err != nil {
		return
	}
	o.idxMu.Lock()
	actors := members(o.byPrompt, id)
	o.idxMu.Unlock()

	for _, actor := range actors {
		k := overlayKey{actor, id}
		e, ok := o.lru.Peek(k)
		if !ok {
			continue
		}
		// An older diff for the same id does not confirm a newer edit.
		if d.Kind != models.DiffRemoved && d.Item != nil && d.Item.UpdatedAt.Before(e.at) {
			continue
		}
		o.lru.Remove(k)
	}
}

// entries returns the pending mutations of actor.
func (o *Overlay) entries(actor uuid.UUID) []pending {
	o.idxMu.Lock()
	ids := members(o.byActor, actor)
	o.idxMu.Unlock()

	var out []pending
	for _, id := range ids {
		if e, ok := o.lru.Peek(overlayKey{actor, id}); ok {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of pending entries.
func (o *Overlay) Len() int {
	return o.lru.Len()
}
