// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// Visibility decides which partition a prompt is stored in.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Prompt is a catalog record. Private prompts live in their owner's
// partition and are never shown to other actors except admins.
type Prompt struct {
	ID               uuid.UUID  `json:"id"`
	Title            string     `json:"title"`
	Content          string     `json:"content"`
	Description      string     `json:"description"`
	Tags             []string   `json:"tags"`
	CategoryID       string     `json:"category_id"`
	SubcategoryID    string     `json:"subcategory_id,omitempty"`
	OwnerID          uuid.UUID  `json:"owner_id"`
	OwnerDisplayName string     `json:"owner_display_name"`
	Visibility       Visibility `json:"visibility"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LikeCount        int        `json:"like_count"`
	DownloadCount    int        `json:"download_count"`

	// Revision is assigned by the remote store and grows with every write
	// to the record, counter-only writes included. Zero means unknown.
	Revision int64 `json:"revision,omitempty"`

	// LegacyCategory is the display name older records carry instead of
	// a category id. It is only read on ingest and cleared by normalization.
	LegacyCategory string `json:"category,omitempty"`
}

// IsPrivate returns true if the prompt is private to its owner.
func (p *Prompt) IsPrivate() bool {
	return p.Visibility == VisibilityPrivate
}

// Scope returns the partition scope the prompt is stored under.
func (p *Prompt) Scope() Scope {
	if p.IsPrivate() {
		return PrivateScope(p.OwnerID)
	}
	return PublicScope()
}

// VisibleTo reports whether actor may see the prompt. Public prompts are
// visible to everyone, including unauthenticated callers.
func (p *Prompt) VisibleTo(actor *Actor) bool {
	if !p.IsPrivate() {
		return true
	}
	return actor.Owns(p.OwnerID) || actor.IsAdmin()
}

// Supersedes reports whether p may replace cur. When both carry a
// revision the higher one wins; otherwise the later UpdatedAt does, with
// ties going to p.
func (p *Prompt) Supersedes(cur *Prompt) bool {
	if p.Revision > 0 && cur.Revision > 0 {
		return p.Revision > cur.Revision
	}
	return !p.UpdatedAt.Before(cur.UpdatedAt)
}

// Clone returns a copy that shares no slices with p.
func (p *Prompt) Clone() *Prompt {
	out := *p
	if p.Tags != nil {
		out.Tags = append([]string(nil), p.Tags...)
	}
	return &out
}

// PromptDraft is the caller-supplied input to create a prompt.
type PromptDraft struct {
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	Description   string     `json:"description"`
	Tags          []string   `json:"tags"`
	CategoryID    string     `json:"category_id"`
	SubcategoryID string     `json:"subcategory_id"`
	Visibility    Visibility `json:"visibility"`
}

// PromptPatch carries the fields to change on update. Nil fields are left
// untouched.
type PromptPatch struct {
	Title         *string     `json:"title,omitempty"`
	Content       *string     `json:"content,omitempty"`
	Description   *string     `json:"description,omitempty"`
	Tags          *[]string   `json:"tags,omitempty"`
	CategoryID    *string     `json:"category_id,omitempty"`
	SubcategoryID *string     `json:"subcategory_id,omitempty"`
	Visibility    *Visibility `json:"visibility,omitempty"`
}

// Like records that an actor liked a prompt. The (ActorID, PromptID) pair
// is unique; LikeCount on Prompt is its cached cardinality.
type Like struct {
	ActorID   uuid.UUID `json:"actor_id"`
	PromptID  uuid.UUID `json:"prompt_id"`
	CreatedAt time.Time `json:"created_at"`
}
