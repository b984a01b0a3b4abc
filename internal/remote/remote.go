// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package remote defines the boundary to the remote source of truth: a
// Transport that streams snapshots and patches per partition path, and a
// Writer that is the only way the catalog mutates remote state. Two
// implementations exist: Memory (in-process) and Postgres (pgx + Valkey
// pub/sub).
package remote

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"promptdeck/internal/models"
)

// ErrPermissionRevoked is reported when the caller lost access to a
// partition. Subscribers must drop their local copy of it.
var ErrPermissionRevoked = errors.New("partition access revoked")

// EventKind distinguishes the three things a partition stream delivers.
type EventKind int

const (
	// EventSnapshot carries the full content of the partition.
	EventSnapshot EventKind = iota
	// EventPatch carries one changed entry. A nil Value means removal.
	EventPatch
	// EventError reports a transport failure; the stream ends after it.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventSnapshot:
		return "snapshot"
	case EventPatch:
		return "patch"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is one notification from an attached partition. Entries are raw
// JSON documents keyed by entity id, exactly as stored remotely.
type Event struct {
	Kind    EventKind
	Entries map[string]json.RawMessage
	Key     string
	Value   json.RawMessage
	Err     error
}

// Transport attaches to partition paths. The returned channel is closed
// when the stream ends, either after an EventError or after Detach.
type Transport interface {
	Attach(ctx context.Context, path string) (<-chan Event, error)
	Detach(path string)
}

// Writer performs every state-changing operation against the remote store.
// Local materialized state only changes when the resulting patches arrive
// through a Transport. Lookups that miss return an error wrapping
// apperr.ErrNotFound.
type Writer interface {
	GetPrompt(ctx context.Context, id uuid.UUID) (*models.Prompt, error)
	// PutPrompt creates or replaces a prompt, moving it between partitions
	// when its visibility changed.
	PutPrompt(ctx context.Context, p *models.Prompt) error
	DeletePrompt(ctx context.Context, id uuid.UUID) error
	// ToggleLike inserts the (actor, prompt) pair if absent and removes it
	// otherwise, adjusting the prompt's like count by exactly one. It
	// reports whether the pair exists afterwards.
	ToggleLike(ctx context.Context, actorID, promptID uuid.UUID) (bool, error)
	IncrementDownloads(ctx context.Context, id uuid.UUID) error

	GetCategory(ctx context.Context, scope models.Scope, id string) (*models.Category, error)
	PutCategory(ctx context.Context, c *models.Category) error
	// DeleteCategory removes the category and all its subcategories.
	DeleteCategory(ctx context.Context, scope models.Scope, id string) error
	// IncrementCategoryCount adds delta to the item count, clamping the
	// result at zero.
	IncrementCategoryCount(ctx context.Context, scope models.Scope, id string, delta int) error
}

// patchMessage is the wire form of a patch on a pub/sub channel. Access
// control publishes {"revoked":true} on a private channel to end its
// subscribers' streams with ErrPermissionRevoked.
type patchMessage struct {
	Key     string          `json:"key"`
	Value   json.RawMessage `json:"value,omitempty"`
	Revoked bool            `json:"revoked,omitempty"`
}
