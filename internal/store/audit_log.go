// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// audit_log.go records catalog mutations in the database for audit and
// debugging purposes. Each entry captures who changed what and how
// (create/update/delete/like/...).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// AuditLogStore handles audit log operations.
type AuditLogStore struct {
	db *sql.DB
}

// NewAuditLogStore creates a new AuditLogStore.
func NewAuditLogStore(db *sql.DB) *AuditLogStore {
	return &AuditLogStore{db: db}
}

// Log records a mutation. A nil actor is stored as NULL.
func (s *AuditLogStore) Log(ctx context.Context, actorID uuid.UUID, entityType, entityID, action string) {
	var actor any
	if actorID != uuid.Nil {
		actor = actorID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (actor_id, entity_type, entity_id, action)
		VALUES ($1, $2, $3, $4)
	`, actor, entityType, entityID, action)
	if err != nil {
		// Log but don't fail.
		slog.Warn("failed to write audit log",
			"entity_type", entityType,
			"entity_id", entityID,
			"action", action,
			"error", err,
		)
		return
	}
	slog.Debug("audit log written",
		"entity_type", entityType,
		"entity_id", entityID,
		"action", action,
	)
}

// RecentEntries returns the most recent audit entries for debugging.
// Limited to the specified count.
func (s *AuditLogStore) RecentEntries(ctx context.Context, limit int) ([]AuditLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, entity_type, entity_id, action, logged_at
		FROM audit_log
		ORDER BY logged_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditLogEntry
	for rows.Next() {
		var e AuditLogEntry
		var actor uuid.NullUUID
		if err := rows.Scan(&e.ID, &actor, &e.EntityType, &e.EntityID, &e.Action, &e.LoggedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		e.ActorID = actor.UUID
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AuditLogEntry represents a single recorded mutation.
type AuditLogEntry struct {
	ID         int64
	ActorID    uuid.UUID
	EntityType string
	EntityID   string
	Action     string
	LoggedAt   time.Time
}
