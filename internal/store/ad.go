// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"

	"promptdeck/internal/models"
)

// AdStore reads the ad inventory. Ads are managed outside this service;
// the catalog only ever reads the active subset.
type AdStore struct {
	db *sql.DB
}

// NewAdStore creates a new AdStore.
func NewAdStore(db *sql.DB) *AdStore {
	return &AdStore{db: db}
}

// ListActive returns every active ad ordered by id.
func (s *AdStore) ListActive(ctx context.Context) ([]models.Ad, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, status, content FROM ads
		WHERE status = 'active'
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list active ads: %w", err)
	}
	defer rows.Close()

	var ads []models.Ad
	for rows.Next() {
		var a models.Ad
		var content []byte
		if err := rows.Scan(&a.ID, &a.Type, &a.Status, &content); err != nil {
			return nil, fmt.Errorf("scan ad: %w", err)
		}
		a.Content = content
		ads = append(ads, a)
	}
	return ads, rows.Err()
}

// Upsert inserts or replaces an ad. Used by the development seed.
func (s *AdStore) Upsert(ctx context.Context, a models.Ad) error {
	content := []byte(a.Content)
	if len(content) == 0 {
		content = []byte("{}")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ads (id, type, status, content) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type, status = EXCLUDED.status, content = EXCLUDED.content
	`, a.ID, a.Type, a.Status, content)
	if err != nil {
		return fmt.Errorf("upsert ad: %w", err)
	}
	return nil
}
