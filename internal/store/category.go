// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"promptdeck/internal/models"
)

// CategoryStore manages public and private taxonomies in the database.
type CategoryStore struct {
	db *sql.DB
}

// NewCategoryStore returns a new CategoryStore.
func NewCategoryStore(db *sql.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

const categoryColumns = `owner_id, id, name, description, item_count, sort_order, created_at, updated_at, revision`

// ownerKey maps a scope to the owner_id column value. The nil UUID marks
// the public taxonomy.
func ownerKey(scope models.Scope) uuid.UUID {
	if scope.IsPublic() {
		return uuid.Nil
	}
	return scope.Owner
}

// scanCategory scans a row into a Category struct.
func scanCategory(scanner interface{ Scan(...any) error }) (*models.Category, error) {
	var c models.Category
	var owner uuid.UUID
	err := scanner.Scan(
		&owner, &c.ID, &c.Name, &c.Description,
		&c.ItemCount, &c.SortOrder, &c.CreatedAt, &c.UpdatedAt, &c.Revision,
	)
	if err != nil {
		return nil, err
	}
	if owner != uuid.Nil {
		c.OwnerID = &owner
	}
	c.Subcategories = make(map[string]models.Subcategory)
	return &c, nil
}

// ListByScope returns every category of scope with its subcategories.
func (s *CategoryStore) ListByScope(ctx context.Context, scope models.Scope) ([]*models.Category, error) {
	owner := ownerKey(scope)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+categoryColumns+` FROM categories
		WHERE owner_id = $1
		ORDER BY sort_order, name, id
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var items []*models.Category
	byID := make(map[string]*models.Category)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, c)
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	subRows, err := s.db.QueryContext(ctx, `
		SELECT category_id, id, name FROM subcategories WHERE owner_id = $1
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("list subcategories: %w", err)
	}
	defer subRows.Close()

	for subRows.Next() {
		var catID, id, name string
		if err := subRows.Scan(&catID, &id, &name); err != nil {
			return nil, fmt.Errorf("scan subcategory: %w", err)
		}
		if c, ok := byID[catID]; ok {
			c.Subcategories[id] = models.Subcategory{Name: name}
		}
	}
	return items, subRows.Err()
}

// FindByID retrieves a category of scope with its subcategories. Returns
// nil if not found.
func (s *CategoryStore) FindByID(ctx context.Context, scope models.Scope, id string) (*models.Category, error) {
	owner := ownerKey(scope)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE owner_id = $1 AND id = $2`, owner, id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find category by id: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name FROM subcategories WHERE owner_id = $1 AND category_id = $2
	`, owner, id)
	if err != nil {
		return nil, fmt.Errorf("find subcategories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var subID, name string
		if err := rows.Scan(&subID, &name); err != nil {
			return nil, fmt.Errorf("scan subcategory: %w", err)
		}
		c.Subcategories[subID] = models.Subcategory{Name: name}
	}
	return c, rows.Err()
}

// Upsert inserts or replaces a category and its full set of subcategories
// in one transaction. The item count is only written on insert; after that
// IncrementCount owns it. Every call bumps the revision.
func (s *CategoryStore) Upsert(ctx context.Context, c *models.Category) error {
	owner := ownerKey(c.Scope())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO categories (owner_id, id, name, description, item_count, sort_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (owner_id, id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			sort_order = EXCLUDED.sort_order,
			updated_at = EXCLUDED.updated_at,
			revision = categories.revision + 1
	`, owner, c.ID, c.Name, c.Description, max(c.ItemCount, 0), c.SortOrder, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert category: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM subcategories WHERE owner_id = $1 AND category_id = $2`, owner, c.ID); err != nil {
		return fmt.Errorf("clear subcategories: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO subcategories (owner_id, category_id, id, name) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("prepare subcategory insert: %w", err)
	}
	defer stmt.Close()

	for id, sub := range c.Subcategories {
		if _, err := stmt.ExecContext(ctx, owner, c.ID, id, sub.Name); err != nil {
			return fmt.Errorf("insert subcategory %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// Delete removes a category. Subcategories go with it (ON DELETE CASCADE).
// It reports whether a row was deleted.
func (s *CategoryStore) Delete(ctx context.Context, scope models.Scope, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM categories WHERE owner_id = $1 AND id = $2`, ownerKey(scope), id)
	if err != nil {
		return false, fmt.Errorf("delete category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete category: %w", err)
	}
	return n > 0, nil
}

// IncrementCount adds delta to the item count, never going below zero, and
// returns the updated category. Returns nil if not found.
func (s *CategoryStore) IncrementCount(ctx context.Context, scope models.Scope, id string, delta int) (*models.Category, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories SET item_count = GREATEST(item_count + $1, 0), revision = revision + 1
		WHERE owner_id = $2 AND id = $3
	`, delta, ownerKey(scope), id)
	if err != nil {
		return nil, fmt.Errorf("increment category count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.FindByID(ctx, scope, id)
}
