// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"promptdeck/internal/models"
)

// PromptStore handles prompt records and the like relation.
type PromptStore struct {
	db *sql.DB
}

// NewPromptStore creates a new PromptStore with the given database connection.
func NewPromptStore(db *sql.DB) *PromptStore {
	return &PromptStore{db: db}
}

const promptColumns = `id, title, content, description, tags, category_id, subcategory_id,
	legacy_category, owner_id, owner_display_name, visibility,
	like_count, download_count, created_at, updated_at, revision`

func scanPrompt(scanner interface{ Scan(...any) error }) (*models.Prompt, error) {
	var p models.Prompt
	var tags []byte
	err := scanner.Scan(
		&p.ID, &p.Title, &p.Content, &p.Description, &tags, &p.CategoryID, &p.SubcategoryID,
		&p.LegacyCategory, &p.OwnerID, &p.OwnerDisplayName, &p.Visibility,
		&p.LikeCount, &p.DownloadCount, &p.CreatedAt, &p.UpdatedAt, &p.Revision,
	)
	if err != nil {
		return nil, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &p.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	return &p, nil
}

// ListByScope returns the prompts stored in the partition of scope: every
// public prompt, or the private prompts of one owner.
func (s *PromptStore) ListByScope(ctx context.Context, scope models.Scope) ([]*models.Prompt, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if scope.IsPublic() {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+promptColumns+` FROM prompts WHERE visibility = 'public'`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+promptColumns+` FROM prompts WHERE visibility = 'private' AND owner_id = $1`,
			scope.Owner)
	}
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	var items []*models.Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// FindByID retrieves a prompt by its UUID. Returns nil if not found.
func (s *PromptStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+promptColumns+` FROM prompts WHERE id = $1`, id)
	p, err := scanPrompt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find prompt by id: %w", err)
	}
	return p, nil
}

// Upsert inserts a prompt or replaces its content fields and returns the
// stored row. Counters are owned by the like relation and
// IncrementDownloads and are only set on insert. Every call bumps the
// revision.
func (s *PromptStore) Upsert(ctx context.Context, p *models.Prompt) (*models.Prompt, error) {
	tags, err := json.Marshal(nonNilTags(p.Tags))
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO prompts (id, title, content, description, tags, category_id, subcategory_id,
		                     legacy_category, owner_id, owner_display_name, visibility,
		                     like_count, download_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			description = EXCLUDED.description,
			tags = EXCLUDED.tags,
			category_id = EXCLUDED.category_id,
			subcategory_id = EXCLUDED.subcategory_id,
			legacy_category = EXCLUDED.legacy_category,
			owner_display_name = EXCLUDED.owner_display_name,
			visibility = EXCLUDED.visibility,
			updated_at = EXCLUDED.updated_at,
			revision = prompts.revision + 1
		RETURNING `+promptColumns,
		p.ID, p.Title, p.Content, p.Description, tags, p.CategoryID, p.SubcategoryID,
		p.LegacyCategory, p.OwnerID, p.OwnerDisplayName, p.Visibility,
		max(p.LikeCount, 0), max(p.DownloadCount, 0), p.CreatedAt, p.UpdatedAt)
	stored, err := scanPrompt(row)
	if err != nil {
		return nil, fmt.Errorf("upsert prompt: %w", err)
	}
	return stored, nil
}

// Delete removes a prompt and, through ON DELETE CASCADE, its likes. It
// reports whether a row was deleted.
func (s *PromptStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM prompts WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete prompt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete prompt: %w", err)
	}
	return n > 0, nil
}

// ToggleLike flips the (actor, prompt) pair in the like relation and moves
// like_count by one in the same transaction. The primary key on the pair
// keeps concurrent toggles by different actors independent. It returns
// whether the pair exists afterwards and the updated prompt, or nil if the
// prompt does not exist.
func (s *PromptStore) ToggleLike(ctx context.Context, actorID, promptID uuid.UUID) (bool, *models.Prompt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM prompt_likes WHERE actor_id = $1 AND prompt_id = $2`, actorID, promptID)
	if err != nil {
		return false, nil, fmt.Errorf("remove like: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("remove like: %w", err)
	}

	liked := removed == 0
	delta := -1
	if liked {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO prompt_likes (actor_id, prompt_id)
			SELECT $1, id FROM prompts WHERE id = $2
			ON CONFLICT DO NOTHING
		`, actorID, promptID)
		if err != nil {
			return false, nil, fmt.Errorf("insert like: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return false, nil, nil
		}
		delta = 1
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE prompts SET like_count = GREATEST(like_count + $1, 0), revision = revision + 1
		WHERE id = $2
		RETURNING `+promptColumns, delta, promptID)
	p, err := scanPrompt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("update like count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, nil, fmt.Errorf("commit like: %w", err)
	}
	return liked, p, nil
}

// IncrementDownloads bumps download_count and returns the updated prompt,
// or nil if not found.
func (s *PromptStore) IncrementDownloads(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE prompts SET download_count = download_count + 1, revision = revision + 1
		WHERE id = $1
		RETURNING `+promptColumns, id)
	p, err := scanPrompt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("increment downloads: %w", err)
	}
	return p, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
