package database

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// defaultCategories is the public taxonomy a fresh catalog starts with.
var defaultCategories = []struct {
	id, name, description string
	subcategories         [][2]string
}{
	{"dev", "Development", "Coding, debugging and code review prompts.", [][2]string{{"go", "Go"}, {"python", "Python"}, {"sql", "SQL"}}},
	{"writing", "Writing", "Drafting, editing and summarizing text.", [][2]string{{"blog", "Blog posts"}, {"email", "Email"}}},
	{"marketing", "Marketing", "Campaigns, copy and positioning.", nil},
	{"data-science", "Data Science", "Analysis, statistics and visualization.", nil},
}

// Seed populates an empty catalog with the default public taxonomy and a
// pair of house ads. It does nothing if any category exists.
func Seed(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM categories").Scan(&count); err != nil {
		return fmt.Errorf("seed check categories: %w", err)
	}

	if count > 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("seed begin: %w", err)
	}
	defer tx.Rollback()

	for i, c := range defaultCategories {
		if _, err := tx.Exec(`
			INSERT INTO categories (owner_id, id, name, description, sort_order)
			VALUES ('00000000-0000-0000-0000-000000000000', $1, $2, $3, $4)
		`, c.id, c.name, c.description, i); err != nil {
			return fmt.Errorf("seed insert category %s: %w", c.id, err)
		}
		for _, sub := range c.subcategories {
			if _, err := tx.Exec(`
				INSERT INTO subcategories (owner_id, category_id, id, name)
				VALUES ('00000000-0000-0000-0000-000000000000', $1, $2, $3)
			`, c.id, sub[0], sub[1]); err != nil {
				return fmt.Errorf("seed insert subcategory %s/%s: %w", c.id, sub[0], err)
			}
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO ads (id, type, status, content) VALUES
			('house-banner', 'banner', 'active', '{"text":"Share your best prompts with the community."}'),
			('house-inline', 'inline', 'active', '{"text":"Save prompts to your private library."}')
		ON CONFLICT (id) DO NOTHING
	`); err != nil {
		return fmt.Errorf("seed insert ads: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed commit: %w", err)
	}

	slog.Info("database seeded with default taxonomy", "categories", len(defaultCategories))
	return nil
}
