package gateway

import (
	"strings"
	"unicode/utf8"

	"promptdeck/internal/slug"
)

// Validation limits for prompt and category fields.
const (
	maxTitleLen       = 300
	maxContentLen     = 100_000
	maxDescriptionLen = 1_000
	maxTags           = 20
	maxTagLen         = 50
	maxNameLen        = 200
)

// validatePrompt checks the required prompt fields and returns the first
// error found.
func validatePrompt(title, content, categoryID string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return "Title is required."
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return "Title is too long (max 300 characters)."
	}
	if strings.TrimSpace(content) == "" {
		return "Content is required."
	}
	if utf8.RuneCountInString(content) > maxContentLen {
		return "Content is too long (max 100,000 characters)."
	}
	if strings.TrimSpace(categoryID) == "" {
		return "Category is required."
	}
	return ""
}

// validateMetadata checks the optional description and tags.
func validateMetadata(description string, tags []string) string {
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return "Description is too long (max 1,000 characters)."
	}
	if len(tags) > maxTags {
		return "Too many tags (max 20)."
	}
	for _, tag := range tags {
		if utf8.RuneCountInString(tag) > maxTagLen {
			return "Tag is too long (max 50 characters)."
		}
	}
	return ""
}

// validateCategory checks category and subcategory inputs.
func validateCategory(id, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Category name is required."
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return "Category name is too long (max 200 characters)."
	}
	if id == "" {
		return "Category name must contain letters or digits."
	}
	if len(id) > slug.MaxLen {
		return "Category id is too long (max 100 characters)."
	}
	if !slug.Valid(id) {
		return "Category id may only contain lowercase letters, digits and hyphens."
	}
	return ""
}

// normalizeTags trims tags, lowercases them, and drops empties and
// duplicates while keeping first-seen order. Tags are a set.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
