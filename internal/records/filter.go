package records

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"promptdeck/internal/models"
)

// Window restricts a query to prompts created within a recent period.
type Window string

const (
	WindowAll   Window = "all"
	WindowToday Window = "today"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
)

// ParseWindow maps a query parameter to a Window. The empty string means
// WindowAll.
func ParseWindow(s string) (Window, error) {
	switch Window(strings.ToLower(strings.TrimSpace(s))) {
	case "", WindowAll:
		return WindowAll, nil
	case WindowToday:
		return WindowToday, nil
	case WindowWeek:
		return WindowWeek, nil
	case WindowMonth:
		return WindowMonth, nil
	}
	return "", fmt.Errorf("unknown time window %q", s)
}

// Since returns the inclusive lower bound on CreatedAt for w, or the zero
// time for WindowAll. Today starts at midnight in now's location; week and
// month are rolling periods ending at now.
func (w Window) Since(now time.Time) time.Time {
	switch w {
	case WindowToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case WindowWeek:
		return now.AddDate(0, 0, -7)
	case WindowMonth:
		return now.AddDate(0, -1, 0)
	}
	return time.Time{}
}

// Filter selects prompts within a scope. Zero-valued fields match
// everything.
type Filter struct {
	CategoryID    string
	SubcategoryID string
	OwnerID       uuid.UUID
	Window        Window
	// Query is matched case-insensitively as a substring of the title or
	// the content.
	Query string
	// Now anchors Window. The zero value means time.Now().
	Now time.Time
}

// Since returns the resolved lower bound of the filter's window.
func (f Filter) Since() time.Time {
	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}
	return f.Window.Since(now)
}

// matcher is a Filter with its derived values computed once per query.
type matcher struct {
	f     Filter
	since time.Time
	query string
}

func (f Filter) matcher() matcher {
	return matcher{
		f:     f,
		since: f.Since(),
		query: strings.ToLower(strings.TrimSpace(f.Query)),
	}
}

// Match reports whether p satisfies the filter.
func (f Filter) Match(p *models.Prompt) bool {
	return f.matcher().match(p)
}

func (m matcher) match(p *models.Prompt) bool {
	if m.f.CategoryID != "" && p.CategoryID != m.f.CategoryID {
		return false
	}
	if m.f.SubcategoryID != "" && p.SubcategoryID != m.f.SubcategoryID {
		return false
	}
	if m.f.OwnerID != uuid.Nil && p.OwnerID != m.f.OwnerID {
		return false
	}
	if !m.since.IsZero() && p.CreatedAt.Before(m.since) {
		return false
	}
	if m.query != "" &&
		!strings.Contains(strings.ToLower(p.Title), m.query) &&
		!strings.Contains(strings.ToLower(p.Content), m.query) {
		return false
	}
	return true
}
