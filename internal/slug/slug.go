// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package slug derives category and subcategory ids from display names.
package slug

import (
	"regexp"
	"strings"
)

// MaxLen is the longest id Generate returns.
const MaxLen = 100

var (
	// nonAlphanumeric matches anything that isn't a letter, digit, space or hyphen.
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9\s-]`)
	// separators matches runs of whitespace and hyphens.
	separators = regexp.MustCompile(`[\s-]+`)
	// canonical matches ids Generate could have produced.
	canonical = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

// Generate creates an id from the given name.
// Example: "Data Science & ML" → "data-science-ml"
func Generate(s string) string {
	result := strings.ToLower(strings.TrimSpace(s))
	result = nonAlphanumeric.ReplaceAllString(result, "")
	result = separators.ReplaceAllString(result, "-")
	result = strings.Trim(result, "-")
	if len(result) > MaxLen {
		result = strings.TrimRight(result[:MaxLen], "-")
	}
	return result
}

// Valid reports whether id is a canonical id: lowercase letters and
// digits in hyphen-separated groups, at most MaxLen bytes.
func Valid(id string) bool {
	return len(id) <= MaxLen && canonical.MatchString(id)
}
