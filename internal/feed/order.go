// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package feed

import (
	"bytes"
	"cmp"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"promptdeck/internal/apperr"
	"promptdeck/internal/models"
)

// SortKey selects the primary ordering of a feed.
type SortKey string

const (
	SortCreated   SortKey = "created"
	SortLikes     SortKey = "likes"
	SortDownloads SortKey = "downloads"
	SortTitle     SortKey = "title"
)

// ParseSort maps a query parameter to a SortKey. The empty string means
// SortCreated.
func ParseSort(s string) (SortKey, error) {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortCreated:
		return SortCreated, nil
	case SortLikes:
		return SortLikes, nil
	case SortDownloads:
		return SortDownloads, nil
	case SortTitle:
		return SortTitle, nil
	}
	return "", apperr.Validationf("Unknown sort %q.", s)
}

// Order is a sort key plus direction. Ties are always broken by id
// ascending.
type Order struct {
	Key SortKey
	Asc bool
}

// position is the sort tuple of one prompt. It is all a cursor needs to
// resume, even after the prompt itself is gone.
type position struct {
	ID        uuid.UUID `json:"i"`
	CreatedAt int64     `json:"c"`
	Likes     int       `json:"l"`
	Downloads int       `json:"d"`
	Title     string    `json:"t"`
}

func positionOf(p *models.Prompt) position {
	return position{
		ID:        p.ID,
		CreatedAt: p.CreatedAt.UnixNano(),
		Likes:     p.LikeCount,
		Downloads: p.DownloadCount,
		Title:     strings.ToLower(p.Title),
	}
}

// compare orders a before b under o.
func (o Order) compare(a, b position) int {
	var c int
	switch o.Key {
	case SortLikes:
		c = cmp.Compare(a.Likes, b.Likes)
	case SortDownloads:
		c = cmp.Compare(a.Downloads, b.Downloads)
	case SortTitle:
		c = strings.Compare(a.Title, b.Title)
	default:
		c = cmp.Compare(a.CreatedAt, b.CreatedAt)
	}
	if !o.Asc {
		c = -c
	}
	if c != 0 {
		return c
	}
	return bytes.Compare(a.ID[:], b.ID[:])
}

// cursor is the decoded form of a page token.
type cursor struct {
	Key  SortKey  `json:"s"`
	Asc  bool     `json:"a,omitempty"`
	Last position `json:"p"`
}

func encodeCursor(o Order, last position) string {
	b, err := json.Marshal(cursor{Key: o.Key, Asc: o.Asc, Last: last})
	if err != nil {
		// Only plain fields; cannot fail.
		panic(fmt.Sprintf("encode cursor: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// decodeCursor parses token and checks it was issued for o.
func decodeCursor(token string, o Order) (position, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return position{}, apperr.Validation("Invalid cursor.")
	}
	var c cursor
	if err := json.Unmarshal(b, &c); err != nil || c.Last.ID == uuid.Nil {
		return position{}, apperr.Validation("Invalid cursor.")
	}
	if c.Key != o.Key || c.Asc != o.Asc {
		return position{}, apperr.Validation("Cursor does not match the requested sort order.")
	}
	return c.Last, nil
}
