// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// Subcategory is a named child of a Category. Its id is unique within
// the parent category.
type Subcategory struct {
	Name string `json:"name"`
}

// Category represents a catalog category. A nil OwnerID places it in the
// public taxonomy; otherwise it is a private category visible only to
// its owner.
type Category struct {
	ID            string                 `json:"id"`
	OwnerID       *uuid.UUID             `json:"owner_id,omitempty"`
	Name          string                 `json:"name"`
	Description   string                 `json:"description"`
	ItemCount     int                    `json:"item_count"`
	SortOrder     int                    `json:"sort_order"`
	Subcategories map[string]Subcategory `json:"subcategories"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	Revision      int64                  `json:"revision,omitempty"`
}

// IsPrivate returns true for an owned (private) category.
func (c *Category) IsPrivate() bool {
	return c.OwnerID != nil
}

// Scope returns the taxonomy scope the category lives in.
func (c *Category) Scope() Scope {
	if c.OwnerID != nil {
		return PrivateScope(*c.OwnerID)
	}
	return PublicScope()
}

// Supersedes reports whether c may replace cur, by revision when both
// carry one and by UpdatedAt otherwise.
func (c *Category) Supersedes(cur *Category) bool {
	if c.Revision > 0 && cur.Revision > 0 {
		return c.Revision > cur.Revision
	}
	return !c.UpdatedAt.Before(cur.UpdatedAt)
}

// Clone returns a deep copy, including the subcategory map.
func (c *Category) Clone() *Category {
	out := *c
	if c.OwnerID != nil {
		owner := *c.OwnerID
		out.OwnerID = &owner
	}
	out.Subcategories = make(map[string]Subcategory, len(c.Subcategories))
	for id, sub := range c.Subcategories {
		out.Subcategories[id] = sub
	}
	return &out
}

// HasSubcategory reports whether id names a subcategory of c.
func (c *Category) HasSubcategory(id string) bool {
	_, ok := c.Subcategories[id]
	return ok
}
