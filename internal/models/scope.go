// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ScopeKind selects a slice of the record or taxonomy space.
type ScopeKind string

const (
	ScopePublic  ScopeKind = "public"
	ScopePrivate ScopeKind = "private"
	// ScopeOwned selects every prompt of Owner regardless of partition.
	// It is only meaningful for record queries.
	ScopeOwned ScopeKind = "owned"
)

// Scope addresses a taxonomy or repository operation. Owner is uuid.Nil
// for the public scope.
type Scope struct {
	Kind  ScopeKind
	Owner uuid.UUID
}

// PublicScope returns the shared scope.
func PublicScope() Scope {
	return Scope{Kind: ScopePublic}
}

// PrivateScope returns owner's private scope.
func PrivateScope(owner uuid.UUID) Scope {
	return Scope{Kind: ScopePrivate, Owner: owner}
}

// OwnedScope returns the scope of everything owned by owner.
func OwnedScope(owner uuid.UUID) Scope {
	return Scope{Kind: ScopeOwned, Owner: owner}
}

// IsPublic returns true for the shared scope.
func (s Scope) IsPublic() bool {
	return s.Kind == ScopePublic
}

func (s Scope) String() string {
	if s.Kind == ScopePublic {
		return string(s.Kind)
	}
	return string(s.Kind) + "/" + s.Owner.String()
}

// Resource names the kind of entity a partition holds.
type Resource string

const (
	ResourcePrompts    Resource = "prompts"
	ResourceCategories Resource = "categories"
)

// Partition is an isolated subdivision of the remote store: the public
// space or one owner's private space, for either prompts or categories.
type Partition struct {
	Resource Resource
	Scope    Scope
}

// PublicPartition returns the public partition of r.
func PublicPartition(r Resource) Partition {
	return Partition{Resource: r, Scope: PublicScope()}
}

// PrivatePartition returns owner's private partition of r.
func PrivatePartition(r Resource, owner uuid.UUID) Partition {
	return Partition{Resource: r, Scope: PrivateScope(owner)}
}

// Path returns the remote store path, e.g. "prompts/public" or
// "categories/private/<owner>".
func (p Partition) Path() string {
	if p.Scope.IsPublic() {
		return string(p.Resource) + "/public"
	}
	return string(p.Resource) + "/private/" + p.Scope.Owner.String()
}

// ParsePartition is the inverse of Partition.Path.
func ParsePartition(path string) (Partition, error) {
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return Partition{}, fmt.Errorf("parse partition %q: too short", path)
	}
	res := Resource(parts[0])
	if res != ResourcePrompts && res != ResourceCategories {
		return Partition{}, fmt.Errorf("parse partition %q: unknown resource", path)
	}
	switch {
	case len(parts) == 2 && parts[1] == "public":
		return PublicPartition(res), nil
	case len(parts) == 3 && parts[1] == "private":
		owner, err := uuid.Parse(parts[2])
		if err != nil {
			return Partition{}, fmt.Errorf("parse partition %q: %w", path, err)
		}
		return PrivatePartition(res, owner), nil
	}
	return Partition{}, fmt.Errorf("parse partition %q: unknown scope", path)
}
