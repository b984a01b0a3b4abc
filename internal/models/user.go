// Package models defines the data structures shared by the catalog core,
// the remote store and the HTTP layer.
package models

import (
	"github.com/google/uuid"
)

// Role represents an actor's permission level.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Actor is the identity supplied by the identity provider for a request.
// A nil *Actor means the request is unauthenticated.
type Actor struct {
	ID          uuid.UUID `json:"id"`
	Role        Role      `json:"role"`
	DisplayName string    `json:"display_name"`
}

// IsAdmin returns true if the actor holds the admin role.
func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

// Owns reports whether the actor is the given owner.
func (a *Actor) Owns(owner uuid.UUID) bool {
	return a != nil && a.ID != uuid.Nil && a.ID == owner
}
