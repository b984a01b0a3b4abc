package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"promptdeck/internal/apperr"
	"promptdeck/internal/models"
	"promptdeck/internal/slug"
)

// CategoryInput is the editable part of a category. An empty ID is derived
// from the name.
type CategoryInput struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SortOrder   int    `json:"sort_order"`
}

// authorizeScope allows admins to edit the public taxonomy and any
// authenticated actor to edit their own private taxonomy.
func authorizeScope(actor *models.Actor, scope models.Scope) error {
	if actor == nil {
		return apperr.ErrUnauthenticated
	}
	switch scope.Kind {
	case models.ScopePublic:
		if !actor.IsAdmin() {
			return apperr.ErrPermissionDenied
		}
	case models.ScopePrivate:
		if !actor.Owns(scope.Owner) {
			return apperr.ErrPermissionDenied
		}
	default:
		return apperr.Validationf("Categories cannot be edited in scope %q.", scope.Kind)
	}
	return nil
}

// UpsertCategory creates a category or updates its name, description and
// sort order. Counts and subcategories of an existing category are kept.
func (g *Gateway) UpsertCategory(ctx context.Context, actor *models.Actor, scope models.Scope, in CategoryInput) (*models.Category, error) {
	c, err := g.upsertCategory(ctx, actor, scope, in)
	return c, observe("upsert_category", err)
}

func (g *Gateway) upsertCategory(ctx context.Context, actor *models.Actor, scope models.Scope, in CategoryInput) (*models.Category, error) {
	if err := authorizeScope(actor, scope); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = slug.Generate(name)
	}
	if msg := validateCategory(id, name); msg != "" {
		return nil, apperr.Validation(msg)
	}
	if msg := validateMetadata(in.Description, nil); msg != "" {
		return nil, apperr.Validation(msg)
	}

	now := g.now()
	c, err := g.writer.GetCategory(ctx, scope, id)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		c = &models.Category{
			ID:            id,
			Subcategories: make(map[string]models.Subcategory),
			CreatedAt:     now,
		}
		if !scope.IsPublic() {
			owner := scope.Owner
			c.OwnerID = &owner
		}
	case err != nil:
		return nil, fmt.Errorf("load category: %w", err)
	}

	c.Name = name
	c.Description = strings.TrimSpace(in.Description)
	c.SortOrder = in.SortOrder
	c.UpdatedAt = laterOf(now, c.UpdatedAt)

	if err := g.writer.PutCategory(ctx, c); err != nil {
		return nil, fmt.Errorf("upsert category: %w", err)
	}
	g.audit.Log(ctx, actor.ID, "category", scope.String()+"/"+id, "upsert")
	return c, nil
}

// DeleteCategory removes a category and every subcategory under it.
// Prompts filed under it keep their category id.
func (g *Gateway) DeleteCategory(ctx context.Context, actor *models.Actor, scope models.Scope, id string) error {
	return observe("delete_category", g.deleteCategory(ctx, actor, scope, id))
}

func (g *Gateway) deleteCategory(ctx context.Context, actor *models.Actor, scope models.Scope, id string) error {
	if err := authorizeScope(actor, scope); err != nil {
		return err
	}
	if err := g.writer.DeleteCategory(ctx, scope, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	g.audit.Log(ctx, actor.ID, "category", scope.String()+"/"+id, "delete")
	g.logger.Info("category deleted", "scope", scope.String(), "id", id)
	return nil
}

// UpsertSubcategory adds or renames a subcategory. An empty subID is
// derived from the name.
func (g *Gateway) UpsertSubcategory(ctx context.Context, actor *models.Actor, scope models.Scope, categoryID, subID, name string) (*models.Category, error) {
	c, err := g.upsertSubcategory(ctx, actor, scope, categoryID, subID, name)
	return c, observe("upsert_subcategory", err)
}

func (g *Gateway) upsertSubcategory(ctx context.Context, actor *models.Actor, scope models.Scope, categoryID, subID, name string) (*models.Category, error) {
	if err := authorizeScope(actor, scope); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	subID = strings.TrimSpace(subID)
	if subID == "" {
		subID = slug.Generate(name)
	}
	if msg := validateCategory(subID, name); msg != "" {
		return nil, apperr.Validation(msg)
	}

	c, err := g.writer.GetCategory(ctx, scope, categoryID)
	if err != nil {
		return nil, err
	}
	if c.Subcategories == nil {
		c.Subcategories = make(map[string]models.Subcategory)
	}
	c.Subcategories[subID] = models.Subcategory{Name: name}
	c.UpdatedAt = laterOf(g.now(), c.UpdatedAt)

	if err := g.writer.PutCategory(ctx, c); err != nil {
		return nil, fmt.Errorf("upsert subcategory: %w", err)
	}
	g.audit.Log(ctx, actor.ID, "subcategory", scope.String()+"/"+categoryID+"/"+subID, "upsert")
	return c, nil
}

// DeleteSubcategory removes one subcategory.
func (g *Gateway) DeleteSubcategory(ctx context.Context, actor *models.Actor, scope models.Scope, categoryID, subID string) error {
	return observe("delete_subcategory", g.deleteSubcategory(ctx, actor, scope, categoryID, subID))
}

func (g *Gateway) deleteSubcategory(ctx context.Context, actor *models.Actor, scope models.Scope, categoryID, subID string) error {
	if err := authorizeScope(actor, scope); err != nil {
		return err
	}
	c, err := g.writer.GetCategory(ctx, scope, categoryID)
	if err != nil {
		return err
	}
	if !c.HasSubcategory(subID) {
		return fmt.Errorf("subcategory %s: %w", subID, apperr.ErrNotFound)
	}
	delete(c.Subcategories, subID)
	c.UpdatedAt = laterOf(g.now(), c.UpdatedAt)

	if err := g.writer.PutCategory(ctx, c); err != nil {
		return fmt.Errorf("delete subcategory: %w", err)
	}
	g.audit.Log(ctx, actor.ID, "subcategory", scope.String()+"/"+categoryID+"/"+subID, "delete")
	return nil
}
