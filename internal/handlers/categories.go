package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"promptdeck/internal/apperr"
	"promptdeck/internal/gateway"
	"promptdeck/internal/middleware"
	"promptdeck/internal/models"
)

// taxonomyScope resolves ?scope for category requests. The private scope
// belongs to ?owner, defaulting to the actor.
func taxonomyScope(r *http.Request, actor *models.Actor) (models.Scope, error) {
	v := r.URL.Query()
	switch models.ScopeKind(strings.ToLower(v.Get("scope"))) {
	case "", models.ScopePublic:
		return models.PublicScope(), nil
	case models.ScopePrivate:
		owner, err := parseOwner(v.Get("owner"), actor)
		if err != nil {
			return models.Scope{}, err
		}
		return models.PrivateScope(owner), nil
	}
	return models.Scope{}, apperr.Validationf("Unknown scope %q.", v.Get("scope"))
}

// ListCategories returns the categories of one scope in display order.
func (c *Catalog) ListCategories(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	scope, err := taxonomyScope(r, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !scope.IsPublic() {
		if !canReadPrivate(actor, scope.Owner) {
			writeError(w, r, apperr.ErrPermissionDenied)
			return
		}
		c.lease(r.Context(), actor, scope.Owner)
	}
	writeJSON(w, http.StatusOK, c.taxonomy.List(scope))
}

// UpsertCategory creates or edits the category named in the URL.
func (c *Catalog) UpsertCategory(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	scope, err := taxonomyScope(r, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in gateway.CategoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.ID = chi.URLParam(r, "id")

	cat, err := c.gateway.UpsertCategory(r.Context(), actor, scope, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cat)
}

// DeleteCategory removes a category and its subcategories.
func (c *Catalog) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	scope, err := taxonomyScope(r, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := c.gateway.DeleteCategory(r.Context(), actor, scope, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// subcategoryRequest is the body of PUT .../subcategories/{sub}.
type subcategoryRequest struct {
	Name string `json:"name"`
}

// UpsertSubcategory adds or renames a subcategory.
func (c *Catalog) UpsertSubcategory(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	scope, err := taxonomyScope(r, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req subcategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	cat, err := c.gateway.UpsertSubcategory(r.Context(), actor, scope, chi.URLParam(r, "id"), chi.URLParam(r, "sub"), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cat)
}

// DeleteSubcategory removes one subcategory.
func (c *Catalog) DeleteSubcategory(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	scope, err := taxonomyScope(r, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := c.gateway.DeleteSubcategory(r.Context(), actor, scope, chi.URLParam(r, "id"), chi.URLParam(r, "sub")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
