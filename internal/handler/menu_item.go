package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fiche-cuisine/internal/model"
	"github.com/iliyamo/fiche-cuisine/internal/repository"
	"github.com/iliyamo/fiche-cuisine/internal/validator"
)

// CacheInvalidator drops cached menu searches after a catalogue write.
type CacheInvalidator interface {
	Invalidate(ctx context.Context)
}

// MenuItemHandler serves /api/menu-items.
type MenuItemHandler struct {
	Repo  *repository.MenuItemRepo
	Cache CacheInvalidator // optional
}

// NewMenuItemHandler constructs the handler and panics on a nil repository.
func NewMenuItemHandler(repo *repository.MenuItemRepo, cache CacheInvalidator) *MenuItemHandler {
	if repo == nil {
		panic("nil repository passed to NewMenuItemHandler")
	}
	return &MenuItemHandler{Repo: repo, Cache: cache}
}

type menuItemBody struct {
	Name     *string `json:"name"`
	Category *string `json:"category"`
	Type     *string `json:"type"`
	Active   *bool   `json:"active"`
}

// category resolves either the category or the legacy type field.
func (b menuItemBody) category() (*model.Category, bool) {
	raw := b.Category
	if raw == nil {
		raw = b.Type
	}
	if raw == nil {
		return nil, true
	}
	cat, ok := validator.ParseCategory(*raw)
	if !ok {
		return nil, false
	}
	return &cat, true
}

// List handles GET /api/menu-items
func (h *MenuItemHandler) List(c echo.Context) error {
	items, err := h.Repo.List(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// Search handles GET /api/menu-items/search?q=&category=
func (h *MenuItemHandler) Search(c echo.Context) error {
	var cat *model.Category
	if raw := strings.TrimSpace(c.QueryParam("category")); raw != "" {
		parsed, ok := validator.ParseCategory(raw)
		if !ok {
			return respondError(c, validator.NewValidationError("category", "unknown category"))
		}
		cat = &parsed
	}
	items, err := h.Repo.Search(c.Request().Context(), c.QueryParam("q"), cat)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// Create handles POST /api/menu-items
func (h *MenuItemHandler) Create(c echo.Context) error {
	var body menuItemBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	verr := &validator.ValidationError{}
	name := ""
	if body.Name != nil {
		name = validator.Truncate(strings.TrimSpace(*body.Name), validator.MaxItemName)
	}
	if name == "" {
		verr.Add("name", "is required")
	}
	cat, ok := body.category()
	if !ok || cat == nil {
		verr.Add("category", "must be one of starter, main, dessert")
	}
	if verr.HasErrors() {
		return respondError(c, verr)
	}
	it := &model.MenuItem{Name: name, Category: *cat, Active: true}
	if body.Active != nil {
		it.Active = *body.Active
	}
	if err := h.Repo.Create(c.Request().Context(), it); err != nil {
		return respondError(c, err)
	}
	h.invalidate(c)
	return c.JSON(http.StatusCreated, it)
}

// Get handles GET /api/menu-items/:id
func (h *MenuItemHandler) Get(c echo.Context) error {
	it, err := h.Repo.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, it)
}

// Update handles PUT /api/menu-items/:id
func (h *MenuItemHandler) Update(c echo.Context) error {
	var body menuItemBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	p := repository.MenuItemPatch{Active: body.Active}
	if body.Name != nil {
		name := validator.Truncate(strings.TrimSpace(*body.Name), validator.MaxItemName)
		if name == "" {
			return respondError(c, validator.NewValidationError("name", "must not be empty"))
		}
		p.Name = &name
	}
	cat, ok := body.category()
	if !ok {
		return respondError(c, validator.NewValidationError("category", "must be one of starter, main, dessert"))
	}
	p.Category = cat

	it, err := h.Repo.Update(c.Request().Context(), c.Param("id"), p)
	if err != nil {
		return respondError(c, err)
	}
	h.invalidate(c)
	return c.JSON(http.StatusOK, it)
}

// Delete handles DELETE /api/menu-items/:id
func (h *MenuItemHandler) Delete(c echo.Context) error {
	if err := h.Repo.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	h.invalidate(c)
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func (h *MenuItemHandler) invalidate(c echo.Context) {
	if h.Cache != nil {
		h.Cache.Invalidate(c.Request().Context())
	}
}
