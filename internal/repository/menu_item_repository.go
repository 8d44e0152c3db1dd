package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/fiche-cuisine/internal/model"
)

// MenuSearchLimit caps the number of search results.
const MenuSearchLimit = 20

// MenuItemRepo manages the dish catalogue.
type MenuItemRepo struct {
	db *sqlx.DB
}

// NewMenuItemRepo returns a new MenuItemRepo bound to the given database.
func NewMenuItemRepo(db *sqlx.DB) *MenuItemRepo { return &MenuItemRepo{db: db} }

// MenuItemPatch is a partial update; nil fields are left untouched.
type MenuItemPatch struct {
	Name     *string
	Category *model.Category
	Active   *bool
}

// List returns all menu items ordered by name.
func (r *MenuItemRepo) List(ctx context.Context) ([]model.MenuItem, error) {
	items := []model.MenuItem{}
	err := r.db.SelectContext(ctx, &items, `SELECT id, name, category, active FROM menu_items ORDER BY name ASC`)
	return items, err
}

// Create inserts a new menu item and fills in its ID.
func (r *MenuItemRepo) Create(ctx context.Context, it *model.MenuItem) error {
	it.ID = uuid.NewString()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO menu_items (id, name, category, active) VALUES (?, ?, ?, ?)`),
		it.ID, it.Name, string(it.Category), it.Active)
	return err
}

// GetByID returns a menu item or ErrNotFound.
func (r *MenuItemRepo) GetByID(ctx context.Context, id string) (*model.MenuItem, error) {
	var it model.MenuItem
	err := r.db.GetContext(ctx, &it, r.db.Rebind(`SELECT id, name, category, active FROM menu_items WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// Update applies a partial update and returns the stored item.
func (r *MenuItemRepo) Update(ctx context.Context, id string, p MenuItemPatch) (*model.MenuItem, error) {
	it, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		it.Name = *p.Name
	}
	if p.Category != nil {
		it.Category = *p.Category
	}
	if p.Active != nil {
		it.Active = *p.Active
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(`UPDATE menu_items SET name = ?, category = ?, active = ? WHERE id = ?`),
		it.Name, string(it.Category), it.Active, id)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// Delete removes a menu item or returns ErrNotFound.
func (r *MenuItemRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM menu_items WHERE id = ?`), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Search returns up to MenuSearchLimit active items whose name contains q
// (case-insensitive), optionally restricted to one category.
func (r *MenuItemRepo) Search(ctx context.Context, q string, category *model.Category) ([]model.MenuItem, error) {
	where := []string{`active = ?`}
	args := []interface{}{true}
	if category != nil {
		where = append(where, `category = ?`)
		args = append(args, string(*category))
	}
	if q = strings.TrimSpace(q); q != "" {
		where = append(where, `LOWER(name) LIKE ? ESCAPE '!'`)
		args = append(args, "%"+escapeLike(strings.ToLower(q))+"%")
	}
	args = append(args, MenuSearchLimit)
	query := `SELECT id, name, category, active FROM menu_items WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY name ASC LIMIT ?`
	items := []model.MenuItem{}
	err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), args...)
	return items, err
}
