package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/fiche-cuisine/internal/model"
)

func TestMenuItemRepo_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewMenuItemRepo(createTestDB(t))

	it := &model.MenuItem{Name: "Magret de canard", Category: model.CategoryMain, Active: true}
	require.NoError(t, repo.Create(ctx, it))
	require.NotEmpty(t, it.ID)

	got, err := repo.GetByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, it, got)

	cat := model.CategoryStarter
	updated, err := repo.Update(ctx, it.ID, MenuItemPatch{Category: &cat, Active: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, "Magret de canard", updated.Name)
	assert.Equal(t, model.CategoryStarter, updated.Category)
	assert.False(t, updated.Active)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, it.ID))
	assert.ErrorIs(t, repo.Delete(ctx, it.ID), ErrNotFound)
	_, err = repo.GetByID(ctx, it.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.Update(ctx, it.ID, MenuItemPatch{Name: ptr("x")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMenuItemRepo_Search(t *testing.T) {
	ctx := context.Background()
	repo := NewMenuItemRepo(createTestDB(t))

	seed := []model.MenuItem{
		{Name: "Tarte Tatin", Category: model.CategoryDessert, Active: true},
		{Name: "Tartare de boeuf", Category: model.CategoryMain, Active: true},
		{Name: "Tarte aux poireaux", Category: model.CategoryStarter, Active: false},
		{Name: "Soupe", Category: model.CategoryStarter, Active: true},
	}
	for i := range seed {
		require.NoError(t, repo.Create(ctx, &seed[i]))
	}

	res, err := repo.Search(ctx, "TART", nil)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "Tartare de boeuf", res[0].Name)
	assert.Equal(t, "Tarte Tatin", res[1].Name)

	dessert := model.CategoryDessert
	res, err = repo.Search(ctx, "tar", &dessert)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Tarte Tatin", res[0].Name)

	for i := 0; i < MenuSearchLimit+5; i++ {
		require.NoError(t, repo.Create(ctx, &model.MenuItem{Name: fmt.Sprintf("Plat %02d", i), Category: model.CategoryMain, Active: true}))
	}
	res, err = repo.Search(ctx, "", nil)
	require.NoError(t, err)
	assert.Len(t, res, MenuSearchLimit)
}
