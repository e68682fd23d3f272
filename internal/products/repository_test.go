package product

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/rfigueroa/shopworks-backend/pkg/errors"
	"github.com/rfigueroa/shopworks-backend/pkg/pagination"
)

func TestRepositoryFindByIDNotFound(t *testing.T) {
	conn := openCatalogTestDB(t)
	repo := NewRepository(conn)

	_, err := repo.FindByID(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestRepositoryListFiltersAndPaginates(t *testing.T) {
	conn := openCatalogTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	shoes := mustCreateTestCategory(t, conn, "Shoes", "shoes")
	hats := mustCreateTestCategory(t, conn, "Hats", "hats")

	for i := 0; i < 3; i++ {
		mustCreateCatalogProduct(t, conn, "runner", 5000, true, &shoes.ID)
	}
	mustCreateCatalogProduct(t, conn, "beanie", 1500, true, &hats.ID)
	mustCreateCatalogProduct(t, conn, "retired runner", 4000, false, &shoes.ID)

	result, err := repo.List(ctx, ListQuery{
		Pagination: pagination.Params{Page: 1, Limit: 2},
		CategoryID: &shoes.ID,
		ActiveOnly: true,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, result.Total)
	assert.Len(t, result.Items, 2)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 2, result.Limit)

	second, err := repo.List(ctx, ListQuery{
		Pagination: pagination.Params{Page: 2, Limit: 2},
		CategoryID: &shoes.ID,
		ActiveOnly: true,
	})
	require.NoError(t, err)
	assert.Len(t, second.Items, 1)

	everything, err := repo.List(ctx, ListQuery{Pagination: pagination.Params{Page: 1, Limit: 25}})
	require.NoError(t, err)
	assert.EqualValues(t, 5, everything.Total)
}

func TestRepositorySearchMatchesNameAndDescription(t *testing.T) {
	conn := openCatalogTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	mustCreateCatalogProduct(t, conn, "Trail Runner", 8000, true, nil)
	desc := "lightweight running shoe"
	withDesc := mustCreateCatalogProduct(t, conn, "Featherweight", 9000, true, nil)
	withDesc.Description = &desc
	_, err := repo.SaveProduct(ctx, withDesc)
	require.NoError(t, err)

	mustCreateCatalogProduct(t, conn, "Leather Boot", 12000, true, nil)
	mustCreateCatalogProduct(t, conn, "Hidden Runner", 7000, false, nil)

	result, err := repo.Search(ctx, "run", pagination.Params{Page: 1, Limit: 25})
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.Total)
	for _, item := range result.Items {
		assert.True(t, item.IsActive)
	}
}

func TestRepositoryCategoryRoundTrip(t *testing.T) {
	conn := openCatalogTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	created := mustCreateTestCategory(t, conn, "Outerwear", "outerwear")

	fetched, err := repo.FindCategoryByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "outerwear", fetched.Slug)

	fetched.IsActive = false
	_, err = repo.SaveCategory(ctx, fetched)
	require.NoError(t, err)

	active, err := repo.ListCategories(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := repo.ListCategories(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
