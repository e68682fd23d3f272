package product

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rfigueroa/shopworks-backend/pkg/cache"
	"github.com/rfigueroa/shopworks-backend/pkg/db/models"
	"github.com/rfigueroa/shopworks-backend/pkg/enums"
	pkgerrors "github.com/rfigueroa/shopworks-backend/pkg/errors"
	"github.com/rfigueroa/shopworks-backend/pkg/logger"
	"github.com/rfigueroa/shopworks-backend/pkg/outbox"
	"github.com/rfigueroa/shopworks-backend/pkg/pagination"
)

// Service exposes catalog reads (cache-aside) and catalog writes with cache
// invalidation fan-out.
type Service interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context, input ListProductsInput) (*ListResult, error)
	SearchProducts(ctx context.Context, term string, params pagination.Params) (*ListResult, error)
	GetCategory(ctx context.Context, id uuid.UUID) (*models.Category, error)
	ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error)

	CreateProduct(ctx context.Context, input CreateProductInput) (*models.Product, error)
	UpdatePrice(ctx context.Context, productID uuid.UUID, priceCents int) (*models.Product, error)
	SetSalePrice(ctx context.Context, productID uuid.UUID, salePriceCents *int) (*models.Product, error)
	SetActive(ctx context.Context, productID uuid.UUID, active bool) (*models.Product, error)
	SetStock(ctx context.Context, productID uuid.UUID, quantity int) (*models.Product, error)
	CreateCategory(ctx context.Context, input CreateCategoryInput) (*models.Category, error)
	UpdateCategory(ctx context.Context, categoryID uuid.UUID, input UpdateCategoryInput) (*models.Category, error)
}

// ListProductsInput narrows the paginated catalog listing.
type ListProductsInput struct {
	CategoryID *uuid.UUID
	ActiveOnly bool
	Pagination pagination.Params
}

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	SKU            string
	Name           string
	Description    *string
	Tags           []string
	CategoryID     *uuid.UUID
	PriceCents     int
	SalePriceCents *int
	StockQuantity  int
	MinStockLevel  int
	MaxStockLevel  int
	IsActive       bool
}

// CreateCategoryInput holds the payload to create a category.
type CreateCategoryInput struct {
	Name     string
	Slug     string
	IsActive bool
}

// UpdateCategoryInput holds optional mutation values for a category.
type UpdateCategoryInput struct {
	Name     *string
	Slug     *string
	IsActive *bool
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type entityCache interface {
	GetOrLoad(ctx context.Context, ns cache.Namespace, id string, dest any, loader func(context.Context) (any, error)) error
	Invalidate(ctx context.Context, ns cache.Namespace, ids ...string) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type service struct {
	repo     *Repository
	dbClient txRunner
	cache    entityCache
	events   eventEmitter
	logg     *logger.Logger
}

// NewService constructs a catalog service instance.
func NewService(repo *Repository, dbClient txRunner, entityCache entityCache, events eventEmitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if entityCache == nil {
		return nil, fmt.Errorf("cache required")
	}
	if events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		dbClient: dbClient,
		cache:    entityCache,
		events:   events,
		logg:     logg,
	}, nil
}

// GetProduct returns the product, served cache-aside.
func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := s.cache.GetOrLoad(ctx, cache.NamespaceProducts, id.String(), &product, func(ctx context.Context) (any, error) {
		return s.repo.FindByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts returns one catalog page, served cache-aside under the
// products_list namespace.
func (s *service) ListProducts(ctx context.Context, input ListProductsInput) (*ListResult, error) {
	input.Pagination = pagination.Normalize(input.Pagination)

	var result ListResult
	err := s.cache.GetOrLoad(ctx, cache.NamespaceProductsList, listCacheKey(input), &result, func(ctx context.Context) (any, error) {
		return s.repo.List(ctx, ListQuery{
			Pagination: input.Pagination,
			CategoryID: input.CategoryID,
			ActiveOnly: input.ActiveOnly,
		})
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SearchProducts returns one page of matches, served cache-aside under the
// search namespace.
func (s *service) SearchProducts(ctx context.Context, term string, params pagination.Params) (*ListResult, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "search term required")
	}
	params = pagination.Normalize(params)

	var result ListResult
	err := s.cache.GetOrLoad(ctx, cache.NamespaceSearch, searchCacheKey(term, params), &result, func(ctx context.Context) (any, error) {
		return s.repo.Search(ctx, term, params)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetCategory returns the category, served cache-aside.
func (s *service) GetCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var category models.Category
	err := s.cache.GetOrLoad(ctx, cache.NamespaceCategories, id.String(), &category, func(ctx context.Context) (any, error) {
		return s.repo.FindCategoryByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// ListCategories returns every category, served cache-aside.
func (s *service) ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error) {
	key := "all-any"
	if activeOnly {
		key = "all-active"
	}
	var rows []models.Category
	err := s.cache.GetOrLoad(ctx, cache.NamespaceCategories, key, &rows, func(ctx context.Context) (any, error) {
		return s.repo.ListCategories(ctx, activeOnly)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CreateProduct inserts a new catalog listing.
func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*models.Product, error) {
	input.SKU = strings.TrimSpace(input.SKU)
	input.Name = strings.TrimSpace(input.Name)
	if input.SKU == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku required")
	}
	if input.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name required")
	}
	if input.PriceCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price_cents must be positive")
	}
	if err := validateSalePrice(input.SalePriceCents, input.PriceCents); err != nil {
		return nil, err
	}
	if input.StockQuantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock_quantity cannot be negative")
	}

	product := &models.Product{
		ID:             uuid.New(),
		CategoryID:     input.CategoryID,
		SKU:            input.SKU,
		Name:           input.Name,
		Description:    input.Description,
		Tags:           input.Tags,
		PriceCents:     input.PriceCents,
		SalePriceCents: input.SalePriceCents,
		StockQuantity:  input.StockQuantity,
		MinStockLevel:  input.MinStockLevel,
		MaxStockLevel:  input.MaxStockLevel,
		IsActive:       input.IsActive,
	}
	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return nil, err
	}

	s.invalidateProduct(ctx, created.ID)
	return created, nil
}

// UpdatePrice sets a new list price. An existing sale price must stay below
// the new list price.
func (s *service) UpdatePrice(ctx context.Context, productID uuid.UUID, priceCents int) (*models.Product, error) {
	if priceCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price_cents must be positive")
	}

	product, err := s.mutateProduct(ctx, productID, func(product *models.Product) error {
		if err := validateSalePrice(product.SalePriceCents, priceCents); err != nil {
			return err
		}
		product.PriceCents = priceCents
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateProduct(ctx, productID)
	return product, nil
}

// SetSalePrice sets or clears the sale price. A set sale price must be below
// the list price.
func (s *service) SetSalePrice(ctx context.Context, productID uuid.UUID, salePriceCents *int) (*models.Product, error) {
	product, err := s.mutateProduct(ctx, productID, func(product *models.Product) error {
		if err := validateSalePrice(salePriceCents, product.PriceCents); err != nil {
			return err
		}
		product.SalePriceCents = salePriceCents
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateProduct(ctx, productID)
	return product, nil
}

// SetActive toggles catalog visibility.
func (s *service) SetActive(ctx context.Context, productID uuid.UUID, active bool) (*models.Product, error) {
	product, err := s.mutateProduct(ctx, productID, func(product *models.Product) error {
		product.IsActive = active
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateProduct(ctx, productID)
	return product, nil
}

// SetStock is the absolute admin stock write. Checkout and cancellation go
// through the inventory ledger instead.
func (s *service) SetStock(ctx context.Context, productID uuid.UUID, quantity int) (*models.Product, error) {
	if quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock_quantity cannot be negative")
	}

	var updated *models.Product
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		product, err := txRepo.FindByID(ctx, productID)
		if err != nil {
			return err
		}
		if product.MaxStockLevel > 0 && quantity > product.MaxStockLevel {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("stock_quantity %d exceeds max_stock_level %d", quantity, product.MaxStockLevel))
		}

		previous := product.StockQuantity
		product.StockQuantity = quantity
		if updated, err = txRepo.SaveProduct(ctx, product); err != nil {
			return err
		}

		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProductStockAdjusted,
			AggregateType: enums.AggregateProduct,
			AggregateID:   productID,
			Data: map[string]any{
				"product_id":     productID,
				"previous_stock": previous,
				"stock_quantity": quantity,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateProduct(ctx, productID)
	return updated, nil
}

// CreateCategory inserts a new category.
func (s *service) CreateCategory(ctx context.Context, input CreateCategoryInput) (*models.Category, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Slug = strings.TrimSpace(strings.ToLower(input.Slug))
	if input.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name required")
	}
	if input.Slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug required")
	}

	category := &models.Category{
		ID:       uuid.New(),
		Name:     input.Name,
		Slug:     input.Slug,
		IsActive: input.IsActive,
	}
	created, err := s.repo.CreateCategory(ctx, category)
	if err != nil {
		return nil, err
	}

	s.invalidateCategories(ctx, created.ID)
	return created, nil
}

// UpdateCategory applies the provided fields and evicts category caches,
// which fans out to product listings.
func (s *service) UpdateCategory(ctx context.Context, categoryID uuid.UUID, input UpdateCategoryInput) (*models.Category, error) {
	category, err := s.repo.FindCategoryByID(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		category.Name = name
	}
	if input.Slug != nil {
		slug := strings.TrimSpace(strings.ToLower(*input.Slug))
		if slug == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug cannot be empty")
		}
		category.Slug = slug
	}
	if input.IsActive != nil {
		category.IsActive = *input.IsActive
	}

	updated, err := s.repo.SaveCategory(ctx, category)
	if err != nil {
		return nil, err
	}

	s.invalidateCategories(ctx, categoryID)
	return updated, nil
}

func (s *service) mutateProduct(ctx context.Context, productID uuid.UUID, apply func(*models.Product) error) (*models.Product, error) {
	var updated *models.Product
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		product, err := txRepo.FindByID(ctx, productID)
		if err != nil {
			return err
		}
		if err := apply(product); err != nil {
			return err
		}
		updated, err = txRepo.SaveProduct(ctx, product)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// invalidateProduct evicts the product key; the cache layer fans out to the
// search and products_list namespaces. Failures are logged, never surfaced.
func (s *service) invalidateProduct(ctx context.Context, productID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, cache.NamespaceProducts, productID.String()); err != nil {
		s.logg.Error(ctx, "product cache invalidation failed", err)
	}
}

// invalidateCategories evicts the category key plus the aggregate listing
// keys; fan-out covers products_list.
func (s *service) invalidateCategories(ctx context.Context, categoryID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, cache.NamespaceCategories, categoryID.String(), "all-any", "all-active"); err != nil {
		s.logg.Error(ctx, "category cache invalidation failed", err)
	}
}

func validateSalePrice(salePriceCents *int, priceCents int) error {
	if salePriceCents == nil {
		return nil
	}
	if *salePriceCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "sale_price_cents must be positive")
	}
	if *salePriceCents >= priceCents {
		return pkgerrors.New(pkgerrors.CodeValidation, "sale_price_cents must be below price_cents")
	}
	return nil
}

func listCacheKey(input ListProductsInput) string {
	scope := "all"
	if input.CategoryID != nil {
		scope = "cat-" + input.CategoryID.String()
	}
	visibility := "any"
	if input.ActiveOnly {
		visibility = "active"
	}
	return scope + ":" + visibility + ":" + input.Pagination.CacheKey()
}

func searchCacheKey(term string, params pagination.Params) string {
	slug := strings.Join(strings.Fields(strings.ToLower(term)), "-")
	return "q-" + slug + ":" + params.CacheKey()
}
