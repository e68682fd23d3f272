package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rfigueroa/shopworks-backend/pkg/cache"
	dbpkg "github.com/rfigueroa/shopworks-backend/pkg/db"
	"github.com/rfigueroa/shopworks-backend/pkg/db/models"
	pkgerrors "github.com/rfigueroa/shopworks-backend/pkg/errors"
	"github.com/rfigueroa/shopworks-backend/pkg/logger"
)

// Service exposes the per-user cart aggregate. Prices are snapshotted into
// the line at add/update time; views never re-read the catalog.
type Service interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*models.Cart, error)
	UpdateItemQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (*models.Cart, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*models.Cart, error)
	ClearCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
}

type productReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type entityCache interface {
	GetOrLoad(ctx context.Context, ns cache.Namespace, id string, dest any, loader func(context.Context) (any, error)) error
	Invalidate(ctx context.Context, ns cache.Namespace, ids ...string) error
}

type service struct {
	repo     *Repository
	products productReader
	dbClient txRunner
	cache    entityCache
	logg     *logger.Logger
}

// NewService constructs a cart service instance.
func NewService(repo *Repository, products productReader, dbClient txRunner, entityCache entityCache, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product reader required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if entityCache == nil {
		return nil, fmt.Errorf("cache required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		products: products,
		dbClient: dbClient,
		cache:    entityCache,
		logg:     logg,
	}, nil
}

// GetCart returns the user's cart, creating an empty one on first access.
// Served cache-aside under the carts namespace, keyed by user.
func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := s.cache.GetOrLoad(ctx, cache.NamespaceCarts, userID.String(), &cart, func(ctx context.Context) (any, error) {
		return s.loadOrCreate(ctx, s.repo, userID)
	})
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// AddItem adds quantity of the product to the cart, merging into an existing
// line and refreshing its price snapshot to the current effective price.
func (s *service) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*models.Cart, error) {
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnavailable, "product is not available")
	}
	unitPrice := product.EffectivePriceCents()

	// The lazy create must happen before the transaction opens: a failed
	// insert from losing the unique race aborts a Postgres transaction, which
	// would doom the re-read and everything after it.
	cart, err := s.loadOrCreate(ctx, s.repo, userID)
	if err != nil {
		return nil, err
	}

	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		item, err := txRepo.FindItem(ctx, cart.ID, productID)
		switch {
		case err == nil:
			item.Quantity += quantity
			item.UnitPriceCents = unitPrice
			_, err = txRepo.SaveItem(ctx, item)
			return err
		case pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
			_, err = txRepo.CreateItem(ctx, &models.CartItem{
				ID:             uuid.New(),
				CartID:         cart.ID,
				ProductID:      productID,
				Quantity:       quantity,
				UnitPriceCents: unitPrice,
			})
			return err
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	return s.reloadAfterWrite(ctx, userID)
}

// UpdateItemQuantity sets the line quantity; zero removes the line. A nonzero
// update re-snapshots the unit price.
func (s *service) UpdateItemQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (*models.Cart, error) {
	if quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, userID, productID)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	unitPrice := product.EffectivePriceCents()

	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		cart, err := txRepo.FindByUserID(ctx, userID)
		if err != nil {
			return err
		}
		item, err := txRepo.FindItem(ctx, cart.ID, productID)
		if err != nil {
			return err
		}

		item.Quantity = quantity
		item.UnitPriceCents = unitPrice
		_, err = txRepo.SaveItem(ctx, item)
		return err
	})
	if err != nil {
		return nil, err
	}

	return s.reloadAfterWrite(ctx, userID)
}

// RemoveItem deletes the product's line from the cart.
func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	removed, err := s.repo.DeleteItemByProduct(ctx, cart.ID, productID)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}

	return s.reloadAfterWrite(ctx, userID)
}

// ClearCart empties the cart but keeps the cart row.
func (s *service) ClearCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, err := s.loadOrCreate(ctx, s.repo, userID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.DeleteItems(ctx, cart.ID); err != nil {
		return nil, err
	}

	return s.reloadAfterWrite(ctx, userID)
}

// loadOrCreate implements the lazy cart: a missing cart is created on first
// access. A concurrent create loses the unique race on carts.user_id and
// re-reads the winner's row. Callers must not hold an open transaction here;
// the losing insert would abort it and take the re-read down with it.
func (s *service) loadOrCreate(ctx context.Context, repo *Repository, userID uuid.UUID) (*models.Cart, error) {
	cart, err := repo.FindByUserID(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}

	created, createErr := repo.Create(ctx, &models.Cart{ID: uuid.New(), UserID: userID})
	if createErr == nil {
		return created, nil
	}
	if dbpkg.IsUniqueViolation(createErr, "user_id") {
		if existing, findErr := repo.FindByUserID(ctx, userID); findErr == nil {
			return existing, nil
		}
	}
	return nil, createErr
}

// reloadAfterWrite evicts the cached cart before returning the fresh state.
// Cache failures are logged, never surfaced.
func (s *service) reloadAfterWrite(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	if err := s.cache.Invalidate(ctx, cache.NamespaceCarts, userID.String()); err != nil {
		s.logg.Error(ctx, "cart cache invalidation failed", err)
	}
	return s.repo.FindByUserID(ctx, userID)
}
