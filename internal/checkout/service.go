package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rfigueroa/shopworks-backend/internal/addresses"
	"github.com/rfigueroa/shopworks-backend/internal/cart"
	"github.com/rfigueroa/shopworks-backend/internal/orders"
	product "github.com/rfigueroa/shopworks-backend/internal/products"
	"github.com/rfigueroa/shopworks-backend/pkg/cache"
	"github.com/rfigueroa/shopworks-backend/pkg/db/models"
	"github.com/rfigueroa/shopworks-backend/pkg/enums"
	pkgerrors "github.com/rfigueroa/shopworks-backend/pkg/errors"
	"github.com/rfigueroa/shopworks-backend/pkg/logger"
	"github.com/rfigueroa/shopworks-backend/pkg/outbox"
)

type txRunner interface {
	WithTxTimeout(ctx context.Context, timeout time.Duration, fn func(tx *gorm.DB) error) error
}

type stockReserver interface {
	Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type entityCache interface {
	Invalidate(ctx context.Context, ns cache.Namespace, ids ...string) error
	InvalidateByPattern(ctx context.Context, ns cache.Namespace, pattern string) error
}

type checkoutRecorder interface {
	ObserveCheckout(outcome string, elapsed time.Duration)
}

// Pricing quotes tax and shipping for an order subtotal. The default quotes
// zero for both; deployments plug their own.
type Pricing interface {
	Quote(ctx context.Context, subtotalCents int) (taxCents, shippingCents int, err error)
}

type zeroPricing struct{}

func (zeroPricing) Quote(context.Context, int) (int, int, error) {
	return 0, 0, nil
}

// CreateOrderInput captures the checkout request. Billing falls back to the
// shipping address when absent.
type CreateOrderInput struct {
	ShippingAddressID uuid.UUID `validate:"required"`
	BillingAddressID  *uuid.UUID
	DiscountCents     int `validate:"gte=0"`
}

// Service converts a cart into an order, all-or-nothing.
type Service interface {
	CreateOrder(ctx context.Context, actingUserID uuid.UUID, input CreateOrderInput) (*models.Order, error)
}

type service struct {
	tx          txRunner
	cartRepo    *cart.Repository
	ordersRepo  *orders.Repository
	productRepo *product.Repository
	addressRepo addresses.Repository
	reserver    stockReserver
	pricing     Pricing
	outbox      outboxPublisher
	cache       entityCache
	metrics     checkoutRecorder
	logg        *logger.Logger
	validate    *validator.Validate
	txTimeout   time.Duration
	now         func() time.Time
}

// OrderCreatedEvent is the payload emitted when checkout commits.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      uuid.UUID `json:"user_id"`
	TotalCents  int       `json:"total_cents"`
	ItemCount   int       `json:"item_count"`
}

// NewService builds the checkout orchestrator. A nil pricing falls back to
// zero tax and shipping; a nil metrics recorder is inert.
func NewService(
	tx txRunner,
	cartRepo *cart.Repository,
	ordersRepo *orders.Repository,
	productRepo *product.Repository,
	addressRepo addresses.Repository,
	reserver stockReserver,
	pricing Pricing,
	publisher outboxPublisher,
	entityCache entityCache,
	metrics checkoutRecorder,
	logg *logger.Logger,
	txTimeout time.Duration,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if productRepo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if addressRepo == nil {
		return nil, fmt.Errorf("address repository required")
	}
	if reserver == nil {
		return nil, fmt.Errorf("stock reserver required")
	}
	if pricing == nil {
		pricing = zeroPricing{}
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if entityCache == nil {
		return nil, fmt.Errorf("cache required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if txTimeout <= 0 {
		txTimeout = 10 * time.Second
	}
	return &service{
		tx:          tx,
		cartRepo:    cartRepo,
		ordersRepo:  ordersRepo,
		productRepo: productRepo,
		addressRepo: addressRepo,
		reserver:    reserver,
		pricing:     pricing,
		outbox:      publisher,
		cache:       entityCache,
		metrics:     metrics,
		logg:        logg,
		validate:    validator.New(),
		txTimeout:   txTimeout,
		now:         time.Now,
	}, nil
}

// CreateOrder runs the whole checkout inside one bounded transaction: load
// and validate the cart, verify availability and ownership, freeze line
// items, reserve stock, persist the order and clear the cart. Cache eviction
// and the order-created event follow the commit.
func (s *service) CreateOrder(ctx context.Context, actingUserID uuid.UUID, input CreateOrderInput) (*models.Order, error) {
	start := s.now()

	order, err := s.createOrder(ctx, actingUserID, input)
	if s.metrics != nil {
		s.metrics.ObserveCheckout(checkoutOutcome(err), time.Since(start))
	}
	if err != nil {
		return nil, err
	}

	s.invalidateAfterCommit(ctx, order)
	return order, nil
}

func (s *service) createOrder(ctx context.Context, actingUserID uuid.UUID, input CreateOrderInput) (*models.Order, error) {
	if actingUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid checkout input")
	}

	var created *models.Order
	err := s.tx.WithTxTimeout(ctx, s.txTimeout, func(tx *gorm.DB) error {
		cartRepo := s.cartRepo.WithTx(tx)
		ordersRepo := s.ordersRepo.WithTx(tx)
		productRepo := s.productRepo.WithTx(tx)
		addressRepo := s.addressRepo.WithTx(tx)

		userCart, err := cartRepo.FindByUserID(ctx, actingUserID)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
			}
			return err
		}
		if len(userCart.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}

		products, err := s.loadProducts(ctx, productRepo, userCart.Items)
		if err != nil {
			return err
		}
		if err := validateAvailability(userCart.Items, products); err != nil {
			return err
		}

		shipping, err := addressRepo.FindByIDAndOwner(ctx, input.ShippingAddressID, actingUserID)
		if err != nil {
			return err
		}
		billingID := shipping.ID
		if input.BillingAddressID != nil {
			billing, err := addressRepo.FindByIDAndOwner(ctx, *input.BillingAddressID, actingUserID)
			if err != nil {
				return err
			}
			billingID = billing.ID
		}

		subtotal := userCart.SubtotalCents()
		discount := input.DiscountCents
		if discount > subtotal {
			discount = subtotal
		}
		tax, shippingCost, err := s.pricing.Quote(ctx, subtotal)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "pricing quote")
		}
		total := subtotal + tax + shippingCost - discount

		items := make([]models.OrderItem, 0, len(userCart.Items))
		for _, line := range userCart.Items {
			catalog := products[line.ProductID]
			productID := line.ProductID
			items = append(items, models.OrderItem{
				ID:              uuid.New(),
				ProductID:       &productID,
				ProductName:     catalog.Name,
				ProductSKU:      catalog.SKU,
				Quantity:        line.Quantity,
				UnitPriceCents:  line.UnitPriceCents,
				TotalPriceCents: line.UnitPriceCents * line.Quantity,
			})

			if err := s.reserver.Reserve(ctx, tx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		orderNumber, err := s.uniqueOrderNumber(ctx, ordersRepo)
		if err != nil {
			return err
		}

		order := &models.Order{
			ID:                uuid.New(),
			OrderNumber:       orderNumber,
			UserID:            actingUserID,
			Status:            enums.OrderStatusPending,
			PaymentStatus:     enums.PaymentStatusPending,
			SubtotalCents:     subtotal,
			TaxCents:          tax,
			ShippingCents:     shippingCost,
			DiscountCents:     discount,
			TotalCents:        total,
			ShippingAddressID: shipping.ID,
			BillingAddressID:  billingID,
			Items:             items,
		}
		if created, err = ordersRepo.Create(ctx, order); err != nil {
			return err
		}

		if err := cartRepo.DeleteItems(ctx, userCart.ID); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   created.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: actingUserID},
			Data: OrderCreatedEvent{
				OrderID:     created.ID,
				OrderNumber: created.OrderNumber,
				UserID:      actingUserID,
				TotalCents:  created.TotalCents,
				ItemCount:   len(created.Items),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) loadProducts(ctx context.Context, repo *product.Repository, lines []models.CartItem) (map[uuid.UUID]models.Product, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	rows, err := repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	products := make(map[uuid.UUID]models.Product, len(rows))
	for _, row := range rows {
		products[row.ID] = row
	}
	return products, nil
}

// validateAvailability fails fast on the first missing, inactive, or
// short-stocked line, naming the product and the shortfall.
func validateAvailability(lines []models.CartItem, products map[uuid.UUID]models.Product) error {
	for _, line := range lines {
		catalog, ok := products[line.ProductID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound,
				fmt.Sprintf("product %s no longer exists", line.ProductID))
		}
		if !catalog.IsActive {
			return pkgerrors.New(pkgerrors.CodeUnavailable,
				fmt.Sprintf("product %s is not available", catalog.Name))
		}
		if catalog.StockQuantity < line.Quantity {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock,
				fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
					catalog.Name, line.Quantity, catalog.StockQuantity)).
				WithDetails(pkgerrors.StockShortfall{
					ProductID: catalog.ID.String(),
					Requested: line.Quantity,
					Available: catalog.StockQuantity,
				})
		}
	}
	return nil
}

// uniqueOrderNumber probes the unique index before inserting; the random
// suffix makes more than one round rare.
func (s *service) uniqueOrderNumber(ctx context.Context, repo *orders.Repository) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		candidate := orders.NewOrderNumber(s.now())
		_, err := repo.FindByOrderNumber(ctx, candidate)
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeInternal, "could not allocate order number")
}

// invalidateAfterCommit evicts every cache the committed checkout staled:
// the reserved products (fan-out covers search and listings), the user's
// cart, and the order plus the user's history pages. Failures are logged,
// never surfaced; the order is already committed.
func (s *service) invalidateAfterCommit(ctx context.Context, order *models.Order) {
	productIDs := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		if item.ProductID != nil {
			productIDs = append(productIDs, item.ProductID.String())
		}
	}
	if len(productIDs) > 0 {
		if err := s.cache.Invalidate(ctx, cache.NamespaceProducts, productIDs...); err != nil {
			s.logg.Error(ctx, "product cache invalidation failed", err)
		}
	}
	if err := s.cache.Invalidate(ctx, cache.NamespaceCarts, order.UserID.String()); err != nil {
		s.logg.Error(ctx, "cart cache invalidation failed", err)
	}
	if err := s.cache.Invalidate(ctx, cache.NamespaceOrders, order.ID.String()); err != nil {
		s.logg.Error(ctx, "order cache invalidation failed", err)
	}
	if err := s.cache.InvalidateByPattern(ctx, cache.NamespaceOrders, "user-"+order.UserID.String()+":*"); err != nil {
		s.logg.Error(ctx, "order list cache invalidation failed", err)
	}
}

func checkoutOutcome(err error) string {
	if err == nil {
		return "success"
	}
	if typed := pkgerrors.As(err); typed != nil {
		return strings.ToLower(string(typed.Code()))
	}
	return "error"
}
