package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

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

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// InventoryReleaser returns reserved stock when an order is cancelled.
type InventoryReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

type entityCache interface {
	GetOrLoad(ctx context.Context, ns cache.Namespace, id string, dest any, loader func(context.Context) (any, error)) error
	Invalidate(ctx context.Context, ns cache.Namespace, ids ...string) error
	InvalidateByPattern(ctx context.Context, ns cache.Namespace, pattern string) error
}

// DeliveryEstimator computes the estimated delivery date stamped when an
// order enters shipped.
type DeliveryEstimator func(now time.Time) time.Time

// DefaultDeliveryEstimate is three days out.
func DefaultDeliveryEstimate(now time.Time) time.Time {
	return now.Add(72 * time.Hour)
}

// Service exposes order reads and state machine transitions.
type Service interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderPage, error)
	TransitionStatus(ctx context.Context, input TransitionInput) (*models.Order, error)
	UpdatePaymentStatus(ctx context.Context, input PaymentTransitionInput) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID, actorUserID uuid.UUID) (*models.Order, error)
	AppendNote(ctx context.Context, orderID uuid.UUID, note string) (*models.Order, error)
}

// TransitionInput carries a requested order status change.
type TransitionInput struct {
	OrderID     uuid.UUID
	Requested   enums.OrderStatus
	ActorUserID uuid.UUID
	ActorRole   string
}

// PaymentTransitionInput carries a requested payment status change.
type PaymentTransitionInput struct {
	OrderID     uuid.UUID
	Requested   enums.PaymentStatus
	ActorUserID uuid.UUID
	ActorRole   string
}

// OrderStatusEvent is the payload emitted on status transitions.
type OrderStatusEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	UserID      uuid.UUID         `json:"user_id"`
	Previous    enums.OrderStatus `json:"previous_status"`
	Status      enums.OrderStatus `json:"status"`
}

// OrderPaymentEvent is the payload emitted on payment transitions.
type OrderPaymentEvent struct {
	OrderID     uuid.UUID           `json:"order_id"`
	OrderNumber string              `json:"order_number"`
	UserID      uuid.UUID           `json:"user_id"`
	Previous    enums.PaymentStatus `json:"previous_payment_status"`
	Status      enums.PaymentStatus `json:"payment_status"`
}

type service struct {
	repo      *Repository
	tx        txRunner
	outbox    outboxPublisher
	inventory InventoryReleaser
	cache     entityCache
	logg      *logger.Logger
	estimate  DeliveryEstimator
	now       func() time.Time
}

// NewService builds an order service with the required dependencies. A nil
// estimator falls back to the three-day default.
func NewService(repo *Repository, tx txRunner, outboxSvc outboxPublisher, inventory InventoryReleaser, entityCache entityCache, logg *logger.Logger, estimate DeliveryEstimator) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory releaser required")
	}
	if entityCache == nil {
		return nil, fmt.Errorf("cache required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if estimate == nil {
		estimate = DefaultDeliveryEstimate
	}
	return &service{
		repo:      repo,
		tx:        tx,
		outbox:    outboxSvc,
		inventory: inventory,
		cache:     entityCache,
		logg:      logg,
		estimate:  estimate,
		now:       time.Now,
	}, nil
}

// GetOrder returns the order with items, served cache-aside.
func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.cache.GetOrLoad(ctx, cache.NamespaceOrders, orderID.String(), &order, func(ctx context.Context) (any, error) {
		return s.repo.FindByID(ctx, orderID)
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByNumber resolves the human-readable order number.
func (s *service) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	return s.repo.FindByOrderNumber(ctx, orderNumber)
}

// ListOrders returns one page of the user's order history, served cache-aside.
func (s *service) ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderPage, error) {
	params = pagination.Normalize(params)

	var page OrderPage
	key := listCacheKey(userID, params)
	err := s.cache.GetOrLoad(ctx, cache.NamespaceOrders, key, &page, func(ctx context.Context) (any, error) {
		return s.repo.ListByUser(ctx, userID, params)
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// TransitionStatus applies one edge of the order status machine together
// with its side effects, transactionally.
func (s *service) TransitionStatus(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		order, err := txRepo.FindByID(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if err := checkStatusTransition(order.Status, input.Requested); err != nil {
			return err
		}

		now := s.now()
		previous := order.Status
		order.Status = input.Requested

		switch input.Requested {
		case enums.OrderStatusShipped:
			estimated := s.estimate(now)
			order.EstimatedDelivery = &estimated
		case enums.OrderStatusDelivered:
			delivered := now
			order.DeliveredAt = &delivered
		case enums.OrderStatusCancelled:
			cancelled := now
			order.CancelledAt = &cancelled
			for _, item := range order.Items {
				if item.ProductID == nil || item.Quantity <= 0 {
					continue
				}
				if err := s.inventory.Release(ctx, tx, *item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
		}

		if updated, err = txRepo.Save(ctx, order); err != nil {
			return err
		}

		eventType := enums.EventOrderStatusChanged
		if input.Requested == enums.OrderStatusCancelled {
			eventType = enums.EventOrderCancelled
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         buildActor(input.ActorUserID, input.ActorRole),
			Data: OrderStatusEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				UserID:      order.UserID,
				Previous:    previous,
				Status:      order.Status,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateOrder(ctx, updated)
	return updated, nil
}

// UpdatePaymentStatus applies one edge of the payment status machine. The
// payment axis never touches order status.
func (s *service) UpdatePaymentStatus(ctx context.Context, input PaymentTransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		order, err := txRepo.FindByID(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if err := checkPaymentTransition(order.PaymentStatus, input.Requested); err != nil {
			return err
		}

		previous := order.PaymentStatus
		order.PaymentStatus = input.Requested
		if updated, err = txRepo.Save(ctx, order); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         buildActor(input.ActorUserID, input.ActorRole),
			Data: OrderPaymentEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				UserID:      order.UserID,
				Previous:    previous,
				Status:      order.PaymentStatus,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateOrder(ctx, updated)
	return updated, nil
}

// CancelOrder is the whole-order cancellation; stock restoration rides the
// cancelled edge of TransitionStatus.
func (s *service) CancelOrder(ctx context.Context, orderID, actorUserID uuid.UUID) (*models.Order, error) {
	return s.TransitionStatus(ctx, TransitionInput{
		OrderID:     orderID,
		Requested:   enums.OrderStatusCancelled,
		ActorUserID: actorUserID,
	})
}

// AppendNote appends to the order's free-text note log. Existing notes are
// never rewritten.
func (s *service) AppendNote(ctx context.Context, orderID uuid.UUID, note string) (*models.Order, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "note required")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		order, err := txRepo.FindByID(ctx, orderID)
		if err != nil {
			return err
		}

		stamped := fmt.Sprintf("[%s] %s", s.now().UTC().Format(time.RFC3339), note)
		if order.Notes == nil || *order.Notes == "" {
			order.Notes = &stamped
		} else {
			joined := *order.Notes + "\n" + stamped
			order.Notes = &joined
		}

		updated, err = txRepo.Save(ctx, order)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidateOrder(ctx, updated)
	return updated, nil
}

// invalidateOrder evicts the order key and every history page of the owning
// user. Failures are logged, never surfaced.
func (s *service) invalidateOrder(ctx context.Context, order *models.Order) {
	if order == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cache.NamespaceOrders, order.ID.String()); err != nil {
		s.logg.Error(ctx, "order cache invalidation failed", err)
	}
	if err := s.cache.InvalidateByPattern(ctx, cache.NamespaceOrders, "user-"+order.UserID.String()+":*"); err != nil {
		s.logg.Error(ctx, "order list cache invalidation failed", err)
	}
}

func listCacheKey(userID uuid.UUID, params pagination.Params) string {
	return "user-" + userID.String() + ":" + params.CacheKey()
}

func buildActor(userID uuid.UUID, role string) *outbox.ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: userID, Role: role}
}
