package checkout

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rfigueroa/shopworks-backend/internal/addresses"
	"github.com/rfigueroa/shopworks-backend/internal/cart"
	"github.com/rfigueroa/shopworks-backend/internal/inventory"
	"github.com/rfigueroa/shopworks-backend/internal/orders"
	product "github.com/rfigueroa/shopworks-backend/internal/products"
	"github.com/rfigueroa/shopworks-backend/pkg/cache"
	"github.com/rfigueroa/shopworks-backend/pkg/db/models"
	"github.com/rfigueroa/shopworks-backend/pkg/enums"
	pkgerrors "github.com/rfigueroa/shopworks-backend/pkg/errors"
	"github.com/rfigueroa/shopworks-backend/pkg/logger"
	"github.com/rfigueroa/shopworks-backend/pkg/outbox"
)

func openCheckoutTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:checkout_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	ddl := []string{`
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  category_id TEXT,
  sku TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  description TEXT,
  tags TEXT,
  price_cents INTEGER NOT NULL,
  sale_price_cents INTEGER,
  stock_quantity INTEGER NOT NULL DEFAULT 0,
  min_stock_level INTEGER NOT NULL DEFAULT 0,
  max_stock_level INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS carts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (cart_id, product_id)
);`, `
CREATE TABLE IF NOT EXISTS addresses (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  line1 TEXT NOT NULL,
  line2 TEXT,
  city TEXT NOT NULL,
  state TEXT NOT NULL,
  postal_code TEXT NOT NULL,
  country TEXT NOT NULL DEFAULT 'US',
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_status TEXT NOT NULL DEFAULT 'pending',
  subtotal_cents INTEGER NOT NULL,
  tax_cents INTEGER NOT NULL DEFAULT 0,
  shipping_cents INTEGER NOT NULL DEFAULT 0,
  discount_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  shipping_address_id TEXT NOT NULL,
  billing_address_id TEXT NOT NULL,
  estimated_delivery DATETIME,
  delivered_at DATETIME,
  cancelled_at DATETIME,
  notes TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT,
  product_name TEXT NOT NULL,
  product_sku TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  total_price_cents INTEGER NOT NULL,
  created_at DATETIME
);`}
	for _, stmt := range ddl {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create test schema: %v", err)
		}
	}
	return conn
}

type timeoutTxRunner struct {
	db *gorm.DB
}

func (r timeoutTxRunner) WithTxTimeout(ctx context.Context, timeout time.Duration, fn func(tx *gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx)
	})
}

type recordingEmitter struct {
	events []outbox.DomainEvent
	fail   bool
}

func (e *recordingEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if e.fail {
		return pkgerrors.New(pkgerrors.CodeDependency, "outbox write failed")
	}
	e.events = append(e.events, event)
	return nil
}

type recordingCache struct {
	invalidated []string
	patterns    []string
}

func (c *recordingCache) Invalidate(ctx context.Context, ns cache.Namespace, ids ...string) error {
	for _, id := range ids {
		c.invalidated = append(c.invalidated, string(ns)+"/"+id)
	}
	return nil
}

func (c *recordingCache) InvalidateByPattern(ctx context.Context, ns cache.Namespace, pattern string) error {
	c.patterns = append(c.patterns, string(ns)+"/"+pattern)
	return nil
}

type recordingMetrics struct {
	outcomes []string
}

func (m *recordingMetrics) ObserveCheckout(outcome string, elapsed time.Duration) {
	m.outcomes = append(m.outcomes, outcome)
}

type staticPricing struct {
	tax      int
	shipping int
}

func (p staticPricing) Quote(context.Context, int) (int, int, error) {
	return p.tax, p.shipping, nil
}

type checkoutFixture struct {
	svc     Service
	conn    *gorm.DB
	emitter *recordingEmitter
	cache   *recordingCache
	metrics *recordingMetrics
}

func newCheckoutFixture(t *testing.T, pricing Pricing) *checkoutFixture {
	t.Helper()

	conn := openCheckoutTestDB(t)
	emitter := &recordingEmitter{}
	entityCache := &recordingCache{}
	metrics := &recordingMetrics{}
	logg := logger.New(logger.Options{ServiceName: "checkout-test", Output: io.Discard})

	svc, err := NewService(
		timeoutTxRunner{db: conn},
		cart.NewRepository(conn),
		orders.NewRepository(conn),
		product.NewRepository(conn),
		addresses.NewRepository(conn),
		inventory.NewLedger(),
		pricing,
		emitter,
		entityCache,
		metrics,
		logg,
		5*time.Second,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &checkoutFixture{svc: svc, conn: conn, emitter: emitter, cache: entityCache, metrics: metrics}
}

func seedCheckoutProduct(t *testing.T, conn *gorm.DB, name string, priceCents, stock int, active bool) *models.Product {
	t.Helper()
	row := &models.Product{
		ID:            uuid.New(),
		SKU:           "SKU-" + uuid.NewString(),
		Name:          name,
		PriceCents:    priceCents,
		StockQuantity: stock,
		IsActive:      active,
	}
	if err := conn.Create(row).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return row
}

func seedAddress(t *testing.T, conn *gorm.DB, userID uuid.UUID) *models.Address {
	t.Helper()
	row := &models.Address{
		ID:         uuid.New(),
		UserID:     userID,
		Line1:      "1 Main St",
		City:       "Tulsa",
		State:      "OK",
		PostalCode: "74104",
		Country:    "US",
	}
	if err := conn.Create(row).Error; err != nil {
		t.Fatalf("seed address: %v", err)
	}
	return row
}

func seedCartWithItems(t *testing.T, conn *gorm.DB, userID uuid.UUID, lines map[uuid.UUID]struct{ qty, unitPrice int }) *models.Cart {
	t.Helper()
	row := &models.Cart{ID: uuid.New(), UserID: userID}
	if err := conn.Create(row).Error; err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	for productID, line := range lines {
		item := &models.CartItem{
			ID:             uuid.New(),
			CartID:         row.ID,
			ProductID:      productID,
			Quantity:       line.qty,
			UnitPriceCents: line.unitPrice,
		}
		if err := conn.Create(item).Error; err != nil {
			t.Fatalf("seed cart item: %v", err)
		}
	}
	return row
}

func stockOf(t *testing.T, conn *gorm.DB, productID uuid.UUID) int {
	t.Helper()
	var row models.Product
	if err := conn.First(&row, "id = ?", productID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return row.StockQuantity
}

func cartItemCount(t *testing.T, conn *gorm.DB, cartID uuid.UUID) int64 {
	t.Helper()
	var count int64
	if err := conn.Model(&models.CartItem{}).Where("cart_id = ?", cartID).Count(&count).Error; err != nil {
		t.Fatalf("count cart items: %v", err)
	}
	return count
}

func orderCount(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := conn.Model(&models.Order{}).Count(&count).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	return count
}

func TestCreateOrderHappyPath(t *testing.T) {
	fx := newCheckoutFixture(t, staticPricing{tax: 300, shipping: 500})
	userID := uuid.New()

	shoes := seedCheckoutProduct(t, fx.conn, "Trail Runner", 5000, 10, true)
	socks := seedCheckoutProduct(t, fx.conn, "Wool Socks", 1200, 4, true)
	address := seedAddress(t, fx.conn, userID)
	userCart := seedCartWithItems(t, fx.conn, userID, map[uuid.UUID]struct{ qty, unitPrice int }{
		shoes.ID: {qty: 2, unitPrice: 4500},
		socks.ID: {qty: 3, unitPrice: 1200},
	})

	order, err := fx.svc.CreateOrder(context.Background(), userID, CreateOrderInput{
		ShippingAddressID: address.ID,
		DiscountCents:     600,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	// subtotal 2*4500 + 3*1200 = 12600; total = 12600 + 300 + 500 - 600.
	if order.SubtotalCents != 12600 {
		t.Fatalf("expected subtotal 12600, got %d", order.SubtotalCents)
	}
	if order.TotalCents != order.SubtotalCents+order.TaxCents+order.ShippingCents-order.DiscountCents {
		t.Fatalf("total invariant broken: %+v", order)
	}
	if order.TotalCents != 12800 {
		t.Fatalf("expected total 12800, got %d", order.TotalCents)
	}
	if order.Status != enums.OrderStatusPending || order.PaymentStatus != enums.PaymentStatusPending {
		t.Fatalf("expected pending/pending, got %s/%s", order.Status, order.PaymentStatus)
	}
	if order.BillingAddressID != address.ID {
		t.Fatal("expected billing to default to shipping")
	}
	if order.OrderNumber == "" {
		t.Fatal("expected order number")
	}

	if len(order.Items) != 2 {
		t.Fatalf("expected 2 frozen items, got %d", len(order.Items))
	}
	for _, item := range order.Items {
		if item.ProductName == "" || item.ProductSKU == "" {
			t.Fatalf("expected frozen name and sku, got %+v", item)
		}
		if item.TotalPriceCents != item.UnitPriceCents*item.Quantity {
			t.Fatalf("line total broken: %+v", item)
		}
	}

	if got := stockOf(t, fx.conn, shoes.ID); got != 8 {
		t.Fatalf("expected shoes stock 8, got %d", got)
	}
	if got := stockOf(t, fx.conn, socks.ID); got != 1 {
		t.Fatalf("expected socks stock 1, got %d", got)
	}
	if got := cartItemCount(t, fx.conn, userCart.ID); got != 0 {
		t.Fatalf("expected cleared cart, got %d items", got)
	}

	if len(fx.emitter.events) != 1 || fx.emitter.events[0].EventType != enums.EventOrderCreated {
		t.Fatalf("expected order_created event, got %+v", fx.emitter.events)
	}
	if len(fx.metrics.outcomes) != 1 || fx.metrics.outcomes[0] != "success" {
		t.Fatalf("expected success outcome, got %v", fx.metrics.outcomes)
	}

	wantCart := string(cache.NamespaceCarts) + "/" + userID.String()
	found := false
	for _, key := range fx.cache.invalidated {
		if key == wantCart {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected cart invalidation, got %v", fx.cache.invalidated)
	}
}

func TestCreateOrderEmptyCart(t *testing.T) {
	fx := newCheckoutFixture(t, nil)
	userID := uuid.New()
	address := seedAddress(t, fx.conn, userID)
	seedCartWithItems(t, fx.conn, userID, nil)

	_, err := fx.svc.CreateOrder(context.Background(), userID, CreateOrderInput{ShippingAddressID: address.ID})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := orderCount(t, fx.conn); got != 0 {
		t.Fatalf("expected no orders, got %d", got)
	}
}

func TestCreateOrderMissingCart(t *testing.T) {
	fx := newCheckoutFixture(t, nil)
	userID := uuid.New()
	address := seedAddress(t, fx.conn, userID)

	_, err := fx.svc.CreateOrder(context.Background(), userID, CreateOrderInput{ShippingAddressID: address.ID})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateOrderInactiveProduct(t *testing.T) {
	fx := newCheckoutFixture(t, nil)
	userID := uuid.New()

	retired := seedCheckoutProduct(t, fx.conn, "Retired", 5000, 10, false)
	address := seedAddress(t, fx.conn, userID)
	seedCartWithItems(t, fx.conn, userID, map[uuid.UUID]struct{ qty, unitPrice int }{
		retired.ID: {qty: 1, unitPrice: 5000},
	})

	_, err := fx.svc.CreateOrder(context.Background(), userID, CreateOrderInput{ShippingAddressID: address.ID})
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if got := stockOf(t, fx.conn, retired.ID); got != 10 {
		t.Fatalf("expected untouched stock, got %d", got)
	}
}

func TestCreateOrderInsufficientStockNamesShortfall(t *testing.T) {
	fx := newCheckoutFixture(t, nil)
	userID := uuid.New()

	scarce := seedCheckoutProduct(t, fx.conn, "Scarce", 5000, 2, true)
	address := seedAddress(t, fx.conn, userID)
	seedCartWithItems(t, fx.conn, userID, map[uuid.UUID]struct{ qty, unitPrice int }{
		scarce.ID: {qty: 3, unitPrice: 5000},
	})

	_, err := fx.svc.CreateOrder(context.Background(), userID, CreateOrderInput{ShippingAddressID: address.ID})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	typed := pkgerrors.As(err)
	shortfall, ok := typed.Details().(pkgerrors.StockShortfall)
	if !ok {
		t.Fatalf("expected StockShortfall details, got %T", typed.Details())
	}
	if shortfall.ProductID != scarce.ID.String() || shortfall.Requested != 3 || shortfall.Available != 2 {
		t.Fatalf("unexpected shortfall %+v", shortfall)
	}

	if got := stockOf(t, fx.conn, scarce.ID); got != 2 {
		t.Fatalf("expected untouched stock, got %d", got)
	}
	if got := orderCount(t, fx.conn); got != 0 {
		t.Fatalf("expected no orders, got %d", got)
	}
	if len(fx.metrics.outcomes) != 1 || fx.metrics.outcomes[0] != "insufficient_stock" {
		t.Fatalf("expected insufficient_stock outcome, got %v", fx.metrics.outcomes)
	}
}

func TestCreateOrderForeignAddressRejected(t *testing.T) {
	fx := newCheckoutFixture(t, nil)
	userID := uuid.New()

	shoes := seedCheckoutProduct(t, fx.conn, "Trail Runner", 5000, 10, true)
	foreign := seedAddress(t, fx.conn, uuid.New())
	seedCartWithItems(t, fx.conn, userID, map[uuid.UUID]struct{ qty, unitPrice int }{
		shoes.ID: {qty: 1, unitPrice: 5000},
	})

	_, err := fx.svc.CreateOrder(context.Background(), userID, CreateOrderInput{ShippingAddressID: foreign.ID})
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for foreign address, got %v", err)
	}
	if got := stockOf(t, fx.conn, shoes.ID); got != 10 {
		t.Fatalf("expected untouched stock, got %d", got)
	}
}

func TestCreateOrderSeparateBillingAddress(t *testing.T) {
	fx := newCheckoutFixture(t, nil)
	userID := uuid.New()

	shoes := seedCheckoutProduct(t, fx.conn, "Trail Runner", 5000, 10, true)
	shipping := seedAddress(t, fx.conn, userID)
	billing := seedAddress(t, fx.conn, userID)
	seedCartWithItems(t, fx.conn, userID, map[uuid.UUID]struct{ qty, unitPrice int }{
		shoes.ID: {qty: 1, unitPrice: 5000},
	})

	order, err := fx.svc.CreateOrder(context.Background(), userID, CreateOrderInput{
		ShippingAddressID: shipping.ID,
		BillingAddressID:  &billing.ID,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ShippingAddressID != shipping.ID || order.BillingAddressID != billing.ID {
		t.Fatalf("unexpected addresses %+v", order)
	}
}

func TestCreateOrderDiscountCappedAtSubtotal(t *testing.T) {
	fx := newCheckoutFixture(t, nil)
	userID := uuid.New()

	shoes := seedCheckoutProduct(t, fx.conn, "Trail Runner", 5000, 10, true)
	address := seedAddress(t, fx.conn, userID)
	seedCartWithItems(t, fx.conn, userID, map[uuid.UUID]struct{ qty, unitPrice int }{
		shoes.ID: {qty: 1, unitPrice: 5000},
	})

	order, err := fx.svc.CreateOrder(context.Background(), userID, CreateOrderInput{
		ShippingAddressID: address.ID,
		DiscountCents:     999999,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.DiscountCents != 5000 || order.TotalCents != 0 {
		t.Fatalf("expected discount capped at subtotal, got %+v", order)
	}
}

func TestCreateOrderRollsBackWhenOutboxFails(t *testing.T) {
	fx := newCheckoutFixture(t, nil)
	fx.emitter.fail = true
	userID := uuid.New()

	shoes := seedCheckoutProduct(t, fx.conn, "Trail Runner", 5000, 10, true)
	address := seedAddress(t, fx.conn, userID)
	userCart := seedCartWithItems(t, fx.conn, userID, map[uuid.UUID]struct{ qty, unitPrice int }{
		shoes.ID: {qty: 2, unitPrice: 5000},
	})

	_, err := fx.svc.CreateOrder(context.Background(), userID, CreateOrderInput{ShippingAddressID: address.ID})
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}

	// All-or-nothing: no order, stock untouched, cart intact.
	if got := orderCount(t, fx.conn); got != 0 {
		t.Fatalf("expected no orders after rollback, got %d", got)
	}
	if got := stockOf(t, fx.conn, shoes.ID); got != 10 {
		t.Fatalf("expected stock restored by rollback, got %d", got)
	}
	if got := cartItemCount(t, fx.conn, userCart.ID); got != 1 {
		t.Fatalf("expected cart intact after rollback, got %d items", got)
	}
	if len(fx.cache.invalidated) != 0 {
		t.Fatalf("expected no cache invalidation on failure, got %v", fx.cache.invalidated)
	}
}

func TestCreateOrderRequiresIdentityAndInput(t *testing.T) {
	fx := newCheckoutFixture(t, nil)

	_, err := fx.svc.CreateOrder(context.Background(), uuid.Nil, CreateOrderInput{ShippingAddressID: uuid.New()})
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	_, err = fx.svc.CreateOrder(context.Background(), uuid.New(), CreateOrderInput{})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing shipping address, got %v", err)
	}
}
