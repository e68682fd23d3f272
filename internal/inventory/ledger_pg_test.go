package inventory

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/rfigueroa/shopworks-backend/pkg/db/models"
	pkgerrors "github.com/rfigueroa/shopworks-backend/pkg/errors"
)

// Contention behavior depends on real row locking, so these tests only run
// against Postgres with the migrated schema in place.
func openPostgresTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("SHOPWORKS_TEST_DB_DSN")
	if dsn == "" {
		t.Skip("SHOPWORKS_TEST_DB_DSN is not set")
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open postgres test db: %v", err)
	}
	return conn
}

func seedPostgresProduct(t *testing.T, conn *gorm.DB, stock int) uuid.UUID {
	t.Helper()
	product := models.Product{
		ID:            uuid.New(),
		SKU:           "sku-" + uuid.NewString(),
		Name:          "contention test product",
		PriceCents:    1000,
		StockQuantity: stock,
		IsActive:      true,
	}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	t.Cleanup(func() {
		conn.Where("id = ?", product.ID).Delete(&models.Product{})
	})
	return product.ID
}

func TestReserveConcurrentLastUnitExactlyOneWins(t *testing.T) {
	conn := openPostgresTestDB(t)
	ledger := NewLedger()
	productID := seedPostgresProduct(t, conn, 1)

	// Two transactions race on the final unit. The guarded UPDATE serializes
	// them on the row lock; the loser re-evaluates the predicate against the
	// committed stock and comes up short.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- conn.Transaction(func(tx *gorm.DB) error {
				return ledger.Reserve(context.Background(), tx, productID, 1)
			})
		}()
	}
	wg.Wait()
	close(errs)

	succeeded, short := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock):
			short++
			typed := pkgerrors.As(err)
			shortfall, ok := typed.Details().(pkgerrors.StockShortfall)
			if !ok {
				t.Fatalf("expected shortfall details, got %T", typed.Details())
			}
			if shortfall.Requested != 1 || shortfall.Available != 0 {
				t.Fatalf("unexpected shortfall %+v", shortfall)
			}
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || short != 1 {
		t.Fatalf("expected exactly one winner and one shortfall, got %d / %d", succeeded, short)
	}

	var product models.Product
	if err := conn.First(&product, "id = ?", productID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if product.StockQuantity != 0 {
		t.Fatalf("expected stock 0 after the race, got %d", product.StockQuantity)
	}
}

func TestReserveConcurrentNeverOversells(t *testing.T) {
	conn := openPostgresTestDB(t)
	ledger := NewLedger()

	const stock = 3
	const contenders = 5
	productID := seedPostgresProduct(t, conn, stock)

	errs := make(chan error, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- conn.Transaction(func(tx *gorm.DB) error {
				return ledger.Reserve(context.Background(), tx, productID, 1)
			})
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != stock {
		t.Fatalf("expected exactly %d reservations to win, got %d", stock, succeeded)
	}

	var product models.Product
	if err := conn.First(&product, "id = ?", productID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if product.StockQuantity != 0 {
		t.Fatalf("expected stock exactly depleted, got %d", product.StockQuantity)
	}
}
