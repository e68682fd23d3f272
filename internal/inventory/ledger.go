package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/rfigueroa/shopworks-backend/pkg/db"
	"github.com/rfigueroa/shopworks-backend/pkg/db/models"
	pkgerrors "github.com/rfigueroa/shopworks-backend/pkg/errors"
)

// Ledger performs the only stock mutations tied to order flow. Reserve and
// Release run inside the caller's transaction; they are not a free-standing
// stock-edit API.
type Ledger struct{}

// NewLedger returns the stock ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Reserve decrements a product's stock by qty as one guarded statement. The
// predicate `stock_quantity >= qty` makes concurrent reservations against the
// same row resolve at the storage layer: the row lock serializes them and the
// loser sees zero rows affected.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock reservation")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation quantity must be positive")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE products
		SET stock_quantity = stock_quantity - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND stock_quantity >= ?
	`, qty, productID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// Zero rows: either the product is gone or stock ran short. Re-read for
	// the error detail; the row is already locked by this transaction's scan.
	var product models.Product
	err := tx.WithContext(ctx).
		Select("id", "stock_quantity").
		Where("id = ?", productID).
		First(&product).Error
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product stock")
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
		WithDetails(pkgerrors.StockShortfall{
			ProductID: productID.String(),
			Requested: qty,
			Available: product.StockQuantity,
		})
}

// Release returns qty units to a product's stock. No upper-bound check beyond
// sanity; it is only invoked to undo reservations.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock release")
	}
	if qty <= 0 {
		return nil
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE products
		SET stock_quantity = stock_quantity + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, qty, productID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return nil
}
