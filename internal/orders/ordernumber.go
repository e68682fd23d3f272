package orders

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewOrderNumber builds a human-readable order number, e.g.
// ORD-20260831-3fa2c1. The random suffix keeps collisions rare; the unique
// index on order_number catches the rest and the caller retries.
func NewOrderNumber(now time.Time) string {
	suffix := make([]byte, 3)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), hex.EncodeToString(suffix))
}
