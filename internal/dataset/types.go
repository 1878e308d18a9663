// Package dataset loads the raw transaction history the segmentation
// pipeline is built from. Sources are read-only: the dataset is fetched
// once at startup and never mutated.
package dataset

import (
	"context"
	"time"
)

// Transaction is one raw row of the source dataset. CustomerID 0 means the
// row has no customer attached (guest checkout, data entry gap).
type Transaction struct {
	CustomerID int64
	Invoice    string
	Quantity   int64
	UnitPrice  float64
	Timestamp  time.Time
}

// HasCustomer reports whether the row carries a customer identifier.
func (t Transaction) HasCustomer() bool {
	return t.CustomerID != 0
}

// Source provides the full raw transaction history.
type Source interface {
	Load(ctx context.Context) ([]Transaction, error)
}
