package rfm

import (
	"strings"

	"github.com/ignite/rfm-dashboard/internal/dataset"
)

// Clean filters raw transactions down to valid purchase events. A row
// survives only when it has a customer, a non-cancelled invoice, and
// strictly positive quantity and price. Pure filter, no side effects.
func Clean(txns []dataset.Transaction) []Purchase {
	purchases := make([]Purchase, 0, len(txns))
	for _, txn := range txns {
		if !txn.HasCustomer() {
			continue
		}
		if strings.Contains(txn.Invoice, CancellationMarker) {
			continue
		}
		if txn.Quantity <= 0 || txn.UnitPrice <= 0 {
			continue
		}
		purchases = append(purchases, Purchase{
			CustomerID: txn.CustomerID,
			Invoice:    txn.Invoice,
			Quantity:   txn.Quantity,
			UnitPrice:  txn.UnitPrice,
			Timestamp:  txn.Timestamp,
		})
	}
	return purchases
}
