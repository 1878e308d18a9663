// Package rfm turns raw transaction rows into a per-customer
// Recency/Frequency/Monetary feature table.
package rfm

import "time"

// CancellationMarker flags cancelled invoices. An invoice identifier
// containing this character is a cancellation, not a purchase.
const CancellationMarker = "C"

// ReferenceDateOffset is added to the newest observed transaction to form
// the analysis reference date. Two days instead of one so a purchase on the
// very last observed day yields Recency 2, never a degenerate zero tie.
const ReferenceDateOffset = 48 * time.Hour

// Purchase is a validated purchase event: known customer, non-cancelled
// invoice, positive quantity and price.
type Purchase struct {
	CustomerID int64
	Invoice    string
	Quantity   int64
	UnitPrice  float64
	Timestamp  time.Time
}

// LineTotal is quantity times unit price. Always positive for a Purchase.
func (p Purchase) LineTotal() float64 {
	return float64(p.Quantity) * p.UnitPrice
}

// FeatureRow is one customer's aggregated RFM features.
type FeatureRow struct {
	CustomerID int64   `json:"customer_id"`
	Recency    int     `json:"recency"`
	Frequency  int     `json:"frequency"`
	Monetary   float64 `json:"monetary"`
}
