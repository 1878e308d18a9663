package rfm

import (
	"errors"
	"sort"
	"time"
)

// ErrNoValidPurchases means the cleaned dataset is empty. Everything
// downstream depends on a non-empty feature table, so callers must treat
// this as fatal, not as an empty result.
var ErrNoValidPurchases = errors.New("no valid purchase events in dataset")

// Aggregate reduces valid purchases to one feature row per customer:
// Recency in whole days from the reference date, Frequency as distinct
// invoice count, Monetary as summed line totals. Customers whose aggregate
// Monetary is not strictly positive are dropped. Rows are sorted by
// customer id for reproducibility.
func Aggregate(purchases []Purchase) ([]FeatureRow, time.Time, error) {
	if len(purchases) == 0 {
		return nil, time.Time{}, ErrNoValidPurchases
	}

	var maxTS time.Time
	for _, p := range purchases {
		if p.Timestamp.After(maxTS) {
			maxTS = p.Timestamp
		}
	}
	reference := maxTS.Add(ReferenceDateOffset)

	type group struct {
		last     time.Time
		invoices map[string]struct{}
		monetary float64
	}
	groups := make(map[int64]*group)
	for _, p := range purchases {
		g, ok := groups[p.CustomerID]
		if !ok {
			g = &group{invoices: make(map[string]struct{})}
			groups[p.CustomerID] = g
		}
		if p.Timestamp.After(g.last) {
			g.last = p.Timestamp
		}
		g.invoices[p.Invoice] = struct{}{}
		g.monetary += p.LineTotal()
	}

	rows := make([]FeatureRow, 0, len(groups))
	for id, g := range groups {
		if g.monetary <= 0 {
			continue
		}
		rows = append(rows, FeatureRow{
			CustomerID: id,
			Recency:    int(reference.Sub(g.last).Hours() / 24),
			Frequency:  len(g.invoices),
			Monetary:   g.monetary,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CustomerID < rows[j].CustomerID })

	return rows, reference, nil
}
