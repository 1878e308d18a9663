package rfm

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func purchase(customer int64, invoice string, qty int64, price float64, ts time.Time) Purchase {
	return Purchase{CustomerID: customer, Invoice: invoice, Quantity: qty, UnitPrice: price, Timestamp: ts}
}

func TestAggregateEmpty(t *testing.T) {
	_, _, err := Aggregate(nil)
	assert.ErrorIs(t, err, ErrNoValidPurchases)
}

func TestAggregateReferenceDate(t *testing.T) {
	last := time.Date(2011, 12, 9, 12, 50, 0, 0, time.UTC)
	rows, reference, err := Aggregate([]Purchase{
		purchase(17850, "536365", 6, 2.55, last.Add(-24*time.Hour)),
		purchase(17850, "536366", 2, 1.85, last),
	})
	require.NoError(t, err)

	assert.Equal(t, last.Add(48*time.Hour), reference)
	require.Len(t, rows, 1)
	// Last purchase is the global max, so Recency is exactly the offset
	assert.Equal(t, 2, rows[0].Recency)
}

func TestAggregateSingleCustomer(t *testing.T) {
	base := time.Date(2011, 6, 1, 10, 0, 0, 0, time.UTC)
	rows, _, err := Aggregate([]Purchase{
		purchase(14606, "549222", 4, 4.25, base),
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, int64(14606), row.CustomerID)
	assert.Equal(t, 1, row.Frequency)
	assert.Equal(t, 2, row.Recency)
	assert.InDelta(t, 17.0, row.Monetary, 1e-9)
}

func TestAggregateDistinctInvoices(t *testing.T) {
	base := time.Date(2011, 6, 1, 10, 0, 0, 0, time.UTC)
	rows, _, err := Aggregate([]Purchase{
		// Two lines on the same invoice count once for Frequency
		purchase(12583, "536370", 24, 3.75, base),
		purchase(12583, "536370", 12, 0.85, base),
		purchase(12583, "537000", 6, 4.95, base.Add(72 * time.Hour)),
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, 2, rows[0].Frequency)
	assert.InDelta(t, 24*3.75+12*0.85+6*4.95, rows[0].Monetary, 1e-9)
}

func TestAggregateRecencyFloor(t *testing.T) {
	// Recency is never below the 2-day offset, for any customer
	base := time.Date(2011, 6, 1, 10, 0, 0, 0, time.UTC)
	var purchases []Purchase
	for i := int64(0); i < 5; i++ {
		purchases = append(purchases, purchase(1000+i, fmt.Sprintf("54%d", i), 1, 10, base.Add(-time.Duration(i*30)*24*time.Hour)))
	}

	rows, _, err := Aggregate(purchases)
	require.NoError(t, err)
	for _, row := range rows {
		assert.GreaterOrEqual(t, row.Recency, 2, "customer %d", row.CustomerID)
	}
}

func TestAggregateSortedByCustomerID(t *testing.T) {
	base := time.Date(2011, 6, 1, 10, 0, 0, 0, time.UTC)
	rows, _, err := Aggregate([]Purchase{
		purchase(17850, "A", 1, 10, base),
		purchase(12583, "B", 1, 10, base),
		purchase(14606, "C", 1, 10, base),
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.True(t, rows[0].CustomerID < rows[1].CustomerID && rows[1].CustomerID < rows[2].CustomerID)
}

func TestAggregateReferenceCustomer(t *testing.T) {
	// Customer 17850: 33 distinct invoices totaling 5288.63, last purchase
	// 2 days before the reference date.
	last := time.Date(2011, 12, 9, 12, 0, 0, 0, time.UTC)
	var purchases []Purchase
	total := 0.0
	for i := 0; i < 32; i++ {
		p := purchase(17850, fmt.Sprintf("5363%02d", i), 1, 160.0, last.Add(-time.Duration(i+1)*24*time.Hour))
		total += p.LineTotal()
		purchases = append(purchases, p)
	}
	// Final invoice tops the total up to exactly 5288.63
	remainder := 5288.63 - total
	purchases = append(purchases, purchase(17850, "536399", 1, remainder, last))

	rows, _, err := Aggregate(purchases)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, 2, row.Recency)
	assert.Equal(t, 33, row.Frequency)
	assert.True(t, math.Abs(row.Monetary-5288.63) < 1e-6, "Monetary = %f", row.Monetary)
}

func TestAggregateDropsNonPositiveMonetary(t *testing.T) {
	// A Monetary <= 0 row cannot come out of Clean, but Aggregate enforces
	// the invariant on its own input regardless.
	base := time.Date(2011, 6, 1, 10, 0, 0, 0, time.UTC)
	rows, _, err := Aggregate([]Purchase{
		purchase(17850, "A", 1, 10, base),
		{CustomerID: 9999, Invoice: "B", Quantity: 1, UnitPrice: -5, Timestamp: base},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(17850), rows[0].CustomerID)
}
