package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/rfm-dashboard/internal/dataset"
	"github.com/ignite/rfm-dashboard/internal/rfm"
	"github.com/ignite/rfm-dashboard/internal/store"
)

// testTransactions builds three clearly separated spending tiers:
// low spenders (~50 total, stale), mid (~1000, recent-ish), and
// high (~20000, fresh).
func testTransactions() []dataset.Transaction {
	last := time.Date(2011, 12, 9, 12, 0, 0, 0, time.UTC)
	var txns []dataset.Transaction

	add := func(id int64, invoices int, qty int64, price float64, daysAgo int) {
		for i := 0; i < invoices; i++ {
			txns = append(txns, dataset.Transaction{
				CustomerID: id,
				Invoice:    fmt.Sprintf("%d-%d", id, i),
				Quantity:   qty,
				UnitPrice:  price,
				Timestamp:  last.Add(-time.Duration(daysAgo+i) * 24 * time.Hour),
			})
		}
	}

	add(101, 1, 1, 48, 88)
	add(102, 1, 1, 52, 86)
	add(103, 1, 1, 50, 90)
	add(201, 5, 4, 49, 18)
	add(202, 5, 4, 51, 20)
	add(203, 5, 4, 50, 22)
	add(301, 20, 10, 99, 0)
	add(302, 20, 10, 101, 1)
	add(303, 20, 10, 100, 2)

	return txns
}

func newTestSession(t *testing.T, opts Options) (*Session, *store.Incremental) {
	t.Helper()
	incr := store.New(filepath.Join(t.TempDir(), "new_customers.csv"))
	if opts.MinK == 0 {
		opts.MinK = 2
	}
	if opts.MaxK == 0 {
		opts.MaxK = 6
	}
	s, err := New(testTransactions(), incr, opts)
	require.NoError(t, err)
	return s, incr
}

func TestNewRejectsEmptyDataset(t *testing.T) {
	incr := store.New(filepath.Join(t.TempDir(), "s.csv"))
	_, err := New(nil, incr, Options{})
	assert.ErrorIs(t, err, rfm.ErrNoValidPurchases)

	// A dataset of only invalid rows is just as fatal
	_, err = New([]dataset.Transaction{
		{CustomerID: 0, Invoice: "1", Quantity: 1, UnitPrice: 1, Timestamp: time.Now()},
	}, incr, Options{})
	assert.ErrorIs(t, err, rfm.ErrNoValidPurchases)
}

func TestFitLabelsTiersByMonetary(t *testing.T) {
	s, _ := newTestSession(t, Options{})

	snap, err := s.Fit(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, snap.Rows, 9)
	assert.Equal(t, 3, snap.K)
	assert.NotEmpty(t, snap.ID)

	bySegment := make(map[string][]int64)
	for _, row := range snap.Rows {
		bySegment[row.Segment] = append(bySegment[row.Segment], row.CustomerID)
	}
	assert.ElementsMatch(t, []int64{101, 102, 103}, bySegment["At-Risk/Lost"])
	assert.ElementsMatch(t, []int64{201, 202, 203}, bySegment["Standard"])
	assert.ElementsMatch(t, []int64{301, 302, 303}, bySegment["VIP (Champion)"])
}

func TestFitDeterministic(t *testing.T) {
	a, _ := newTestSession(t, Options{})
	b, _ := newTestSession(t, Options{})

	snapA, err := a.Fit(context.Background(), 3)
	require.NoError(t, err)
	snapB, err := b.Fit(context.Background(), 3)
	require.NoError(t, err)

	require.Len(t, snapB.Rows, len(snapA.Rows))
	for i := range snapA.Rows {
		assert.Equal(t, snapA.Rows[i].Cluster, snapB.Rows[i].Cluster, "row %d", i)
		assert.Equal(t, snapA.Rows[i].Segment, snapB.Rows[i].Segment, "row %d", i)
	}
}

func TestFitRejectsKOutOfRange(t *testing.T) {
	s, _ := newTestSession(t, Options{MinK: 3, MaxK: 6})

	_, err := s.Fit(context.Background(), 2)
	assert.ErrorIs(t, err, ErrKOutOfRange)
	_, err = s.Fit(context.Background(), 7)
	assert.ErrorIs(t, err, ErrKOutOfRange)
}

func TestFitCachedPerKAndStore(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	ctx := context.Background()

	first, err := s.Fit(ctx, 3)
	require.NoError(t, err)
	again, err := s.Fit(ctx, 3)
	require.NoError(t, err)
	// Same K, untouched store: the cached fit is reused verbatim
	assert.Equal(t, first.ID, again.ID)

	other, err := s.Fit(ctx, 4)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	// Switching back to K=3 still hits the cache
	back, err := s.Fit(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, first.ID, back.ID)
}

func TestClassifyDoesNotDisturbExistingRows(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	ctx := context.Background()

	snap, err := s.Fit(ctx, 3)
	require.NoError(t, err)

	before := make([]CustomerRow, len(snap.Rows))
	copy(before, snap.Rows)

	row, err := s.Classify(ctx, 5, 50, 20000)
	require.NoError(t, err)
	assert.Equal(t, "VIP (Champion)", row.Segment)
	assert.Equal(t, int64(304), row.CustomerID, "fresh id is max existing + 1")

	after, err := s.Current()
	require.NoError(t, err)
	require.Len(t, after.Rows, len(before)+1)
	for i := range before {
		assert.Equal(t, before[i], after.Rows[i], "pre-existing row %d changed", i)
	}
	assert.Equal(t, row, after.Rows[len(after.Rows)-1])
}

func TestSnapshotReadsSafeDuringClassify(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	ctx := context.Background()

	snap, err := s.Fit(ctx, 3)
	require.NoError(t, err)

	// Readers iterate their snapshots while classifications append; run
	// under -race to catch any sharing of the row slice.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				total := 0.0
				for _, row := range snap.Rows {
					total += row.Monetary
				}
				if cur, err := s.Current(); err == nil {
					for _, row := range cur.Rows {
						total += row.Monetary
					}
				}
			}
		}()
	}

	for j := 0; j < 20; j++ {
		_, err := s.Classify(ctx, 5, 50, 20000)
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Len(t, snap.Rows, 9, "a handed-out snapshot must not grow behind the caller's back")
	cur, err := s.Current()
	require.NoError(t, err)
	assert.Len(t, cur.Rows, 29)
}

func TestClassifyPersistsAndSurvivesRefit(t *testing.T) {
	s, incr := newTestSession(t, Options{})
	ctx := context.Background()

	_, err := s.Fit(ctx, 3)
	require.NoError(t, err)
	row, err := s.Classify(ctx, 5, 50, 20000)
	require.NoError(t, err)

	records, err := incr.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, store.Record{CustomerID: row.CustomerID, Recency: 5, Frequency: 50, Monetary: 20000}, records[0])

	// The changed store fingerprint forces a fresh fit, which merges the
	// persisted customer back in
	refit, err := s.Fit(ctx, 3)
	require.NoError(t, err)
	require.Len(t, refit.Rows, 10)

	found := false
	for _, r := range refit.Rows {
		if r.CustomerID == row.CustomerID {
			found = true
			assert.Equal(t, "VIP (Champion)", r.Segment)
		}
	}
	assert.True(t, found, "persisted customer missing after refit")
}

func TestClassifyValidation(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	ctx := context.Background()

	_, err := s.Classify(ctx, 5, 50, 20000)
	assert.ErrorIs(t, err, ErrNotFitted)

	_, err = s.Fit(ctx, 3)
	require.NoError(t, err)

	_, err = s.Classify(ctx, -1, 5, 100)
	assert.Error(t, err)
	_, err = s.Classify(ctx, 5, 0, 100)
	assert.Error(t, err)
	_, err = s.Classify(ctx, 5, 5, 0)
	assert.Error(t, err)
}

func TestCustomerLookupAndDiagnose(t *testing.T) {
	txns := testTransactions()
	// 666: every invoice cancelled
	txns = append(txns,
		dataset.Transaction{CustomerID: 666, Invoice: "C9001", Quantity: -2, UnitPrice: 30, Timestamp: time.Date(2011, 11, 1, 0, 0, 0, 0, time.UTC)},
		dataset.Transaction{CustomerID: 666, Invoice: "C9002", Quantity: -1, UnitPrice: 10, Timestamp: time.Date(2011, 11, 2, 0, 0, 0, 0, time.UTC)},
	)

	incr := store.New(filepath.Join(t.TempDir(), "s.csv"))
	s, err := New(txns, incr, Options{MinK: 2, MaxK: 6})
	require.NoError(t, err)
	_, err = s.Fit(context.Background(), 3)
	require.NoError(t, err)

	row, ok, err := s.Customer(301)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "VIP (Champion)", row.Segment)

	_, ok, err = s.Customer(666)
	require.NoError(t, err)
	assert.False(t, ok, "fully cancelled customer must be excluded from the table")

	d := s.Diagnose(666)
	assert.Equal(t, rfm.ReasonCancellations, d.Reason)

	d = s.Diagnose(424242)
	assert.Equal(t, rfm.ReasonNotInDataset, d.Reason)
}

func TestFitMergesPersistedRecords(t *testing.T) {
	dir := t.TempDir()
	incr := store.New(filepath.Join(dir, "s.csv"))
	require.NoError(t, incr.Append(store.Record{CustomerID: 9001, Recency: 4, Frequency: 18, Monetary: 19500}))

	s, err := New(testTransactions(), incr, Options{MinK: 2, MaxK: 6})
	require.NoError(t, err)

	snap, err := s.Fit(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, snap.Rows, 10)

	var found *CustomerRow
	for i := range snap.Rows {
		if snap.Rows[i].CustomerID == 9001 {
			found = &snap.Rows[i]
		}
	}
	require.NotNil(t, found, "persisted record missing from merged table")
	assert.Equal(t, "VIP (Champion)", found.Segment)
}

func TestRedisCacheSharesFitsAcrossSessions(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewRedisCache(client, time.Minute)

	dir := t.TempDir()
	storePath := filepath.Join(dir, "s.csv")
	ctx := context.Background()

	a, err := New(testTransactions(), store.New(storePath), Options{MinK: 2, MaxK: 6, Cache: cache})
	require.NoError(t, err)
	snapA, err := a.Fit(ctx, 3)
	require.NoError(t, err)

	// A second session over the same store reuses the cached fit wholesale
	b, err := New(testTransactions(), store.New(storePath), Options{MinK: 2, MaxK: 6, Cache: cache})
	require.NoError(t, err)
	snapB, err := b.Fit(ctx, 3)
	require.NoError(t, err)

	assert.Equal(t, snapA.ID, snapB.ID)
	assert.Equal(t, snapA.Rows, snapB.Rows)

	// And the restored model still classifies
	row, err := b.Classify(ctx, 5, 50, 20000)
	require.NoError(t, err)
	assert.Equal(t, "VIP (Champion)", row.Segment)
}

func TestRedisCacheCorruptEntryIsAMiss(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewRedisCache(client, time.Minute)

	require.NoError(t, mr.Set(cacheKeyPrefix+"3:deadbeef", "{not json"))
	_, ok := cache.Get(context.Background(), "3:deadbeef")
	assert.False(t, ok)
}
