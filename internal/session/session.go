// Package session owns the analysis lifecycle: one expensive fit per
// (cluster count, store contents) pair, and cheap classification of single
// new customers against the already-fitted model. The fitted state is
// read-only once built; classification never refits, so adding a customer
// can never move an existing customer's segment.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/rfm-dashboard/internal/cluster"
	"github.com/ignite/rfm-dashboard/internal/dataset"
	"github.com/ignite/rfm-dashboard/internal/rfm"
	"github.com/ignite/rfm-dashboard/internal/store"
)

// ErrNotFitted means Classify or Current was called before any Fit.
var ErrNotFitted = errors.New("no fitted model in session")

// ErrKOutOfRange means the requested cluster count is outside the
// configured bounds.
var ErrKOutOfRange = errors.New("cluster count outside supported range")

// CustomerRow is one customer of the final feature table, with resolved
// cluster assignment and projection coordinates.
type CustomerRow struct {
	rfm.FeatureRow
	Cluster int     `json:"cluster"`
	Segment string  `json:"segment"`
	PC1     float64 `json:"pc1"`
	PC2     float64 `json:"pc2"`
}

// Snapshot is the result of one fit: the full labeled feature table plus
// the label mapping. Handed to the presentation layer read-only.
type Snapshot struct {
	ID            string         `json:"id"`
	K             int            `json:"k"`
	ReferenceDate time.Time      `json:"reference_date"`
	FittedAt      time.Time      `json:"fitted_at"`
	Rows          []CustomerRow  `json:"rows"`
	Labels        map[int]string `json:"labels"`
}

// FitState is everything one fit produced, including the models needed to
// classify new rows. Serializable for the snapshot cache.
type FitState struct {
	Snapshot Snapshot        `json:"snapshot"`
	Scaler   *cluster.Scaler `json:"scaler"`
	Model    *cluster.KMeans `json:"model"`
	PCA      *cluster.PCA    `json:"pca"`
}

// Cache stores fit results across processes, keyed by (K, store
// fingerprint). Misses and errors both come back as a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*FitState, bool)
	Set(ctx context.Context, key string, state *FitState)
}

// Options tunes a Session.
type Options struct {
	MinK  int
	MaxK  int
	Cache Cache // optional second-level cache
}

// Session holds the raw dataset, the aggregated base table, and the
// currently fitted model.
type Session struct {
	mu sync.RWMutex

	raw           []dataset.Transaction
	base          []rfm.FeatureRow
	referenceDate time.Time
	incr          *store.Incremental

	minK, maxK int
	cache      Cache

	fits    map[string]*FitState
	current *FitState
}

// New cleans and aggregates the raw dataset once. An empty or fully
// filtered dataset is a configuration error, not an empty session.
func New(txns []dataset.Transaction, incr *store.Incremental, opts Options) (*Session, error) {
	purchases := rfm.Clean(txns)
	base, reference, err := rfm.Aggregate(purchases)
	if err != nil {
		return nil, err
	}

	minK, maxK := opts.MinK, opts.MaxK
	if minK < 2 {
		minK = 2
	}
	if maxK < minK {
		maxK = minK
	}

	return &Session{
		raw:           txns,
		base:          base,
		referenceDate: reference,
		incr:          incr,
		minK:          minK,
		maxK:          maxK,
		cache:         opts.Cache,
		fits:          make(map[string]*FitState),
	}, nil
}

// Fit builds (or reuses) the segmentation for k clusters. Results are
// cached by (k, store fingerprint): refitting only happens when k changes
// or a new customer was persisted.
func (s *Session) Fit(ctx context.Context, k int) (*Snapshot, error) {
	if k < s.minK || k > s.maxK {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrKOutOfRange, k, s.minK, s.maxK)
	}

	fingerprint, err := s.incr.Fingerprint()
	if err != nil {
		log.Printf("Store fingerprint unavailable, fitting uncached: %v", err)
		fingerprint = uuid.NewString()
	}
	key := fmt.Sprintf("%d:%s", k, fingerprint)

	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.fits[key]; ok {
		s.current = state
		return copySnapshot(&state.Snapshot), nil
	}
	if s.cache != nil {
		if state, ok := s.cache.Get(ctx, key); ok {
			s.fits[key] = state
			s.current = state
			return copySnapshot(&state.Snapshot), nil
		}
	}

	state, err := s.fit(k)
	if err != nil {
		return nil, err
	}

	s.fits[key] = state
	s.current = state
	if s.cache != nil {
		s.cache.Set(ctx, key, state)
	}
	return copySnapshot(&state.Snapshot), nil
}

// copySnapshot hands callers their own row slice. Handlers iterate snapshots
// outside the session lock while Classify appends under it, so sharing the
// backing array would race.
func copySnapshot(snap *Snapshot) *Snapshot {
	cp := *snap
	cp.Rows = make([]CustomerRow, len(snap.Rows))
	copy(cp.Rows, snap.Rows)
	return &cp
}

func (s *Session) fit(k int) (*FitState, error) {
	records, err := s.incr.Load()
	if err != nil {
		// Soft failure: a damaged store must not block the base analysis
		log.Printf("Incremental store unreadable, proceeding with base table only: %v", err)
		records = nil
	}
	rows := store.Merge(s.base, records)

	matrix := featureMatrix(rows)
	scaler, err := cluster.FitScaler(matrix)
	if err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}
	scaled := scaler.Transform(matrix)

	model, assignments, err := cluster.FitKMeans(scaled, k)
	if err != nil {
		return nil, err
	}

	monetary := make([]float64, len(rows))
	for i, row := range rows {
		monetary[i] = row.Monetary
	}
	labels, err := cluster.MapLabels(assignments, monetary, k)
	if err != nil {
		return nil, fmt.Errorf("map labels: %w", err)
	}

	pca, coords, err := cluster.FitPCA(scaled, 2)
	if err != nil {
		return nil, fmt.Errorf("fit projection: %w", err)
	}

	table := make([]CustomerRow, len(rows))
	for i, row := range rows {
		table[i] = CustomerRow{
			FeatureRow: row,
			Cluster:    assignments[i],
			Segment:    labels[assignments[i]],
			PC1:        coords[i][0],
			PC2:        coords[i][1],
		}
	}

	return &FitState{
		Snapshot: Snapshot{
			ID:            uuid.NewString(),
			K:             k,
			ReferenceDate: s.referenceDate,
			FittedAt:      time.Now().UTC(),
			Rows:          table,
			Labels:        labels,
		},
		Scaler: scaler,
		Model:  model,
		PCA:    pca,
	}, nil
}

// Classify scores one new (Recency, Frequency, Monetary) tuple against the
// fitted model, persists the raw tuple to the incremental store under a
// fresh identifier, and appends the labeled row to the in-memory table.
// Existing rows are untouched: no refit happens here.
func (s *Session) Classify(ctx context.Context, recency, frequency int, monetary float64) (CustomerRow, error) {
	if recency < 0 || frequency < 1 || monetary <= 0 {
		return CustomerRow{}, fmt.Errorf("invalid features: recency %d, frequency %d, monetary %.2f", recency, frequency, monetary)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.current
	if state == nil {
		return CustomerRow{}, ErrNotFitted
	}

	scaled := state.Scaler.TransformRow([]float64{float64(recency), float64(frequency), monetary})
	c := state.Model.Predict(scaled)
	coords := state.PCA.ProjectRow(scaled)

	newID := int64(0)
	for _, row := range state.Snapshot.Rows {
		if row.CustomerID > newID {
			newID = row.CustomerID
		}
	}
	newID++

	row := CustomerRow{
		FeatureRow: rfm.FeatureRow{
			CustomerID: newID,
			Recency:    recency,
			Frequency:  frequency,
			Monetary:   monetary,
		},
		Cluster: c,
		Segment: state.Snapshot.Labels[c],
		PC1:     coords[0],
		PC2:     coords[1],
	}

	// Durable first: the append must survive even if the process dies
	// before the in-memory table is read again
	if err := s.incr.Append(store.Record{
		CustomerID: newID,
		Recency:    recency,
		Frequency:  frequency,
		Monetary:   monetary,
	}); err != nil {
		return CustomerRow{}, fmt.Errorf("persist new customer: %w", err)
	}

	state.Snapshot.Rows = append(state.Snapshot.Rows, row)
	return row, nil
}

// Current returns the active snapshot.
func (s *Session) Current() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, ErrNotFitted
	}
	return copySnapshot(&s.current.Snapshot), nil
}

// Customer looks up one row of the active snapshot by identifier.
func (s *Session) Customer(id int64) (CustomerRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return CustomerRow{}, false, ErrNotFitted
	}
	for _, row := range s.current.Snapshot.Rows {
		if row.CustomerID == id {
			return row, true, nil
		}
	}
	return CustomerRow{}, false, nil
}

// Diagnose explains why a customer is absent from the feature table by
// re-examining the raw dataset. Read-only.
func (s *Session) Diagnose(id int64) rfm.Diagnosis {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rfm.Diagnose(s.raw, id)
}

// Bounds reports the supported cluster count range.
func (s *Session) Bounds() (minK, maxK int) {
	return s.minK, s.maxK
}

func featureMatrix(rows []rfm.FeatureRow) [][]float64 {
	matrix := make([][]float64, len(rows))
	for i, row := range rows {
		matrix[i] = []float64{float64(row.Recency), float64(row.Frequency), row.Monetary}
	}
	return matrix
}
