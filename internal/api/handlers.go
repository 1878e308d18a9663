package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/rfm-dashboard/internal/cluster"
	"github.com/ignite/rfm-dashboard/internal/config"
	"github.com/ignite/rfm-dashboard/internal/session"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	session   *session.Session
	config    *config.Config
	startedAt time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(s *session.Session, cfg *config.Config) *Handlers {
	return &Handlers{
		session:   s,
		config:    cfg,
		startedAt: time.Now(),
	}
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// fitForRequest resolves the k query parameter (falling back to the
// configured default) and returns the cached-or-fresh fit for it.
func (h *Handlers) fitForRequest(w http.ResponseWriter, r *http.Request) (*session.Snapshot, bool) {
	k := h.config.Cluster.DefaultK
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "k must be an integer")
			return nil, false
		}
		k = parsed
	}

	snap, err := h.session.Fit(r.Context(), k)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrKOutOfRange):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, cluster.ErrInsufficientData):
			respondError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	return snap, true
}

// HealthCheck returns the health status of the API
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	snap, err := h.session.Current()
	fitted := err == nil

	resp := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
		"uptime":    time.Since(h.startedAt).String(),
		"fitted":    fitted,
	}
	if fitted {
		resp["snapshot_id"] = snap.ID
		resp["k"] = snap.K
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetOverview returns the headline dashboard metrics.
func (h *Handlers) GetOverview(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.fitForRequest(w, r)
	if !ok {
		return
	}

	totalMonetary := 0.0
	maxFrequency := 0
	for _, row := range snap.Rows {
		totalMonetary += row.Monetary
		if row.Frequency > maxFrequency {
			maxFrequency = row.Frequency
		}
	}

	meanMonetary := 0.0
	if len(snap.Rows) > 0 {
		meanMonetary = totalMonetary / float64(len(snap.Rows))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot_id":    snap.ID,
		"k":              snap.K,
		"reference_date": snap.ReferenceDate,
		"customers":      len(snap.Rows),
		"mean_monetary":  meanMonetary,
		"max_frequency":  maxFrequency,
	})
}

// SegmentSummary aggregates one segment's rows.
type SegmentSummary struct {
	Segment       string  `json:"segment"`
	Description   string  `json:"description"`
	Customers     int     `json:"customers"`
	MeanMonetary  float64 `json:"mean_monetary"`
	MeanRecency   float64 `json:"mean_recency"`
	MeanFrequency float64 `json:"mean_frequency"`
}

// GetSegments returns per-segment statistics, worst segment first.
func (h *Handlers) GetSegments(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.fitForRequest(w, r)
	if !ok {
		return
	}

	type agg struct {
		count     int
		monetary  float64
		recency   int
		frequency int
	}
	byLabel := make(map[string]*agg)
	for _, row := range snap.Rows {
		a, ok := byLabel[row.Segment]
		if !ok {
			a = &agg{}
			byLabel[row.Segment] = a
		}
		a.count++
		a.monetary += row.Monetary
		a.recency += row.Recency
		a.frequency += row.Frequency
	}

	summaries := make([]SegmentSummary, 0, len(byLabel))
	for label, a := range byLabel {
		summaries = append(summaries, SegmentSummary{
			Segment:       label,
			Description:   cluster.Describe(label),
			Customers:     a.count,
			MeanMonetary:  a.monetary / float64(a.count),
			MeanRecency:   float64(a.recency) / float64(a.count),
			MeanFrequency: float64(a.frequency) / float64(a.count),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].MeanMonetary < summaries[j].MeanMonetary
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot_id": snap.ID,
		"k":           snap.K,
		"segments":    summaries,
	})
}

// GetSegmentGuide returns the vocabulary for k with descriptions and
// suggested actions per segment.
func (h *Handlers) GetSegmentGuide(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.fitForRequest(w, r)
	if !ok {
		return
	}

	type guideEntry struct {
		Segment         string   `json:"segment"`
		Description     string   `json:"description"`
		Tier            string   `json:"tier"`
		Recommendations []string `json:"recommendations"`
	}

	vocab := cluster.Vocabulary(snap.K)
	guide := make([]guideEntry, len(vocab))
	for i, label := range vocab {
		guide[i] = guideEntry{
			Segment:         label,
			Description:     cluster.Describe(label),
			Tier:            string(cluster.TierOf(label)),
			Recommendations: cluster.Recommendations(label),
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"k":     snap.K,
		"guide": guide,
	})
}

// ListCustomers returns the feature table, optionally filtered by segment.
func (h *Handlers) ListCustomers(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.fitForRequest(w, r)
	if !ok {
		return
	}

	segment := r.URL.Query().Get("segment")
	rows := make([]session.CustomerRow, 0, len(snap.Rows))
	for _, row := range snap.Rows {
		if segment == "" || row.Segment == segment {
			rows = append(rows, row)
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot_id": snap.ID,
		"k":           snap.K,
		"total":       len(rows),
		"customers":   rows,
	})
}

// GetCustomer looks up one customer. A customer missing from the feature
// table gets a 404 carrying the exclusion diagnosis.
func (h *Handlers) GetCustomer(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.fitForRequest(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "customer id must be a positive integer")
		return
	}

	row, found, err := h.session.Customer(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if found {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"snapshot_id": snap.ID,
			"customer":    row,
			"tier":        string(cluster.TierOf(row.Segment)),
		})
		return
	}

	respondJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":     "customer not in segmentation",
		"diagnosis": h.session.Diagnose(id),
	})
}

// ClassifyRequest is the payload for adding a manual customer.
type ClassifyRequest struct {
	Recency   int     `json:"recency"`
	Frequency int     `json:"frequency"`
	Monetary  float64 `json:"monetary"`
}

// CreateCustomer classifies a manually entered customer against the fitted
// model, persists it, and returns the new row. Never refits.
func (h *Handlers) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.fitForRequest(w, r); !ok {
		return
	}

	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	row, err := h.session.Classify(r.Context(), req.Recency, req.Frequency, req.Monetary)
	if err != nil {
		if errors.Is(err, session.ErrNotFitted) {
			respondError(w, http.StatusConflict, err.Error())
		} else {
			respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"customer": row,
		"tier":     string(cluster.TierOf(row.Segment)),
	})
}

// GetProjection returns the 2D PCA coordinates for every customer.
func (h *Handlers) GetProjection(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.fitForRequest(w, r)
	if !ok {
		return
	}

	type point struct {
		CustomerID int64   `json:"customer_id"`
		Segment    string  `json:"segment"`
		PC1        float64 `json:"pc1"`
		PC2        float64 `json:"pc2"`
	}
	points := make([]point, len(snap.Rows))
	for i, row := range snap.Rows {
		points[i] = point{CustomerID: row.CustomerID, Segment: row.Segment, PC1: row.PC1, PC2: row.PC2}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot_id": snap.ID,
		"k":           snap.K,
		"points":      points,
	})
}
