package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ExportCustomers streams the (optionally segment-filtered) feature table
// as CSV: identifier, the three raw features, cluster index, and label. A
// faithful field-for-field dump, nothing more.
func (h *Handlers) ExportCustomers(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.fitForRequest(w, r)
	if !ok {
		return
	}

	segment := r.URL.Query().Get("segment")
	filename := "customers.csv"
	if segment != "" {
		filename = exportFilename(segment)
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	writer := csv.NewWriter(w)
	defer writer.Flush()

	writer.Write([]string{"customer_id", "recency", "frequency", "monetary", "cluster", "segment"})
	for _, row := range snap.Rows {
		if segment != "" && row.Segment != segment {
			continue
		}
		writer.Write([]string{
			strconv.FormatInt(row.CustomerID, 10),
			strconv.Itoa(row.Recency),
			strconv.Itoa(row.Frequency),
			strconv.FormatFloat(row.Monetary, 'f', 2, 64),
			strconv.Itoa(row.Cluster),
			row.Segment,
		})
	}
}

// exportFilename turns a segment label into a safe download name,
// e.g. "VIP (Champion)" -> "vip_champion_customers.csv".
func exportFilename(segment string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(segment) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		name = "segment"
	}
	return name + "_customers.csv"
}
