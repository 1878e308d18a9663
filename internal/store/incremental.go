// Package store persists manually-entered customers in an append-only CSV
// log. Only the three raw features are stored; cluster membership is
// re-derived from the current model fit on every run, keeping historical and
// fresh entries consistent.
package store

import (
	"crypto/sha256"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ignite/rfm-dashboard/internal/rfm"
)

const header = "customer_id,recency,frequency,monetary"

// Record is one persisted manually-entered customer.
type Record struct {
	CustomerID int64
	Recency    int
	Frequency  int
	Monetary   float64
}

// Incremental is the append-only backing file. Appends are serialized so
// back-to-back writes can never interleave partial rows.
type Incremental struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Incremental {
	return &Incremental{path: path}
}

// Load replays the log. An absent file is an empty store, not an error.
// Malformed lines are skipped and logged, never fatal: a damaged store must
// not take the whole analysis down.
func (s *Incremental) Load() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open store %s: %w", s.path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var records []Record
	skipped := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// One damaged quoted line must not discard everything after it
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skipped++
				continue
			}
			return nil, fmt.Errorf("read store %s: %w", s.path, err)
		}
		if len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "customer_id") {
			continue
		}
		rec, ok := parseRecord(row)
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if skipped > 0 {
		log.Printf("Store %s: skipped %d malformed rows", s.path, skipped)
	}
	return records, nil
}

func parseRecord(row []string) (Record, bool) {
	if len(row) != 4 {
		return Record{}, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
	if err != nil || id <= 0 {
		return Record{}, false
	}
	recency, err := strconv.Atoi(strings.TrimSpace(row[1]))
	if err != nil {
		return Record{}, false
	}
	frequency, err := strconv.Atoi(strings.TrimSpace(row[2]))
	if err != nil {
		return Record{}, false
	}
	monetary, err := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
	if err != nil {
		return Record{}, false
	}
	return Record{CustomerID: id, Recency: recency, Frequency: frequency, Monetary: monetary}, true
}

// Append writes one record. The header is written once, when the file is
// created; the record itself goes out in a single write so a concurrent
// reader never observes half a row.
func (s *Incremental) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open store %s: %w", s.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat store %s: %w", s.path, err)
	}

	line := fmt.Sprintf("%d,%d,%d,%s\n",
		rec.CustomerID, rec.Recency, rec.Frequency,
		strconv.FormatFloat(rec.Monetary, 'f', -1, 64))
	if info.Size() == 0 {
		line = header + "\n" + line
	}

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append to store %s: %w", s.path, err)
	}
	return f.Sync()
}

// Fingerprint hashes the current file contents. Fits are cached per
// (K, fingerprint), so any append invalidates them. An absent file hashes
// to the empty-content digest.
func (s *Incremental) Fingerprint() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("read store %s: %w", s.path, err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)), nil
}

// Merge appends persisted records to the base feature table as additional
// rows. An empty store returns the base table unchanged.
func Merge(base []rfm.FeatureRow, records []Record) []rfm.FeatureRow {
	if len(records) == 0 {
		return base
	}
	merged := make([]rfm.FeatureRow, 0, len(base)+len(records))
	merged = append(merged, base...)
	for _, rec := range records {
		merged = append(merged, rfm.FeatureRow{
			CustomerID: rec.CustomerID,
			Recency:    rec.Recency,
			Frequency:  rec.Frequency,
			Monetary:   rec.Monetary,
		})
	}
	return merged
}
