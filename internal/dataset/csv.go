package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// CSVSource reads transactions from a local delimited file.
type CSVSource struct {
	path string
}

func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Load reads the whole file. A missing or unreadable file is an error:
// every downstream stage depends on a non-empty dataset.
func (s *CSVSource) Load(ctx context.Context) ([]Transaction, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", s.path, err)
	}
	defer f.Close()

	txns, skipped, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", s.path, err)
	}
	if skipped > 0 {
		log.Printf("Dataset %s: skipped %d unparseable rows", s.path, skipped)
	}
	return txns, nil
}

// columnAliases maps lowercase header names to canonical columns. When
// multiple raw headers mean the same thing, they all map here.
var columnAliases = map[string]string{
	"customerid":  "customer_id",
	"customer id": "customer_id",
	"customer_id": "customer_id",

	"invoice":       "invoice",
	"invoiceno":     "invoice",
	"invoicenumber": "invoice",
	"invoice_no":    "invoice",

	"invoicedate":  "timestamp",
	"invoice_date": "timestamp",
	"date":         "timestamp",

	"quantity": "quantity",
	"qty":      "quantity",

	"price":      "unit_price",
	"unitprice":  "unit_price",
	"unit_price": "unit_price",
}

type columnMapping struct {
	customerID int
	invoice    int
	timestamp  int
	quantity   int
	unitPrice  int
}

// mapColumns resolves a header row to column positions, or nil when a
// required column cannot be found.
func mapColumns(header []string) *columnMapping {
	m := columnMapping{customerID: -1, invoice: -1, timestamp: -1, quantity: -1, unitPrice: -1}
	for i, h := range header {
		canonical, ok := columnAliases[strings.ToLower(strings.TrimSpace(h))]
		if !ok {
			continue
		}
		switch canonical {
		case "customer_id":
			m.customerID = i
		case "invoice":
			m.invoice = i
		case "timestamp":
			m.timestamp = i
		case "quantity":
			m.quantity = i
		case "unit_price":
			m.unitPrice = i
		}
	}
	if m.customerID < 0 || m.invoice < 0 || m.timestamp < 0 || m.quantity < 0 || m.unitPrice < 0 {
		return nil
	}
	return &m
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"1/2/2006 15:04",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ParseCSV reads a CSV stream of raw transactions. Rows with unparseable
// numeric or date fields are skipped, not fatal; the count of skipped rows
// is returned so callers can log it. A row with an empty customer column is
// kept with CustomerID 0 so the cleaner can account for it.
func ParseCSV(r io.Reader) ([]Transaction, int, error) {
	reader := csv.NewReader(stripBOM(r))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("read header: %w", err)
	}

	mapping := mapColumns(header)
	if mapping == nil {
		return nil, 0, fmt.Errorf("required columns not detected in header: %v", header)
	}

	var txns []Transaction
	skipped := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Only row-level parse errors are skippable. Anything else is
			// an I/O fault that would repeat forever if we looped on it.
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skipped++
				continue
			}
			return nil, 0, fmt.Errorf("read dataset row: %w", err)
		}

		txn, ok := parseRow(row, mapping)
		if !ok {
			skipped++
			continue
		}
		txns = append(txns, txn)
	}

	return txns, skipped, nil
}

func parseRow(row []string, m *columnMapping) (Transaction, bool) {
	max := m.customerID
	for _, i := range []int{m.invoice, m.timestamp, m.quantity, m.unitPrice} {
		if i > max {
			max = i
		}
	}
	if len(row) <= max {
		return Transaction{}, false
	}

	var txn Transaction
	txn.Invoice = strings.TrimSpace(row[m.invoice])

	if raw := strings.TrimSpace(row[m.customerID]); raw != "" {
		// Some exports carry customer ids as decimals ("17850.0")
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Transaction{}, false
		}
		txn.CustomerID = int64(f)
	}

	qty, err := strconv.ParseInt(strings.TrimSpace(row[m.quantity]), 10, 64)
	if err != nil {
		return Transaction{}, false
	}
	txn.Quantity = qty

	price, err := strconv.ParseFloat(strings.TrimSpace(row[m.unitPrice]), 64)
	if err != nil {
		return Transaction{}, false
	}
	txn.UnitPrice = price

	ts, err := parseTimestamp(row[m.timestamp])
	if err != nil {
		return Transaction{}, false
	}
	txn.Timestamp = ts

	return txn, true
}

// stripBOM removes a UTF-8 byte order mark if present at stream start.
// ReadFull, not Read: a network stream may legally return the BOM one byte
// at a time.
func stripBOM(r io.Reader) io.Reader {
	buf := make([]byte, 3)
	n, _ := io.ReadFull(r, buf)
	if n == 3 && buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF {
		return r
	}
	return io.MultiReader(strings.NewReader(string(buf[:n])), r)
}
