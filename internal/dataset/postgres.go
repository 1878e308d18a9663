package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "github.com/lib/pq" // PostgreSQL driver
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// PostgresSource reads transactions from a SQL table. The table needs
// customer_id (nullable), invoice, quantity, unit_price and invoice_date
// columns.
type PostgresSource struct {
	db    *sql.DB
	table string
}

func NewPostgresSource(db *sql.DB, table string) (*PostgresSource, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresSource{db: db, table: table}, nil
}

// OpenPostgres connects to the database and verifies the connection.
func OpenPostgres(ctx context.Context, databaseURL, table string) (*PostgresSource, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	return NewPostgresSource(db, table)
}

func (s *PostgresSource) Load(ctx context.Context) ([]Transaction, error) {
	query := fmt.Sprintf(
		`SELECT customer_id, invoice, quantity, unit_price, invoice_date FROM %s`, s.table)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txns []Transaction
	for rows.Next() {
		var (
			customerID sql.NullInt64
			txn        Transaction
		)
		if err := rows.Scan(&customerID, &txn.Invoice, &txn.Quantity, &txn.UnitPrice, &txn.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if customerID.Valid {
			txn.CustomerID = customerID.Int64
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txns, nil
}

// Close releases the underlying connection pool.
func (s *PostgresSource) Close() error {
	return s.db.Close()
}
