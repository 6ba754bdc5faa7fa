package receipt

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // SQLite driver
)

// AUTOINCREMENT keeps SQLite from handing out the ID of a deleted row again.
// amount keeps the exact decimal text; amount_cents backs range queries.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS receipts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	vendor       TEXT    NOT NULL,
	date         TEXT    NOT NULL,
	amount       TEXT    NOT NULL,
	amount_cents INTEGER NOT NULL,
	category     TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_receipts_date ON receipts(date);
CREATE INDEX IF NOT EXISTS idx_receipts_amount_cents ON receipts(amount_cents);
`

const selectReceipts = `SELECT id, vendor, date, amount, category FROM receipts`

// SQLiteDB implements the DB interface on SQLite. Filters are evaluated by
// the query engine instead of in memory.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (and creates if needed) a SQLite database file
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// WAL lets readers proceed while an upload is being written
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite has a single writer; one connection serializes uploads
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// CreateReceipt inserts a receipt and returns it with its assigned ID
func (s *SQLiteDB) CreateReceipt(vendor string, date Date, amount decimal.Decimal, category string) (*Receipt, error) {
	if err := validateReceipt(vendor, amount); err != nil {
		return nil, err
	}

	res, err := s.db.Exec(
		`INSERT INTO receipts (vendor, date, amount, amount_cents, category) VALUES (?, ?, ?, ?, ?)`,
		vendor, date.String(), amount.String(), amount.Mul(hundred).IntPart(), category,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting receipt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading receipt id: %w", err)
	}

	return &Receipt{
		ID:       strconv.FormatInt(id, 10),
		Vendor:   vendor,
		Date:     date,
		Amount:   amount,
		Category: category,
	}, nil
}

// GetReceipt retrieves a receipt by ID
func (s *SQLiteDB) GetReceipt(id string) (*Receipt, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	receipts, err := s.query(selectReceipts+` WHERE id = ?`, n)
	if err != nil {
		return nil, err
	}
	if len(receipts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return receipts[0], nil
}

// ListReceipts returns all receipts
func (s *SQLiteDB) ListReceipts() ([]*Receipt, error) {
	return s.query(selectReceipts)
}

// SearchReceipts translates the filter into a WHERE clause
func (s *SQLiteDB) SearchReceipts(filter Filter) ([]*Receipt, error) {
	where, args := filterClause(filter)
	if where == "" {
		return s.query(selectReceipts)
	}
	return s.query(selectReceipts+" WHERE "+where, args...)
}

// filterClause mirrors Filter.Match. instr() is used for the vendor because
// LIKE ignores ASCII case in SQLite.
func filterClause(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Vendor != "" {
		conds = append(conds, "instr(vendor, ?) > 0")
		args = append(args, f.Vendor)
	}
	if f.DateFrom != nil {
		conds = append(conds, "date >= ?")
		args = append(args, f.DateFrom.String())
	}
	if f.DateTo != nil {
		conds = append(conds, "date <= ?")
		args = append(args, f.DateTo.String())
	}
	// Stored amounts are whole cents in [0, maxCents], so rounding the bounds
	// inward is exact and bounds outside that range are decided up front.
	if f.AmountMin != nil {
		cents := f.AmountMin.Mul(hundred).Ceil()
		switch {
		case cents.GreaterThan(maxCents):
			conds = append(conds, "0 = 1")
		case cents.IsPositive():
			conds = append(conds, "amount_cents >= ?")
			args = append(args, cents.IntPart())
		}
	}
	if f.AmountMax != nil {
		cents := f.AmountMax.Mul(hundred).Floor()
		switch {
		case cents.IsNegative():
			conds = append(conds, "0 = 1")
		case cents.LessThan(maxCents):
			conds = append(conds, "amount_cents <= ?")
			args = append(args, cents.IntPart())
		}
	}
	return strings.Join(conds, " AND "), args
}

func (s *SQLiteDB) query(query string, args ...any) ([]*Receipt, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying receipts: %w", err)
	}
	defer rows.Close()

	receipts := make([]*Receipt, 0)
	for rows.Next() {
		var (
			id                   int64
			vendor, date, amount string
			category             string
		)
		if err := rows.Scan(&id, &vendor, &date, &amount, &category); err != nil {
			return nil, fmt.Errorf("scanning receipt: %w", err)
		}
		d, err := ParseDate(date)
		if err != nil {
			return nil, err
		}
		a, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parsing amount of receipt %d: %w", id, err)
		}
		receipts = append(receipts, &Receipt{
			ID:       strconv.FormatInt(id, 10),
			Vendor:   vendor,
			Date:     d,
			Amount:   a,
			Category: category,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating receipts: %w", err)
	}
	return receipts, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
