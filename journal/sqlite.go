package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer; sqlite serializes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTransaction(t Transaction) error {
	_, err := j.db.Exec(`
		INSERT INTO transactions
		(id, time, source, mode, symbol, qty, side, order_type, time_in_force, outcome, order_id, fill_price, realized_pl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Time.UTC(), string(t.Source), t.Mode, t.Symbol, t.Qty, string(t.Side),
		t.OrderType, t.TimeInForce, string(t.Outcome), t.OrderID, t.FillPrice, t.RealizedPL, t.Reason,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

var _ Journal = (*SQLite)(nil)
