package journal

import (
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/rustyeddy/tradectl/broker"
)

const selectColumns = `
	SELECT id, time, source, mode, symbol, qty, side, order_type, time_in_force, outcome, order_id, fill_price, realized_pl, reason
	FROM transactions`

// GetTransaction returns a single record by ID.
func (j *SQLite) GetTransaction(txID string) (Transaction, error) {
	row := j.db.QueryRow(selectColumns+` WHERE id = ?`, txID)
	rec, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Transaction{}, fmt.Errorf("transaction %q not found", txID)
		}
		return Transaction{}, err
	}
	return rec, nil
}

// Recent returns the last limit records, oldest first.
func (j *SQLite) Recent(limit int) ([]Transaction, error) {
	rows, err := j.db.Query(selectColumns+`
		ORDER BY time DESC, id DESC
		LIMIT ?`, normLimit(limit))
	if err != nil {
		return nil, err
	}
	out, err := scanAll(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// ListBetween returns records whose time is within [start, end).
func (j *SQLite) ListBetween(start, end time.Time) ([]Transaction, error) {
	rows, err := j.db.Query(selectColumns+`
		WHERE time >= ? AND time < ?
		ORDER BY time ASC, id ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (Transaction, error) {
	var rec Transaction
	var source, side, outcome string
	err := s.Scan(
		&rec.ID,
		&rec.Time,
		&source,
		&rec.Mode,
		&rec.Symbol,
		&rec.Qty,
		&side,
		&rec.OrderType,
		&rec.TimeInForce,
		&outcome,
		&rec.OrderID,
		&rec.FillPrice,
		&rec.RealizedPL,
		&rec.Reason,
	)
	rec.Source = Source(source)
	rec.Side = broker.Side(side)
	rec.Outcome = Outcome(outcome)
	return rec, err
}

func scanAll(rows *sql.Rows) ([]Transaction, error) {
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
