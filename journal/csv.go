package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rustyeddy/tradectl/broker"
)

var csvHeader = []string{
	"id", "time", "source", "mode", "symbol", "qty", "side", "order_type",
	"time_in_force", "outcome", "order_id", "fill_price", "realized_pl", "reason",
}

// CSV appends transactions to a single file that survives restarts.
type CSV struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *csv.Writer
}

func NewCSV(path string) (*CSV, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			_ = f.Close()
			return nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	return &CSV{path: path, f: f, w: w}, nil
}

func (j *CSV) RecordTransaction(t Transaction) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	err := j.w.Write([]string{
		t.ID,
		t.Time.UTC().Format(time.RFC3339Nano),
		string(t.Source),
		t.Mode,
		t.Symbol,
		f(t.Qty),
		string(t.Side),
		t.OrderType,
		t.TimeInForce,
		string(t.Outcome),
		t.OrderID,
		f(t.FillPrice),
		f(t.RealizedPL),
		t.Reason,
	})
	if err != nil {
		return err
	}
	j.w.Flush()
	return j.w.Error()
}

func (j *CSV) Recent(limit int) ([]Transaction, error) {
	all, err := j.readAll()
	if err != nil {
		return nil, err
	}
	if n := normLimit(limit); len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func (j *CSV) ListBetween(start, end time.Time) ([]Transaction, error) {
	all, err := j.readAll()
	if err != nil {
		return nil, err
	}
	var out []Transaction
	for _, t := range all {
		if !t.Time.Before(start) && t.Time.Before(end) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.w.Flush()
	if err := j.w.Error(); err != nil {
		return err
	}
	return j.f.Close()
}

func (j *CSV) readAll() ([]Transaction, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rf, err := os.Open(j.path)
	if err != nil {
		return nil, err
	}
	defer rf.Close()

	r := csv.NewReader(rf)
	r.FieldsPerRecord = len(csvHeader)

	var out []Transaction
	for line := 1; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if line == 1 {
			continue
		}
		t, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", j.path, line, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func parseRow(row []string) (Transaction, error) {
	ts, err := time.Parse(time.RFC3339Nano, row[1])
	if err != nil {
		return Transaction{}, err
	}
	var nums [3]float64
	for i, col := range []int{5, 11, 12} {
		if nums[i], err = strconv.ParseFloat(row[col], 64); err != nil {
			return Transaction{}, err
		}
	}
	return Transaction{
		ID:          row[0],
		Time:        ts,
		Source:      Source(row[2]),
		Mode:        row[3],
		Symbol:      row[4],
		Qty:         nums[0],
		Side:        broker.Side(row[6]),
		OrderType:   row[7],
		TimeInForce: row[8],
		Outcome:     Outcome(row[9]),
		OrderID:     row[10],
		FillPrice:   nums[1],
		RealizedPL:  nums[2],
		Reason:      row[13],
	}, nil
}

var _ Journal = (*CSV)(nil)

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
