package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrPersistence marks snapshot read/write failures. They are never fatal:
// the in-memory state stays authoritative.
var ErrPersistence = errors.New("persistence error")

const snapshotVersion = 1

// Snapshot is the on-disk layout.
type Snapshot struct {
	Version         int         `json:"version"`
	Mode            Mode        `json:"mode"`
	Paused          bool        `json:"paused"`
	DailyHalted     bool        `json:"dailyHalted"`
	TradeTimestamps []time.Time `json:"tradeTimestamps"`
	DailyPL         float64     `json:"dailyPL"`
	LastResetDate   string      `json:"lastResetDate"`
	PortfolioActive bool        `json:"portfolioActive"`
	SavedAt         time.Time   `json:"savedAt"`
}

func (s DaemonState) snapshot(savedAt time.Time) Snapshot {
	ts := s.TradeTimestamps
	if ts == nil {
		ts = []time.Time{}
	}
	return Snapshot{
		Version:         snapshotVersion,
		Mode:            s.Mode,
		Paused:          s.Paused,
		DailyHalted:     s.DailyHalted,
		TradeTimestamps: ts,
		DailyPL:         s.DailyPL,
		LastResetDate:   s.LastResetDate,
		PortfolioActive: s.PortfolioActive,
		SavedAt:         savedAt.UTC(),
	}
}

func (snap Snapshot) state() (DaemonState, error) {
	if snap.Version != snapshotVersion {
		return DaemonState{}, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	if !snap.Mode.Valid() {
		return DaemonState{}, fmt.Errorf("unknown mode %q", snap.Mode)
	}
	if !validDate(snap.LastResetDate) {
		return DaemonState{}, fmt.Errorf("bad lastResetDate %q", snap.LastResetDate)
	}
	var ts []time.Time
	if len(snap.TradeTimestamps) > 0 {
		ts = snap.TradeTimestamps
	}
	return DaemonState{
		Mode:            snap.Mode,
		Paused:          snap.Paused,
		DailyHalted:     snap.DailyHalted,
		TradeTimestamps: ts,
		DailyPL:         snap.DailyPL,
		LastResetDate:   snap.LastResetDate,
		PortfolioActive: snap.PortfolioActive,
	}, nil
}

// Store reads and writes a single JSON snapshot file.
type Store struct {
	path string
	now  func() time.Time
}

func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

func (st *Store) Path() string { return st.path }

// Load restores the saved state. A missing file yields defaults and no
// error. An unreadable or corrupt file yields defaults plus an error
// wrapping ErrPersistence; the bad file is moved aside to <path>.corrupt so
// the next save starts clean.
func (st *Store) Load(defaults DaemonState) (DaemonState, error) {
	b, err := os.ReadFile(st.path)
	if errors.Is(err, os.ErrNotExist) {
		return defaults, nil
	}
	if err != nil {
		return defaults, fmt.Errorf("%w: read %s: %v", ErrPersistence, st.path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		st.quarantine()
		return defaults, fmt.Errorf("%w: parse %s: %v", ErrPersistence, st.path, err)
	}
	s, err := snap.state()
	if err != nil {
		st.quarantine()
		return defaults, fmt.Errorf("%w: %s: %v", ErrPersistence, st.path, err)
	}
	return s, nil
}

// Save writes s atomically: a crash mid-write leaves the previous snapshot
// in place.
func (st *Store) Save(s DaemonState) error {
	b, err := json.MarshalIndent(s.snapshot(st.now()), "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %v", ErrPersistence, err)
	}
	if err := writeFileAtomic(st.path, b, 0o600); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrPersistence, st.path, err)
	}
	return nil
}

func (st *Store) quarantine() {
	_ = os.Rename(st.path, st.path+".corrupt")
}

// writeFileAtomic writes data to path via tmp file + fsync + rename, then
// fsyncs the parent directory so the rename itself is durable.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
