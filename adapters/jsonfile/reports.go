package jsonfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"trackxp/engine"
)

// Report file names written into the output directory.
const (
	DailyFile  = "xp_daily.json"
	TotalFile  = "xp_total.json"
	LedgerFile = "xp_ledger.json"
)

// Writer publishes replay reports as JSON files in a single directory.
// Each file is replaced atomically, so readers never see a partial write.
type Writer struct {
	dir string
	mu  sync.Mutex
}

// New prepares dir for writing, creating it if needed.
func New(dir string) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{dir: dir}, nil
}

// Dir is the output directory.
func (w *Writer) Dir() string { return w.dir }

// WriteReport writes the daily, total and ledger files for r.
func (w *Writer) WriteReport(r engine.Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	daily := r.Daily
	if daily == nil {
		daily = map[string]engine.DaySummary{}
	}
	ledger := r.Ledger
	if ledger == nil {
		ledger = []engine.LedgerEntry{}
	}
	for _, f := range []struct {
		name string
		v    any
	}{
		{DailyFile, daily},
		{TotalFile, r.Totals},
		{LedgerFile, ledger},
	} {
		if err := w.persist(f.name, f.v); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return nil
}

// ReadTotals loads the last written totals.
func (w *Writer) ReadTotals() (engine.Totals, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	b, err := os.ReadFile(filepath.Join(w.dir, TotalFile))
	if err != nil {
		return engine.Totals{}, err
	}
	var t engine.Totals
	if err := json.Unmarshal(b, &t); err != nil {
		return engine.Totals{}, err
	}
	return t, nil
}

func (w *Writer) persist(name string, v any) error {
	path := filepath.Join(w.dir, name)
	tmp := path + ".tmp"
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
