package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
)

const sheet = "Run"

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
	StatusNote   = "note"
)

// Entry is one row of the run log.
type Entry struct {
	Time       time.Time `json:"time"`
	Step       int       `json:"step"`
	Action     string    `json:"action"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	Screenshot string    `json:"screenshot,omitempty"`
}

// Log collects the entries of one application run. It is safe for concurrent use.
type Log struct {
	runID string
	now   func() time.Time

	mu      sync.Mutex
	entries []Entry
}

func New(runID string) *Log {
	return &Log{runID: runID, now: time.Now}
}

func (l *Log) RunID() string { return l.runID }

// Add appends e, stamping it with the current time when unset.
func (l *Log) Add(e Entry) {
	if e.Time.IsZero() {
		e.Time = l.now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Failed reports whether any entry has failed status.
func (l *Log) Failed() bool {
	for _, e := range l.Entries() {
		if e.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Workbook renders the log as a single-sheet workbook.
func (l *Log) Workbook() (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{"Run", "Time", "Step", "Action", "Status", "Detail", "Screenshot"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, e := range l.Entries() {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, l.runID)
		write(2, e.Time.Format(time.RFC3339))
		write(3, e.Step)
		write(4, e.Action)
		write(5, e.Status)
		write(6, e.Detail)
		write(7, e.Screenshot)
	}

	_ = f.SetColWidth(sheet, "A", "A", 38)
	_ = f.SetColWidth(sheet, "B", "B", 22)
	_ = f.SetColWidth(sheet, "C", "C", 6)
	_ = f.SetColWidth(sheet, "D", "D", 40)
	_ = f.SetColWidth(sheet, "E", "E", 10)
	_ = f.SetColWidth(sheet, "F", "F", 80)
	_ = f.SetColWidth(sheet, "G", "G", 40)

	return f, nil
}

// WriteXLSX saves the log to path, creating parent directories. It is meant
// to run after failed runs as well, so partial logs survive.
func (l *Log) WriteXLSX(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create run log dir: %w", err)
		}
	}

	f, err := l.Workbook()
	if err != nil {
		return fmt.Errorf("build run log: %w", err)
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save run log %q: %w", path, err)
	}
	return nil
}
