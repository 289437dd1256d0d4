package runlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestAddStampsTime(t *testing.T) {
	fixed := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	l := New("run-1")
	l.now = func() time.Time { return fixed }

	l.Add(Entry{Step: 1, Action: "open page", Status: StatusOK})
	l.Add(Entry{Time: fixed.Add(time.Minute), Step: 2, Action: "fill name", Status: StatusFailed})

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, fixed, entries[0].Time)
	assert.Equal(t, fixed.Add(time.Minute), entries[1].Time)
	assert.True(t, l.Failed())
}

func TestEntriesReturnsCopy(t *testing.T) {
	l := New("run-1")
	l.Add(Entry{Action: "a"})

	entries := l.Entries()
	entries[0].Action = "mutated"

	assert.Equal(t, "a", l.Entries()[0].Action)
	assert.False(t, l.Failed())
}

func TestWriteXLSX(t *testing.T) {
	l := New("8d5c7f0e")
	l.Add(Entry{Step: 1, Action: "navigate", Status: StatusOK, Detail: "opened careers page"})
	l.Add(Entry{Step: 2, Action: "upload resume", Status: StatusFailed, Detail: "input not found", Screenshot: "step-2.png"})

	path := filepath.Join(t.TempDir(), "logs", "run.xlsx")
	require.NoError(t, l.WriteXLSX(path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"Run", "Time", "Step", "Action", "Status", "Detail", "Screenshot"}, rows[0])
	assert.Equal(t, "8d5c7f0e", rows[1][0])
	assert.Equal(t, "navigate", rows[1][3])
	assert.Equal(t, "failed", rows[2][4])
	assert.Equal(t, "step-2.png", rows[2][6])
}

func TestWriteXLSXEmptyLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, New("run").WriteXLSX(path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
