package observability

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "")

	l.LogTourStart("run-1", "admin-dashboard", 0, 12)
	l.LogStep("run-1", "admin-dashboard", 3, false, true)

	sc := bufio.NewScanner(&buf)
	var events []Event
	for sc.Scan() {
		var e Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		events = append(events, e)
	}
	require.Len(t, events, 2)
	assert.Equal(t, EventTypeTourStart, events[0].Type)
	assert.Equal(t, "run-1", events[0].RunID)
	assert.Equal(t, EventTypeStepTimeout, events[1].Type)
	assert.False(t, events[1].Timestamp.IsZero())
}

func TestLogger_AppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tours.jsonl")
	l := NewLogger(&bytes.Buffer{}, path)

	l.LogPersistError("notes", errors.New("connection refused"))
	l.LogTourEnd("r", "notes", true, 4)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte("\n")))
	assert.Contains(t, string(data), `"type":"tour_complete"`)
}

func TestLogger_NilIsNoop(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.LogConfigWarning("x", "navigation step without router")
	})
}
