package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeTourStart    EventType = "tour_start"
	EventTypeTourRejected EventType = "tour_rejected"
	EventTypeStepShow     EventType = "step_show"
	EventTypeStepTimeout  EventType = "step_timeout"
	EventTypeTourComplete EventType = "tour_complete"
	EventTypeTourCancel   EventType = "tour_cancel"
	EventTypeNavPending   EventType = "nav_pending"
	EventTypeNavResume    EventType = "nav_resume"
	EventTypePersistError EventType = "persist_error"
	EventTypeConfigWarn   EventType = "config_warning"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Tour      string    `json:"tour,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging. A nil *Logger discards everything.
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	filePath string
	maxSize  int64
}

// NewLogger writes events to out and, when filePath is set, appends them to
// a size-rotated JSONL file as well.
func NewLogger(out io.Writer, filePath string) *Logger {
	if out == nil {
		out = os.Stdout
	}
	return &Logger{
		out:      out,
		filePath: filePath,
		maxSize:  10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Fprintf(l.out, "{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))
	if l.filePath != "" {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.filePath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.filePath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.filePath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.filePath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogTourStart(runID, tour string, from, total int) {
	l.Log(Event{
		Type:  EventTypeTourStart,
		RunID: runID,
		Tour:  tour,
		Data:  map[string]int{"from": from, "total": total},
	})
}

func (l *Logger) LogTourRejected(tour string, err error) {
	l.Log(Event{
		Type: EventTypeTourRejected,
		Tour: tour,
		Data: map[string]string{"error": err.Error()},
	})
}

func (l *Logger) LogStep(runID, tour string, index int, anchored, timedOut bool) {
	typ := EventTypeStepShow
	if timedOut {
		typ = EventTypeStepTimeout
	}
	l.Log(Event{
		Type:  typ,
		RunID: runID,
		Tour:  tour,
		Data:  map[string]any{"index": index, "anchored": anchored},
	})
}

func (l *Logger) LogTourEnd(runID, tour string, completed bool, index int) {
	typ := EventTypeTourCancel
	if completed {
		typ = EventTypeTourComplete
	}
	l.Log(Event{
		Type:  typ,
		RunID: runID,
		Tour:  tour,
		Data:  map[string]int{"index": index},
	})
}

func (l *Logger) LogNavigation(typ EventType, tour, path string) {
	l.Log(Event{
		Type: typ,
		Tour: tour,
		Data: map[string]string{"path": path},
	})
}

func (l *Logger) LogPersistError(tour string, err error) {
	l.Log(Event{
		Type: EventTypePersistError,
		Tour: tour,
		Data: map[string]string{"error": err.Error()},
	})
}

func (l *Logger) LogConfigWarning(tour, message string) {
	l.Log(Event{
		Type: EventTypeConfigWarn,
		Tour: tour,
		Data: map[string]string{"message": message},
	})
}
