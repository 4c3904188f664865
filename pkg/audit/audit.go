// Package audit records structured change events.
//
// Sinks are write-only: producers hand events to a [Sink] and never read
// them back. The package ships a log sink, an append-only JSON Lines file
// sink, an in-memory sink for tests and embedding, and a no-op sink.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Change types.
const (
	ChangeWidgetValue = "widget_value"
	ChangeNodeMode    = "node_mode"
	ChangeLink        = "link"
)

// Event is a single recorded change.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Time       time.Time `json:"time"`
	NodeID     int       `json:"node_id"`
	NodeType   string    `json:"node_type,omitempty"`
	ChangeType string    `json:"change_type"`
	Path       string    `json:"path"`
	OldValue   any       `json:"old_value"`
	NewValue   any       `json:"new_value"`
	Source     string    `json:"source,omitempty"`
}

// NewEvent returns an event with a fresh id and the current time.
func NewEvent(nodeID int, nodeType, changeType, path string, oldValue, newValue any, source string) Event {
	return Event{
		ID:         uuid.New(),
		Time:       time.Now().UTC(),
		NodeID:     nodeID,
		NodeType:   nodeType,
		ChangeType: changeType,
		Path:       path,
		OldValue:   oldValue,
		NewValue:   newValue,
		Source:     source,
	}
}

// WidgetPath returns the event path of a widget value.
func WidgetPath(nodeID int, param string) string {
	return fmt.Sprintf("nodes[%d].widgets.%s", nodeID, param)
}

// ModePath returns the event path of a node mode.
func ModePath(nodeID int) string {
	return fmt.Sprintf("nodes[%d].mode", nodeID)
}

// InputPath returns the event path of the link attached to a node input.
func InputPath(nodeID, slot int) string {
	return fmt.Sprintf("nodes[%d].inputs[%d].link", nodeID, slot)
}

// Sink receives events.
type Sink interface {
	Record(e Event) error
}

// =============================================================================
// Nop
// =============================================================================

// Nop discards events.
type Nop struct{}

// Record does nothing.
func (Nop) Record(Event) error { return nil }

// =============================================================================
// Log
// =============================================================================

// LogSink writes events to a logger at info level.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink creates a sink writing to logger. A nil logger uses log.Default().
func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSink{logger: logger}
}

// Record logs e.
func (s *LogSink) Record(e Event) error {
	s.logger.Info("change",
		"node", e.NodeID,
		"type", e.NodeType,
		"change", e.ChangeType,
		"path", e.Path,
		"old", e.OldValue,
		"new", e.NewValue,
		"source", e.Source,
	)
	return nil
}

// =============================================================================
// Memory
// =============================================================================

// MemorySink keeps events in memory. It is safe for concurrent use.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// Record appends e.
func (s *MemorySink) Record(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// Events returns a copy of the recorded events in order.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// =============================================================================
// File
// =============================================================================

// FileSink appends events to a file as JSON Lines. It is safe for concurrent
// use.
type FileSink struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string
}

// OpenFileSink opens (or creates) path for appending, creating parent
// directories as needed.
func OpenFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &FileSink{f: f, w: bufio.NewWriter(f), path: path}, nil
}

// Path returns the file the sink appends to.
func (s *FileSink) Path() string { return s.path }

// Record appends e as one line and flushes it.
func (s *FileSink) Record(e Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return os.ErrClosed
	}
	s.w.Write(line)
	s.w.WriteByte('\n')
	return s.w.Flush()
}

// Close flushes and closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.w.Flush()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	s.f = nil
	return err
}

// =============================================================================
// Fan-out
// =============================================================================

// Multi sends each event to every sink and returns the first error.
type Multi []Sink

// Record forwards e to all sinks.
func (m Multi) Record(e Event) error {
	var first error
	for _, s := range m {
		if err := s.Record(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var (
	_ Sink = Nop{}
	_ Sink = (*LogSink)(nil)
	_ Sink = (*MemorySink)(nil)
	_ Sink = (*FileSink)(nil)
	_ Sink = Multi(nil)
)
