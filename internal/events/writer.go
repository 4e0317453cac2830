// Package events writes the machine-readable JSONL event stream.
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeSession         = "session"
	TypeAgentStart      = "agent_start"
	TypeAgentEnd        = "agent_end"
	TypeTurnStart       = "turn_start"
	TypeTurnEnd         = "turn_end"
	TypeCompleteIgnored = "complete_ignored"
	TypeWarning         = "warning"
)

// NewSessionID returns a random 32 character hex id.
func NewSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Writer serialises events as one JSON object per line. It is safe for
// concurrent use.
type Writer struct {
	mu        sync.Mutex
	w         io.Writer
	sessionID string
	now       func() time.Time
}

// NewWriter creates a Writer for the given session.
func NewWriter(w io.Writer, sessionID string) *Writer {
	return &Writer{w: w, sessionID: sessionID, now: time.Now}
}

// SessionID returns the session id stamped on every event.
func (w *Writer) SessionID() string {
	return w.sessionID
}

// WriteSessionHeader writes the first line of the stream.
func (w *Writer) WriteSessionHeader(cwd string) error {
	return w.writeLine(map[string]any{
		"type":      TypeSession,
		"id":        w.sessionID,
		"cwd":       cwd,
		"timestamp": w.timestamp(),
	})
}

// Emit writes one event. A turn of 0 is omitted. Fields may not override
// the envelope keys.
func (w *Writer) Emit(eventType string, turn int, fields map[string]any) error {
	line := make(map[string]any, len(fields)+4)
	for k, v := range fields {
		line[k] = v
	}
	line["type"] = eventType
	line["sessionId"] = w.sessionID
	line["timestamp"] = w.timestamp()
	if turn > 0 {
		line["turn"] = turn
	}
	return w.writeLine(line)
}

func (w *Writer) timestamp() string {
	return w.now().UTC().Format(time.RFC3339Nano)
}

func (w *Writer) writeLine(v map[string]any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}
