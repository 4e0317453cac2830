package events

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func newTestWriter(buf *bytes.Buffer, id string) *Writer {
	w := NewWriter(buf, id)
	w.now = func() time.Time { return time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC) }
	return w
}

func TestWriter_SessionHeader(t *testing.T) {
	var buf bytes.Buffer
	w := newTestWriter(&buf, "session-123")

	require.NoError(t, w.WriteSessionHeader("/tmp/workspace"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "session", lines[0]["type"])
	assert.Equal(t, "session-123", lines[0]["id"])
	assert.Equal(t, "/tmp/workspace", lines[0]["cwd"])
	assert.Equal(t, "2026-05-01T08:00:00Z", lines[0]["timestamp"])
}

func TestWriter_EmitAddsEnvelope(t *testing.T) {
	var buf bytes.Buffer
	w := newTestWriter(&buf, "session-456")

	require.NoError(t, w.Emit("message_update", 2, map[string]any{"delta": "hello", "type": "spoofed"}))
	require.NoError(t, w.Emit(TypeAgentStart, 0, map[string]any{"model": "m"}))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "message_update", lines[0]["type"])
	assert.Equal(t, "session-456", lines[0]["sessionId"])
	assert.EqualValues(t, 2, lines[0]["turn"])
	assert.Equal(t, "hello", lines[0]["delta"])

	assert.Equal(t, TypeAgentStart, lines[1]["type"])
	assert.NotContains(t, lines[1], "turn")
}

func TestWriter_EncodeError(t *testing.T) {
	var buf bytes.Buffer
	w := newTestWriter(&buf, "s")

	err := w.Emit("bad", 1, map[string]any{"ch": make(chan int)})
	assert.ErrorContains(t, err, "encoding event")
	assert.Zero(t, buf.Len())
}

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	assert.Len(t, id, 32)
	assert.NotContains(t, id, "-")
	assert.NotEqual(t, id, NewSessionID())
}
