package events

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarlson/coralph/internal/loop"
	"github.com/yarlson/coralph/internal/prompt"
)

var _ loop.Observer = (*Observer)(nil)

func TestObserver_TurnEvents(t *testing.T) {
	var buf bytes.Buffer
	obs := NewObserver(newTestWriter(&buf, "s1"))

	obs.LoopStarted(5)
	obs.IterationStarted(1, 5)
	obs.IterationFinished(loop.Turn{
		Iteration: 1,
		Output:    "ERROR: CommandError: boom",
		Err:       errors.New("boom"),
		Duration:  1500 * time.Millisecond,
	})
	obs.IterationStarted(2, 5)
	obs.IterationFinished(loop.Turn{Iteration: 2, Output: "ALL_TASKS_COMPLETE", Signal: prompt.SignalAllTasksComplete})
	obs.LoopStopped(loop.RunResult{
		Outcome:       loop.RunOutcomeTerminalSignal,
		Signal:        prompt.SignalAllTasksComplete,
		IterationsRun: 2,
	})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 5)

	assert.Equal(t, TypeTurnStart, lines[0]["type"])
	assert.EqualValues(t, 5, lines[0]["maxIterations"])

	assert.Equal(t, TypeTurnEnd, lines[1]["type"])
	assert.Equal(t, false, lines[1]["success"])
	assert.Equal(t, "CommandError: boom", lines[1]["error"])
	assert.Nil(t, lines[1]["terminalSignal"])
	assert.EqualValues(t, 1500, lines[1]["durationMs"])

	assert.Equal(t, true, lines[3]["success"])
	assert.Nil(t, lines[3]["error"])
	assert.Equal(t, "ALL_TASKS_COMPLETE", lines[3]["terminalSignal"])

	assert.Equal(t, TypeAgentEnd, lines[4]["type"])
	assert.EqualValues(t, 0, lines[4]["exitCode"])
	assert.Equal(t, "stopped_by_terminal_signal", lines[4]["outcome"])
}

func TestObserver_WarningsAndOverrides(t *testing.T) {
	var buf bytes.Buffer
	obs := NewObserver(newTestWriter(&buf, "s1"))

	obs.CompleteIgnored(3)
	obs.Warning("careful")
	obs.Notice("not emitted")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, TypeCompleteIgnored, lines[0]["type"])
	assert.EqualValues(t, 3, lines[0]["turn"])
	assert.Equal(t, "careful", lines[1]["message"])
}

type failingWriter struct{ calls int }

func (f *failingWriter) Write([]byte) (int, error) {
	f.calls++
	return 0, errors.New("disk full")
}

func TestObserver_WriteFailureDoesNotPanic(t *testing.T) {
	fw := &failingWriter{}
	obs := NewObserver(NewWriter(fw, "s"))

	obs.Warning("a")
	obs.Warning("b")

	assert.Equal(t, 2, fw.calls)
	assert.True(t, obs.failed)
}
