package console

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yarlson/coralph/internal/backlog"
	"github.com/yarlson/coralph/internal/loop"
	"github.com/yarlson/coralph/internal/prompt"
)

func newTestSink(opts Options) (*Sink, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return New(&out, &errOut, opts), &out, &errOut
}

func TestSink_IterationHeader(t *testing.T) {
	s, out, _ := newTestSink(Options{})

	s.IterationStarted(2, 10)

	assert.Equal(t, "\n=== Iteration 2/10 ===\n\n", out.String())
}

func TestSink_WriterWaitsForLock(t *testing.T) {
	s, out, _ := newTestSink(Options{})
	w := s.Writer()

	s.mu.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = w.Write([]byte("chunk"))
	}()
	select {
	case <-done:
		t.Fatal("write went through while the sink was locked")
	case <-time.After(50 * time.Millisecond):
	}
	s.mu.Unlock()
	<-done

	assert.Equal(t, "chunk", out.String())
}

func TestSink_WriterDoesNotInterleave(t *testing.T) {
	s, out, _ := newTestSink(Options{})
	w := s.Writer()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = w.Write([]byte("streamed chunk\n"))
		}()
		go func() {
			defer wg.Done()
			s.Notice("notice line")
		}()
	}
	wg.Wait()

	for _, line := range strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n") {
		assert.Contains(t, []string{"streamed chunk", "notice line"}, line)
	}
}

func TestSink_SignalDetected(t *testing.T) {
	s, out, _ := newTestSink(Options{})

	s.SignalDetected(3, prompt.SignalAllTasksComplete)

	assert.Contains(t, out.String(), "ALL_TASKS_COMPLETE detected, stopping.")
}

func TestSink_WarningsGoToErrOut(t *testing.T) {
	s, out, errOut := newTestSink(Options{BacklogFile: "/repo/generated_tasks.json"})

	s.CompleteIgnored(1)
	s.Warning("careful")

	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "COMPLETE signal ignored: open tasks remain in generated_tasks.json")
	assert.Contains(t, errOut.String(), "careful")
}

func TestSink_IterationFinished(t *testing.T) {
	t.Run("error printed", func(t *testing.T) {
		s, out, errOut := newTestSink(Options{})
		s.IterationFinished(loop.Turn{Output: "ERROR: CommandError: boom", Err: errors.New("boom")})
		assert.Empty(t, out.String())
		assert.Contains(t, errOut.String(), "ERROR: CommandError: boom")
	})

	t.Run("output echoed only when enabled", func(t *testing.T) {
		s, out, _ := newTestSink(Options{})
		s.IterationFinished(loop.Turn{Output: "did things"})
		assert.Empty(t, out.String())

		s, out, _ = newTestSink(Options{EchoOutput: true})
		s.IterationFinished(loop.Turn{Output: "did things"})
		assert.Equal(t, "did things\n", out.String())
	})

	t.Run("pause request noticed", func(t *testing.T) {
		s, out, _ := newTestSink(Options{})
		s.IterationFinished(loop.Turn{Output: "HANG_ON_A_SECOND", Signals: []prompt.Signal{prompt.SignalHangOnASecond}})
		assert.Contains(t, out.String(), "HANG_ON_A_SECOND")
	})
}

func TestSink_LoopStopped(t *testing.T) {
	s, out, errOut := newTestSink(Options{})

	s.LoopStopped(loop.RunResult{Outcome: loop.RunOutcomeBudgetExhausted, IterationsRun: 3, ElapsedTime: 61 * time.Second})
	assert.Contains(t, out.String(), "Finished after 3 iteration(s) in 1m1s.")

	s.LoopStopped(loop.RunResult{Outcome: loop.RunOutcomeFatalError, Message: "failed to parse issues file"})
	assert.Contains(t, errOut.String(), "failed to parse issues file")
}

func TestSink_NoColorWithoutTerminal(t *testing.T) {
	s, _, errOut := newTestSink(Options{Color: false})
	s.Warning("plain")
	assert.Equal(t, "plain\n", errOut.String())
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}

func TestSummaryLine(t *testing.T) {
	assert.Equal(t, "Backlog: none", SummaryLine(backlog.Snapshot{}))
	assert.Contains(t, SummaryLine(backlog.Snapshot{Err: errors.New("bad json")}), "bad json")

	snap := backlog.Snapshot{
		Exists: true,
		Counts: backlog.Counts{Total: 4, Open: 2, InProgress: 1, Done: 1},
		Next:   &backlog.Task{ID: "issue-1-2", Title: "Add docs"},
	}
	assert.Equal(t, "Backlog: 2 open, 1 in progress, 1 done, 0 blocked; next: Add docs (issue-1-2)", SummaryLine(snap))
}

func TestSink_BacklogChanged(t *testing.T) {
	s, out, errOut := newTestSink(Options{})

	s.BacklogChanged(backlog.Snapshot{Exists: true, Counts: backlog.Counts{Open: 1}})
	s.BacklogChanged(backlog.Snapshot{Err: errors.New("malformed")})

	assert.Contains(t, out.String(), "Backlog: 1 open")
	assert.Contains(t, errOut.String(), "Backlog unreadable: malformed")
}
