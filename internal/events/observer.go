package events

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/yarlson/coralph/internal/loop"
	"github.com/yarlson/coralph/internal/prompt"
)

// Observer turns loop notifications into events.
type Observer struct {
	loop.NopObserver

	w      *Writer
	failed bool
}

// NewObserver creates a loop observer writing to w.
func NewObserver(w *Writer) *Observer {
	return &Observer{w: w}
}

func (o *Observer) emit(eventType string, turn int, fields map[string]any) {
	if err := o.w.Emit(eventType, turn, fields); err != nil && !o.failed {
		o.failed = true
		log.Warn().Err(err).Str("event", eventType).Msg("event stream write failed")
	}
}

func (o *Observer) IterationStarted(iteration, maxIterations int) {
	o.emit(TypeTurnStart, iteration, map[string]any{"maxIterations": maxIterations})
}

func (o *Observer) IterationFinished(turn loop.Turn) {
	var turnErr any
	if turn.Err != nil {
		turnErr = strings.TrimPrefix(turn.Output, "ERROR: ")
	}
	var signal any
	if turn.Signal != "" {
		signal = string(turn.Signal)
	}
	o.emit(TypeTurnEnd, turn.Iteration, map[string]any{
		"success":        turn.Success(),
		"output":         turn.Output,
		"error":          turnErr,
		"terminalSignal": signal,
		"durationMs":     turn.Duration.Milliseconds(),
	})
}

func (o *Observer) CompleteIgnored(iteration int) {
	o.emit(TypeCompleteIgnored, iteration, map[string]any{"signal": string(prompt.SignalComplete)})
}

func (o *Observer) Warning(msg string) {
	o.emit(TypeWarning, 0, map[string]any{"message": msg})
}

func (o *Observer) LoopStopped(result loop.RunResult) {
	fields := map[string]any{
		"outcome":       string(result.Outcome),
		"iterationsRun": result.IterationsRun,
		"exitCode":      result.ExitCode(),
	}
	if result.Signal != "" {
		fields["terminalSignal"] = string(result.Signal)
	}
	o.emit(TypeAgentEnd, 0, fields)
}
