package loop

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yarlson/coralph/internal/prompt"
)

// Turn describes a finished assistant turn.
type Turn struct {
	Iteration int

	// Output is the assistant output, or the formatted error when the turn failed.
	Output string

	// Err is the runner error, nil on success.
	Err error

	// Signal is the terminal signal found in Output, if any.
	Signal prompt.Signal

	// Signals lists every signal in Output, including informational ones.
	Signals []prompt.Signal

	Duration time.Duration
}

// Success reports whether the runner returned without error.
func (t Turn) Success() bool {
	return t.Err == nil
}

// Observer receives loop notifications. Implementations render them,
// record them, or count them; none may block for long.
type Observer interface {
	LoopStarted(maxIterations int)
	IterationStarted(iteration, maxIterations int)
	IterationFinished(turn Turn)
	CompleteIgnored(iteration int)
	SignalDetected(iteration int, signal prompt.Signal)
	Notice(msg string)
	Warning(msg string)
	LoopStopped(result RunResult)
}

// MultiObserver fans notifications out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) LoopStarted(maxIterations int) {
	for _, o := range m {
		o.LoopStarted(maxIterations)
	}
}

func (m MultiObserver) IterationStarted(iteration, maxIterations int) {
	for _, o := range m {
		o.IterationStarted(iteration, maxIterations)
	}
}

func (m MultiObserver) IterationFinished(turn Turn) {
	for _, o := range m {
		o.IterationFinished(turn)
	}
}

func (m MultiObserver) CompleteIgnored(iteration int) {
	for _, o := range m {
		o.CompleteIgnored(iteration)
	}
}

func (m MultiObserver) SignalDetected(iteration int, signal prompt.Signal) {
	for _, o := range m {
		o.SignalDetected(iteration, signal)
	}
}

func (m MultiObserver) Notice(msg string) {
	for _, o := range m {
		o.Notice(msg)
	}
}

func (m MultiObserver) Warning(msg string) {
	for _, o := range m {
		o.Warning(msg)
	}
}

func (m MultiObserver) LoopStopped(result RunResult) {
	for _, o := range m {
		o.LoopStopped(result)
	}
}

// NopObserver ignores every notification. Embed it to implement only part
// of Observer.
type NopObserver struct{}

func (NopObserver) LoopStarted(int)                   {}
func (NopObserver) IterationStarted(int, int)         {}
func (NopObserver) IterationFinished(Turn)            {}
func (NopObserver) CompleteIgnored(int)               {}
func (NopObserver) SignalDetected(int, prompt.Signal) {}
func (NopObserver) Notice(string)                     {}
func (NopObserver) Warning(string)                    {}
func (NopObserver) LoopStopped(RunResult)             {}

// LogObserver writes notifications to the global zerolog logger.
type LogObserver struct{}

func (LogObserver) LoopStarted(maxIterations int) {
	log.Info().Int("max_iterations", maxIterations).Msg("loop started")
}

func (LogObserver) IterationStarted(iteration, maxIterations int) {
	log.Info().Int("iteration", iteration).Int("max_iterations", maxIterations).Msg("iteration started")
}

func (LogObserver) IterationFinished(turn Turn) {
	ev := log.Info()
	if turn.Err != nil {
		ev = log.Error().Err(turn.Err)
	}
	ev.Int("iteration", turn.Iteration).
		Bool("success", turn.Success()).
		Str("signal", string(turn.Signal)).
		Dur("duration", turn.Duration).
		Int("output_bytes", len(turn.Output)).
		Msg("iteration finished")
}

func (LogObserver) CompleteIgnored(iteration int) {
	log.Warn().Int("iteration", iteration).Msg("COMPLETE signal ignored, open tasks remain in backlog")
}

func (LogObserver) SignalDetected(iteration int, signal prompt.Signal) {
	log.Info().Int("iteration", iteration).Str("signal", string(signal)).Msg("terminal signal detected, stopping loop")
}

func (LogObserver) Notice(msg string) {
	log.Info().Msg(msg)
}

func (LogObserver) Warning(msg string) {
	log.Warn().Msg(msg)
}

func (LogObserver) LoopStopped(result RunResult) {
	log.Info().
		Str("outcome", string(result.Outcome)).
		Str("signal", string(result.Signal)).
		Int("iterations", result.IterationsRun).
		Int("exit_code", result.ExitCode()).
		Dur("elapsed", result.ElapsedTime).
		Msg(result.Message)
}
