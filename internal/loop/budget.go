package loop

import (
	"fmt"
	"time"
)

// BudgetReasonCode identifies why a budget check failed.
type BudgetReasonCode string

const (
	// BudgetReasonNone indicates no budget limit was exceeded.
	BudgetReasonNone BudgetReasonCode = "none"
	// BudgetReasonIterations indicates the iteration limit was reached.
	BudgetReasonIterations BudgetReasonCode = "iterations"
	// BudgetReasonTime indicates the wall-clock limit was reached.
	BudgetReasonTime BudgetReasonCode = "time"
)

// BudgetLimits defines how long a run may go on.
type BudgetLimits struct {
	// MaxIterations is the maximum number of iterations (0 = unlimited).
	MaxIterations int `json:"max_iterations"`

	// MaxMinutes is the maximum wall-clock time for the run (0 = unlimited).
	MaxMinutes int `json:"max_minutes"`
}

// BudgetStatus represents the result of a budget check.
type BudgetStatus struct {
	// CanContinue indicates whether another iteration may start.
	CanContinue bool

	// Reason is a human-readable explanation if CanContinue is false.
	Reason string

	// ReasonCode identifies the limit that was reached.
	ReasonCode BudgetReasonCode
}

// BudgetTracker counts iterations against the configured limits.
type BudgetTracker struct {
	limits     BudgetLimits
	iterations int
	startTime  time.Time
	now        func() time.Time
}

// NewBudgetTracker creates a tracker whose clock starts immediately.
func NewBudgetTracker(limits BudgetLimits) *BudgetTracker {
	return &BudgetTracker{limits: limits, startTime: time.Now(), now: time.Now}
}

// RecordIteration records a finished iteration.
func (bt *BudgetTracker) RecordIteration() {
	bt.iterations++
}

// Iterations returns the number of finished iterations.
func (bt *BudgetTracker) Iterations() int {
	return bt.iterations
}

// CheckBudget reports whether another iteration may start.
func (bt *BudgetTracker) CheckBudget() BudgetStatus {
	if bt.limits.MaxIterations > 0 && bt.iterations >= bt.limits.MaxIterations {
		return BudgetStatus{
			Reason:     fmt.Sprintf("max iteration limit reached (%d/%d)", bt.iterations, bt.limits.MaxIterations),
			ReasonCode: BudgetReasonIterations,
		}
	}

	if bt.limits.MaxMinutes > 0 {
		elapsed := bt.ElapsedTime()
		if elapsed >= time.Duration(bt.limits.MaxMinutes)*time.Minute {
			return BudgetStatus{
				Reason:     fmt.Sprintf("max time limit exceeded (%.1f/%d minutes)", elapsed.Minutes(), bt.limits.MaxMinutes),
				ReasonCode: BudgetReasonTime,
			}
		}
	}

	return BudgetStatus{CanContinue: true, ReasonCode: BudgetReasonNone}
}

// ElapsedTime returns the time since the tracker was created.
func (bt *BudgetTracker) ElapsedTime() time.Duration {
	return bt.now().Sub(bt.startTime)
}
