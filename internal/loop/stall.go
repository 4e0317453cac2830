package loop

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// StallReason identifies why the loop looks stuck.
type StallReason string

const (
	// StallReasonNone indicates no stall.
	StallReasonNone StallReason = "none"
	// StallReasonRepeatedOutput indicates the assistant returned the same output repeatedly.
	StallReasonRepeatedOutput StallReason = "repeated_output"
	// StallReasonRepeatedFailure indicates consecutive runner failures.
	StallReasonRepeatedFailure StallReason = "repeated_failure"
)

// StallStatus is the result of a stall check.
type StallStatus struct {
	Stalled     bool
	Reason      StallReason
	Description string
}

// StallDetector watches consecutive iterations for signs that the assistant
// is not making progress. It only reports; it never stops the loop.
type StallDetector struct {
	threshold int

	lastSignature string
	sameOutput    int
	failures      int
}

// NewStallDetector creates a detector that reports after threshold
// consecutive repeats (0 = disabled).
func NewStallDetector(threshold int) *StallDetector {
	return &StallDetector{threshold: threshold}
}

// OutputSignature hashes output after normalising whitespace.
func OutputSignature(output string) string {
	normalized := strings.Join(strings.Fields(output), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Record adds an iteration and returns the resulting status. A stall is
// reported once, on the iteration that reaches the threshold.
func (d *StallDetector) Record(output string, failed bool) StallStatus {
	if d.threshold <= 0 {
		return StallStatus{Reason: StallReasonNone}
	}

	if failed {
		d.failures++
	} else {
		d.failures = 0
	}

	sig := OutputSignature(output)
	if sig == d.lastSignature {
		d.sameOutput++
	} else {
		d.lastSignature = sig
		d.sameOutput = 1
	}

	switch {
	case d.failures == d.threshold:
		return StallStatus{
			Stalled:     true,
			Reason:      StallReasonRepeatedFailure,
			Description: fmt.Sprintf("assistant failed %d iterations in a row", d.failures),
		}
	case !failed && d.sameOutput == d.threshold:
		return StallStatus{
			Stalled:     true,
			Reason:      StallReasonRepeatedOutput,
			Description: fmt.Sprintf("assistant returned the same output %d iterations in a row", d.sameOutput),
		}
	}
	return StallStatus{Reason: StallReasonNone}
}
