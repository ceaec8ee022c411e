// Package assistant answers questions through a hosted assistant (OpenAI or
// Azure OpenAI Assistants) that searches the uploaded constitution files
// itself. A thread run is driven through a small state machine and polled
// with bounded exponential backoff until it completes, fails or the
// deadline passes.
package assistant

import "errors"

// RunState is the lifecycle state of one assistant run.
type RunState int

const (
	// Created is the state before the run has been reported by the vendor.
	Created RunState = iota
	// Queued means the run is waiting for capacity.
	Queued
	// Running means the assistant is working on the answer.
	Running
	// Completed is terminal: the answer is available.
	Completed
	// Failed is terminal: the run will not produce an answer.
	Failed
)

// ErrRunFailed is returned when a run ends in Failed.
var ErrRunFailed = errors.New("assistant: run failed")

// String implements fmt.Stringer.
func (s RunState) String() string {
	switch s {
	case Created:
		return "created"
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s RunState) Terminal() bool {
	return s == Completed || s == Failed
}

// FromStatus maps a vendor run status to a RunState. Statuses that need a
// client action this package does not perform (tool outputs) count as
// failures, as do unknown statuses.
func FromStatus(status string) RunState {
	switch status {
	case "queued":
		return Queued
	case "in_progress", "cancelling":
		return Running
	case "completed":
		return Completed
	default:
		// failed, cancelled, expired, requires_action, incomplete.
		return Failed
	}
}

// next returns the state after observing to while in from. Terminal states
// absorb every observation, and a run never moves back to Created.
func next(from, to RunState) RunState {
	if from.Terminal() {
		return from
	}
	if to == Created {
		return from
	}
	return to
}
