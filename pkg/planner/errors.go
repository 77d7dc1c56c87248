package planner

import "errors"

var (
	// ErrInvalidInstruction means the instruction was rejected before
	// synthesis (empty or failed upstream screening).
	ErrInvalidInstruction = errors.New("planner: invalid instruction")

	// ErrPlanningTimeout means the reasoning backend did not produce a plan
	// within the synthesis deadline.
	ErrPlanningTimeout = errors.New("planner: planning timed out")

	// ErrPlanningUnavailable means the reasoning backend was unreachable or
	// returned an unusable response.
	ErrPlanningUnavailable = errors.New("planner: planning backend unavailable")
)
