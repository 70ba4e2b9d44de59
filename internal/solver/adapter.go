// Package solver compiles a shop snapshot into an abstract
// interval/cumulative model and searches it for an objective-optimized
// assignment under a wall-clock budget.
package solver

import (
	"context"
	"time"
)

// Status classifies the outcome of a solve.
type Status string

const (
	// StatusOptimal means the incumbent objective met the model's
	// lower bound (or an engine proved optimality).
	StatusOptimal Status = "optimal"
	// StatusFeasible means a valid assignment that may be suboptimal,
	// including budget-exhausted incumbents.
	StatusFeasible Status = "feasible"
	// StatusInfeasible means the search space was exhausted without a
	// valid assignment.
	StatusInfeasible Status = "infeasible"
	// StatusTimeoutNoSolution means the budget ran out before any
	// feasible assignment was found. Retryable with a larger budget.
	StatusTimeoutNoSolution Status = "timeout_no_solution"
	// StatusCancelled means the caller cancelled the solve.
	StatusCancelled Status = "cancelled"
)

// OperatorAssignment binds one operator to a task for a number of
// working quanta (full duration or setup only, per the role).
type OperatorAssignment struct {
	OperatorID string
	Skill      string
	Quanta     int
}

// Assignment places one task on its chosen mode.
type Assignment struct {
	TaskID    string
	JobID     string
	ModeID    string
	MachineID string
	ZoneID    string
	Operators []OperatorAssignment
	// StartQ/EndQ bound the processing run on the horizon; Quanta
	// lists the working quanta actually consumed (they differ under
	// the pause policy, where a run spans non-working gaps).
	StartQ int
	EndQ   int
	Quanta []int
	// SetupQuanta are the machine-side setup quanta preceding StartQ.
	SetupQuanta []int
}

// OperatorIDs returns the distinct assigned operator IDs in order.
func (a *Assignment) OperatorIDs() []string {
	ids := make([]string, 0, len(a.Operators))
	seen := make(map[string]struct{}, len(a.Operators))
	for _, oa := range a.Operators {
		if _, dup := seen[oa.OperatorID]; dup {
			continue
		}
		seen[oa.OperatorID] = struct{}{}
		ids = append(ids, oa.OperatorID)
	}
	return ids
}

// Result is the outcome of one solve call.
type Result struct {
	Status      Status
	Assignments []Assignment
	Objective   float64
	Bound       float64
	MakespanQ   int
	WallTime    time.Duration
	Passes      int
}

// Options tune a single solve.
type Options struct {
	// Budget is the hard wall-clock limit. Zero means DefaultBudget.
	Budget time.Duration
	// MaxPasses caps the number of dispatch orders tried. Zero means
	// DefaultMaxPasses.
	MaxPasses int
	// Seed drives the deterministic order perturbations.
	Seed int64
}

// DefaultBudget bounds a solve when the caller does not.
const DefaultBudget = 10 * time.Second

// DefaultMaxPasses bounds the dispatch orders tried per solve.
const DefaultMaxPasses = 48

// Engine is the pluggable solver contract. Implementations must honor
// the budget by returning the best incumbent found so far, observe ctx
// cancellation at sub-second granularity, and break objective ties
// deterministically (makespan, then weighted tardiness, then operator
// cost, then lexicographic task order).
type Engine interface {
	Solve(ctx context.Context, m *Model, opts Options) (*Result, error)
}
