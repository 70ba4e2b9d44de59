package solver

import (
	"github.com/shopworks/sched/internal/calendar"
	"github.com/shopworks/sched/internal/models"
)

// ModeVar is one candidate (task, mode) interval family. Exactly one
// candidate per task is present in a solution.
type ModeVar struct {
	Mode models.TaskMode
	// MachineMask is the working mask of the mode's machine.
	MachineMask []bool
	// SetupQuanta/TeardownQuanta are the machine-side extensions,
	// mode override falling back to the machine defaults.
	SetupQuanta    int
	TeardownQuanta int
}

// TaskVar is the decision bundle for one task: its candidate modes,
// effective predecessors and role candidate pools.
type TaskVar struct {
	Task     models.Task
	JobID    string
	Priority models.Priority
	// Preds are the effective predecessor task IDs: the explicit DAG
	// edges, or the implicit previous-task edge within the job.
	Preds []string
	// Candidates is ordered; the engine tries them in order so the
	// ordering is part of deterministic tie-breaking.
	Candidates []ModeVar
	// RoleCandidates[i] lists operator IDs qualified for
	// Task.Requirements[i], sorted by (cost factor, ID).
	RoleCandidates [][]string
	// MinDuration is the shortest candidate processing duration, used
	// for bounds.
	MinDuration int
}

// Relaxation disables one constraint class; used only by the
// infeasibility probe, never by regular solves.
type Relaxation struct {
	Precedence bool
	Capacity   bool // machine no-overlap + zone WIP limits
	Roles      bool
}

// Model is the abstract optimization problem: interval variables with
// presence semantics, precedence arcs, per-resource no-overlap,
// per-zone cumulative limits and calendar domains.
type Model struct {
	Cal     *calendar.Service
	Policy  calendar.Policy
	Horizon int

	// Tasks in topological order over the effective precedence DAG.
	Tasks []*TaskVar
	// ByID indexes Tasks.
	ByID map[string]*TaskVar

	// OperatorMask maps operator ID to its working mask; Operators
	// maps to the domain record (for cost factors).
	OperatorMask map[string][]bool
	Operators    map[string]*models.Operator

	// ZoneLimit maps zone ID to its WIP limit.
	ZoneLimit map[string]int

	// ReleaseQ/DueQ map job ID to quantum bounds on the horizon. A job
	// with no due date maps to Horizon (never tardy).
	ReleaseQ map[string]int
	DueQ     map[string]int
	JobPrio  map[string]models.Priority

	Weights Weights

	// MakespanLB and CostLB are contention-free lower bounds used for
	// optimality detection.
	MakespanLB int
	CostLB     float64

	Relax Relaxation
}

// LowerBound is the objective value no assignment can beat.
func (m *Model) LowerBound() float64 {
	return m.Weights.Makespan*float64(m.MakespanLB) + m.Weights.OperatorCost*m.CostLB
}

// WithRelaxation returns a shallow copy of the model with one
// constraint class disabled.
func (m *Model) WithRelaxation(r Relaxation) *Model {
	c := *m
	c.Relax = r
	return &c
}
