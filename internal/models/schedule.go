package models

import "time"

// Quality tags a schedule with how good the solver result is.
type Quality string

const (
	// QualityOptimal means the objective was proven at its lower bound.
	QualityOptimal Quality = "optimal"
	// QualityFeasible means a valid but possibly suboptimal assignment.
	QualityFeasible Quality = "feasible"
	// QualityInfeasible means no valid assignment exists; the schedule
	// is empty and carries a diagnostic.
	QualityInfeasible Quality = "infeasible"
)

// ScheduleAssignment places one task: the chosen mode, machine,
// operator set and time window. Quanta index the solve horizon; the
// wall-clock times are resolved through the calendar at
// materialization.
type ScheduleAssignment struct {
	TaskID      string    `json:"task_id"`
	JobID       string    `json:"job_id"`
	ModeID      string    `json:"mode_id"`
	MachineID   string    `json:"machine_id"`
	ZoneID      string    `json:"zone_id"`
	OperatorIDs []string  `json:"operator_ids,omitempty"`
	StartQ      int       `json:"start_q"`
	EndQ        int       `json:"end_q"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// Schedule is the immutable output of one solve. Re-solving the same
// fingerprint produces a new Schedule with a higher Version, never a
// mutation of a prior one.
type Schedule struct {
	ID          string               `json:"id"`
	Fingerprint string               `json:"fingerprint"`
	Version     int                  `json:"version"`
	Quality     Quality              `json:"quality"`
	Objective   float64              `json:"objective"`
	MakespanQ   int                  `json:"makespan_q"`
	Diagnostic  string               `json:"diagnostic,omitempty"`
	Assignments []ScheduleAssignment `json:"assignments"`
	SolvedAt    time.Time            `json:"solved_at"`
	WallTime    time.Duration        `json:"wall_time"`
}

// Empty reports whether the schedule carries no assignments.
func (s *Schedule) Empty() bool { return len(s.Assignments) == 0 }
