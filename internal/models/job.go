// Package models defines the scheduling domain: jobs, tasks, resources,
// production zones and materialized schedules.
package models

import (
	"fmt"
	"time"
)

// Priority orders jobs for dispatch and weights their tardiness.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// Weight returns the tardiness multiplier for the priority.
func (p Priority) Weight() float64 {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	default:
		return 1
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobPlanned    JobStatus = "planned"
	JobReleased   JobStatus = "released"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobCancelled  JobStatus = "cancelled"
	JobOnHold     JobStatus = "on_hold"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobCancelled
}

// ErrInvalidTransition is returned for disallowed status changes.
type ErrInvalidTransition struct {
	JobID string
	From  JobStatus
	To    JobStatus
	Cause string
}

func (e *ErrInvalidTransition) Error() string {
	if e.Cause != "" {
		return fmt.Sprintf("job %s: invalid transition %s -> %s: %s", e.JobID, e.From, e.To, e.Cause)
	}
	return fmt.Sprintf("job %s: invalid transition %s -> %s", e.JobID, e.From, e.To)
}

// Job is a manufacturing order: an ordered set of tasks for a part.
type Job struct {
	ID           string     `json:"id" yaml:"id"`
	CustomerRef  string     `json:"customer_ref,omitempty" yaml:"customer_ref,omitempty"`
	PartNumber   string     `json:"part_number,omitempty" yaml:"part_number,omitempty"`
	Quantity     int        `json:"quantity" yaml:"quantity"`
	Priority     Priority   `json:"priority" yaml:"priority"`
	Status       JobStatus  `json:"status" yaml:"status"`
	ReleaseDate  time.Time  `json:"release_date,omitempty" yaml:"release_date,omitempty"`
	DueDate      time.Time  `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	PlannedStart *time.Time `json:"planned_start,omitempty" yaml:"-"`
	PlannedEnd   *time.Time `json:"planned_end,omitempty" yaml:"-"`
	ActualStart  *time.Time `json:"actual_start,omitempty" yaml:"-"`
	ActualEnd    *time.Time `json:"actual_end,omitempty" yaml:"-"`
	Tasks        []Task     `json:"tasks" yaml:"tasks"`

	// resumeTo remembers the pre-hold status while the job is on hold.
	resumeTo JobStatus
}

// allowedTransitions maps each status to the set of directly reachable
// statuses. on_hold is handled separately because its successor depends
// on the pre-hold state.
var allowedTransitions = map[JobStatus][]JobStatus{
	JobPlanned:    {JobReleased, JobCancelled},
	JobReleased:   {JobInProgress, JobOnHold, JobCancelled},
	JobInProgress: {JobCompleted, JobOnHold, JobCancelled},
	JobOnHold:     {JobReleased, JobInProgress, JobCancelled},
}

// CanTransition reports whether the status change is allowed by the
// state machine, ignoring task-completion preconditions.
func (j *Job) CanTransition(to JobStatus) bool {
	if j.Status.Terminal() || j.Status == to {
		return false
	}
	for _, s := range allowedTransitions[j.Status] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionTo validates and applies a status change, returning the
// resulting domain event. The caller forwards the event to its
// publisher; the model itself performs no I/O.
func (j *Job) TransitionTo(to JobStatus, at time.Time) (JobStatusChanged, error) {
	from := j.Status
	if !j.CanTransition(to) {
		return JobStatusChanged{}, &ErrInvalidTransition{JobID: j.ID, From: from, To: to}
	}
	if from == JobOnHold && to != JobCancelled && to != j.resumeTo {
		return JobStatusChanged{}, &ErrInvalidTransition{
			JobID: j.ID, From: from, To: to,
			Cause: fmt.Sprintf("must resume to %s", j.resumeTo),
		}
	}
	if to == JobCompleted {
		for i := range j.Tasks {
			t := &j.Tasks[i]
			if t.Status != TaskCompleted && t.Status != TaskSkipped {
				return JobStatusChanged{}, &ErrInvalidTransition{
					JobID: j.ID, From: from, To: to,
					Cause: fmt.Sprintf("task %s is %s", t.ID, t.Status),
				}
			}
		}
	}

	switch to {
	case JobOnHold:
		j.resumeTo = from
	case JobInProgress:
		if j.ActualStart == nil {
			start := at
			j.ActualStart = &start
		}
	case JobCompleted:
		end := at
		j.ActualEnd = &end
	}
	j.Status = to

	return JobStatusChanged{JobID: j.ID, From: from, To: to, At: at}, nil
}

// Validate checks the job's own invariants (not cross-entity
// references, which ShopState.Validate covers).
func (j *Job) Validate() error {
	if j.ID == "" {
		return &ValidationError{Entity: "job", Field: "id", Msg: "missing id"}
	}
	if j.Quantity < 0 {
		return &ValidationError{Entity: "job", ID: j.ID, Field: "quantity", Msg: "negative quantity"}
	}
	if j.ActualStart != nil && !j.ReleaseDate.IsZero() && j.ActualStart.Before(j.ReleaseDate) {
		return &ValidationError{Entity: "job", ID: j.ID, Field: "actual_start", Msg: "starts before release date"}
	}
	if j.ActualEnd != nil && j.ActualStart != nil && j.ActualEnd.Before(*j.ActualStart) {
		return &ValidationError{Entity: "job", ID: j.ID, Field: "actual_end", Msg: "ends before start"}
	}
	if len(j.Tasks) == 0 {
		return &ValidationError{Entity: "job", ID: j.ID, Field: "tasks", Msg: "job has no tasks"}
	}
	for i := range j.Tasks {
		if err := j.Tasks[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
