package models

import (
	"errors"
	"testing"
	"time"
)

func testJob(status JobStatus) *Job {
	return &Job{
		ID:       "job-1",
		Quantity: 10,
		Priority: PriorityNormal,
		Status:   status,
		Tasks: []Task{
			{ID: "t1", JobID: "job-1", Status: TaskCompleted,
				Modes: []TaskMode{{ID: "m1", MachineID: "mc1", ZoneID: "z1", DurationQuanta: 2}}},
		},
	}
}

func TestJobTransitions(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{"planned to released", JobPlanned, JobReleased, true},
		{"planned to cancelled", JobPlanned, JobCancelled, true},
		{"planned to completed", JobPlanned, JobCompleted, false},
		{"planned to in_progress", JobPlanned, JobInProgress, false},
		{"released to in_progress", JobReleased, JobInProgress, true},
		{"released to on_hold", JobReleased, JobOnHold, true},
		{"in_progress to completed", JobInProgress, JobCompleted, true},
		{"in_progress to on_hold", JobInProgress, JobOnHold, true},
		{"completed is terminal", JobCompleted, JobCancelled, false},
		{"cancelled is terminal", JobCancelled, JobReleased, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := testJob(tt.from)
			ev, err := j.TransitionTo(tt.to, now)
			if tt.allowed {
				if err != nil {
					t.Fatalf("TransitionTo(%s) failed: %v", tt.to, err)
				}
				if ev.From != tt.from || ev.To != tt.to {
					t.Errorf("event = %s -> %s, want %s -> %s", ev.From, ev.To, tt.from, tt.to)
				}
				if j.Status != tt.to {
					t.Errorf("status = %s, want %s", j.Status, tt.to)
				}
				return
			}
			if err == nil {
				t.Fatalf("TransitionTo(%s) from %s should fail", tt.to, tt.from)
			}
			var inv *ErrInvalidTransition
			if !errors.As(err, &inv) {
				t.Errorf("error type = %T, want *ErrInvalidTransition", err)
			}
		})
	}
}

func TestJobHoldResumesToPriorState(t *testing.T) {
	now := time.Now()

	j := testJob(JobInProgress)
	if _, err := j.TransitionTo(JobOnHold, now); err != nil {
		t.Fatalf("hold: %v", err)
	}

	// Resuming to a state other than the pre-hold one is rejected.
	if _, err := j.TransitionTo(JobReleased, now); err == nil {
		t.Fatal("resume to released should fail, job was in_progress")
	}
	if _, err := j.TransitionTo(JobInProgress, now); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if j.Status != JobInProgress {
		t.Errorf("status = %s, want in_progress", j.Status)
	}
}

func TestJobCompleteRequiresTasksResolved(t *testing.T) {
	now := time.Now()

	j := testJob(JobInProgress)
	j.Tasks[0].Status = TaskRunning
	if _, err := j.TransitionTo(JobCompleted, now); err == nil {
		t.Fatal("complete with running task should fail")
	}

	j.Tasks[0].Status = TaskSkipped
	if _, err := j.TransitionTo(JobCompleted, now); err != nil {
		t.Fatalf("complete with skipped task: %v", err)
	}
	if j.ActualEnd == nil || !j.ActualEnd.Equal(now) {
		t.Error("actual end not stamped on completion")
	}
}

func TestJobActualStartStamped(t *testing.T) {
	now := time.Now()

	j := testJob(JobReleased)
	if _, err := j.TransitionTo(JobInProgress, now); err != nil {
		t.Fatalf("start: %v", err)
	}
	if j.ActualStart == nil {
		t.Fatal("actual start not stamped")
	}
}
