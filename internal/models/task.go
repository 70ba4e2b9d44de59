package models

// TaskStatus is the lifecycle state of a single task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskScheduled TaskStatus = "scheduled"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskSkipped   TaskStatus = "skipped"
)

// Attendance says how long an operator role must stay with a task.
type Attendance string

const (
	// AttendanceFull keeps the operator for the whole processing run.
	AttendanceFull Attendance = "full_duration"
	// AttendanceSetupOnly releases the operator after machine setup.
	AttendanceSetupOnly Attendance = "setup_only"
)

// RoleRequirement demands Count operators holding Skill at MinLevel or
// better for a task.
type RoleRequirement struct {
	Skill      string     `json:"skill" yaml:"skill"`
	MinLevel   int        `json:"min_level" yaml:"min_level"`
	Count      int        `json:"count" yaml:"count"`
	Attendance Attendance `json:"attendance" yaml:"attendance"`
}

// TaskMode is one concrete way to run a task: a machine in a zone for a
// fixed number of time quanta. Setup/teardown extend the machine
// occupancy on either side of the processing run.
type TaskMode struct {
	ID             string `json:"id" yaml:"id"`
	MachineID      string `json:"machine_id" yaml:"machine_id"`
	ZoneID         string `json:"zone_id" yaml:"zone_id"`
	DurationQuanta int    `json:"duration_quanta" yaml:"duration_quanta"`
	SetupQuanta    int    `json:"setup_quanta" yaml:"setup_quanta"`
	TeardownQuanta int    `json:"teardown_quanta" yaml:"teardown_quanta"`
}

// Task is one step of a job. Precedence is expressed as explicit
// predecessor task IDs; Sequence is an implicit chain position used
// when Predecessors is empty.
type Task struct {
	ID           string            `json:"id" yaml:"id"`
	JobID        string            `json:"job_id" yaml:"-"`
	Name         string            `json:"name,omitempty" yaml:"name,omitempty"`
	Sequence     int               `json:"sequence" yaml:"sequence"`
	Status       TaskStatus        `json:"status" yaml:"status"`
	Predecessors []string          `json:"predecessors,omitempty" yaml:"predecessors,omitempty"`
	Requirements []RoleRequirement `json:"requirements,omitempty" yaml:"requirements,omitempty"`
	Modes        []TaskMode        `json:"modes" yaml:"modes"`
}

// Validate checks task-local invariants.
func (t *Task) Validate() error {
	if t.ID == "" {
		return &ValidationError{Entity: "task", Field: "id", Msg: "missing id"}
	}
	if len(t.Modes) == 0 {
		return &ValidationError{Entity: "task", ID: t.ID, Field: "modes", Msg: "task has no modes"}
	}
	for _, m := range t.Modes {
		if m.DurationQuanta < 0 || m.SetupQuanta < 0 || m.TeardownQuanta < 0 {
			return &ValidationError{Entity: "task", ID: t.ID, Field: "modes", Msg: "negative duration"}
		}
		if m.MachineID == "" || m.ZoneID == "" {
			return &ValidationError{Entity: "task", ID: t.ID, Field: "modes", Msg: "mode missing machine or zone"}
		}
	}
	for _, r := range t.Requirements {
		if r.Count <= 0 {
			return &ValidationError{Entity: "task", ID: t.ID, Field: "requirements", Msg: "role count must be positive"}
		}
		if r.MinLevel < 1 || r.MinLevel > 3 {
			return &ValidationError{Entity: "task", ID: t.ID, Field: "requirements", Msg: "min level outside 1..3"}
		}
		if r.Attendance != AttendanceFull && r.Attendance != AttendanceSetupOnly {
			return &ValidationError{Entity: "task", ID: t.ID, Field: "requirements", Msg: "unknown attendance"}
		}
	}
	return nil
}
