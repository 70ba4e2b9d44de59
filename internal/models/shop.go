package models

import (
	"fmt"
	"time"
)

// ValidationError flags malformed or contradictory input. It always
// fails fast and never reaches the solver.
type ValidationError struct {
	Entity string
	ID     string
	Field  string
	Msg    string
}

func (e *ValidationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %s: %s", e.Entity, e.ID, e.Field, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Entity, e.Field, e.Msg)
}

// HolidayEntry is a single non-working date.
type HolidayEntry struct {
	Date time.Time `json:"date" yaml:"date"`
	Name string    `json:"name" yaml:"name"`
}

// ShopState is the read-only snapshot of the shop the optimization
// core builds its model from. Upstream data-management collaborators
// own the entities; the core only reads them.
type ShopState struct {
	Jobs      []Job             `json:"jobs" yaml:"jobs"`
	Machines  []Machine         `json:"machines" yaml:"machines"`
	Operators []Operator        `json:"operators" yaml:"operators"`
	Zones     []*ProductionZone `json:"zones" yaml:"zones"`
	Holidays  []HolidayEntry    `json:"holidays,omitempty" yaml:"holidays,omitempty"`

	// HorizonStart anchors quantum 0. Zero means "start of today".
	HorizonStart time.Time `json:"horizon_start,omitempty" yaml:"horizon_start,omitempty"`
	// HorizonDays bounds the solve window. Zero means the default (28).
	HorizonDays int `json:"horizon_days,omitempty" yaml:"horizon_days,omitempty"`
}

// Machine returns the machine with the given ID, or nil.
func (s *ShopState) Machine(id string) *Machine {
	for i := range s.Machines {
		if s.Machines[i].ID == id {
			return &s.Machines[i]
		}
	}
	return nil
}

// Operator returns the operator with the given ID, or nil.
func (s *ShopState) Operator(id string) *Operator {
	for i := range s.Operators {
		if s.Operators[i].ID == id {
			return &s.Operators[i]
		}
	}
	return nil
}

// Zone returns the zone with the given ID, or nil.
func (s *ShopState) Zone(id string) *ProductionZone {
	for _, z := range s.Zones {
		if z.ID == id {
			return z
		}
	}
	return nil
}

// Task returns the task with the given ID across all jobs, or nil.
func (s *ShopState) Task(id string) *Task {
	for i := range s.Jobs {
		for k := range s.Jobs[i].Tasks {
			if s.Jobs[i].Tasks[k].ID == id {
				return &s.Jobs[i].Tasks[k]
			}
		}
	}
	return nil
}

// SchedulableJobs returns the jobs eligible for scheduling (planned or
// released, not held or terminal).
func (s *ShopState) SchedulableJobs() []Job {
	out := make([]Job, 0, len(s.Jobs))
	for _, j := range s.Jobs {
		if j.Status == JobPlanned || j.Status == JobReleased || j.Status == JobInProgress {
			out = append(out, j)
		}
	}
	return out
}

// Validate checks entity invariants and cross-references. Cycle
// detection on the precedence graph lives in the model builder.
func (s *ShopState) Validate() error {
	machineIDs := make(map[string]struct{}, len(s.Machines))
	for i := range s.Machines {
		m := &s.Machines[i]
		if m.ID == "" {
			return &ValidationError{Entity: "machine", Field: "id", Msg: "missing id"}
		}
		if _, dup := machineIDs[m.ID]; dup {
			return &ValidationError{Entity: "machine", ID: m.ID, Field: "id", Msg: "duplicate id"}
		}
		machineIDs[m.ID] = struct{}{}
	}

	zoneIDs := make(map[string]struct{}, len(s.Zones))
	for _, z := range s.Zones {
		if z.ID == "" {
			return &ValidationError{Entity: "zone", Field: "id", Msg: "missing id"}
		}
		if _, dup := zoneIDs[z.ID]; dup {
			return &ValidationError{Entity: "zone", ID: z.ID, Field: "id", Msg: "duplicate id"}
		}
		if z.WIPLimit <= 0 {
			return &ValidationError{Entity: "zone", ID: z.ID, Field: "wip_limit", Msg: "wip limit must be positive"}
		}
		zoneIDs[z.ID] = struct{}{}
	}

	operatorIDs := make(map[string]struct{}, len(s.Operators))
	for i := range s.Operators {
		o := &s.Operators[i]
		if o.ID == "" {
			return &ValidationError{Entity: "operator", Field: "id", Msg: "missing id"}
		}
		if _, dup := operatorIDs[o.ID]; dup {
			return &ValidationError{Entity: "operator", ID: o.ID, Field: "id", Msg: "duplicate id"}
		}
		// A zero-valued shift inherits the shop shift.
		if (o.Shift.StartMinute != 0 || o.Shift.EndMinute != 0) && o.Shift.EndMinute <= o.Shift.StartMinute {
			return &ValidationError{Entity: "operator", ID: o.ID, Field: "shift", Msg: "shift end not after start"}
		}
		for _, sk := range o.Skills {
			if sk.Level < 1 || sk.Level > 3 {
				return &ValidationError{Entity: "operator", ID: o.ID, Field: "skills", Msg: "skill level outside 1..3"}
			}
		}
		operatorIDs[o.ID] = struct{}{}
	}

	taskIDs := make(map[string]struct{})
	for i := range s.Jobs {
		j := &s.Jobs[i]
		if err := j.Validate(); err != nil {
			return err
		}
		for k := range j.Tasks {
			t := &j.Tasks[k]
			if _, dup := taskIDs[t.ID]; dup {
				return &ValidationError{Entity: "task", ID: t.ID, Field: "id", Msg: "duplicate id"}
			}
			taskIDs[t.ID] = struct{}{}
			for _, m := range t.Modes {
				if _, ok := machineIDs[m.MachineID]; !ok {
					return &ValidationError{Entity: "task", ID: t.ID, Field: "modes",
						Msg: fmt.Sprintf("unknown machine %s", m.MachineID)}
				}
				if _, ok := zoneIDs[m.ZoneID]; !ok {
					return &ValidationError{Entity: "task", ID: t.ID, Field: "modes",
						Msg: fmt.Sprintf("unknown zone %s", m.ZoneID)}
				}
			}
		}
	}

	// Predecessor refs must resolve within the snapshot.
	for i := range s.Jobs {
		for k := range s.Jobs[i].Tasks {
			t := &s.Jobs[i].Tasks[k]
			for _, p := range t.Predecessors {
				if _, ok := taskIDs[p]; !ok {
					return &ValidationError{Entity: "task", ID: t.ID, Field: "predecessors",
						Msg: fmt.Sprintf("unknown predecessor %s", p)}
				}
			}
		}
	}

	return nil
}
