package models

import "time"

// MachineStatus is the operational state of a machine.
type MachineStatus string

const (
	MachineAvailable   MachineStatus = "available"
	MachineBusy        MachineStatus = "busy"
	MachineMaintenance MachineStatus = "maintenance"
	MachineOffline     MachineStatus = "offline"
)

// Automation distinguishes machines needing an operator present from
// lights-out machines.
type Automation string

const (
	Attended   Automation = "attended"
	Unattended Automation = "unattended"
)

// Machine is a schedulable machine-class resource.
type Machine struct {
	ID             string        `json:"id" yaml:"id"`
	Name           string        `json:"name,omitempty" yaml:"name,omitempty"`
	Status         MachineStatus `json:"status" yaml:"status"`
	Automation     Automation    `json:"automation" yaml:"automation"`
	ZoneID         string        `json:"zone_id" yaml:"zone_id"`
	SetupQuanta    int           `json:"setup_quanta" yaml:"setup_quanta"`
	TeardownQuanta int           `json:"teardown_quanta" yaml:"teardown_quanta"`
	Active         bool          `json:"active" yaml:"active"`
}

// Schedulable reports whether the machine may receive new work.
func (m *Machine) Schedulable() bool {
	return m.Active && (m.Status == MachineAvailable || m.Status == MachineBusy)
}

// OperatorStatus is the operational state of an operator.
type OperatorStatus string

const (
	OperatorAvailable OperatorStatus = "available"
	OperatorAssigned  OperatorStatus = "assigned"
	OperatorOnBreak   OperatorStatus = "on_break"
	OperatorOffShift  OperatorStatus = "off_shift"
	OperatorAbsent    OperatorStatus = "absent"
)

// SkillRating is one (skill, proficiency) pair an operator holds.
// Level runs 1..3. A zero Expiry never expires.
type SkillRating struct {
	Skill  string     `json:"skill" yaml:"skill"`
	Level  int        `json:"level" yaml:"level"`
	Expiry *time.Time `json:"expiry,omitempty" yaml:"expiry,omitempty"`
}

// ShiftWindow is a daily working window in minutes from midnight.
type ShiftWindow struct {
	StartMinute int `json:"start_minute" yaml:"start_minute"`
	EndMinute   int `json:"end_minute" yaml:"end_minute"`
}

// Operator is a schedulable human resource.
type Operator struct {
	ID         string         `json:"id" yaml:"id"`
	Name       string         `json:"name,omitempty" yaml:"name,omitempty"`
	Status     OperatorStatus `json:"status" yaml:"status"`
	Department string         `json:"department,omitempty" yaml:"department,omitempty"`
	Shift      ShiftWindow    `json:"shift" yaml:"shift"`
	LunchStart int            `json:"lunch_start_minute" yaml:"lunch_start_minute"`
	LunchMins  int            `json:"lunch_minutes" yaml:"lunch_minutes"`
	// CostFactor scales the operator-minutes objective term. Zero means 1.0.
	CostFactor float64       `json:"cost_factor,omitempty" yaml:"cost_factor,omitempty"`
	Skills     []SkillRating `json:"skills,omitempty" yaml:"skills,omitempty"`
	Active     bool          `json:"active" yaml:"active"`
}

// Schedulable reports whether the operator may be assigned new work.
func (o *Operator) Schedulable() bool {
	return o.Active && o.Status != OperatorAbsent && o.Status != OperatorOffShift
}

// Qualified reports whether the operator holds skill at minLevel or
// better, unexpired as of now.
func (o *Operator) Qualified(skill string, minLevel int, now time.Time) bool {
	for _, s := range o.Skills {
		if s.Skill != skill || s.Level < minLevel {
			continue
		}
		if s.Expiry != nil && s.Expiry.Before(now) {
			continue
		}
		return true
	}
	return false
}

// EffectiveCostFactor returns the cost multiplier, defaulting to 1.
func (o *Operator) EffectiveCostFactor() float64 {
	if o.CostFactor <= 0 {
		return 1
	}
	return o.CostFactor
}
