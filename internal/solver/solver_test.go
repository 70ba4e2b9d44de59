package solver

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopworks/sched/internal/calendar"
	"github.com/shopworks/sched/internal/models"
)

var horizonStart = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday

// roundTheClock builds a 24/7 calendar so test quanta read as plain
// integers without shift arithmetic.
func roundTheClock(days int) *calendar.Service {
	return calendar.New(calendar.Config{
		QuantumMinutes: 60,
		ShopShift:      models.ShiftWindow{StartMinute: 0, EndMinute: 24 * 60},
		WeekendDays:    []time.Weekday{},
	}, horizonStart, days)
}

func allDayShift() models.ShiftWindow {
	return models.ShiftWindow{StartMinute: 0, EndMinute: 24 * 60}
}

func welder(id string, level int) models.Operator {
	return models.Operator{
		ID: id, Status: models.OperatorAvailable, Active: true,
		Shift:  allDayShift(),
		Skills: []models.SkillRating{{Skill: "welding", Level: level}},
	}
}

func machine(id, zone string) models.Machine {
	return models.Machine{
		ID: id, Status: models.MachineAvailable, Automation: models.Attended,
		ZoneID: zone, Active: true,
	}
}

func zone(id string, limit int) *models.ProductionZone {
	return &models.ProductionZone{ID: id, Name: id, WIPLimit: limit, Active: true}
}

// twoTaskShop is the reference scenario: task A (welding >=2, 2
// quanta) precedes task B (1 quantum, no roles); one qualified
// operator, one machine.
func twoTaskShop() *models.ShopState {
	return &models.ShopState{
		Jobs: []models.Job{{
			ID: "job-a", Quantity: 1, Priority: models.PriorityNormal, Status: models.JobReleased,
			Tasks: []models.Task{
				{
					ID: "task-a", JobID: "job-a", Sequence: 1, Status: models.TaskPending,
					Requirements: []models.RoleRequirement{
						{Skill: "welding", MinLevel: 2, Count: 1, Attendance: models.AttendanceFull},
					},
					Modes: []models.TaskMode{{ID: "a-m1", MachineID: "mc-1", ZoneID: "z-1", DurationQuanta: 2}},
				},
				{
					ID: "task-b", JobID: "job-a", Sequence: 2, Status: models.TaskPending,
					Modes: []models.TaskMode{{ID: "b-m1", MachineID: "mc-1", ZoneID: "z-1", DurationQuanta: 1}},
				},
			},
		}},
		Machines:  []models.Machine{machine("mc-1", "z-1")},
		Operators: []models.Operator{welder("op-1", 2)},
		Zones:     []*models.ProductionZone{zone("z-1", 5)},
	}
}

func solve(t *testing.T, shop *models.ShopState, cal *calendar.Service, opts Options) (*Model, *Result) {
	t.Helper()
	m, err := Build(shop, cal, DefaultWeights())
	require.NoError(t, err)
	res, err := NewListEngine(nil).Solve(context.Background(), m, opts)
	require.NoError(t, err)
	return m, res
}

func TestScenarioSequentialTasksOptimal(t *testing.T) {
	m, res := solve(t, twoTaskShop(), roundTheClock(7), Options{Budget: time.Second})

	require.Equal(t, StatusOptimal, res.Status)
	require.Len(t, res.Assignments, 2)

	byTask := make(map[string]Assignment)
	for _, a := range res.Assignments {
		byTask[a.TaskID] = a
	}
	a, b := byTask["task-a"], byTask["task-b"]

	assert.Equal(t, 0, a.StartQ)
	assert.Equal(t, 2, a.EndQ)
	assert.Equal(t, []string{"op-1"}, a.OperatorIDs())
	assert.Equal(t, 2, b.StartQ)
	assert.Equal(t, 3, b.EndQ)
	assert.Equal(t, 3, res.MakespanQ)
	assert.InDelta(t, m.LowerBound(), res.Objective, 1e-9)

	verifySolution(t, m, res)
}

func TestScenarioZoneWIPSerializes(t *testing.T) {
	shopWith := func(limit int) *models.ShopState {
		shop := &models.ShopState{
			Machines: []models.Machine{machine("mc-1", "z-1"), machine("mc-2", "z-1")},
			Zones:    []*models.ProductionZone{zone("z-1", limit)},
		}
		for _, id := range []string{"job-1", "job-2"} {
			mc := "mc-1"
			if id == "job-2" {
				mc = "mc-2"
			}
			shop.Jobs = append(shop.Jobs, models.Job{
				ID: id, Quantity: 1, Priority: models.PriorityNormal, Status: models.JobReleased,
				Tasks: []models.Task{{
					ID: id + "-t1", JobID: id, Sequence: 1, Status: models.TaskPending,
					Modes: []models.TaskMode{{ID: id + "-m", MachineID: mc, ZoneID: "z-1", DurationQuanta: 2}},
				}},
			})
		}
		return shop
	}

	// Unconstrained: both tasks run in parallel on their own machines.
	_, loose := solve(t, shopWith(2), roundTheClock(7), Options{Budget: time.Second})
	require.Contains(t, []Status{StatusOptimal, StatusFeasible}, loose.Status)
	assert.Equal(t, 2, loose.MakespanQ)

	// WIP limit 1 forces the zone to serialize them.
	m, tight := solve(t, shopWith(1), roundTheClock(7), Options{Budget: time.Second})
	require.Contains(t, []Status{StatusOptimal, StatusFeasible}, tight.Status)
	assert.Equal(t, 4, tight.MakespanQ, "zone must serialize the two tasks")
	verifySolution(t, m, tight)
}

func TestScenarioUnsatisfiableSkillFailsBuild(t *testing.T) {
	shop := twoTaskShop()
	shop.Jobs[0].Tasks[0].Requirements[0].Skill = "laser-alignment"

	_, err := Build(shop, roundTheClock(7), DefaultWeights())
	require.Error(t, err)
	var mbe *ModelBuildError
	require.ErrorAs(t, err, &mbe)
	assert.Equal(t, "task-a", mbe.TaskID)
	assert.Equal(t, "laser-alignment", mbe.Skill)
}

func TestScenarioNearZeroBudget(t *testing.T) {
	shop := wideShop(6, 4)
	m, err := Build(shop, roundTheClock(14), DefaultWeights())
	require.NoError(t, err)

	res, err := NewListEngine(nil).Solve(context.Background(), m, Options{Budget: time.Nanosecond})
	require.NoError(t, err)

	// Never a silent empty success: either an explicit timeout marker
	// or a usable incumbent.
	switch res.Status {
	case StatusTimeoutNoSolution:
		assert.Empty(t, res.Assignments)
	case StatusFeasible, StatusOptimal:
		assert.NotEmpty(t, res.Assignments)
	default:
		t.Fatalf("unexpected status %s", res.Status)
	}
}

func TestDeterminism(t *testing.T) {
	sig := func() (float64, string) {
		m, err := Build(wideShop(5, 3), roundTheClock(14), DefaultWeights())
		require.NoError(t, err)
		res, err := NewListEngine(nil).Solve(context.Background(), m, Options{Budget: 2 * time.Second, Seed: 42})
		require.NoError(t, err)
		require.Contains(t, []Status{StatusOptimal, StatusFeasible}, res.Status)
		return res.Objective, signature(res.Assignments)
	}

	obj1, sig1 := sig()
	obj2, sig2 := sig()
	assert.Equal(t, obj1, obj2, "objective must be reproducible")
	assert.Equal(t, sig1, sig2, "chosen assignment must be reproducible")
}

func TestCancellationPrompt(t *testing.T) {
	m, err := Build(wideShop(8, 5), roundTheClock(28), DefaultWeights())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	res, err := NewListEngine(nil).Solve(ctx, m, Options{Budget: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.Less(t, time.Since(start), time.Second, "cancellation must return promptly")
}

func TestPrecedenceCycleRejected(t *testing.T) {
	shop := twoTaskShop()
	shop.Jobs[0].Tasks[0].Predecessors = []string{"task-b"}
	shop.Jobs[0].Tasks[1].Predecessors = []string{"task-a"}

	_, err := Build(shop, roundTheClock(7), DefaultWeights())
	require.Error(t, err)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Msg, "cycle")
}

func TestModeZoneMismatchFailsBuild(t *testing.T) {
	shop := twoTaskShop()
	shop.Zones = append(shop.Zones, zone("z-2", 3))
	shop.Jobs[0].Tasks[0].Modes[0].ZoneID = "z-2" // machine mc-1 sits in z-1

	_, err := Build(shop, roundTheClock(7), DefaultWeights())
	var mbe *ModelBuildError
	require.ErrorAs(t, err, &mbe)
	assert.Equal(t, "task-a", mbe.TaskID)
}

func TestInfeasibleDiagnosedAsCapacity(t *testing.T) {
	// One machine, two jobs due within a horizon that cannot hold both
	// sequentially: capacity relaxation is what admits a solution.
	shop := &models.ShopState{
		Machines: []models.Machine{machine("mc-1", "z-1")},
		Zones:    []*models.ProductionZone{zone("z-1", 5)},
	}
	for _, id := range []string{"job-1", "job-2"} {
		shop.Jobs = append(shop.Jobs, models.Job{
			ID: id, Quantity: 1, Priority: models.PriorityNormal, Status: models.JobReleased,
			Tasks: []models.Task{{
				ID: id + "-t1", JobID: id, Sequence: 1, Status: models.TaskPending,
				Modes: []models.TaskMode{{ID: id + "-m", MachineID: "mc-1", ZoneID: "z-1", DurationQuanta: 20}},
			}},
		})
	}

	cal := calendar.New(calendar.Config{
		QuantumMinutes: 60,
		ShopShift:      models.ShiftWindow{StartMinute: 0, EndMinute: 24 * 60},
		WeekendDays:    []time.Weekday{},
	}, horizonStart, 1) // 24 quanta: one 20q task fits, two do not

	m, err := Build(shop, cal, DefaultWeights())
	require.NoError(t, err)

	eng := NewListEngine(nil)
	res, err := eng.Solve(context.Background(), m, Options{Budget: time.Second})
	require.NoError(t, err)
	require.Equal(t, StatusInfeasible, res.Status)

	diag := Diagnose(context.Background(), eng, m)
	assert.Contains(t, diag, "capacity")
}

func TestSetupOnlyAttendanceReleasesOperator(t *testing.T) {
	// Two tasks on two machines need the same operator for setup only;
	// processing overlaps but setups do not, so one operator suffices.
	shop := &models.ShopState{
		Machines: []models.Machine{machine("mc-1", "z-1"), machine("mc-2", "z-1")},
		Zones:    []*models.ProductionZone{zone("z-1", 5)},
		Operators: []models.Operator{{
			ID: "op-1", Status: models.OperatorAvailable, Active: true,
			Shift:  allDayShift(),
			Skills: []models.SkillRating{{Skill: "setup", Level: 3}},
		}},
	}
	for i, mc := range []string{"mc-1", "mc-2"} {
		id := fmt.Sprintf("job-%d", i+1)
		shop.Jobs = append(shop.Jobs, models.Job{
			ID: id, Quantity: 1, Priority: models.PriorityNormal, Status: models.JobReleased,
			Tasks: []models.Task{{
				ID: id + "-t1", JobID: id, Sequence: 1, Status: models.TaskPending,
				Requirements: []models.RoleRequirement{
					{Skill: "setup", MinLevel: 1, Count: 1, Attendance: models.AttendanceSetupOnly},
				},
				Modes: []models.TaskMode{{
					ID: id + "-m", MachineID: mc, ZoneID: "z-1",
					DurationQuanta: 6, SetupQuanta: 1,
				}},
			}},
		})
	}

	m, res := solve(t, shop, roundTheClock(7), Options{Budget: time.Second})
	require.Contains(t, []Status{StatusOptimal, StatusFeasible}, res.Status)
	require.Len(t, res.Assignments, 2)

	// Both tasks processing windows overlap: the operator was only
	// needed for the disjoint setup quanta.
	a, b := res.Assignments[0], res.Assignments[1]
	assert.Less(t, maxInt(a.StartQ, b.StartQ), minInt(a.EndQ, b.EndQ),
		"processing should overlap when attendance is setup-only")
	verifySolution(t, m, res)
}

func TestMultiHeadcountRoleFillsDistinctOperators(t *testing.T) {
	shop := twoTaskShop()
	shop.Operators = append(shop.Operators, welder("op-2", 3))
	shop.Jobs[0].Tasks[0].Requirements[0].Count = 2

	m, res := solve(t, shop, roundTheClock(7), Options{Budget: time.Second})
	require.Contains(t, []Status{StatusOptimal, StatusFeasible}, res.Status)

	byTask := make(map[string]Assignment)
	for _, a := range res.Assignments {
		byTask[a.TaskID] = a
	}
	a := byTask["task-a"]
	assert.ElementsMatch(t, []string{"op-1", "op-2"}, a.OperatorIDs())
	verifySolution(t, m, res)
}

func TestExpiredSkillNotQualified(t *testing.T) {
	shop := twoTaskShop()
	expired := horizonStart.AddDate(-1, 0, 0)
	shop.Operators[0].Skills[0].Expiry = &expired

	_, err := Build(shop, roundTheClock(7), DefaultWeights())
	var mbe *ModelBuildError
	require.ErrorAs(t, err, &mbe)
}

// wideShop builds jobs x tasks chains sharing three machines, two
// zones and two operators, enough contention to make passes diverge.
func wideShop(jobs, tasks int) *models.ShopState {
	shop := &models.ShopState{
		Machines: []models.Machine{
			machine("mc-1", "z-1"), machine("mc-2", "z-1"), machine("mc-3", "z-2"),
		},
		Operators: []models.Operator{welder("op-1", 3), welder("op-2", 2)},
		Zones:     []*models.ProductionZone{zone("z-1", 2), zone("z-2", 1)},
	}
	prio := []models.Priority{models.PriorityLow, models.PriorityNormal, models.PriorityHigh, models.PriorityUrgent}
	for j := 0; j < jobs; j++ {
		job := models.Job{
			ID:       fmt.Sprintf("job-%02d", j),
			Quantity: 1 + j,
			Priority: prio[j%len(prio)],
			Status:   models.JobReleased,
			DueDate:  horizonStart.Add(time.Duration(24*(j+2)) * time.Hour),
		}
		for k := 0; k < tasks; k++ {
			task := models.Task{
				ID:       fmt.Sprintf("job-%02d-t%d", j, k),
				JobID:    job.ID,
				Sequence: k + 1,
				Status:   models.TaskPending,
				Modes: []models.TaskMode{
					{ID: fmt.Sprintf("j%dt%d-m1", j, k), MachineID: "mc-1", ZoneID: "z-1", DurationQuanta: 2 + k%3},
					{ID: fmt.Sprintf("j%dt%d-m2", j, k), MachineID: "mc-2", ZoneID: "z-1", DurationQuanta: 3 + k%2},
				},
			}
			if k%2 == 0 {
				task.Requirements = []models.RoleRequirement{
					{Skill: "welding", MinLevel: 2, Count: 1, Attendance: models.AttendanceFull},
				}
			}
			job.Tasks = append(job.Tasks, task)
		}
		shop.Jobs = append(shop.Jobs, job)
	}
	return shop
}

// verifySolution asserts the §8 schedule properties: no resource
// double-booking, precedence respected, zone WIP within limits.
func verifySolution(t *testing.T, m *Model, res *Result) {
	t.Helper()

	machineUse := make(map[string]map[int]string)
	operatorUse := make(map[string]map[int]string)
	zoneUse := make(map[string]map[int]int)
	endByTask := make(map[string]int)

	for _, a := range res.Assignments {
		endByTask[a.TaskID] = a.EndQ

		occupied := append(append([]int{}, a.Quanta...), a.SetupQuanta...)
		if machineUse[a.MachineID] == nil {
			machineUse[a.MachineID] = make(map[int]string)
		}
		for _, q := range occupied {
			if other, clash := machineUse[a.MachineID][q]; clash {
				t.Errorf("machine %s double-booked at q%d by %s and %s", a.MachineID, q, other, a.TaskID)
			}
			machineUse[a.MachineID][q] = a.TaskID
		}

		// Operators holds one entry per head, not per requirement, so
		// attendance resolves through the requirement's skill.
		tv := m.ByID[a.TaskID]
		attendance := make(map[string]models.Attendance, len(tv.Task.Requirements))
		for _, req := range tv.Task.Requirements {
			attendance[req.Skill] = req.Attendance
		}
		for _, oa := range a.Operators {
			needed := a.Quanta
			if attendance[oa.Skill] == models.AttendanceSetupOnly {
				needed = a.SetupQuanta
			}
			if operatorUse[oa.OperatorID] == nil {
				operatorUse[oa.OperatorID] = make(map[int]string)
			}
			for _, q := range needed {
				if other, clash := operatorUse[oa.OperatorID][q]; clash {
					t.Errorf("operator %s double-booked at q%d by %s and %s", oa.OperatorID, q, other, a.TaskID)
				}
				operatorUse[oa.OperatorID][q] = a.TaskID
			}
		}

		if zoneUse[a.ZoneID] == nil {
			zoneUse[a.ZoneID] = make(map[int]int)
		}
		for _, q := range a.Quanta {
			zoneUse[a.ZoneID][q]++
		}
	}

	for _, a := range res.Assignments {
		tv := m.ByID[a.TaskID]
		for _, p := range tv.Preds {
			if end, ok := endByTask[p]; ok && a.StartQ < end {
				t.Errorf("task %s starts at q%d before predecessor %s ends at q%d", a.TaskID, a.StartQ, p, end)
			}
		}
	}

	for zoneID, use := range zoneUse {
		limit := m.ZoneLimit[zoneID]
		for q, n := range use {
			if n > limit {
				t.Errorf("zone %s holds %d tasks at q%d, limit %d", zoneID, n, q, limit)
			}
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
