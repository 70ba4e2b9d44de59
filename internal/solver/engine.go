package solver

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/shopworks/sched/internal/calendar"
	"github.com/shopworks/sched/internal/models"
)

// ListEngine is the reference Engine: deterministic multi-pass list
// scheduling. Each pass dispatches tasks in a priority order (seeded
// perturbations after the first) and places every task at its earliest
// feasible start across candidate modes; the best pass under the
// tie-break comparator becomes the incumbent.
type ListEngine struct {
	logger *slog.Logger
}

// NewListEngine returns the reference engine. A nil logger disables
// search logging.
func NewListEngine(logger *slog.Logger) *ListEngine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ListEngine{logger: logger}
}

var (
	errBudget    = errors.New("solve budget exhausted")
	errCancelled = errors.New("solve cancelled")
)

// Solve implements Engine.
func (e *ListEngine) Solve(ctx context.Context, m *Model, opts Options) (*Result, error) {
	budget := opts.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	maxPasses := opts.MaxPasses
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}
	start := time.Now()
	deadline := start.Add(budget)
	rng := rand.New(rand.NewSource(opts.Seed))

	var best *incumbent
	passes := 0
	sawInfeasiblePass := false
	stopped := error(nil)

	for pass := 0; pass < maxPasses; pass++ {
		var jitter map[string]int
		if pass > 0 {
			jitter = make(map[string]int, len(m.Tasks))
			for _, tv := range m.Tasks {
				jitter[tv.Task.ID] = rng.Intn(1 << 16)
			}
		}

		assignments, err := e.runPass(ctx, m, jitter, deadline)
		passes++
		if err != nil {
			if errors.Is(err, errBudget) || errors.Is(err, errCancelled) {
				stopped = err
				break
			}
			// Pass-level infeasibility: remember and try other orders.
			sawInfeasiblePass = true
			continue
		}

		terms := m.evaluate(assignments)
		cand := &incumbent{
			assignments: assignments,
			terms:       terms,
			objective:   terms.value(m.Weights),
			sig:         signature(assignments),
		}
		if better(cand, best) {
			best = cand
			e.logger.Debug("incumbent improved",
				"pass", pass, "objective", cand.objective, "makespan_q", terms.makespanQ)
		}
		if best.objective <= m.LowerBound()+1e-9 {
			break // at the bound, nothing better exists
		}
	}

	res := &Result{
		Bound:    m.LowerBound(),
		WallTime: time.Since(start),
		Passes:   passes,
	}

	if errors.Is(stopped, errCancelled) {
		res.Status = StatusCancelled
		return res, nil
	}

	if best == nil {
		if errors.Is(stopped, errBudget) {
			res.Status = StatusTimeoutNoSolution
		} else if sawInfeasiblePass {
			res.Status = StatusInfeasible
		} else {
			// Empty model: trivially optimal empty assignment.
			res.Status = StatusOptimal
		}
		return res, nil
	}

	res.Assignments = best.assignments
	res.Objective = best.objective
	res.MakespanQ = best.terms.makespanQ
	if best.objective <= m.LowerBound()+1e-9 {
		res.Status = StatusOptimal
	} else {
		res.Status = StatusFeasible
	}
	return res, nil
}

// passState is the mutable placement state of one pass.
type passState struct {
	machineBusy  map[string][]bool
	operatorBusy map[string][]bool
	zoneLoad     map[string][]int
	taskEnd      map[string]int
}

func newPassState(m *Model) *passState {
	return &passState{
		machineBusy:  make(map[string][]bool),
		operatorBusy: make(map[string][]bool),
		zoneLoad:     make(map[string][]int),
		taskEnd:      make(map[string]int, len(m.Tasks)),
	}
}

func (st *passState) machine(id string, horizon int) []bool {
	b, ok := st.machineBusy[id]
	if !ok {
		b = make([]bool, horizon)
		st.machineBusy[id] = b
	}
	return b
}

func (st *passState) operator(id string, horizon int) []bool {
	b, ok := st.operatorBusy[id]
	if !ok {
		b = make([]bool, horizon)
		st.operatorBusy[id] = b
	}
	return b
}

func (st *passState) zone(id string, horizon int) []int {
	z, ok := st.zoneLoad[id]
	if !ok {
		z = make([]int, horizon)
		st.zoneLoad[id] = z
	}
	return z
}

// runPass dispatches all tasks in ready-list order and places each at
// its earliest feasible start. Returns errBudget/errCancelled when
// interrupted, a plain error when some task cannot be placed.
func (e *ListEngine) runPass(ctx context.Context, m *Model, jitter map[string]int, deadline time.Time) ([]Assignment, error) {
	st := newPassState(m)

	placed := make(map[string]bool, len(m.Tasks))
	remaining := append([]*TaskVar(nil), m.Tasks...)
	assignments := make([]Assignment, 0, len(m.Tasks))

	for len(remaining) > 0 {
		if err := checkInterrupt(ctx, deadline); err != nil {
			return nil, err
		}

		// Ready set: all predecessors placed (or precedence relaxed).
		next := -1
		for i, tv := range remaining {
			if !m.Relax.Precedence && !predsPlaced(tv, placed) {
				continue
			}
			if next == -1 || dispatchBefore(remaining[i], remaining[next], m, jitter) {
				next = i
			}
		}
		if next == -1 {
			// Unreachable with an acyclic model; guard anyway.
			return nil, errors.New("no dispatchable task")
		}

		tv := remaining[next]
		remaining = append(remaining[:next], remaining[next+1:]...)

		a, ok := e.placeTask(m, st, tv)
		if !ok {
			return nil, &placementError{taskID: tv.Task.ID}
		}
		assignments = append(assignments, a)
		placed[tv.Task.ID] = true
		st.taskEnd[tv.Task.ID] = a.EndQ
	}

	return assignments, nil
}

type placementError struct{ taskID string }

func (e *placementError) Error() string { return "no feasible placement for task " + e.taskID }

func predsPlaced(tv *TaskVar, placed map[string]bool) bool {
	for _, p := range tv.Preds {
		if !placed[p] {
			return false
		}
	}
	return true
}

// dispatchBefore orders the ready list: priority first, then earliest
// due date, then the pass jitter, then task ID for determinism.
func dispatchBefore(a, b *TaskVar, m *Model, jitter map[string]int) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if da, db := m.DueQ[a.JobID], m.DueQ[b.JobID]; da != db {
		return da < db
	}
	if jitter != nil {
		if ja, jb := jitter[a.Task.ID], jitter[b.Task.ID]; ja != jb {
			return ja < jb
		}
	}
	return a.Task.ID < b.Task.ID
}

// placement is one candidate mode's earliest feasible slot.
type placement struct {
	candidate int
	start     int
	end       int
	quanta    []int
	setup     []int
	teardown  []int
	operators []OperatorAssignment
	// opQuanta[i] is the occupancy of operators[i], resolved from the
	// role's attendance at selection time.
	opQuanta [][]int
}

// placeTask finds the earliest feasible placement across the task's
// candidate modes and commits it to the pass state.
func (e *ListEngine) placeTask(m *Model, st *passState, tv *TaskVar) (Assignment, bool) {
	est := m.ReleaseQ[tv.JobID]
	if !m.Relax.Precedence {
		for _, p := range tv.Preds {
			if end := st.taskEnd[p]; end > est {
				est = end
			}
		}
	}

	var best *placement
	for ci := range tv.Candidates {
		p := e.earliestForCandidate(m, st, tv, ci, est)
		if p == nil {
			continue
		}
		if best == nil || p.end < best.end || (p.end == best.end && p.candidate < best.candidate) {
			best = p
		}
	}
	if best == nil {
		return Assignment{}, false
	}

	e.commit(m, st, tv, best)

	mode := tv.Candidates[best.candidate].Mode
	return Assignment{
		TaskID:      tv.Task.ID,
		JobID:       tv.JobID,
		ModeID:      mode.ID,
		MachineID:   mode.MachineID,
		ZoneID:      mode.ZoneID,
		Operators:   best.operators,
		StartQ:      best.start,
		EndQ:        best.end,
		Quanta:      best.quanta,
		SetupQuanta: best.setup,
	}, true
}

// earliestForCandidate scans start quanta for the first slot where the
// machine, zone, calendar and role constraints all hold.
func (e *ListEngine) earliestForCandidate(m *Model, st *passState, tv *TaskVar, ci, est int) *placement {
	cand := &tv.Candidates[ci]
	dur := cand.Mode.DurationQuanta
	mask := cand.MachineMask
	busy := st.machine(cand.Mode.MachineID, m.Horizon)

	if dur == 0 {
		// Zero-duration tasks occupy nothing; they pin the precedence
		// point and still bind their operators for zero quanta.
		ops, opQuanta, ok := e.selectOperators(m, st, tv, nil, nil)
		if !ok {
			return nil
		}
		return &placement{candidate: ci, start: est, end: est, operators: ops, opQuanta: opQuanta}
	}

	for s := est; s < m.Horizon; s++ {
		if !mask[s] {
			continue
		}
		quanta, ok := calendar.Span(mask, s, dur, m.Policy)
		if !ok {
			return nil // horizon exhausted for this candidate
		}
		if quanta[0] != s {
			s = quanta[0] - 1 // skip to the next aligned start
			continue
		}
		end := quanta[len(quanta)-1] + 1

		setup, ok := spanBefore(mask, s, cand.SetupQuanta)
		if !ok {
			continue
		}
		teardown, ok := calendar.Span(mask, end, cand.TeardownQuanta, calendar.PolicyPause)
		if !ok {
			continue
		}

		if !m.Relax.Capacity {
			if anyBusy(busy, quanta) || anyBusy(busy, setup) || anyBusy(busy, teardown) {
				continue
			}
			if over, retry := zoneOver(m, st, cand.Mode.ZoneID, quanta); over {
				if !retry {
					return nil
				}
				continue
			}
		}

		ops, opQuanta, ok := e.selectOperators(m, st, tv, quanta, setup)
		if !ok {
			continue
		}

		return &placement{
			candidate: ci, start: s, end: end,
			quanta: quanta, setup: setup, teardown: teardown,
			operators: ops, opQuanta: opQuanta,
		}
	}
	return nil
}

// selectOperators fills every role requirement with distinct free,
// working, qualified operators. Cheapest-first within a pool.
func (e *ListEngine) selectOperators(m *Model, st *passState, tv *TaskVar, quanta, setup []int) ([]OperatorAssignment, [][]int, bool) {
	if m.Relax.Roles || len(tv.Task.Requirements) == 0 {
		return nil, nil, true
	}

	used := make(map[string]bool)
	var out []OperatorAssignment
	var opQuanta [][]int
	for i, req := range tv.Task.Requirements {
		needed := quanta
		if req.Attendance == models.AttendanceSetupOnly {
			needed = setup
		}
		found := 0
		for _, opID := range tv.RoleCandidates[i] {
			if used[opID] {
				continue
			}
			opMask := m.OperatorMask[opID]
			opBusy := st.operator(opID, m.Horizon)
			if !coversFree(opMask, opBusy, needed) {
				continue
			}
			used[opID] = true
			out = append(out, OperatorAssignment{OperatorID: opID, Skill: req.Skill, Quanta: len(needed)})
			opQuanta = append(opQuanta, needed)
			found++
			if found == req.Count {
				break
			}
		}
		if found < req.Count {
			return nil, nil, false
		}
	}
	return out, opQuanta, true
}

// commit marks the chosen placement's occupancy in the pass state.
func (e *ListEngine) commit(m *Model, st *passState, tv *TaskVar, p *placement) {
	cand := &tv.Candidates[p.candidate]
	busy := st.machine(cand.Mode.MachineID, m.Horizon)
	for _, q := range p.quanta {
		busy[q] = true
	}
	for _, q := range p.setup {
		busy[q] = true
	}
	for _, q := range p.teardown {
		busy[q] = true
	}

	zone := st.zone(cand.Mode.ZoneID, m.Horizon)
	for _, q := range p.quanta {
		zone[q]++
	}

	for i, oa := range p.operators {
		opBusy := st.operator(oa.OperatorID, m.Horizon)
		for _, q := range p.opQuanta[i] {
			opBusy[q] = true
		}
	}
}

// zoneOver reports whether any processing quantum would exceed the
// zone's WIP limit; retry=false means no start can ever fit (limit 0).
func zoneOver(m *Model, st *passState, zoneID string, quanta []int) (over, retry bool) {
	limit, ok := m.ZoneLimit[zoneID]
	if !ok {
		return true, false // inactive zone accepts no work
	}
	load := st.zone(zoneID, m.Horizon)
	for _, q := range quanta {
		if load[q] >= limit {
			return true, limit > 0
		}
	}
	return false, true
}

func anyBusy(busy []bool, quanta []int) bool {
	for _, q := range quanta {
		if busy[q] {
			return true
		}
	}
	return false
}

// coversFree reports whether the operator is both on shift and unbooked
// for every needed quantum.
func coversFree(mask, busy []bool, needed []int) bool {
	for _, q := range needed {
		if q >= len(mask) || !mask[q] || busy[q] {
			return false
		}
	}
	return true
}

// spanBefore collects n working quanta strictly before q, walking
// backward. Used for machine setup extensions.
func spanBefore(mask []bool, q, n int) ([]int, bool) {
	if n == 0 {
		return nil, true
	}
	out := make([]int, 0, n)
	for i := q - 1; i >= 0 && len(out) < n; i-- {
		if mask[i] {
			out = append(out, i)
		}
	}
	if len(out) < n {
		return nil, false
	}
	sort.Ints(out)
	return out, true
}

func checkInterrupt(ctx context.Context, deadline time.Time) error {
	select {
	case <-ctx.Done():
		return errCancelled
	default:
	}
	if time.Now().After(deadline) {
		return errBudget
	}
	return nil
}
