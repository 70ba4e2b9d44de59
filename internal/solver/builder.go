package solver

import (
	"fmt"
	"sort"

	"github.com/shopworks/sched/internal/calendar"
	"github.com/shopworks/sched/internal/models"
)

// ModelBuildError flags a structurally unsatisfiable model: a
// requirement no resource in the pool can ever meet. It always names
// the offending task and fails before any solver invocation.
type ModelBuildError struct {
	TaskID string
	Skill  string
	Msg    string
}

func (e *ModelBuildError) Error() string {
	if e.Skill != "" {
		return fmt.Sprintf("model build: task %s: skill %q: %s", e.TaskID, e.Skill, e.Msg)
	}
	return fmt.Sprintf("model build: task %s: %s", e.TaskID, e.Msg)
}

// Build compiles the shop snapshot into a Model. Input validation and
// the precedence cycle check fail with *models.ValidationError;
// structurally unsatisfiable requirements fail with *ModelBuildError.
// Neither ever reaches an engine.
func Build(shop *models.ShopState, cal *calendar.Service, w Weights) (*Model, error) {
	if err := shop.Validate(); err != nil {
		return nil, err
	}

	m := &Model{
		Cal:          cal,
		Policy:       cal.Policy(),
		Horizon:      cal.Horizon(),
		ByID:         make(map[string]*TaskVar),
		OperatorMask: make(map[string][]bool),
		Operators:    make(map[string]*models.Operator),
		ZoneLimit:    make(map[string]int),
		ReleaseQ:     make(map[string]int),
		DueQ:         make(map[string]int),
		JobPrio:      make(map[string]models.Priority),
		Weights:      w,
	}

	for _, z := range shop.Zones {
		if z.Active {
			m.ZoneLimit[z.ID] = z.WIPLimit
		}
	}

	for i := range shop.Operators {
		o := &shop.Operators[i]
		if !o.Schedulable() {
			continue
		}
		m.Operators[o.ID] = o
		m.OperatorMask[o.ID] = cal.OperatorAvailability(o)
	}

	// Machine masks computed once per machine, shared by all modes.
	shopMask := cal.ShopAvailability()
	alwaysMask := cal.AlwaysAvailable()
	machineMask := func(mc *models.Machine) []bool {
		if mc.Automation == models.Unattended {
			return alwaysMask
		}
		return shopMask
	}

	jobs := shop.SchedulableJobs()
	for i := range jobs {
		job := &jobs[i]
		m.JobPrio[job.ID] = job.Priority
		m.ReleaseQ[job.ID] = 0
		if !job.ReleaseDate.IsZero() {
			m.ReleaseQ[job.ID] = cal.QuantumAt(job.ReleaseDate)
		}
		m.DueQ[job.ID] = cal.Horizon()
		if !job.DueDate.IsZero() {
			m.DueQ[job.ID] = cal.QuantumAt(job.DueDate)
		}

		// Implicit chain edges follow the job's task order when a task
		// declares no explicit predecessors.
		ordered := make([]*models.Task, 0, len(job.Tasks))
		for k := range job.Tasks {
			ordered = append(ordered, &job.Tasks[k])
		}
		sort.SliceStable(ordered, func(a, b int) bool { return ordered[a].Sequence < ordered[b].Sequence })

		var prevID string
		for _, t := range ordered {
			if t.Status == models.TaskCompleted || t.Status == models.TaskSkipped {
				prevID = "" // done work does not gate successors
				continue
			}

			tv := &TaskVar{
				Task:     *t,
				JobID:    job.ID,
				Priority: job.Priority,
			}
			if len(t.Predecessors) > 0 {
				tv.Preds = append([]string(nil), t.Predecessors...)
			} else if prevID != "" {
				tv.Preds = []string{prevID}
			}
			prevID = t.ID

			if err := buildCandidates(tv, shop, machineMask); err != nil {
				return nil, err
			}
			if err := buildRoleCandidates(tv, m, cal); err != nil {
				return nil, err
			}

			m.Tasks = append(m.Tasks, tv)
			m.ByID[t.ID] = tv
		}
	}

	// Predecessors referencing tasks outside the model (completed or
	// not schedulable) are already satisfied; drop the edges.
	for _, tv := range m.Tasks {
		kept := tv.Preds[:0]
		for _, p := range tv.Preds {
			if _, ok := m.ByID[p]; ok {
				kept = append(kept, p)
			}
		}
		tv.Preds = kept
	}

	sorted, err := topoSort(m.Tasks)
	if err != nil {
		return nil, err
	}
	m.Tasks = sorted

	computeBounds(m)
	return m, nil
}

// buildCandidates resolves a task's modes to usable machine intervals.
func buildCandidates(tv *TaskVar, shop *models.ShopState, machineMask func(*models.Machine) []bool) error {
	tv.MinDuration = -1
	for _, mode := range tv.Task.Modes {
		mc := shop.Machine(mode.MachineID)
		if mc.ZoneID != mode.ZoneID {
			return &ModelBuildError{TaskID: tv.Task.ID,
				Msg: fmt.Sprintf("mode %s: machine %s sits in zone %s, not %s", mode.ID, mc.ID, mc.ZoneID, mode.ZoneID)}
		}
		if !mc.Schedulable() {
			continue
		}
		mv := ModeVar{
			Mode:           mode,
			MachineMask:    machineMask(mc),
			SetupQuanta:    mode.SetupQuanta,
			TeardownQuanta: mode.TeardownQuanta,
		}
		if mv.SetupQuanta == 0 {
			mv.SetupQuanta = mc.SetupQuanta
		}
		if mv.TeardownQuanta == 0 {
			mv.TeardownQuanta = mc.TeardownQuanta
		}
		tv.Candidates = append(tv.Candidates, mv)
		if tv.MinDuration < 0 || mode.DurationQuanta < tv.MinDuration {
			tv.MinDuration = mode.DurationQuanta
		}
	}
	if len(tv.Candidates) == 0 {
		return &ModelBuildError{TaskID: tv.Task.ID, Msg: "no mode has a schedulable machine"}
	}
	return nil
}

// buildRoleCandidates resolves each role requirement to its qualified
// operator pool. An empty pool is a structural failure, not a solver
// outcome.
func buildRoleCandidates(tv *TaskVar, m *Model, cal *calendar.Service) error {
	now := cal.Time(0)
	tv.RoleCandidates = make([][]string, len(tv.Task.Requirements))
	for i, req := range tv.Task.Requirements {
		var pool []string
		for id, op := range m.Operators {
			if op.Qualified(req.Skill, req.MinLevel, now) {
				pool = append(pool, id)
			}
		}
		if len(pool) < req.Count {
			return &ModelBuildError{TaskID: tv.Task.ID, Skill: req.Skill,
				Msg: fmt.Sprintf("need %d operators at level >= %d, only %d qualify", req.Count, req.MinLevel, len(pool))}
		}
		sort.Slice(pool, func(a, b int) bool {
			fa, fb := m.Operators[pool[a]].EffectiveCostFactor(), m.Operators[pool[b]].EffectiveCostFactor()
			if fa != fb {
				return fa < fb
			}
			return pool[a] < pool[b]
		})
		tv.RoleCandidates[i] = pool
	}
	return nil
}

// topoSort orders tasks so predecessors come first; a cycle fails with
// a ValidationError before any model is handed to an engine.
func topoSort(tasks []*TaskVar) ([]*TaskVar, error) {
	indeg := make(map[string]int, len(tasks))
	succ := make(map[string][]string, len(tasks))
	byID := make(map[string]*TaskVar, len(tasks))
	for _, tv := range tasks {
		byID[tv.Task.ID] = tv
		indeg[tv.Task.ID] += 0
	}
	for _, tv := range tasks {
		for _, p := range tv.Preds {
			succ[p] = append(succ[p], tv.Task.ID)
			indeg[tv.Task.ID]++
		}
	}

	var ready []string
	for id, d := range indeg {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	out := make([]*TaskVar, 0, len(tasks))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		out = append(out, byID[id])
		next := append([]string(nil), succ[id]...)
		sort.Strings(next)
		for _, s := range next {
			indeg[s]--
			if indeg[s] == 0 {
				ready = insertSorted(ready, s)
			}
		}
	}
	if len(out) != len(tasks) {
		var stuck []string
		for id, d := range indeg {
			if d > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, &models.ValidationError{Entity: "task", ID: stuck[0], Field: "predecessors", Msg: "precedence cycle"}
	}
	return out, nil
}

func insertSorted(xs []string, v string) []string {
	i := sort.SearchStrings(xs, v)
	xs = append(xs, "")
	copy(xs[i+1:], xs[i:])
	xs[i] = v
	return xs
}

// computeBounds derives contention-free lower bounds: the makespan of
// a capacity-free schedule and the minimum operator cost.
func computeBounds(m *Model) {
	end := make(map[string]int, len(m.Tasks))
	for _, tv := range m.Tasks {
		est := m.ReleaseQ[tv.JobID]
		for _, p := range tv.Preds {
			if end[p] > est {
				est = end[p]
			}
		}
		// Union of the candidate masks: the bound must never exceed
		// what the most permissive machine could achieve.
		mask := tv.Candidates[0].MachineMask
		if len(tv.Candidates) > 1 {
			union := append([]bool(nil), mask...)
			for _, c := range tv.Candidates[1:] {
				for q, w := range c.MachineMask {
					if w {
						union[q] = true
					}
				}
			}
			mask = union
		}
		quanta, ok := calendar.Span(mask, est, tv.MinDuration, m.Policy)
		switch {
		case !ok:
			end[tv.Task.ID] = m.Horizon
		case len(quanta) == 0:
			end[tv.Task.ID] = est
		default:
			end[tv.Task.ID] = quanta[len(quanta)-1] + 1
		}
		if end[tv.Task.ID] > m.MakespanLB {
			m.MakespanLB = end[tv.Task.ID]
		}

		for i, req := range tv.Task.Requirements {
			attended := tv.MinDuration
			if req.Attendance == models.AttendanceSetupOnly {
				attended = tv.Candidates[0].SetupQuanta
				for _, c := range tv.Candidates[1:] {
					if c.SetupQuanta < attended {
						attended = c.SetupQuanta
					}
				}
			}
			minFactor := m.Operators[tv.RoleCandidates[i][0]].EffectiveCostFactor()
			m.CostLB += float64(req.Count*attended) * minFactor
		}
	}
}
