package solver

import (
	"sort"
	"strconv"
	"strings"
)

// Weights scale the objective terms. The objective is
//
//	Makespan*makespanQ + Tardiness*Σ priorityWeight*max(0, end-due)
//	  + OperatorCost*Σ operatorQuanta*costFactor
//
// Defaults weigh makespan and tardiness equally and keep the operator
// cost term as a light tie-breaker.
type Weights struct {
	Makespan     float64 `json:"makespan" yaml:"makespan"`
	Tardiness    float64 `json:"tardiness" yaml:"tardiness"`
	OperatorCost float64 `json:"operator_cost" yaml:"operator_cost"`
}

// DefaultWeights returns the documented default weighting.
func DefaultWeights() Weights {
	return Weights{Makespan: 1, Tardiness: 1, OperatorCost: 0.01}
}

// objectiveTerms carries the individual terms so ties can be broken in
// the documented order without re-deriving them.
type objectiveTerms struct {
	makespanQ    int
	tardiness    float64 // priority-weighted
	operatorCost float64
}

func (t objectiveTerms) value(w Weights) float64 {
	return w.Makespan*float64(t.makespanQ) + w.Tardiness*t.tardiness + w.OperatorCost*t.operatorCost
}

// evaluate computes the objective terms of a complete assignment set.
func (m *Model) evaluate(assignments []Assignment) objectiveTerms {
	var t objectiveTerms

	jobEnd := make(map[string]int, len(m.ReleaseQ))
	for _, a := range assignments {
		if a.EndQ > t.makespanQ {
			t.makespanQ = a.EndQ
		}
		if a.EndQ > jobEnd[a.JobID] {
			jobEnd[a.JobID] = a.EndQ
		}
		for _, oa := range a.Operators {
			factor := 1.0
			if op := m.Operators[oa.OperatorID]; op != nil {
				factor = op.EffectiveCostFactor()
			}
			t.operatorCost += float64(oa.Quanta) * factor
		}
	}

	// Deterministic accumulation order keeps float sums reproducible.
	jobIDs := make([]string, 0, len(jobEnd))
	for jobID := range jobEnd {
		jobIDs = append(jobIDs, jobID)
	}
	sort.Strings(jobIDs)
	for _, jobID := range jobIDs {
		end := jobEnd[jobID]
		if due := m.DueQ[jobID]; end > due {
			t.tardiness += m.JobPrio[jobID].Weight() * float64(end-due)
		}
	}

	return t
}

// signature is the canonical encoding of an assignment set, ordered by
// task ID. It is the last deterministic tie-break: between assignments
// with identical objective terms the lexicographically smallest
// signature wins.
func signature(assignments []Assignment) string {
	parts := make([]string, len(assignments))
	for i, a := range assignments {
		var b strings.Builder
		b.WriteString(a.TaskID)
		b.WriteByte('|')
		b.WriteString(a.ModeID)
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(a.StartQ))
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(a.EndQ))
		for _, op := range a.Operators {
			b.WriteByte('|')
			b.WriteString(op.OperatorID)
		}
		parts[i] = b.String()
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

// incumbent is the best solution found so far plus everything needed
// for deterministic comparison.
type incumbent struct {
	assignments []Assignment
	terms       objectiveTerms
	objective   float64
	sig         string
}

// better reports whether candidate beats cur under the documented
// tie-break order: objective, earliest makespan, lowest weighted
// tardiness, lowest operator cost, lexicographically smallest task-ID
// ordering.
func better(candidate, cur *incumbent) bool {
	if cur == nil {
		return true
	}
	const eps = 1e-9
	switch {
	case candidate.objective < cur.objective-eps:
		return true
	case candidate.objective > cur.objective+eps:
		return false
	}
	if candidate.terms.makespanQ != cur.terms.makespanQ {
		return candidate.terms.makespanQ < cur.terms.makespanQ
	}
	if candidate.terms.tardiness != cur.terms.tardiness {
		return candidate.terms.tardiness < cur.terms.tardiness
	}
	if candidate.terms.operatorCost != cur.terms.operatorCost {
		return candidate.terms.operatorCost < cur.terms.operatorCost
	}
	return candidate.sig < cur.sig
}
