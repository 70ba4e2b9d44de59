package solver

import (
	"context"
	"time"
)

// probeBudget bounds each relaxation re-solve; the probe is a
// diagnostic, not a second search.
const probeBudget = 500 * time.Millisecond

// Diagnose identifies the constraint class most likely responsible for
// an infeasible model by re-solving with one class relaxed at a time.
// The first class whose relaxation admits a solution is reported.
// Returns an empty string when the caller's result was not infeasible.
func Diagnose(ctx context.Context, eng Engine, m *Model) string {
	probes := []struct {
		relax Relaxation
		label string
	}{
		{Relaxation{Precedence: true}, "precedence constraints"},
		{Relaxation{Capacity: true}, "resource capacity (machine no-overlap or zone WIP limits)"},
		{Relaxation{Roles: true}, "skill coverage (operator availability)"},
	}

	opts := Options{Budget: probeBudget, MaxPasses: 4}
	for _, p := range probes {
		if ctx.Err() != nil {
			return "diagnosis cancelled"
		}
		res, err := eng.Solve(ctx, m.WithRelaxation(p.relax), opts)
		if err != nil {
			continue
		}
		if res.Status == StatusOptimal || res.Status == StatusFeasible {
			return p.label
		}
	}
	return "over-constrained: no single constraint class explains the infeasibility"
}
