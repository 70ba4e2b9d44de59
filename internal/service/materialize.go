package service

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/shopworks/sched/internal/calendar"
	"github.com/shopworks/sched/internal/models"
	"github.com/shopworks/sched/internal/solver"
)

// Materialize converts a solver result into an immutable Schedule:
// quanta become wall-clock windows through the calendar, the quality
// tag records whether the objective was proven optimal, and an
// infeasible result yields an empty schedule carrying the diagnostic.
//
// Only terminal results with a defined schedule shape reach here;
// timeout-without-solution and cancellation are surfaced as run
// failures by the orchestrator, not as schedules.
func Materialize(res *solver.Result, cal *calendar.Service, fingerprint string, version int, diagnostic string) *models.Schedule {
	s := &models.Schedule{
		ID:          uuid.New().String()[:8],
		Fingerprint: fingerprint,
		Version:     version,
		Objective:   res.Objective,
		MakespanQ:   res.MakespanQ,
		SolvedAt:    time.Now().UTC(),
		WallTime:    res.WallTime,
	}

	switch res.Status {
	case solver.StatusOptimal:
		s.Quality = models.QualityOptimal
	case solver.StatusFeasible:
		s.Quality = models.QualityFeasible
	default:
		s.Quality = models.QualityInfeasible
		s.Diagnostic = diagnostic
		return s
	}

	s.Assignments = make([]models.ScheduleAssignment, 0, len(res.Assignments))
	for _, a := range res.Assignments {
		sa := models.ScheduleAssignment{
			TaskID:      a.TaskID,
			JobID:       a.JobID,
			ModeID:      a.ModeID,
			MachineID:   a.MachineID,
			ZoneID:      a.ZoneID,
			OperatorIDs: a.OperatorIDs(),
			StartQ:      a.StartQ,
			EndQ:        a.EndQ,
			Start:       cal.Time(a.StartQ),
			End:         cal.Time(a.EndQ),
		}
		s.Assignments = append(s.Assignments, sa)
	}
	return s
}

// ZoneOccupancy returns the distinct (zone, job) pairs a schedule
// claims, sorted for deterministic commit order.
func ZoneOccupancy(s *models.Schedule) []ZoneClaim {
	seen := make(map[ZoneClaim]struct{})
	var claims []ZoneClaim
	for _, a := range s.Assignments {
		c := ZoneClaim{ZoneID: a.ZoneID, JobID: a.JobID}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		claims = append(claims, c)
	}
	sort.Slice(claims, func(a, b int) bool {
		if claims[a].ZoneID != claims[b].ZoneID {
			return claims[a].ZoneID < claims[b].ZoneID
		}
		return claims[a].JobID < claims[b].JobID
	})
	return claims
}

// ZoneClaim is one job occupying one zone under a schedule.
type ZoneClaim struct {
	ZoneID string
	JobID  string
}
