package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/shopworks/sched/internal/models"
	"github.com/shopworks/sched/internal/service"
)

// Sink persists schedules and zone WIP counters in SurrealDB.
type Sink struct {
	client *Client
}

var _ service.ScheduleSink = (*Sink)(nil)

// NewSink wraps a connected client as a schedule sink.
func NewSink(client *Client) *Sink {
	return &Sink{client: client}
}

// scheduleRecord is the stored shape of a schedule. Assignments keep
// their JSON shape in a flexible array field.
type scheduleRecord struct {
	ID          any                         `json:"id,omitempty"`
	Fingerprint string                      `json:"fingerprint"`
	Version     int                         `json:"version"`
	Quality     string                      `json:"quality"`
	Objective   float64                     `json:"objective"`
	MakespanQ   int                         `json:"makespan_q"`
	Diagnostic  *string                     `json:"diagnostic,omitempty"`
	Assignments []models.ScheduleAssignment `json:"assignments"`
	SolvedAt    time.Time                   `json:"solved_at"`
	WallTimeMs  int64                       `json:"wall_time_ms"`
}

func (r *scheduleRecord) toSchedule(id string) *models.Schedule {
	s := &models.Schedule{
		ID:          id,
		Fingerprint: r.Fingerprint,
		Version:     r.Version,
		Quality:     models.Quality(r.Quality),
		Objective:   r.Objective,
		MakespanQ:   r.MakespanQ,
		Assignments: r.Assignments,
		SolvedAt:    r.SolvedAt,
		WallTime:    time.Duration(r.WallTimeMs) * time.Millisecond,
	}
	if r.Diagnostic != nil {
		s.Diagnostic = *r.Diagnostic
	}
	return s
}

// scheduleRow carries the schedule plus its string record ID back from
// queries.
type scheduleRow struct {
	scheduleRecord
	RecordID string `json:"record_id"`
}

// selectClause projects the record ID to a plain string alongside the
// schedule fields.
const selectClause = `
	SELECT *, record::id(id) AS record_id FROM `

// SaveSchedule stores an immutable schedule under its short ID.
func (s *Sink) SaveSchedule(ctx context.Context, sched *models.Schedule) error {
	assignments := sched.Assignments
	if assignments == nil {
		assignments = []models.ScheduleAssignment{}
	}
	rec := scheduleRecord{
		Fingerprint: sched.Fingerprint,
		Version:     sched.Version,
		Quality:     string(sched.Quality),
		Objective:   sched.Objective,
		MakespanQ:   sched.MakespanQ,
		Assignments: assignments,
		SolvedAt:    sched.SolvedAt,
		WallTimeMs:  sched.WallTime.Milliseconds(),
	}
	if sched.Diagnostic != "" {
		rec.Diagnostic = &sched.Diagnostic
	}

	_, err := surrealdb.Query[any](ctx, s.client.db, `
		CREATE type::record("schedule", $id) CONTENT $content
	`, map[string]any{"id": sched.ID, "content": rec})
	if err != nil {
		return fmt.Errorf("save schedule %s: %w", sched.ID, wrapQueryError(err))
	}
	return nil
}

// GetSchedule retrieves a schedule by its short ID.
func (s *Sink) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	results, err := surrealdb.Query[[]scheduleRow](ctx, s.client.db,
		selectClause+`type::record("schedule", $id)`,
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get schedule %s: %w", id, wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("schedule %s: %w", id, service.ErrScheduleNotFound)
	}
	row := (*results)[0].Result[0]
	return row.toSchedule(row.RecordID), nil
}

// ListSchedules returns schedules for a fingerprint (all when empty),
// newest version first.
func (s *Sink) ListSchedules(ctx context.Context, fingerprint string) ([]*models.Schedule, error) {
	sql := selectClause + `schedule ORDER BY fingerprint, version DESC`
	vars := map[string]any{}
	if fingerprint != "" {
		sql = selectClause + `schedule WHERE fingerprint = $fp ORDER BY version DESC`
		vars["fp"] = fingerprint
	}

	results, err := surrealdb.Query[[]scheduleRow](ctx, s.client.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	rows := (*results)[0].Result
	out := make([]*models.Schedule, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toSchedule(rows[i].RecordID))
	}
	return out, nil
}

// wipRecord is one zone counter row.
type wipRecord struct {
	Current int `json:"current"`
	Limit   int `json:"wip_limit"`
}

// InitZones seeds the WIP counter records from a shop snapshot. Existing
// counters keep their current value but pick up limit changes.
func (s *Sink) InitZones(ctx context.Context, zones []*models.ProductionZone) error {
	for _, z := range zones {
		_, err := surrealdb.Query[any](ctx, s.client.db, `
			UPSERT type::record("zone_wip", $zone) SET
				wip_limit = $limit,
				updated = time::now()
		`, map[string]any{"zone": z.ID, "limit": z.WIPLimit})
		if err != nil {
			return fmt.Errorf("init zone %s: %w", z.ID, wrapQueryError(err))
		}
	}
	return nil
}

// CommitWIP atomically checks capacity and increments the zone counter
// inside one transaction, appending an audit log row. A concurrent
// transaction conflict maps to the service's retryable sentinel; a full
// zone maps to the final resource conflict.
func (s *Sink) CommitWIP(ctx context.Context, zoneID, jobID string) (models.WIPChanged, error) {
	return s.changeWIP(ctx, zoneID, jobID, "schedule commit", `
		BEGIN TRANSACTION;
		LET $z = (SELECT * FROM ONLY type::record("zone_wip", $zone));
		IF $z == NONE { THROW "zone not found" };
		IF $z.current >= $z.wip_limit { THROW "wip limit reached" };
		UPDATE type::record("zone_wip", $zone) SET current += 1, updated = time::now();
		CREATE wip_log CONTENT {
			zone: $zone, job: $job,
			old_wip: $z.current, new_wip: $z.current + 1,
			reason: $reason
		};
		RETURN { current: $z.current + 1, wip_limit: $z.wip_limit };
		COMMIT TRANSACTION;
	`)
}

// ReleaseWIP atomically decrements the zone counter.
func (s *Sink) ReleaseWIP(ctx context.Context, zoneID, jobID string) (models.WIPChanged, error) {
	return s.changeWIP(ctx, zoneID, jobID, "schedule rollback", `
		BEGIN TRANSACTION;
		LET $z = (SELECT * FROM ONLY type::record("zone_wip", $zone));
		IF $z == NONE { THROW "zone not found" };
		IF $z.current <= 0 { THROW "wip already zero" };
		UPDATE type::record("zone_wip", $zone) SET current -= 1, updated = time::now();
		CREATE wip_log CONTENT {
			zone: $zone, job: $job,
			old_wip: $z.current, new_wip: $z.current - 1,
			reason: $reason
		};
		RETURN { current: $z.current - 1, wip_limit: $z.wip_limit };
		COMMIT TRANSACTION;
	`)
}

func (s *Sink) changeWIP(ctx context.Context, zoneID, jobID, reason, sql string) (models.WIPChanged, error) {
	results, err := surrealdb.Query[wipRecord](ctx, s.client.db, sql, map[string]any{
		"zone":   zoneID,
		"job":    jobID,
		"reason": reason,
	})
	if err != nil {
		err = wrapQueryError(err)
		switch {
		case errors.Is(err, ErrTransactionConflict):
			return models.WIPChanged{}, fmt.Errorf("zone %s: %w", zoneID, service.ErrWIPConflict)
		case errors.Is(err, ErrZoneFull):
			return models.WIPChanged{}, fmt.Errorf("zone %s: %w", zoneID, service.ErrResourceConflict)
		}
		return models.WIPChanged{}, fmt.Errorf("zone %s wip change: %w", zoneID, err)
	}
	if results == nil || len(*results) == 0 {
		return models.WIPChanged{}, fmt.Errorf("zone %s: %w", zoneID, ErrNotFound)
	}

	rec := (*results)[len(*results)-1].Result
	var old int
	if reason == "schedule rollback" {
		old = rec.Current + 1
	} else {
		old = rec.Current - 1
	}
	return models.WIPChanged{
		ZoneID: zoneID,
		JobID:  jobID,
		OldWIP: old,
		NewWIP: rec.Current,
		Reason: reason,
		At:     time.Now(),
	}, nil
}
