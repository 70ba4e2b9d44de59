// Package service orchestrates solves: fingerprint deduplication,
// progress reporting, cancellation, result caching and schedule
// commit. It owns no transport; callers poll through Run handles.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopworks/sched/internal/models"
)

// Sentinel errors for schedule commit and lookup.
var (
	// ErrWIPConflict is a transient commit conflict (a concurrent
	// commit raced the capacity check). Retried internally.
	ErrWIPConflict = errors.New("wip commit conflict")

	// ErrResourceConflict is surfaced after WIP commit retries are
	// exhausted or a zone is genuinely full.
	ErrResourceConflict = errors.New("resource conflict")

	// ErrScheduleNotFound is returned for unknown schedule IDs.
	ErrScheduleNotFound = errors.New("schedule not found")
)

// ScheduleSink durably stores materialized schedules and updates zone
// WIP counters transactionally. Implemented by internal/db for
// SurrealDB and by MemorySink for tests and in-process use.
type ScheduleSink interface {
	SaveSchedule(ctx context.Context, s *models.Schedule) error
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)
	ListSchedules(ctx context.Context, fingerprint string) ([]*models.Schedule, error)

	// CommitWIP atomically checks capacity and increments the zone
	// counter, returning the change event. ErrWIPConflict signals a
	// retryable race; ErrResourceConflict a full zone.
	CommitWIP(ctx context.Context, zoneID, jobID string) (models.WIPChanged, error)
	// ReleaseWIP decrements the counter (job left the zone, or a
	// partially committed schedule is rolled back).
	ReleaseWIP(ctx context.Context, zoneID, jobID string) (models.WIPChanged, error)
}

// MemorySink is an in-memory ScheduleSink backed by the domain zone
// counters. Safe for concurrent use.
type MemorySink struct {
	mu        sync.RWMutex
	schedules map[string]*models.Schedule
	zones     map[string]*models.ProductionZone
}

// NewMemorySink builds a sink over the given zones.
func NewMemorySink(zones []*models.ProductionZone) *MemorySink {
	s := &MemorySink{
		schedules: make(map[string]*models.Schedule),
		zones:     make(map[string]*models.ProductionZone, len(zones)),
	}
	for _, z := range zones {
		s.zones[z.ID] = z
	}
	return s
}

// SaveSchedule stores the schedule. Schedules are immutable: saving an
// existing ID is rejected.
func (s *MemorySink) SaveSchedule(_ context.Context, sched *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.schedules[sched.ID]; dup {
		return fmt.Errorf("schedule %s already stored", sched.ID)
	}
	s.schedules[sched.ID] = sched
	return nil
}

// GetSchedule returns a stored schedule by ID.
func (s *MemorySink) GetSchedule(_ context.Context, id string) (*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[id]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	return sched, nil
}

// ListSchedules returns schedules for a fingerprint (all when empty),
// newest version first.
func (s *MemorySink) ListSchedules(_ context.Context, fingerprint string) ([]*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Schedule
	for _, sched := range s.schedules {
		if fingerprint == "" || sched.Fingerprint == fingerprint {
			out = append(out, sched)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Fingerprint != out[b].Fingerprint {
			return out[a].Fingerprint < out[b].Fingerprint
		}
		return out[a].Version > out[b].Version
	})
	return out, nil
}

// CommitWIP delegates to the domain zone counter.
func (s *MemorySink) CommitWIP(_ context.Context, zoneID, jobID string) (models.WIPChanged, error) {
	z := s.zone(zoneID)
	if z == nil {
		return models.WIPChanged{}, fmt.Errorf("%w: unknown zone %s", ErrResourceConflict, zoneID)
	}
	ev, err := z.AddJob(jobID, "schedule commit", time.Now())
	if err != nil {
		var limit *models.ErrWIPLimit
		if errors.As(err, &limit) {
			return models.WIPChanged{}, fmt.Errorf("%w: %s", ErrResourceConflict, err)
		}
		return models.WIPChanged{}, err
	}
	return ev, nil
}

// ReleaseWIP delegates to the domain zone counter.
func (s *MemorySink) ReleaseWIP(_ context.Context, zoneID, jobID string) (models.WIPChanged, error) {
	z := s.zone(zoneID)
	if z == nil {
		return models.WIPChanged{}, fmt.Errorf("%w: unknown zone %s", ErrResourceConflict, zoneID)
	}
	return z.RemoveJob(jobID, "schedule rollback", time.Now())
}

func (s *MemorySink) zone(id string) *models.ProductionZone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zones[id]
}
