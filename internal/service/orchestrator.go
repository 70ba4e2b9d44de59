package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shopworks/sched/internal/calendar"
	"github.com/shopworks/sched/internal/metrics"
	"github.com/shopworks/sched/internal/models"
	"github.com/shopworks/sched/internal/solver"
)

// ErrNoSolution is returned when the solve budget ran out before any
// feasible assignment was found. Retry with a larger budget.
var ErrNoSolution = errors.New("budget exhausted before any solution was found")

// ErrCancelled is returned by Wait for a cancelled run.
var ErrCancelled = errors.New("solve cancelled")

// wipCommitRetries bounds retries of transient WIP commit conflicts
// before the run fails with ErrResourceConflict.
const wipCommitRetries = 3

// Phase is the coarse progress state of a run.
type Phase string

const (
	PhaseQueued        Phase = "queued"
	PhaseBuilding      Phase = "building"
	PhaseSolving       Phase = "solving"
	PhaseMaterializing Phase = "materializing"
	PhaseDone          Phase = "done"
	PhaseFailed        Phase = "failed"
	PhaseCancelled     Phase = "cancelled"
)

// Terminal reports whether the phase is final.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed || p == PhaseCancelled
}

// Run is the handle for one solve request. Duplicate requests for the
// same fingerprint share a Run; callers poll Snapshot or block on Wait.
type Run struct {
	ID          string
	Fingerprint string
	StartedAt   time.Time

	mu          sync.RWMutex
	phase       Phase
	pct         int
	cached      bool
	schedule    *models.Schedule
	err         error
	completedAt *time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// RunSnapshot is a point-in-time copy of run state.
type RunSnapshot struct {
	ID          string
	Fingerprint string
	Phase       Phase
	Pct         int
	Cached      bool
	ScheduleID  string
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Snapshot returns a thread-safe copy of the run state.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := RunSnapshot{
		ID:          r.ID,
		Fingerprint: r.Fingerprint,
		Phase:       r.phase,
		Pct:         r.pct,
		Cached:      r.cached,
		StartedAt:   r.StartedAt,
		CompletedAt: r.completedAt,
	}
	if r.schedule != nil {
		s.ScheduleID = r.schedule.ID
	}
	if r.err != nil {
		s.Error = r.err.Error()
	}
	return s
}

// Cancel requests cooperative cancellation. The run settles in the
// cancelled phase promptly; already-terminal runs are unaffected.
func (r *Run) Cancel() {
	if r.cancel != nil {
		r.cancel()
	}
}

// Wait blocks until the run reaches a terminal phase or ctx expires.
func (r *Run) Wait(ctx context.Context) (*models.Schedule, error) {
	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schedule, r.err
}

// Done is closed when the run reaches a terminal phase.
func (r *Run) Done() <-chan struct{} { return r.done }

func (r *Run) setProgress(phase Phase, pct int) {
	r.mu.Lock()
	r.phase = phase
	r.pct = pct
	r.mu.Unlock()
}

func (r *Run) settle(phase Phase, sched *models.Schedule, err error) {
	r.mu.Lock()
	r.phase = phase
	if phase == PhaseDone {
		r.pct = 100
	}
	r.schedule = sched
	r.err = err
	now := time.Now()
	r.completedAt = &now
	r.mu.Unlock()
	close(r.done)
}

// Config tunes the solve manager.
type Config struct {
	// Workers caps concurrent solves. Default 2.
	Workers int
	// CacheTTL is how long a finished schedule answers repeat requests
	// for the same fingerprint. Default 5 minutes.
	CacheTTL time.Duration
	// Budget/MaxPasses/Seed are passed through to the engine.
	Budget    time.Duration
	MaxPasses int
	Seed      int64
	// Calendar is the shop calendar configuration; snapshot holidays
	// are merged in per solve.
	Calendar calendar.Config
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
	return c
}

// SolveOptions tune one request.
type SolveOptions struct {
	// Force bypasses the result cache. An in-flight solve for the same
	// fingerprint is still joined.
	Force bool
	// Budget overrides the manager's solve budget when positive.
	Budget time.Duration
}

type cacheEntry struct {
	schedule *models.Schedule
	expires  time.Time
}

// Manager coordinates solves: at most one in-flight solve per
// fingerprint, a bounded worker pool, a TTL result cache and commit of
// finished schedules through the sink.
type Manager struct {
	cfg    Config
	engine solver.Engine
	sink   ScheduleSink
	pub    models.EventPublisher
	stats  *metrics.Collector
	logger *slog.Logger

	mu       sync.Mutex
	runs     map[string]*Run // by run ID
	inflight map[string]*Run // by fingerprint
	cache    map[string]cacheEntry
	versions map[string]int
	claims   map[string][]ZoneClaim // committed zone occupancy by fingerprint
	slots    chan struct{}
}

// NewManager builds a solve manager. Publisher and collector may be
// nil; logger nil means discard.
func NewManager(cfg Config, engine solver.Engine, sink ScheduleSink, pub models.EventPublisher, stats *metrics.Collector, logger *slog.Logger) *Manager {
	cfg = cfg.withDefaults()
	if pub == nil {
		pub = models.NopPublisher{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		cfg:      cfg,
		engine:   engine,
		sink:     sink,
		pub:      pub,
		stats:    stats,
		logger:   logger,
		runs:     make(map[string]*Run),
		inflight: make(map[string]*Run),
		cache:    make(map[string]cacheEntry),
		versions: make(map[string]int),
		claims:   make(map[string][]ZoneClaim),
		slots:    make(chan struct{}, cfg.Workers),
	}
}

// RequestSolve validates the snapshot and starts (or joins) a solve.
// A fresh cached schedule for the same fingerprint is returned as an
// already-terminal run unless opts.Force is set; a request matching an
// in-flight fingerprint joins that run instead of starting another.
func (m *Manager) RequestSolve(ctx context.Context, shop *models.ShopState, w solver.Weights, opts SolveOptions) (*Run, error) {
	if err := shop.Validate(); err != nil {
		return nil, err
	}

	fp := Fingerprint(shop, w, m.cfg.Calendar)

	m.mu.Lock()
	if !opts.Force {
		if entry, ok := m.cache[fp]; ok && time.Now().Before(entry.expires) {
			run := m.cachedRunLocked(fp, entry.schedule)
			m.mu.Unlock()
			if m.stats != nil {
				m.stats.RecordCacheHit()
			}
			m.logger.Debug("solve served from cache", "fingerprint", fp[:8], "schedule_id", entry.schedule.ID)
			return run, nil
		}
	}
	// Force bypasses the cache only. A fingerprint never has more than
	// one solve in flight, so a forced request joins the running one.
	if run, ok := m.inflight[fp]; ok {
		m.mu.Unlock()
		m.logger.Debug("joined in-flight solve", "fingerprint", fp[:8], "run_id", run.ID)
		return run, nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &Run{
		ID:          uuid.New().String()[:8], // Short ID for convenience
		Fingerprint: fp,
		StartedAt:   time.Now(),
		phase:       PhaseQueued,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	m.runs[run.ID] = run
	m.inflight[fp] = run
	m.mu.Unlock()

	if m.stats != nil {
		m.stats.RecordCacheMiss()
	}
	m.logger.Info("solve requested", "run_id", run.ID, "fingerprint", fp[:8],
		"jobs", len(shop.Jobs), "force", opts.Force)

	go m.execute(runCtx, run, shop, w, opts)
	return run, nil
}

// cachedRunLocked synthesizes a terminal run for a cache hit.
func (m *Manager) cachedRunLocked(fp string, sched *models.Schedule) *Run {
	now := time.Now()
	run := &Run{
		ID:          uuid.New().String()[:8],
		Fingerprint: fp,
		StartedAt:   now,
		phase:       PhaseDone,
		pct:         100,
		cached:      true,
		schedule:    sched,
		completedAt: &now,
		done:        make(chan struct{}),
	}
	close(run.done)
	m.runs[run.ID] = run
	return run
}

// GetRun retrieves a run by ID.
func (m *Manager) GetRun(id string) *Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}

// ListRuns returns all runs, most recent first.
func (m *Manager) ListRuns() []*Run {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs := make([]*Run, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, run)
	}
	slices.SortFunc(runs, func(a, b *Run) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return runs
}

func (m *Manager) execute(ctx context.Context, run *Run, shop *models.ShopState, w solver.Weights, opts SolveOptions) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("solve goroutine panicked", "run_id", run.ID, "panic", r)
			m.finish(run, PhaseFailed, nil, fmt.Errorf("internal panic: %v", r))
		}
	}()

	// Worker slot: queued until one frees up.
	select {
	case m.slots <- struct{}{}:
		defer func() { <-m.slots }()
	case <-ctx.Done():
		m.finish(run, PhaseCancelled, nil, ErrCancelled)
		return
	}

	run.setProgress(PhaseBuilding, 10)
	buildStart := time.Now()

	calCfg := m.cfg.Calendar
	calCfg.Holidays = append(append([]models.HolidayEntry(nil), calCfg.Holidays...), shop.Holidays...)
	horizonStart := shop.HorizonStart
	if horizonStart.IsZero() {
		horizonStart = time.Now()
	}
	cal := calendar.New(calCfg, horizonStart, shop.HorizonDays)

	model, err := solver.Build(shop, cal, w)
	if err != nil {
		m.logger.Warn("model build failed", "run_id", run.ID, "error", err)
		m.finish(run, PhaseFailed, nil, err)
		return
	}
	if m.stats != nil {
		m.stats.RecordTiming(metrics.OpBuild, time.Since(buildStart))
	}

	run.setProgress(PhaseSolving, 20)
	budget := m.cfg.Budget
	if opts.Budget > 0 {
		budget = opts.Budget
	}
	res, err := m.engine.Solve(ctx, model, solver.Options{
		Budget:    budget,
		MaxPasses: m.cfg.MaxPasses,
		Seed:      m.cfg.Seed,
	})
	if err != nil {
		m.finish(run, PhaseFailed, nil, err)
		return
	}
	if m.stats != nil {
		m.stats.RecordSolve(res.WallTime, res.Passes, string(res.Status))
	}
	m.logger.Info("solve finished", "run_id", run.ID, "status", res.Status,
		"objective", res.Objective, "passes", res.Passes, "wall_time", res.WallTime)

	switch res.Status {
	case solver.StatusCancelled:
		m.finish(run, PhaseCancelled, nil, ErrCancelled)
		return
	case solver.StatusTimeoutNoSolution:
		m.finish(run, PhaseFailed, nil, fmt.Errorf("%w (budget %s)", ErrNoSolution, budget))
		return
	}

	run.setProgress(PhaseMaterializing, 80)
	matStart := time.Now()

	var diagnostic string
	if res.Status == solver.StatusInfeasible {
		diagnostic = solver.Diagnose(ctx, m.engine, model)
		m.logger.Warn("model infeasible", "run_id", run.ID, "diagnostic", diagnostic)
	}
	sched := Materialize(res, cal, run.Fingerprint, m.nextVersion(run.Fingerprint), diagnostic)
	if m.stats != nil {
		m.stats.RecordTiming(metrics.OpMaterialize, time.Since(matStart))
	}

	if err := m.commit(ctx, sched); err != nil {
		m.finish(run, PhaseFailed, nil, err)
		return
	}

	m.mu.Lock()
	m.cache[run.Fingerprint] = cacheEntry{schedule: sched, expires: time.Now().Add(m.cfg.CacheTTL)}
	m.mu.Unlock()

	m.finish(run, PhaseDone, sched, nil)
}

// commit claims the schedule's zone occupancy, releases claims held by
// the superseded version that the new one no longer needs, then stores
// the schedule. Claims present in both versions carry over without
// touching the counters, so re-solving an unchanged shop at its WIP
// limit succeeds. Transient conflicts on new claims are retried a
// bounded number of times; on a final conflict the new claims are
// released, nothing is stored and the commit fails.
func (m *Manager) commit(ctx context.Context, sched *models.Schedule) error {
	start := time.Now()
	defer func() {
		if m.stats != nil {
			m.stats.RecordTiming(metrics.OpCommit, time.Since(start))
		}
	}()

	// Infeasible schedules carry no assignments and claim nothing.
	next := ZoneOccupancy(sched)
	m.mu.Lock()
	prior := m.claims[sched.Fingerprint]
	m.mu.Unlock()
	added, removed := diffClaims(prior, next)

	committed := make([]ZoneClaim, 0, len(added))
	for _, c := range added {
		ev, err := m.commitClaim(ctx, c)
		if err != nil {
			m.releaseClaims(ctx, committed)
			return err
		}
		committed = append(committed, c)
		m.pub.PublishWIPChanged(ev)
	}
	m.releaseClaims(ctx, removed)

	if err := m.sink.SaveSchedule(ctx, sched); err != nil {
		m.releaseClaims(ctx, committed)
		m.restoreClaims(ctx, removed)
		return fmt.Errorf("save schedule: %w", err)
	}

	m.mu.Lock()
	m.claims[sched.Fingerprint] = next
	m.mu.Unlock()

	m.pub.PublishScheduleCommitted(models.ScheduleCommitted{
		ScheduleID:  sched.ID,
		Fingerprint: sched.Fingerprint,
		Version:     sched.Version,
		At:          time.Now(),
	})
	return nil
}

// diffClaims splits the new occupancy into claims to commit and prior
// claims to release.
func diffClaims(prior, next []ZoneClaim) (added, removed []ZoneClaim) {
	has := func(set []ZoneClaim, c ZoneClaim) bool {
		for _, s := range set {
			if s == c {
				return true
			}
		}
		return false
	}
	for _, c := range next {
		if !has(prior, c) {
			added = append(added, c)
		}
	}
	for _, c := range prior {
		if !has(next, c) {
			removed = append(removed, c)
		}
	}
	return added, removed
}

func (m *Manager) releaseClaims(ctx context.Context, claims []ZoneClaim) {
	for _, c := range claims {
		ev, err := m.sink.ReleaseWIP(ctx, c.ZoneID, c.JobID)
		if err != nil {
			m.logger.Error("wip release failed", "zone", c.ZoneID, "job", c.JobID, "error", err)
			continue
		}
		m.pub.PublishWIPChanged(ev)
	}
}

// restoreClaims re-commits claims that were released before a commit
// ultimately failed. Best effort: a conflict here means another run
// took the capacity in between, which is logged, not fatal.
func (m *Manager) restoreClaims(ctx context.Context, claims []ZoneClaim) {
	for _, c := range claims {
		ev, err := m.sink.CommitWIP(ctx, c.ZoneID, c.JobID)
		if err != nil {
			m.logger.Error("wip restore failed", "zone", c.ZoneID, "job", c.JobID, "error", err)
			continue
		}
		m.pub.PublishWIPChanged(ev)
	}
}

func (m *Manager) commitClaim(ctx context.Context, c ZoneClaim) (models.WIPChanged, error) {
	var lastErr error
	for attempt := 0; attempt <= wipCommitRetries; attempt++ {
		ev, err := m.sink.CommitWIP(ctx, c.ZoneID, c.JobID)
		if err == nil {
			return ev, nil
		}
		if !errors.Is(err, ErrWIPConflict) {
			return models.WIPChanged{}, err
		}
		lastErr = err
		m.logger.Debug("wip commit conflict, retrying", "zone", c.ZoneID, "job", c.JobID, "attempt", attempt+1)
	}
	return models.WIPChanged{}, fmt.Errorf("%w: zone %s job %s: %v", ErrResourceConflict, c.ZoneID, c.JobID, lastErr)
}

func (m *Manager) nextVersion(fp string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[fp]++
	return m.versions[fp]
}

func (m *Manager) finish(run *Run, phase Phase, sched *models.Schedule, err error) {
	m.mu.Lock()
	if m.inflight[run.Fingerprint] == run {
		delete(m.inflight, run.Fingerprint)
	}
	m.mu.Unlock()

	run.settle(phase, sched, err)

	switch phase {
	case PhaseDone:
		m.logger.Info("run completed", "run_id", run.ID, "schedule_id", sched.ID,
			"quality", sched.Quality, "version", sched.Version)
	case PhaseCancelled:
		m.logger.Info("run cancelled", "run_id", run.ID)
	default:
		m.logger.Error("run failed", "run_id", run.ID, "error", err)
	}
}
