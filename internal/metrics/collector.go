// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated timings for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Pass metrics (only for solve operations)
	TotalPasses int64
	MinPasses   int64
	MaxPasses   int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64

	// Pass stats (nil if not applicable)
	TotalPasses *int64
	AvgPasses   *float64
	MinPasses   *int64
	MaxPasses   *int64
}

// Snapshot represents the full collector state at a point in time.
type Snapshot struct {
	UptimeSeconds  float64
	Build          *OperationSnapshot
	Solve          *OperationSnapshot
	Materialize    *OperationSnapshot
	Commit         *OperationSnapshot
	DBQuery        *OperationSnapshot
	SolvesByStatus map[string]int64
	CacheHits      int64
	CacheMisses    int64
}

// Operation names for the collector.
const (
	OpBuild       = "build"
	OpSolve       = "solve"
	OpMaterialize = "materialize"
	OpCommit      = "commit"
	OpDBQuery     = "db_query"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu          sync.RWMutex
	startTime   time.Time
	ops         map[string]*OperationMetrics
	byStatus    map[string]int64
	cacheHits   int64
	cacheMisses int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
		byStatus:  make(map[string]int64),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime:   time.Duration(math.MaxInt64),
			MinPasses: math.MaxInt64,
		}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordSolve records a completed solve: its timing, the number of
// dispatch passes tried, and the terminal status.
func (c *Collector) RecordSolve(duration time.Duration, passes int, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(OpSolve)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}

	p := int64(passes)
	m.TotalPasses += p
	if p < m.MinPasses {
		m.MinPasses = p
	}
	if p > m.MaxPasses {
		m.MaxPasses = p
	}

	c.byStatus[status]++
}

// RecordCacheHit counts a solve request served from the result cache.
func (c *Collector) RecordCacheHit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheHits++
}

// RecordCacheMiss counts a solve request that had to run.
func (c *Collector) RecordCacheMiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheMisses++
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includePasses bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	s := &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}

	if includePasses && m.TotalPasses > 0 {
		total := m.TotalPasses
		avg := float64(m.TotalPasses) / float64(m.Count)
		minP := m.MinPasses
		maxP := m.MaxPasses
		s.TotalPasses = &total
		s.AvgPasses = &avg
		s.MinPasses = &minP
		s.MaxPasses = &maxP
	}

	return s
}

// Snapshot returns the current statistics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byStatus := make(map[string]int64, len(c.byStatus))
	for k, v := range c.byStatus {
		byStatus[k] = v
	}

	return Snapshot{
		UptimeSeconds:  time.Since(c.startTime).Seconds(),
		Build:          snapshotOp(c.ops[OpBuild], false),
		Solve:          snapshotOp(c.ops[OpSolve], true),
		Materialize:    snapshotOp(c.ops[OpMaterialize], false),
		Commit:         snapshotOp(c.ops[OpCommit], false),
		DBQuery:        snapshotOp(c.ops[OpDBQuery], false),
		SolvesByStatus: byStatus,
		CacheHits:      c.cacheHits,
		CacheMisses:    c.cacheMisses,
	}
}
