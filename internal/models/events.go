package models

import (
	"sync"
	"time"
)

// JobStatusChanged is emitted on every job state-machine transition.
type JobStatusChanged struct {
	JobID string    `json:"job_id"`
	From  JobStatus `json:"from"`
	To    JobStatus `json:"to"`
	At    time.Time `json:"at"`
}

// WIPChanged is emitted on every zone WIP counter change, carrying the
// before/after values so an event log can reconstruct the counter.
type WIPChanged struct {
	ZoneID string    `json:"zone_id"`
	JobID  string    `json:"job_id"`
	OldWIP int       `json:"old_wip"`
	NewWIP int       `json:"new_wip"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// ScheduleCommitted is emitted when a materialized schedule has been
// durably stored and its zone occupancy committed.
type ScheduleCommitted struct {
	ScheduleID  string    `json:"schedule_id"`
	Fingerprint string    `json:"fingerprint"`
	Version     int       `json:"version"`
	At          time.Time `json:"at"`
}

// EventPublisher receives domain events. Implementations forward them
// to notification infrastructure; the core never performs delivery
// itself. Publishers are passed explicitly, never held as globals.
type EventPublisher interface {
	PublishJobStatusChanged(ev JobStatusChanged)
	PublishWIPChanged(ev WIPChanged)
	PublishScheduleCommitted(ev ScheduleCommitted)
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) PublishJobStatusChanged(JobStatusChanged)   {}
func (NopPublisher) PublishWIPChanged(WIPChanged)               {}
func (NopPublisher) PublishScheduleCommitted(ScheduleCommitted) {}

// MemoryPublisher records events in order, for tests and audit replay.
// Safe for concurrent use.
type MemoryPublisher struct {
	mu           sync.Mutex
	statusEvents []JobStatusChanged
	wipEvents    []WIPChanged
	commits      []ScheduleCommitted
}

func (p *MemoryPublisher) PublishJobStatusChanged(ev JobStatusChanged) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusEvents = append(p.statusEvents, ev)
}

func (p *MemoryPublisher) PublishWIPChanged(ev WIPChanged) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wipEvents = append(p.wipEvents, ev)
}

func (p *MemoryPublisher) PublishScheduleCommitted(ev ScheduleCommitted) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commits = append(p.commits, ev)
}

// StatusEvents returns a copy of recorded job status events.
func (p *MemoryPublisher) StatusEvents() []JobStatusChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]JobStatusChanged(nil), p.statusEvents...)
}

// WIPEvents returns a copy of recorded WIP change events.
func (p *MemoryPublisher) WIPEvents() []WIPChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]WIPChanged(nil), p.wipEvents...)
}

// Commits returns a copy of recorded schedule commit events.
func (p *MemoryPublisher) Commits() []ScheduleCommitted {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ScheduleCommitted(nil), p.commits...)
}
