package models

import (
	"fmt"
	"sync"
	"time"
)

// ErrWIPLimit is returned when adding a job would exceed the zone's
// WIP limit.
type ErrWIPLimit struct {
	ZoneID string
	Limit  int
}

func (e *ErrWIPLimit) Error() string {
	return fmt.Sprintf("zone %s: wip limit %d reached", e.ZoneID, e.Limit)
}

// ProductionZone is a WIP-limited container of concurrently active
// jobs. The counter is only ever changed through AddJob/RemoveJob so
// 0 <= CurrentWIP <= WIPLimit holds at all times.
type ProductionZone struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	WIPLimit int    `json:"wip_limit" yaml:"wip_limit"`
	Active   bool   `json:"active" yaml:"active"`

	mu         sync.Mutex
	currentWIP int
}

// CurrentWIP returns the number of jobs occupying the zone.
func (z *ProductionZone) CurrentWIP() int {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.currentWIP
}

// AddJob atomically checks the limit and increments WIP, emitting the
// change event. Fails with ErrWIPLimit when the zone is full.
func (z *ProductionZone) AddJob(jobID, reason string, at time.Time) (WIPChanged, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if !z.Active {
		return WIPChanged{}, &ValidationError{Entity: "zone", ID: z.ID, Field: "active", Msg: "zone is inactive"}
	}
	if z.currentWIP >= z.WIPLimit {
		return WIPChanged{}, &ErrWIPLimit{ZoneID: z.ID, Limit: z.WIPLimit}
	}
	old := z.currentWIP
	z.currentWIP++
	return WIPChanged{ZoneID: z.ID, JobID: jobID, OldWIP: old, NewWIP: z.currentWIP, Reason: reason, At: at}, nil
}

// RemoveJob atomically decrements WIP, emitting the change event.
func (z *ProductionZone) RemoveJob(jobID, reason string, at time.Time) (WIPChanged, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.currentWIP <= 0 {
		return WIPChanged{}, &ValidationError{Entity: "zone", ID: z.ID, Field: "wip", Msg: "wip already zero"}
	}
	old := z.currentWIP
	z.currentWIP--
	return WIPChanged{ZoneID: z.ID, JobID: jobID, OldWIP: old, NewWIP: z.currentWIP, Reason: reason, At: at}, nil
}

// Deactivate takes the zone out of service. Only allowed once empty.
func (z *ProductionZone) Deactivate() error {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.currentWIP != 0 {
		return &ValidationError{Entity: "zone", ID: z.ID, Field: "wip",
			Msg: fmt.Sprintf("cannot deactivate with wip %d", z.currentWIP)}
	}
	z.Active = false
	return nil
}
