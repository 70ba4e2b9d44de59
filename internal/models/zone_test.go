package models

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZoneAddRemove(t *testing.T) {
	now := time.Now()
	z := &ProductionZone{ID: "z1", WIPLimit: 2, Active: true}

	ev, err := z.AddJob("j1", "commit", now)
	require.NoError(t, err)
	assert.Equal(t, 0, ev.OldWIP)
	assert.Equal(t, 1, ev.NewWIP)

	_, err = z.AddJob("j2", "commit", now)
	require.NoError(t, err)
	assert.Equal(t, 2, z.CurrentWIP())

	// Limit reached.
	_, err = z.AddJob("j3", "commit", now)
	var limit *ErrWIPLimit
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, 2, z.CurrentWIP())

	ev, err = z.RemoveJob("j1", "job completed", now)
	require.NoError(t, err)
	assert.Equal(t, 2, ev.OldWIP)
	assert.Equal(t, 1, ev.NewWIP)

	_, err = z.RemoveJob("j2", "job completed", now)
	require.NoError(t, err)

	// Underflow rejected.
	_, err = z.RemoveJob("j2", "job completed", now)
	require.Error(t, err)
	assert.Equal(t, 0, z.CurrentWIP())
}

func TestZoneDeactivateRequiresEmpty(t *testing.T) {
	now := time.Now()
	z := &ProductionZone{ID: "z1", WIPLimit: 1, Active: true}

	_, err := z.AddJob("j1", "commit", now)
	require.NoError(t, err)

	require.Error(t, z.Deactivate())

	_, err = z.RemoveJob("j1", "job completed", now)
	require.NoError(t, err)
	require.NoError(t, z.Deactivate())

	// Inactive zones accept no work.
	_, err = z.AddJob("j2", "commit", now)
	require.Error(t, err)
}

// Hammer the counter from many goroutines: the invariant
// 0 <= wip <= limit must hold and the event log must replay to the
// final counter value.
func TestZoneWIPConcurrent(t *testing.T) {
	const limit = 4
	const workers = 32

	z := &ProductionZone{ID: "z1", WIPLimit: limit, Active: true}
	pub := &MemoryPublisher{}
	now := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if ev, err := z.AddJob("j", "stress", now); err == nil {
					pub.PublishWIPChanged(ev)
					ev, err = z.RemoveJob("j", "stress", now)
					if err != nil {
						t.Error("remove after successful add failed")
						return
					}
					pub.PublishWIPChanged(ev)
				} else {
					var limitErr *ErrWIPLimit
					if !errors.As(err, &limitErr) {
						t.Errorf("unexpected add error: %v", err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	wip := z.CurrentWIP()
	assert.Equal(t, 0, wip)

	// Every event's delta is +-1 and stays inside bounds.
	for _, ev := range pub.WIPEvents() {
		delta := ev.NewWIP - ev.OldWIP
		assert.Contains(t, []int{-1, 1}, delta)
		assert.GreaterOrEqual(t, ev.NewWIP, 0)
		assert.LessOrEqual(t, ev.NewWIP, limit)
	}
}
