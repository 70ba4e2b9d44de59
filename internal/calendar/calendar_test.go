package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopworks/sched/internal/models"
)

// friday anchors the tests: 2026-03-06 is a Friday, so quanta cross a
// weekend after one working day.
var friday = time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)

// hourly builds a 1h-quantum calendar with an 08:00-16:00 shop shift.
func hourly(holidays []models.HolidayEntry, policy Policy) *Service {
	return New(Config{
		QuantumMinutes: 60,
		ShopShift:      models.ShiftWindow{StartMinute: 8 * 60, EndMinute: 16 * 60},
		Holidays:       holidays,
		Policy:         policy,
	}, friday, 7)
}

func TestShopAvailability(t *testing.T) {
	s := hourly(nil, PolicyPause)
	mask := s.ShopAvailability()
	require.Len(t, mask, 7*24)

	assert.False(t, mask[7], "07:00 before shift")
	assert.True(t, mask[8], "08:00 on shift")
	assert.True(t, mask[15], "15:00 on shift")
	assert.False(t, mask[16], "16:00 after shift")

	// Saturday and Sunday are fully off.
	for q := 24; q < 72; q++ {
		assert.False(t, mask[q], "weekend quantum %d should be off", q)
	}
	// Monday works again.
	assert.True(t, mask[3*24+8])
}

func TestLunchBreakExcluded(t *testing.T) {
	s := New(Config{
		QuantumMinutes: 60,
		ShopShift:      models.ShiftWindow{StartMinute: 8 * 60, EndMinute: 16 * 60},
		ShopLunchStart: 12 * 60,
		ShopLunchMins:  60,
	}, friday, 1)
	mask := s.ShopAvailability()
	assert.True(t, mask[11])
	assert.False(t, mask[12], "lunch hour should be off")
	assert.True(t, mask[13])
}

func TestOperatorAvailabilityUsesOwnShift(t *testing.T) {
	s := hourly(nil, PolicyPause)
	op := &models.Operator{
		ID:         "op1",
		Shift:      models.ShiftWindow{StartMinute: 14 * 60, EndMinute: 22 * 60},
		LunchStart: 18 * 60,
		LunchMins:  30,
		Active:     true,
	}
	mask := s.OperatorAvailability(op)
	assert.False(t, mask[13])
	assert.True(t, mask[14])
	assert.False(t, mask[18], "lunch quantum off")
	assert.True(t, mask[21])
}

func TestOperatorZeroShiftInheritsShopShift(t *testing.T) {
	s := hourly(nil, PolicyPause)
	op := &models.Operator{ID: "op1", Active: true}
	assert.Equal(t, s.ShopAvailability(), s.OperatorAvailability(op))
}

func TestSpanPausesOverWeekend(t *testing.T) {
	s := hourly(nil, PolicyPause)
	mask := s.ShopAvailability()

	// Friday has 8 working hours; a 10h run must continue on Monday.
	quanta, ok := Span(mask, 8, 10, PolicyPause)
	require.True(t, ok)
	require.Len(t, quanta, 10)
	assert.Equal(t, 8, quanta[0], "starts Friday 08:00")
	assert.Equal(t, 15, quanta[7], "Friday shift end")
	assert.Equal(t, 3*24+8, quanta[8], "resumes Monday 08:00")
	assert.Equal(t, 3*24+9, quanta[9])
}

func TestSpanShiftPolicyNeedsContiguousBlock(t *testing.T) {
	s := hourly(nil, PolicyShift)
	mask := s.ShopAvailability()

	// 8h fits inside one shift day.
	quanta, ok := Span(mask, 0, 8, PolicyShift)
	require.True(t, ok)
	assert.Equal(t, 8, quanta[0])
	assert.Equal(t, 15, quanta[7])

	// 10h can never be contiguous in an 8h shift.
	_, ok = Span(mask, 0, 10, PolicyShift)
	assert.False(t, ok)
}

func TestSpanPausesOverHoliday(t *testing.T) {
	holidays := []models.HolidayEntry{
		{Date: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), Name: "Shop holiday"}, // the Monday
	}
	s := hourly(holidays, PolicyPause)
	mask := s.ShopAvailability()

	assert.False(t, mask[3*24+8], "holiday Monday should be off")

	// 9h from Friday morning: 8 on Friday, 1 on Tuesday (Monday is a
	// holiday).
	quanta, ok := Span(mask, 8, 9, PolicyPause)
	require.True(t, ok)
	assert.Equal(t, 4*24+8, quanta[8], "resumes Tuesday 08:00")
}

func TestSpanShiftPolicySkipsHoliday(t *testing.T) {
	holidays := []models.HolidayEntry{
		{Date: time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), Name: "Shop holiday"}, // the Friday
	}
	s := hourly(holidays, PolicyShift)
	mask := s.ShopAvailability()

	// Friday is a holiday, weekend follows: first contiguous 4h block
	// is Monday morning.
	quanta, ok := Span(mask, 0, 4, PolicyShift)
	require.True(t, ok)
	assert.Equal(t, 3*24+8, quanta[0])
}

func TestSpanHorizonExhausted(t *testing.T) {
	s := hourly(nil, PolicyPause)
	mask := s.ShopAvailability()

	// 7-day horizon holds 5 working days * 8h = 40 working hours.
	_, ok := Span(mask, 0, 41, PolicyPause)
	assert.False(t, ok)

	quanta, ok := Span(mask, 0, 40, PolicyPause)
	require.True(t, ok)
	assert.Len(t, quanta, 40)
}

func TestZeroDurationSpan(t *testing.T) {
	s := hourly(nil, PolicyPause)
	quanta, ok := Span(s.ShopAvailability(), 5, 0, PolicyPause)
	require.True(t, ok)
	assert.Empty(t, quanta)
}

func TestTimeRoundTrip(t *testing.T) {
	s := hourly(nil, PolicyPause)
	q := 3*24 + 8
	at := s.Time(q)
	assert.Equal(t, time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC), at)
	assert.Equal(t, q, s.QuantumAt(at))
}
