// Package calendar resolves working and non-working time over the
// solve horizon. It is a pure function of date, shift configuration
// and the holiday list: no I/O, safe to share across solves.
package calendar

import (
	"time"

	"github.com/shopworks/sched/internal/models"
)

// Policy fixes how a task run relates to non-working gaps.
type Policy string

const (
	// PolicyPause lets a run span breaks: only working quanta count
	// toward the duration, the wall-clock end extends past the gaps.
	PolicyPause Policy = "pause"
	// PolicyShift requires the whole run to fit in contiguous working
	// quanta; the start is pushed until it does.
	PolicyShift Policy = "shift"
)

// Config describes the shop-wide calendar.
type Config struct {
	// QuantumMinutes is the size of one scheduling quantum. Default 15.
	QuantumMinutes int
	// ShopShift is the default working window for machines and for
	// operators without their own shift.
	ShopShift models.ShiftWindow
	// ShopLunchStart/ShopLunchMins carve the shop lunch out of the
	// shift window. Zero minutes disables it.
	ShopLunchStart int
	ShopLunchMins  int
	// WeekendDays are non-working weekdays. Default Saturday+Sunday.
	WeekendDays []time.Weekday
	Holidays    []models.HolidayEntry
	Policy      Policy
}

func (c Config) withDefaults() Config {
	if c.QuantumMinutes <= 0 {
		c.QuantumMinutes = 15
	}
	if c.ShopShift.EndMinute <= c.ShopShift.StartMinute {
		c.ShopShift = models.ShiftWindow{StartMinute: 6 * 60, EndMinute: 22 * 60}
	}
	if c.WeekendDays == nil {
		c.WeekendDays = []time.Weekday{time.Saturday, time.Sunday}
	}
	if c.Policy == "" {
		c.Policy = PolicyPause
	}
	return c
}

// Service answers working-time questions for a fixed horizon. Quantum
// 0 is anchored at midnight of the horizon start day.
type Service struct {
	cfg          Config
	horizonStart time.Time
	horizonQ     int
	holidays     map[string]struct{}
	weekend      map[time.Weekday]bool
	perDay       int
}

// New builds a calendar over horizonDays starting at the midnight
// preceding start.
func New(cfg Config, start time.Time, horizonDays int) *Service {
	cfg = cfg.withDefaults()
	if horizonDays <= 0 {
		horizonDays = 28
	}
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())

	s := &Service{
		cfg:          cfg,
		horizonStart: day,
		perDay:       24 * 60 / cfg.QuantumMinutes,
		holidays:     make(map[string]struct{}, len(cfg.Holidays)),
		weekend:      make(map[time.Weekday]bool, len(cfg.WeekendDays)),
	}
	s.horizonQ = horizonDays * s.perDay
	for _, h := range cfg.Holidays {
		s.holidays[h.Date.Format("2006-01-02")] = struct{}{}
	}
	for _, wd := range cfg.WeekendDays {
		s.weekend[wd] = true
	}
	return s
}

// Horizon returns the number of quanta in the solve window.
func (s *Service) Horizon() int { return s.horizonQ }

// Policy returns the configured span policy.
func (s *Service) Policy() Policy { return s.cfg.Policy }

// QuantumMinutes returns the quantum size.
func (s *Service) QuantumMinutes() int { return s.cfg.QuantumMinutes }

// Time converts a quantum index to its wall-clock start.
func (s *Service) Time(q int) time.Time {
	return s.horizonStart.Add(time.Duration(q*s.cfg.QuantumMinutes) * time.Minute)
}

// QuantumAt converts a wall-clock instant to the quantum containing
// it. Instants before the horizon map to 0.
func (s *Service) QuantumAt(t time.Time) int {
	d := t.Sub(s.horizonStart)
	if d < 0 {
		return 0
	}
	q := int(d / (time.Duration(s.cfg.QuantumMinutes) * time.Minute))
	if q > s.horizonQ {
		return s.horizonQ
	}
	return q
}

// workingAt reports whether quantum q is working time for the given
// shift/lunch configuration.
func (s *Service) workingAt(q int, shift models.ShiftWindow, lunchStart, lunchMins int) bool {
	if q < 0 || q >= s.horizonQ {
		return false
	}
	t := s.Time(q)
	if s.weekend[t.Weekday()] {
		return false
	}
	if _, hol := s.holidays[t.Format("2006-01-02")]; hol {
		return false
	}
	minute := t.Hour()*60 + t.Minute()
	if minute < shift.StartMinute || minute >= shift.EndMinute {
		return false
	}
	if lunchMins > 0 && minute >= lunchStart && minute < lunchStart+lunchMins {
		return false
	}
	return true
}

// ShopAvailability returns the working mask for the shop calendar,
// used for machines and zone occupancy.
func (s *Service) ShopAvailability() []bool {
	return s.availability(s.cfg.ShopShift, s.cfg.ShopLunchStart, s.cfg.ShopLunchMins)
}

// OperatorAvailability returns the working mask for one operator's
// shift and lunch configuration. A zero-valued shift inherits the
// shop shift.
func (s *Service) OperatorAvailability(o *models.Operator) []bool {
	shift := o.Shift
	if shift.EndMinute <= shift.StartMinute {
		shift = s.cfg.ShopShift
	}
	return s.availability(shift, o.LunchStart, o.LunchMins)
}

// AlwaysAvailable returns an all-working mask, used for unattended
// machines that run through nights and holidays.
func (s *Service) AlwaysAvailable() []bool {
	mask := make([]bool, s.horizonQ)
	for i := range mask {
		mask[i] = true
	}
	return mask
}

func (s *Service) availability(shift models.ShiftWindow, lunchStart, lunchMins int) []bool {
	mask := make([]bool, s.horizonQ)
	for q := range mask {
		mask[q] = s.workingAt(q, shift, lunchStart, lunchMins)
	}
	return mask
}

// Span resolves the quanta a run of dur working quanta occupies when
// started at or after earliest, under the given policy and
// availability mask. Returns the occupied quanta (ascending) and
// ok=false when the run does not fit in the horizon.
//
// Under PolicyPause occupied quanta are the first dur working quanta
// at or after earliest; under PolicyShift they are the first
// contiguous working block of length dur.
func Span(mask []bool, earliest, dur int, policy Policy) (quanta []int, ok bool) {
	if dur == 0 {
		if earliest > len(mask) {
			return nil, false
		}
		return []int{}, true
	}
	if earliest < 0 {
		earliest = 0
	}

	switch policy {
	case PolicyShift:
		for start := earliest; start+dur <= len(mask); start++ {
			fit := true
			for q := start; q < start+dur; q++ {
				if !mask[q] {
					fit = false
					start = q // skip past the gap
					break
				}
			}
			if fit {
				quanta = make([]int, dur)
				for i := range quanta {
					quanta[i] = start + i
				}
				return quanta, true
			}
		}
		return nil, false

	default: // PolicyPause
		quanta = make([]int, 0, dur)
		for q := earliest; q < len(mask); q++ {
			if mask[q] {
				quanta = append(quanta, q)
				if len(quanta) == dur {
					return quanta, true
				}
			}
		}
		return nil, false
	}
}
