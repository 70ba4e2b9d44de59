package service

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopworks/sched/internal/calendar"
	"github.com/shopworks/sched/internal/models"
	"github.com/shopworks/sched/internal/solver"
)

// Fingerprint hashes everything a solve depends on: the shop snapshot,
// the objective weights and the calendar configuration. Entities are
// encoded sorted by ID so two snapshots that differ only in slice
// order hash the same. Identical fingerprint means identical solve
// input, which is what deduplication and the result cache key on.
func Fingerprint(shop *models.ShopState, w solver.Weights, cal calendar.Config) string {
	h := sha256.New()
	enc := fpEncoder{w: h}

	enc.str("cal")
	enc.num(cal.QuantumMinutes)
	enc.num(cal.ShopShift.StartMinute)
	enc.num(cal.ShopShift.EndMinute)
	enc.num(cal.ShopLunchStart)
	enc.num(cal.ShopLunchMins)
	enc.str(string(cal.Policy))
	for _, wd := range cal.WeekendDays {
		enc.num(int(wd))
	}

	enc.str("weights")
	enc.flt(w.Makespan)
	enc.flt(w.Tardiness)
	enc.flt(w.OperatorCost)

	enc.str("horizon")
	enc.date(shop.HorizonStart)
	enc.num(shop.HorizonDays)

	holidays := make([]string, 0, len(shop.Holidays))
	for _, hol := range shop.Holidays {
		holidays = append(holidays, hol.Date.Format("2006-01-02"))
	}
	sort.Strings(holidays)
	enc.str("holidays")
	for _, d := range holidays {
		enc.str(d)
	}

	machines := append([]models.Machine(nil), shop.Machines...)
	sort.Slice(machines, func(a, b int) bool { return machines[a].ID < machines[b].ID })
	for _, m := range machines {
		enc.str("machine", m.ID, string(m.Status), string(m.Automation), m.ZoneID)
		enc.num(m.SetupQuanta)
		enc.num(m.TeardownQuanta)
		enc.boolean(m.Active)
	}

	operators := append([]models.Operator(nil), shop.Operators...)
	sort.Slice(operators, func(a, b int) bool { return operators[a].ID < operators[b].ID })
	for _, o := range operators {
		enc.str("operator", o.ID, string(o.Status))
		enc.num(o.Shift.StartMinute)
		enc.num(o.Shift.EndMinute)
		enc.num(o.LunchStart)
		enc.num(o.LunchMins)
		enc.flt(o.EffectiveCostFactor())
		enc.boolean(o.Active)
		skills := append([]models.SkillRating(nil), o.Skills...)
		sort.Slice(skills, func(a, b int) bool { return skills[a].Skill < skills[b].Skill })
		for _, sk := range skills {
			enc.str(sk.Skill)
			enc.num(sk.Level)
			if sk.Expiry != nil {
				enc.date(*sk.Expiry)
			}
		}
	}

	zones := make([]*models.ProductionZone, len(shop.Zones))
	copy(zones, shop.Zones)
	sort.Slice(zones, func(a, b int) bool { return zones[a].ID < zones[b].ID })
	for _, z := range zones {
		enc.str("zone", z.ID)
		enc.num(z.WIPLimit)
		enc.boolean(z.Active)
	}

	jobs := append([]models.Job(nil), shop.Jobs...)
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].ID < jobs[b].ID })
	for _, j := range jobs {
		enc.str("job", j.ID, string(j.Status))
		enc.num(int(j.Priority))
		enc.num(j.Quantity)
		enc.date(j.ReleaseDate)
		enc.date(j.DueDate)
		tasks := append([]models.Task(nil), j.Tasks...)
		sort.Slice(tasks, func(a, b int) bool { return tasks[a].ID < tasks[b].ID })
		for _, t := range tasks {
			enc.str("task", t.ID, string(t.Status))
			enc.num(t.Sequence)
			preds := append([]string(nil), t.Predecessors...)
			sort.Strings(preds)
			enc.str(preds...)
			for _, r := range t.Requirements {
				enc.str(r.Skill, string(r.Attendance))
				enc.num(r.MinLevel)
				enc.num(r.Count)
			}
			for _, m := range t.Modes {
				enc.str(m.ID, m.MachineID, m.ZoneID)
				enc.num(m.DurationQuanta)
				enc.num(m.SetupQuanta)
				enc.num(m.TeardownQuanta)
			}
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

type fpEncoder struct {
	w interface{ Write([]byte) (int, error) }
}

func (e fpEncoder) str(parts ...string) {
	e.w.Write([]byte(strings.Join(parts, "\x1f")))
	e.w.Write([]byte{'\x1e'})
}

func (e fpEncoder) num(n int) { e.str(strconv.Itoa(n)) }

func (e fpEncoder) flt(f float64) { e.str(strconv.FormatFloat(f, 'g', -1, 64)) }

func (e fpEncoder) boolean(b bool) { e.str(strconv.FormatBool(b)) }

func (e fpEncoder) date(t time.Time) {
	if t.IsZero() {
		e.str("")
		return
	}
	e.str(t.UTC().Format(time.RFC3339))
}
