// Package shopfile loads shop snapshots from YAML files: the entity
// lists, the calendar configuration and the objective weights, in one
// document.
package shopfile

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shopworks/sched/internal/calendar"
	"github.com/shopworks/sched/internal/models"
	"github.com/shopworks/sched/internal/solver"
)

// Clock is a wall-clock time of day parsed from "HH:MM" into minutes
// from midnight.
type Clock int

// UnmarshalYAML accepts "HH:MM" strings or plain minute integers.
func (c *Clock) UnmarshalYAML(value *yaml.Node) error {
	var asInt int
	if err := value.Decode(&asInt); err == nil {
		*c = Clock(asInt)
		return nil
	}

	var asStr string
	if err := value.Decode(&asStr); err != nil {
		return err
	}
	parts := strings.SplitN(asStr, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("clock %q: want HH:MM", asStr)
	}
	var h, m int
	if _, err := fmt.Sscanf(asStr, "%d:%d", &h, &m); err != nil {
		return fmt.Errorf("clock %q: %w", asStr, err)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 {
		return fmt.Errorf("clock %q: out of range", asStr)
	}
	*c = Clock(h*60 + m)
	return nil
}

// CalendarSpec is the calendar section of a shop file.
type CalendarSpec struct {
	QuantumMinutes int      `yaml:"quantum_minutes"`
	ShiftStart     Clock    `yaml:"shift_start"`
	ShiftEnd       Clock    `yaml:"shift_end"`
	LunchStart     Clock    `yaml:"lunch_start"`
	LunchMinutes   int      `yaml:"lunch_minutes"`
	Weekend        []string `yaml:"weekend"`
	Policy         string   `yaml:"policy"`
}

// File is the complete shop file document.
type File struct {
	Calendar CalendarSpec     `yaml:"calendar"`
	Weights  *solver.Weights  `yaml:"weights"`
	Shop     models.ShopState `yaml:"shop"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Load reads and validates a shop file. The returned snapshot has
// passed ShopState.Validate; weights default when the section is
// absent.
func Load(path string) (*models.ShopState, solver.Weights, calendar.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, solver.Weights{}, calendar.Config{}, fmt.Errorf("read shop file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a shop file document.
func Parse(data []byte) (*models.ShopState, solver.Weights, calendar.Config, error) {
	var f File
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, solver.Weights{}, calendar.Config{}, fmt.Errorf("parse shop file: %w", err)
	}

	calCfg, err := f.Calendar.toConfig(f.Shop.Holidays)
	if err != nil {
		return nil, solver.Weights{}, calendar.Config{}, err
	}

	weights := solver.DefaultWeights()
	if f.Weights != nil {
		weights = *f.Weights
	}

	// Task ownership is implied by nesting in the file.
	for i := range f.Shop.Jobs {
		job := &f.Shop.Jobs[i]
		if job.Status == "" {
			job.Status = models.JobPlanned
		}
		for k := range job.Tasks {
			job.Tasks[k].JobID = job.ID
			if job.Tasks[k].Status == "" {
				job.Tasks[k].Status = models.TaskPending
			}
		}
	}

	if err := f.Shop.Validate(); err != nil {
		return nil, solver.Weights{}, calendar.Config{}, err
	}
	return &f.Shop, weights, calCfg, nil
}

func (c CalendarSpec) toConfig(holidays []models.HolidayEntry) (calendar.Config, error) {
	cfg := calendar.Config{
		QuantumMinutes: c.QuantumMinutes,
		ShopShift: models.ShiftWindow{
			StartMinute: int(c.ShiftStart),
			EndMinute:   int(c.ShiftEnd),
		},
		ShopLunchStart: int(c.LunchStart),
		ShopLunchMins:  c.LunchMinutes,
		Holidays:       holidays,
	}

	switch c.Policy {
	case "":
		// calendar default applies
	case string(calendar.PolicyPause), string(calendar.PolicyShift):
		cfg.Policy = calendar.Policy(c.Policy)
	default:
		return calendar.Config{}, fmt.Errorf("calendar policy %q: want pause or shift", c.Policy)
	}

	if c.Weekend != nil {
		cfg.WeekendDays = []time.Weekday{}
		for _, name := range c.Weekend {
			wd, ok := weekdayNames[strings.ToLower(name)]
			if !ok {
				return calendar.Config{}, fmt.Errorf("unknown weekend day %q", name)
			}
			cfg.WeekendDays = append(cfg.WeekendDays, wd)
		}
	}
	return cfg, nil
}
