package shopfile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/shopworks/sched/internal/calendar"
	"github.com/shopworks/sched/internal/models"
)

func yamlNode(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))
	return doc.Content[0]
}

const sampleShop = `
calendar:
  quantum_minutes: 15
  shift_start: "06:00"
  shift_end: "22:00"
  lunch_start: "12:00"
  lunch_minutes: 30
  weekend: [saturday, sunday]
  policy: pause

weights:
  makespan: 1
  tardiness: 2
  operator_cost: 0.05

shop:
  horizon_days: 14
  holidays:
    - date: 2026-04-03T00:00:00Z
      name: Good Friday
  zones:
    - id: z-weld
      name: Welding
      wip_limit: 3
      active: true
  machines:
    - id: mc-tig
      status: available
      automation: attended
      zone_id: z-weld
      setup_quanta: 1
      active: true
  operators:
    - id: op-ana
      status: available
      shift: {start_minute: 360, end_minute: 900}
      skills:
        - {skill: welding, level: 3}
      active: true
  jobs:
    - id: job-100
      quantity: 5
      priority: 3
      status: released
      due_date: 2026-04-10T00:00:00Z
      tasks:
        - id: t-weld
          sequence: 1
          requirements:
            - {skill: welding, min_level: 2, count: 1, attendance: full_duration}
          modes:
            - {id: m1, machine_id: mc-tig, zone_id: z-weld, duration_quanta: 8}
`

func TestParseSampleShop(t *testing.T) {
	shop, weights, calCfg, err := Parse([]byte(sampleShop))
	require.NoError(t, err)

	assert.Equal(t, 15, calCfg.QuantumMinutes)
	assert.Equal(t, 6*60, calCfg.ShopShift.StartMinute)
	assert.Equal(t, 22*60, calCfg.ShopShift.EndMinute)
	assert.Equal(t, 12*60, calCfg.ShopLunchStart)
	assert.Equal(t, 30, calCfg.ShopLunchMins)
	assert.Equal(t, calendar.PolicyPause, calCfg.Policy)
	assert.Equal(t, []time.Weekday{time.Saturday, time.Sunday}, calCfg.WeekendDays)
	require.Len(t, calCfg.Holidays, 1)

	assert.InDelta(t, 2.0, weights.Tardiness, 1e-9)
	assert.InDelta(t, 0.05, weights.OperatorCost, 1e-9)

	assert.Equal(t, 14, shop.HorizonDays)
	require.Len(t, shop.Jobs, 1)
	job := shop.Jobs[0]
	assert.Equal(t, models.PriorityHigh, job.Priority)
	require.Len(t, job.Tasks, 1)
	assert.Equal(t, "job-100", job.Tasks[0].JobID, "task ownership stitched from nesting")
	assert.Equal(t, models.TaskPending, job.Tasks[0].Status)
	assert.Equal(t, 3, shop.Zones[0].WIPLimit)
}

func TestParseDefaultsWeightsAndStatus(t *testing.T) {
	doc := `
shop:
  zones:
    - {id: z-1, wip_limit: 1, active: true}
  machines:
    - {id: mc-1, status: available, automation: unattended, zone_id: z-1, active: true}
  jobs:
    - id: job-1
      quantity: 1
      tasks:
        - id: t-1
          sequence: 1
          modes:
            - {id: m1, machine_id: mc-1, zone_id: z-1, duration_quanta: 2}
`
	shop, weights, _, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.InDelta(t, 0.01, weights.OperatorCost, 1e-9)
	assert.Equal(t, models.JobPlanned, shop.Jobs[0].Status)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, _, _, err := Parse([]byte("shop:\n  jobz: []\n"))
	assert.Error(t, err)
}

func TestParseRejectsBadPolicy(t *testing.T) {
	_, _, _, err := Parse([]byte("calendar:\n  policy: resume\nshop:\n  jobs: []\n"))
	assert.ErrorContains(t, err, "policy")
}

func TestParseRejectsInvalidShop(t *testing.T) {
	doc := `
shop:
  zones:
    - {id: z-1, wip_limit: 0, active: true}
  jobs: []
`
	_, _, _, err := Parse([]byte(doc))
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestClockParsing(t *testing.T) {
	var c Clock
	require.NoError(t, c.UnmarshalYAML(yamlNode(t, `"07:45"`)))
	assert.Equal(t, Clock(7*60+45), c)

	require.NoError(t, c.UnmarshalYAML(yamlNode(t, `480`)))
	assert.Equal(t, Clock(480), c)

	assert.Error(t, c.UnmarshalYAML(yamlNode(t, `"7.45"`)))
	assert.Error(t, c.UnmarshalYAML(yamlNode(t, `"25:00"`)))
}
