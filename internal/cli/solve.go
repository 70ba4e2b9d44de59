package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shopworks/sched/internal/calendar"
	"github.com/shopworks/sched/internal/metrics"
	"github.com/shopworks/sched/internal/models"
	"github.com/shopworks/sched/internal/service"
	"github.com/shopworks/sched/internal/shopfile"
	"github.com/shopworks/sched/internal/solver"
)

var (
	solveBudget time.Duration
	solveForce  bool
	noTUI       bool
)

var solveCmd = &cobra.Command{
	Use:   "solve <shop-file>",
	Short: "Solve a shop snapshot into a schedule",
	Long: `Load a YAML shop snapshot, solve it and commit the resulting
schedule.

Examples:
  sched solve shop.yaml
  sched solve shop.yaml --budget 30s --force
  sched solve shop.yaml --memory --no-tui`,
	Args: cobra.ExactArgs(1),
	RunE: runSolve,
}

func init() {
	solveCmd.Flags().DurationVar(&solveBudget, "budget", 0, "solve budget (default from SCHED_SOLVE_BUDGET)")
	solveCmd.Flags().BoolVar(&solveForce, "force", false, "bypass the result cache")
	solveCmd.Flags().BoolVar(&noTUI, "no-tui", false, "plain output without the progress display")
}

func runSolve(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	shop, weights, calCfg, err := shopfile.Load(args[0])
	if err != nil {
		return err
	}
	// Environment fills what the file leaves unset.
	if calCfg.QuantumMinutes == 0 {
		calCfg.QuantumMinutes = cfg.QuantumMinutes
	}
	if calCfg.Policy == "" {
		calCfg.Policy = calendar.Policy(cfg.CalendarPolicy)
	}

	var sink service.ScheduleSink
	if inMemory {
		sink = service.NewMemorySink(shop.Zones)
	} else {
		dbSink, err := connectDB(ctx)
		if err != nil {
			return err
		}
		if err := dbSink.InitZones(ctx, shop.Zones); err != nil {
			return err
		}
		sink = dbSink
	}

	mgr := service.NewManager(service.Config{
		Workers:   cfg.Workers,
		CacheTTL:  cfg.CacheTTL,
		Budget:    cfg.SolveBudget,
		MaxPasses: cfg.MaxPasses,
		Seed:      cfg.Seed,
		Calendar:  calCfg,
	}, solver.NewListEngine(logger), sink, models.NopPublisher{}, metrics.NewCollector(), logger)

	run, err := mgr.RequestSolve(ctx, shop, weights, service.SolveOptions{
		Force:  solveForce,
		Budget: solveBudget,
	})
	if err != nil {
		return err
	}

	var sched *models.Schedule
	if noTUI {
		sched, err = run.Wait(ctx)
	} else {
		sched, err = RunSolveProgress(run)
	}
	if err != nil {
		return err
	}

	printSchedule(sched, run.Snapshot().Cached)
	return nil
}

func printSchedule(s *models.Schedule, cached bool) {
	fmt.Printf("Schedule: %s (v%d)\n", s.ID, s.Version)
	fmt.Printf("  Quality:   %s\n", s.Quality)
	if cached {
		fmt.Println("  Source:    cache")
	}
	if s.Quality == models.QualityInfeasible {
		fmt.Printf("  Diagnostic: %s\n", s.Diagnostic)
		return
	}
	fmt.Printf("  Objective: %.3f\n", s.Objective)
	fmt.Printf("  Makespan:  %d quanta\n", s.MakespanQ)
	fmt.Printf("  Solved in: %s\n", s.WallTime.Round(time.Millisecond))
	fmt.Printf("  Tasks:     %d\n\n", len(s.Assignments))

	fmt.Printf("%-12s %-10s %-10s %-18s %-18s %s\n", "TASK", "MACHINE", "ZONE", "START", "END", "OPERATORS")
	for _, a := range s.Assignments {
		ops := ""
		for i, id := range a.OperatorIDs {
			if i > 0 {
				ops += ","
			}
			ops += id
		}
		fmt.Printf("%-12s %-10s %-10s %-18s %-18s %s\n",
			a.TaskID, a.MachineID, a.ZoneID,
			a.Start.Format("Mon 15:04"), a.End.Format("Mon 15:04"), ops)
	}
}
