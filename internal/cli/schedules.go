package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var schedulesFingerprint string

var schedulesCmd = &cobra.Command{
	Use:   "schedules [schedule-id]",
	Short: "List or inspect stored schedules",
	Long: `List stored schedules or inspect one by ID.

Examples:
  sched schedules                  # List all schedules
  sched schedules --fingerprint a1b2c3  # Versions of one input
  sched schedules 3f9c21ab         # Show one schedule`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSchedules,
}

func init() {
	schedulesCmd.Flags().StringVar(&schedulesFingerprint, "fingerprint", "", "filter by input fingerprint")
}

func runSchedules(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	sink, err := connectDB(ctx)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		sched, err := sink.GetSchedule(ctx, args[0])
		if err != nil {
			return err
		}
		printSchedule(sched, false)
		return nil
	}

	scheds, err := sink.ListSchedules(ctx, schedulesFingerprint)
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}
	if len(scheds) == 0 {
		fmt.Println("No schedules found")
		return nil
	}

	fmt.Printf("%-10s %-4s %-12s %-10s %-8s %s\n", "ID", "VER", "QUALITY", "OBJECTIVE", "TASKS", "SOLVED")
	fmt.Println("--------------------------------------------------------------")
	for _, s := range scheds {
		fmt.Printf("%-10s %-4d %-12s %-10.3f %-8d %s\n",
			s.ID, s.Version, s.Quality, s.Objective, len(s.Assignments),
			s.SolvedAt.Local().Format(time.DateTime))
	}
	return nil
}
