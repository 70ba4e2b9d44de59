// Package cli provides the command-line interface for sched.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shopworks/sched/internal/config"
	"github.com/shopworks/sched/internal/db"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose  bool
	inMemory bool

	// Global config, logger and db client
	cfg      config.Config
	logger   *slog.Logger
	logClose func() error
	dbClient *db.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sched",
	Short: "Production scheduling optimizer",
	Long: `Sched assigns job-shop tasks to machines, operators and production
zones over a working-time calendar, minimizing a weighted objective of
makespan, tardiness and operator cost.

Shop snapshots are YAML files; solved schedules are immutable and
versioned per input fingerprint.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, logClose = config.SetupLogger(cfg.LogFile, level)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dbClient != nil {
			if err := dbClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
		if logClose != nil {
			_ = logClose()
		}
	},
}

// connectDB connects to SurrealDB and initializes the schema. Commands
// that persist or read schedules call this; --memory skips it.
func connectDB(ctx context.Context) (*db.Sink, error) {
	dbCfg := db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}

	var err error
	dbClient, err = db.NewClient(ctx, dbCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := dbClient.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return db.NewSink(dbClient), nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&inMemory, "memory", false, "keep schedules in memory instead of SurrealDB")

	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(schedulesCmd)
	rootCmd.AddCommand(validateCmd)
}
