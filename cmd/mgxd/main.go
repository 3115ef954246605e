// Package main implements mgxd, the orchestrator's CLI front end.
//
// mgxd runs entirely in one process: "mgxd run" creates a Task, starts an
// Executor in-process, prompts on stdin when a run reaches
// awaiting_approval, and streams events to stdout until the run reaches a
// terminal status. "mgxd status" re-opens the sqlite-backed repository to
// report a task's run history after the fact. There is no separate daemon
// process and no wire protocol between mgxd invocations — a run's approval
// gate lives in the Executor's memory, not in the repository, so it can
// only be resolved by the same process that started it (see DESIGN.md's
// Open Question decision for C9/cmd/mgxd).
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mgxlabs/orchestrator/internal/logging"
)

var (
	verbose    bool
	configPath string
	dbPath     string
	blobPath   string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mgxd",
	Short: "mgxd drives the multi-agent code orchestrator end to end",
	Long: `mgxd creates Tasks, runs them through the Planner/Implementer/Tester/
Reviewer pipeline, and carries the result through guardrail validation,
patching, commit, push and PR creation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config overlay (default: built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", ".mgx/mgx.db", "Path to the sqlite run database")
	rootCmd.PersistentFlags().StringVar(&blobPath, "blobs", ".mgx/artifacts.db", "Path to the bbolt artifact blob store")

	runCmd.Flags().DurationVar(&runTimeout, "cli-timeout", 30*time.Minute, "How long mgxd itself waits for the run to finish")
	rootCmd.AddCommand(runCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
