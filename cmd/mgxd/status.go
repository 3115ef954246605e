package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mgxlabs/orchestrator/internal/repository"
)

var (
	statusTaskID string
	statusRunID  string
)

// statusCmd reads persisted state only — it never touches a live
// Executor, so it works from a process other than the one that started
// the run (see main.go's package doc on why approval cannot).
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report a task's run history and a run's result from the sqlite database",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusTaskID, "task-id", "", "Print the task record, its run counters and its metrics")
	statusCmd.Flags().StringVar(&statusRunID, "run-id", "", "Print one run's plan, results and artifact list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusTaskID == "" && statusRunID == "" {
		return fmt.Errorf("status requires --task-id or --run-id")
	}

	repo, err := repository.OpenSQLite(dbPath, blobPath)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer repo.Close()

	ctx := cmd.Context()

	if statusTaskID != "" {
		task, err := repo.LoadTask(ctx, statusTaskID)
		if err != nil {
			return fmt.Errorf("load task: %w", err)
		}
		metrics, err := repo.ListMetrics(ctx, statusTaskID)
		if err != nil {
			return fmt.Errorf("list metrics: %w", err)
		}
		printJSON(struct {
			Task    interface{} `json:"task"`
			Metrics interface{} `json:"metrics"`
		}{task, metrics})
	}

	if statusRunID != "" {
		run, err := repo.LoadRun(ctx, statusRunID)
		if err != nil {
			return fmt.Errorf("load run: %w", err)
		}
		artifacts, err := repo.ListArtifacts(ctx, statusRunID)
		if err != nil {
			return fmt.Errorf("list artifacts: %w", err)
		}
		printJSON(struct {
			Run       interface{} `json:"run"`
			Artifacts interface{} `json:"artifacts"`
		}{run, artifacts})
	}

	return nil
}

func printJSON(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(string(b))
}
