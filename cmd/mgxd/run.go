package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mgxlabs/orchestrator/internal/broadcaster"
	"github.com/mgxlabs/orchestrator/internal/cache"
	"github.com/mgxlabs/orchestrator/internal/config"
	"github.com/mgxlabs/orchestrator/internal/executor"
	"github.com/mgxlabs/orchestrator/internal/guardrails"
	"github.com/mgxlabs/orchestrator/internal/llm"
	"github.com/mgxlabs/orchestrator/internal/logging"
	"github.com/mgxlabs/orchestrator/internal/orchestrator"
	"github.com/mgxlabs/orchestrator/internal/repository"
	"github.com/mgxlabs/orchestrator/internal/types"
)

var (
	runTimeout time.Duration

	flagTitle       string
	flagDescription string
	flagStack       string
	flagProjectPath string
	flagOutputMode  string
	flagConstraints []string
	flagRepo        string
	flagBaseBranch  string
	flagStrict      bool
	flagYes         bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create a Task and drive one run to completion, prompting for approval on stdin",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&flagTitle, "title", "", "Task title (required)")
	runCmd.Flags().StringVar(&flagDescription, "description", "", "Task description handed to the Planner (required)")
	runCmd.Flags().StringVar(&flagStack, "stack", "", "Target stack tag, e.g. react-vite (required)")
	runCmd.Flags().StringVar(&flagProjectPath, "path", "", "Checkout directory the manifest is written into (required)")
	runCmd.Flags().StringVar(&flagOutputMode, "output-mode", "generate_new", "generate_new or patch_existing")
	runCmd.Flags().StringSliceVar(&flagConstraints, "constraint", nil, "Guardrail constraint token, repeatable (e.g. no_extra_libraries)")
	runCmd.Flags().StringVar(&flagRepo, "repo", "", "owner/name of a linked GitHub repo; omit to skip commit/push/PR")
	runCmd.Flags().StringVar(&flagBaseBranch, "base-branch", "", "Base branch for the pull request; omit to skip opening one")
	runCmd.Flags().BoolVar(&flagStrict, "strict", false, "Reject generated manifests with non-empty lines outside FILE blocks")
	runCmd.Flags().BoolVar(&flagYes, "yes", false, "Auto-approve every approval gate instead of prompting")
	runCmd.MarkFlagRequired("title")
	runCmd.MarkFlagRequired("description")
	runCmd.MarkFlagRequired("stack")
	runCmd.MarkFlagRequired("path")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := repository.OpenSQLite(dbPath, blobPath)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer repo.Close()

	llmClient, err := buildLLMClient(cfg.LLM)
	if err != nil {
		return err
	}
	respCache, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("build cache: %w", err)
	}
	registry, err := guardrails.NewRegistry()
	if err != nil {
		return fmt.Errorf("build guardrail registry: %w", err)
	}
	pipeline := orchestrator.New(llmClient, respCache, registry, cfg.Execution)
	bus := broadcaster.New(cfg.Broadcaster.SubscriberQueueCapacity)
	exec := executor.New(repo, bus, pipeline, cfg.Execution, cfg.Git)

	outputMode := types.OutputGenerateNew
	if flagOutputMode == string(types.OutputPatchExisting) {
		outputMode = types.OutputPatchExisting
	}

	absPath, err := filepath.Abs(flagProjectPath)
	if err != nil {
		return fmt.Errorf("resolve --path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return fmt.Errorf("create --path: %w", err)
	}

	task := &types.Task{
		Title:               flagTitle,
		Description:         flagDescription,
		TargetStack:         flagStack,
		OutputMode:          outputMode,
		StrictRequirements:  flagStrict,
		Constraints:         flagConstraints,
		ExistingProjectPath: absPath,
	}
	if flagRepo != "" {
		task.Repo = &types.RepoRef{FullName: flagRepo, ReferenceBranch: flagBaseBranch}
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	created, err := repo.CreateTask(ctx, task)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	run, err := exec.Start(ctx, created.ID)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	logger.Info("run started", zap.String("task_id", created.ID), zap.String("run_id", run.ID))

	return streamUntilTerminal(ctx, exec, bus, repo, run.ID)
}

// streamUntilTerminal subscribes to run's channel, printing each event as a
// JSON line, auto-approving or prompting on stdin at an approval_required
// event, and returning once the run reaches a terminal status.
func streamUntilTerminal(ctx context.Context, exec *executor.Executor, bus *broadcaster.Broadcaster, repo repository.Repository, runID string) error {
	sub := bus.Subscribe(broadcaster.RunChannel(runID))
	defer bus.Unsubscribe(sub)
	stdin := bufio.NewReader(os.Stdin)

	for {
		evt, ok := sub.Next(ctx)
		if !ok {
			return fmt.Errorf("event stream closed before run %s reached a terminal status", runID)
		}
		line, _ := json.Marshal(evt)
		fmt.Println(string(line))

		if evt.EventType == types.EventApprovalRequired {
			approved := flagYes
			if !flagYes {
				approved = promptApproval(stdin, evt)
			}
			feedback := ""
			if !approved {
				feedback = "rejected from mgxd run"
			}
			if err := exec.Approve(runID, approved, feedback); err != nil {
				return fmt.Errorf("approve run: %w", err)
			}
		}

		run, err := repo.LoadRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("load run: %w", err)
		}
		if run.Status.Terminal() {
			fmt.Printf("run %s finished: %s\n", runID, run.Status)
			if run.Error != nil {
				return fmt.Errorf("%s", run.Error.Error())
			}
			return nil
		}
	}
}

func promptApproval(stdin *bufio.Reader, evt types.Event) bool {
	fmt.Printf("approval requested for run %s — approve? [y/N] ", evt.RunID)
	line, _ := stdin.ReadString('\n')
	return strings.EqualFold(strings.TrimSpace(line), "y")
}

func buildLLMClient(cfg config.LLMConfig) (llm.Client, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	return llm.NewGenAIClient(context.Background(), apiKey, cfg.Model)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnv(os.Environ())
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := logging.Configure(logging.Config{
		DebugMode:  cfg.Logging.DebugMode,
		Dir:        cfg.Logging.Dir,
		Categories: cfg.Logging.Categories,
		Level:      cfg.Logging.Level,
	}); err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	return cfg, nil
}
