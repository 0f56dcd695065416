package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/checkpoint"
	"github.com/taskweave/taskweave/internal/core"
	"github.com/taskweave/taskweave/internal/events"
	"github.com/taskweave/taskweave/internal/executor"
	"github.com/taskweave/taskweave/internal/planner"
	"github.com/taskweave/taskweave/internal/workflowfile"
)

var runCmd = &cobra.Command{
	Use:   "run <workflow-file>",
	Short: "Execute a workflow",
	Long: `Plan and execute a workflow file. Tasks run stage by stage with
per-provider concurrency ceilings, retry with exponential backoff, and
provider fallback. Progress checkpoints are written after every stage.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

var (
	runDryRun bool
	runResume string
	runRunID  string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Plan and display without executing")
	runCmd.Flags().StringVar(&runResume, "resume", "", "Resume the given run ID from its last checkpoint")
	runCmd.Flags().StringVar(&runRunID, "run-id", "", "Run identifier (default: generated)")
}

func runWorkflow(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	def, err := workflowfile.Load(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	p := buildPlanner(cfg, logger)

	if runDryRun {
		plan, err := p.CreatePlan(def.Tasks)
		if err != nil {
			return err
		}
		renderPlan(def.Name, plan, planner.VisualizePlan(plan, def.Tasks))
		return nil
	}

	registry := buildRegistry(cfg, def.Tasks)
	bus := events.New(256)
	defer bus.Close()

	taskExec := buildTaskExecutor(cfg, registry, bus, logger)

	workflowOpts := []executor.WorkflowOption{
		executor.WithWorkflowBus(bus),
		executor.WithWorkflowLogger(logger),
	}
	var store core.CheckpointStore
	if cfg.Checkpoint.Enabled {
		fileStore, err := checkpoint.NewFileStore(cfg.Checkpoint.Dir)
		if err != nil {
			return fmt.Errorf("opening checkpoint store: %w", err)
		}
		store = fileStore
		workflowOpts = append(workflowOpts, executor.WithCheckpointStore(store))
	}
	workflowExec := executor.NewWorkflowExecutor(p, taskExec, workflowOpts...)

	opts := executor.ExecuteOptions{
		MaxParallel:        maxParallel(cfg),
		ContextPassing:     cfg.Execution.ContextPassing,
		OnFailure:          failurePolicy(cfg),
		MaxCostUSD:         cfg.Budget.MaxCostUSD,
		MaxTokens:          cfg.Budget.MaxTokens,
		RunID:              runRunID,
		Variables:          def.Variables,
		DisableCheckpoints: !cfg.Checkpoint.Enabled,
		OnProgress: func(p core.Progress) {
			printf("\r[%d/%d] stage %d/%d (%.0f%%)",
				p.CompletedTasks, p.TotalTasks, p.CurrentStage+1, p.TotalStages, p.Percentage)
		},
	}

	go func() {
		<-sigCh
		printf("\nReceived interrupt, stopping...\n")
		cancel()
	}()

	var result *core.WorkflowResult
	if runResume != "" {
		if store == nil {
			return fmt.Errorf("cannot resume: checkpoints are disabled")
		}
		cp, err := store.Load(ctx, runResume)
		if err != nil {
			return fmt.Errorf("loading checkpoint for run %s: %w", runResume, err)
		}
		result, err = workflowExec.ExecuteFromCheckpoint(ctx, def.Tasks, *cp, opts)
		if err != nil && result == nil {
			return err
		}
	} else {
		var err error
		result, err = workflowExec.Execute(ctx, def.Tasks, opts)
		if err != nil && result == nil {
			return err
		}
	}

	printf("\n")
	renderResult(result)

	if result.Status == core.WorkflowStatusFailed {
		return fmt.Errorf("workflow failed")
	}
	return nil
}

func renderResult(result *core.WorkflowResult) {
	fmt.Printf("Run %s: %s\n", result.RunID, result.Status)
	fmt.Printf("  succeeded: %d  failed/blocked: %d\n", result.SuccessCount, result.FailureCount)
	fmt.Printf("  cost: $%.4f  tokens: %d  duration: %s\n",
		result.TotalCost, result.TotalTokens, result.TotalDuration.Round(time.Millisecond))

	ids := make([]string, 0, len(result.TaskResults))
	for id := range result.TaskResults {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	for _, id := range ids {
		res := result.TaskResults[core.TaskID(id)]
		line := fmt.Sprintf("  %-20s %s", id, res.Status)
		if res.ProviderUsed != "" {
			line += " via " + res.ProviderUsed
		}
		if res.Error != "" {
			line += "  (" + res.Error + ")"
		}
		fmt.Println(line)
	}
}
