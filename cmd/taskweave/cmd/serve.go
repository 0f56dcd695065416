package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/adapters/state"
	"github.com/taskweave/taskweave/internal/adapters/webhook"
	"github.com/taskweave/taskweave/internal/automation"
	"github.com/taskweave/taskweave/internal/checkpoint"
	"github.com/taskweave/taskweave/internal/config"
	"github.com/taskweave/taskweave/internal/core"
	"github.com/taskweave/taskweave/internal/events"
	"github.com/taskweave/taskweave/internal/executor"
	"github.com/taskweave/taskweave/internal/logging"
	"github.com/taskweave/taskweave/internal/web"
	"github.com/taskweave/taskweave/internal/workflowfile"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the automation engine and webhook ingress",
	Long: `Start the long-running service: the automation engine consumes
workflow events and inbound webhooks, fires matching rules, and can
start workflows of its own. The rules file is hot-reloaded on change.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	bus := events.New(256)
	defer bus.Close()

	registry := buildRegistry(cfg, nil)
	taskExec := buildTaskExecutor(cfg, registry, bus, logger)

	store, closeStore, err := openTaskStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	p := buildPlanner(cfg, logger)
	workflowOpts := []executor.WorkflowOption{
		executor.WithWorkflowBus(bus),
		executor.WithWorkflowLogger(logger),
	}
	if cfg.Checkpoint.Enabled {
		cpStore, err := checkpoint.NewFileStore(cfg.Checkpoint.Dir)
		if err != nil {
			return fmt.Errorf("opening checkpoint store: %w", err)
		}
		workflowOpts = append(workflowOpts, executor.WithCheckpointStore(cpStore))
	}
	workflowExec := executor.NewWorkflowExecutor(p, taskExec, workflowOpts...)

	engine := automation.NewEngine(automation.Runtime{
		Tasks:     &taskRunner{store: store, exec: taskExec, budget: cfg.Budget, logger: logger},
		Workflows: &workflowRunner{exec: workflowExec, cfg: cfg, logger: logger},
		Notifier:  &logNotifier{logger: logger},
		Webhooks:  webhook.NewCaller(),
		Providers: registry,
	}, automation.WithEngineLogger(logger))

	if _, err := os.Stat(cfg.Rules.Path); err == nil {
		n, err := automation.LoadInto(engine, cfg.Rules.Path)
		if err != nil {
			return fmt.Errorf("loading rules: %w", err)
		}
		logger.Info("rules loaded", "path", cfg.Rules.Path, "count", n)

		stopWatch, err := watchRules(engine, cfg.Rules.Path, logger)
		if err != nil {
			logger.Warn("rules hot reload unavailable", "error", err)
		} else {
			defer stopWatch()
		}
	} else {
		logger.Info("no rules file found", "path", cfg.Rules.Path)
	}

	// Workflow lifecycle events from the bus feed the engine alongside
	// webhooks delivered directly by the HTTP ingress.
	busCh := bus.Subscribe()
	go engine.Run(ctx, busCh)

	server := web.NewServer(engine,
		web.WithRuleLister(engine),
		web.WithSourceSecrets(cfg.Server.Secrets),
		web.WithServerLogger(logger),
	)
	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// openTaskStore selects the configured task store: SQLite when a path
// is set, in-memory otherwise.
func openTaskStore(cfg *config.Config) (taskStore, func(), error) {
	if cfg.State.Path == "" {
		return state.NewMemoryTaskStore(), func() {}, nil
	}
	store, err := state.NewSQLiteTaskStore(cfg.State.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening task store: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

// watchRules reloads the rules file whenever it changes on disk.
func watchRules(engine *automation.Engine, path string, logger *logging.Logger) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				n, err := automation.LoadInto(engine, path)
				if err != nil {
					logger.Warn("rules reload failed", "path", path, "error", err)
					continue
				}
				logger.Info("rules reloaded", "path", path, "count", n)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("rules watcher error", "error", err)
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}

// taskStore widens core.TaskStore with creation, which both adapters
// implement.
type taskStore interface {
	core.TaskStore
	Create(ctx context.Context, task *core.Task) error
}

// taskRunner bridges automation actions to the task store and executor.
type taskRunner struct {
	store  taskStore
	exec   *executor.TaskExecutor
	budget config.BudgetConfig
	logger *logging.Logger
}

func (r *taskRunner) Create(ctx context.Context, task *core.Task) error {
	return r.store.Create(ctx, task)
}

func (r *taskRunner) Update(ctx context.Context, id core.TaskID, patch core.TaskPatch) error {
	return r.store.Update(ctx, id, patch)
}

func (r *taskRunner) Execute(ctx context.Context, id core.TaskID) (*core.TaskResult, error) {
	task, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	execCtx := core.NewExecutionContext(uuid.NewString(),
		core.NewBudgetTracker(r.budget.MaxCostUSD, r.budget.MaxTokens))
	res := r.exec.Execute(ctx, task, execCtx)

	patch := core.TaskPatch{Status: &res.Status, CostUSD: &res.CostUSD, Tokens: &res.Tokens}
	if res.Output != "" {
		patch.Output = &res.Output
	}
	if res.Error != "" {
		patch.Error = &res.Error
	}
	if err := r.store.Update(ctx, id, patch); err != nil {
		r.logger.Warn("failed to persist task result", "task_id", id, "error", err)
	}
	return res, nil
}

// workflowRunner starts workflows named by start_workflow actions. The
// name is a workflow file path; the run detaches from the triggering
// action's context.
type workflowRunner struct {
	exec   *executor.WorkflowExecutor
	cfg    *config.Config
	logger *logging.Logger
}

func (r *workflowRunner) Start(_ context.Context, name string) (string, error) {
	def, err := workflowfile.Load(name)
	if err != nil {
		return "", err
	}

	runID := uuid.NewString()
	opts := executor.ExecuteOptions{
		MaxParallel:        maxParallel(r.cfg),
		ContextPassing:     r.cfg.Execution.ContextPassing,
		OnFailure:          failurePolicy(r.cfg),
		MaxCostUSD:         r.cfg.Budget.MaxCostUSD,
		MaxTokens:          r.cfg.Budget.MaxTokens,
		RunID:              runID,
		Variables:          def.Variables,
		DisableCheckpoints: !r.cfg.Checkpoint.Enabled,
	}

	go func() {
		if _, err := r.exec.Execute(context.Background(), def.Tasks, opts); err != nil {
			r.logger.Warn("triggered workflow failed", "run_id", runID, "error", err)
		}
	}()
	return runID, nil
}

func (r *workflowRunner) Stop(_ context.Context, runID string) error {
	return r.exec.Cancel(runID)
}

// logNotifier delivers notifications to the structured log.
type logNotifier struct {
	logger *logging.Logger
}

func (n *logNotifier) Notify(_ context.Context, subject, message string) error {
	n.logger.Info("notification", "subject", subject, "message", message)
	return nil
}
