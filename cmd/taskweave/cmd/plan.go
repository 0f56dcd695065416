package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/core"
	"github.com/taskweave/taskweave/internal/planner"
	"github.com/taskweave/taskweave/internal/workflowfile"
)

var planCmd = &cobra.Command{
	Use:   "plan <workflow-file>",
	Short: "Build and display an execution plan",
	Long: `Parse a workflow file, build the dependency graph, group tasks into
execution stages, and display the plan with critical path markers.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

var planJSON bool

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().BoolVar(&planJSON, "json", false, "Output the plan as JSON")
}

func runPlan(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	def, err := workflowfile.Load(args[0])
	if err != nil {
		return err
	}

	p := buildPlanner(cfg, logger)
	plan, err := p.CreatePlan(def.Tasks)
	if err != nil {
		return err
	}

	views := planner.VisualizePlan(plan, def.Tasks)
	if planJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	renderPlan(def.Name, plan, views)
	return nil
}

func renderPlan(name string, plan *core.Plan, views []core.StageView) {
	if name != "" {
		fmt.Printf("Workflow: %s\n", name)
	}
	fmt.Printf("Stages: %d  Estimated: %s / $%.4f / %d tokens\n\n",
		len(plan.Stages), plan.EstimatedDuration.Round(time.Second),
		plan.EstimatedCost, plan.EstimatedTokens)

	for _, view := range views {
		mode := "serial"
		if view.Parallel {
			mode = "parallel"
		}
		fmt.Printf("Stage %d (%s, %s)\n", view.Index, mode, view.Duration.Round(time.Second))
		for _, task := range view.Tasks {
			marker := " "
			if task.OnCriticalPath {
				marker = "*"
			}
			provider := ""
			if task.Provider != "" {
				provider = " [" + task.Provider + "]"
			}
			fmt.Printf("  %s %s  %s%s\n", marker, task.ID, task.Title, provider)
		}
	}

	if len(plan.CriticalPath) > 0 {
		path := make([]string, 0, len(plan.CriticalPath))
		for _, id := range plan.CriticalPath {
			path = append(path, string(id))
		}
		fmt.Printf("\nCritical path: %s\n", strings.Join(path, " -> "))
	}
}
