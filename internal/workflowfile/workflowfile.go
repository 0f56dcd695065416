// Package workflowfile loads workflow definitions from YAML. A
// definition names a set of tasks with dependencies, estimates and
// optional conditions, plus seed variables for the run.
package workflowfile

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/taskweave/taskweave/internal/core"
)

// Definition is a parsed workflow file.
type Definition struct {
	Name      string
	Variables map[string]interface{}
	Tasks     []*core.Task
}

type fileSpec struct {
	Name      string                 `yaml:"name"`
	Variables map[string]interface{} `yaml:"variables"`
	Tasks     []taskSpec             `yaml:"tasks"`
}

type taskSpec struct {
	ID         string           `yaml:"id"`
	Title      string           `yaml:"title"`
	Prompt     string           `yaml:"prompt"`
	DependsOn  []string         `yaml:"depends_on"`
	Provider   string           `yaml:"provider"`
	Model      string           `yaml:"model"`
	Priority   int              `yaml:"priority"`
	Conditions []core.Condition `yaml:"conditions"`
	Estimates  estimateSpec     `yaml:"estimates"`
}

type estimateSpec struct {
	Duration string  `yaml:"duration"` // time.ParseDuration syntax
	CostUSD  float64 `yaml:"cost_usd"`
	Tokens   int64   `yaml:"tokens"`
}

// Load reads and parses a workflow file from disk.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return def, nil
}

// Parse decodes a workflow definition and validates every task.
func Parse(data []byte) (*Definition, error) {
	var spec fileSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("unmarshaling workflow: %w", err)
	}
	if len(spec.Tasks) == 0 {
		return nil, core.ErrValidation("WORKFLOW_EMPTY", "workflow file declares no tasks")
	}

	def := &Definition{
		Name:      spec.Name,
		Variables: spec.Variables,
		Tasks:     make([]*core.Task, 0, len(spec.Tasks)),
	}

	for i, ts := range spec.Tasks {
		task, err := ts.toTask()
		if err != nil {
			return nil, fmt.Errorf("task %d (%s): %w", i, ts.ID, err)
		}
		def.Tasks = append(def.Tasks, task)
	}
	return def, nil
}

func (ts taskSpec) toTask() (*core.Task, error) {
	task := core.NewTask(core.TaskID(ts.ID), ts.Title).
		WithPrompt(ts.Prompt).
		WithProvider(ts.Provider).
		WithPriority(ts.Priority)
	task.Model = ts.Model

	for _, dep := range ts.DependsOn {
		task.DependsOn = append(task.DependsOn, core.TaskID(dep))
	}
	if len(ts.Conditions) > 0 {
		task.Conditions = ts.Conditions
	}

	duration := time.Duration(0)
	if ts.Estimates.Duration != "" {
		d, err := time.ParseDuration(ts.Estimates.Duration)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", ts.Estimates.Duration, err)
		}
		duration = d
	}
	task.WithEstimates(duration, ts.Estimates.CostUSD, ts.Estimates.Tokens)

	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}
