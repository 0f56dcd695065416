// Package planner turns a task set into an executable plan: dependency
// graph construction and validation, topological stage groups, critical
// path analysis, and constraint-based re-optimization.
package planner

import (
	"sort"

	"github.com/taskweave/taskweave/internal/core"
)

// DAG holds the dependency graph over a task set: edges point from a
// task to its dependencies, reverse edges to its dependents.
type DAG struct {
	tasks   map[core.TaskID]*core.Task
	edges   map[core.TaskID][]core.TaskID // task -> dependencies
	reverse map[core.TaskID][]core.TaskID // task -> dependents
	order   []core.TaskID                 // insertion order, for determinism
}

// NewDAG builds the graph from a task batch. Fails when a dependency
// references a task outside the batch or a task appears twice.
func NewDAG(tasks []*core.Task) (*DAG, error) {
	d := &DAG{
		tasks:   make(map[core.TaskID]*core.Task, len(tasks)),
		edges:   make(map[core.TaskID][]core.TaskID, len(tasks)),
		reverse: make(map[core.TaskID][]core.TaskID, len(tasks)),
	}

	for _, task := range tasks {
		if err := task.Validate(); err != nil {
			return nil, err
		}
		if _, exists := d.tasks[task.ID]; exists {
			return nil, core.ErrValidation("DUPLICATE_TASK", "duplicate task ID: "+string(task.ID))
		}
		d.tasks[task.ID] = task
		d.order = append(d.order, task.ID)
	}

	for _, task := range tasks {
		for _, dep := range task.DependsOn {
			if _, exists := d.tasks[dep]; !exists {
				return nil, core.ErrValidation(core.CodeUnknownDependency,
					"task "+string(task.ID)+" depends on unknown task "+string(dep))
			}
			d.edges[task.ID] = append(d.edges[task.ID], dep)
			d.reverse[dep] = append(d.reverse[dep], task.ID)
		}
	}

	return d, nil
}

// Task returns a task by ID.
func (d *DAG) Task(id core.TaskID) (*core.Task, bool) {
	t, ok := d.tasks[id]
	return t, ok
}

// Size returns the number of tasks in the graph.
func (d *DAG) Size() int {
	return len(d.tasks)
}

// Dependencies returns the direct dependencies of a task.
func (d *DAG) Dependencies(id core.TaskID) []core.TaskID {
	return d.edges[id]
}

// Dependents returns the tasks that directly depend on the given task.
func (d *DAG) Dependents(id core.TaskID) []core.TaskID {
	return d.reverse[id]
}

// StageGroups runs Kahn's algorithm, repeatedly extracting the set of
// all tasks with remaining in-degree zero as the next layer. When tasks
// remain but no zero in-degree set exists, the graph is cyclic and the
// error names one task on the cycle.
func (d *DAG) StageGroups() ([][]core.TaskID, error) {
	inDegree := make(map[core.TaskID]int, len(d.tasks))
	for id := range d.tasks {
		inDegree[id] = len(d.edges[id])
	}

	groups := make([][]core.TaskID, 0)
	remaining := len(d.tasks)

	for remaining > 0 {
		group := make([]core.TaskID, 0)
		for _, id := range d.order {
			if deg, ok := inDegree[id]; ok && deg == 0 {
				group = append(group, id)
			}
		}

		if len(group) == 0 {
			return nil, core.ErrCyclicDependency(d.onCycle(inDegree))
		}

		for _, id := range group {
			delete(inDegree, id)
			for _, dependent := range d.reverse[id] {
				if _, ok := inDegree[dependent]; ok {
					inDegree[dependent]--
				}
			}
		}

		groups = append(groups, group)
		remaining -= len(group)
	}

	return groups, nil
}

// onCycle picks a deterministic representative among the tasks stuck
// with in-degree > 0. Every such task sits on or downstream of a cycle;
// walking dependencies from it within the stuck set reaches the cycle.
func (d *DAG) onCycle(stuck map[core.TaskID]int) core.TaskID {
	ids := make([]core.TaskID, 0, len(stuck))
	for id := range stuck {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) == 0 {
		return ""
	}

	// Walk dependency edges inside the stuck set until a task repeats.
	seen := make(map[core.TaskID]bool)
	current := ids[0]
	for !seen[current] {
		seen[current] = true
		next := current
		for _, dep := range d.edges[current] {
			if _, ok := stuck[dep]; ok {
				next = dep
				break
			}
		}
		if next == current {
			break
		}
		current = next
	}
	return current
}

// LongestPaths computes, for each task, the longest cumulative estimated
// duration of any dependency chain ending at that task (the task's own
// estimate included), via dynamic programming in topological order.
func (d *DAG) LongestPaths(groups [][]core.TaskID) map[core.TaskID]int64 {
	longest := make(map[core.TaskID]int64, len(d.tasks))
	for _, group := range groups {
		for _, id := range group {
			task := d.tasks[id]
			var maxDep int64
			for _, dep := range d.edges[id] {
				if longest[dep] > maxDep {
					maxDep = longest[dep]
				}
			}
			longest[id] = maxDep + task.EstimatedDuration.Milliseconds()
		}
	}
	return longest
}
