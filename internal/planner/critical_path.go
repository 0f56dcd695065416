package planner

import "github.com/taskweave/taskweave/internal/core"

// criticalPath finds the dependency chain whose cumulative estimated
// duration is maximal. The task with the global longest-path value
// anchors a backward walk that reconstructs the chain through the
// dependency contributing that value.
func criticalPath(dag *DAG, groups [][]core.TaskID) []core.TaskID {
	longest := dag.LongestPaths(groups)

	var anchor core.TaskID
	var best int64 = -1
	for _, group := range groups {
		for _, id := range group {
			if longest[id] > best {
				best = longest[id]
				anchor = id
			}
		}
	}
	if anchor == "" {
		return nil
	}

	// Walk backwards, at each step picking the dependency whose own
	// longest-path value explains the current task's value.
	path := []core.TaskID{anchor}
	current := anchor
	for {
		task, _ := dag.Task(current)
		want := longest[current] - task.EstimatedDuration.Milliseconds()
		var next core.TaskID
		found := false
		for _, dep := range dag.Dependencies(current) {
			if longest[dep] == want {
				next = dep
				found = true
				break
			}
		}
		if !found {
			break
		}
		path = append(path, next)
		current = next
	}

	// Reverse into dependency order.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
