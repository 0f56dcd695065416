package executor

import (
	"fmt"
	"regexp"

	"github.com/taskweave/taskweave/internal/core"
)

var varRefPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_.]*)\}`)

// substitutePrompt resolves ${name} references in the instruction text
// against the reserved variables and the run's named variables.
// Unresolved references are left verbatim and reported as warnings.
func substitutePrompt(prompt string, task *core.Task, execCtx *core.ExecutionContext) (string, []string) {
	var warnings []string

	resolved := varRefPattern.ReplaceAllStringFunc(prompt, func(ref string) string {
		name := varRefPattern.FindStringSubmatch(ref)[1]

		switch name {
		case core.VarTaskID:
			return string(task.ID)
		case core.VarTaskTitle:
			return task.Title
		}

		if value, ok := execCtx.Variable(name); ok {
			return fmt.Sprintf("%v", value)
		}

		warnings = append(warnings, fmt.Sprintf("unresolved variable reference %s", ref))
		return ref
	})

	return resolved, warnings
}
