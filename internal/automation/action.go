package automation

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskweave/taskweave/internal/core"
)

// TaskRunner is the slice of task operations automation actions need.
// The composition root wires it to the task executor and store.
type TaskRunner interface {
	Create(ctx context.Context, task *core.Task) error
	Update(ctx context.Context, id core.TaskID, patch core.TaskPatch) error
	Execute(ctx context.Context, id core.TaskID) (*core.TaskResult, error)
}

// WorkflowRunner starts and stops workflow runs on behalf of actions.
type WorkflowRunner interface {
	Start(ctx context.Context, name string) (string, error)
	Stop(ctx context.Context, runID string) error
}

// VariableStore holds the engine-level named variables that
// set_variable actions write and conditions read.
type VariableStore interface {
	Set(name string, value interface{})
	All() map[string]interface{}
}

// Runtime bundles the collaborators actions dispatch to. Nil fields
// make the corresponding action kinds fail with a configuration error.
type Runtime struct {
	Tasks     TaskRunner
	Workflows WorkflowRunner
	Notifier  core.Notifier
	Webhooks  core.WebhookCaller
	Providers core.ProviderRegistry
	Variables VariableStore
}

// runActions executes a rule's actions sequentially, best-effort: a
// failed action is recorded and the remaining actions still run.
func runActions(ctx context.Context, actions []core.Action, event core.Event, rt Runtime) []core.ActionResult {
	results := make([]core.ActionResult, 0, len(actions))
	for _, action := range actions {
		started := time.Now()
		output, err := runAction(ctx, action, event, rt)
		res := core.ActionResult{
			Kind:     action.Kind,
			Success:  err == nil,
			Output:   output,
			Duration: time.Since(started),
		}
		if err != nil {
			res.Error = core.ErrActionExecution(string(action.Kind), err).Error()
		}
		results = append(results, res)
	}
	return results
}

func runAction(ctx context.Context, action core.Action, event core.Event, rt Runtime) (string, error) {
	switch action.Kind {
	case core.ActionCreateTask:
		if rt.Tasks == nil {
			return "", fmt.Errorf("no task runner configured")
		}
		task := core.NewTask(
			core.TaskID(paramString(action, "id")),
			paramString(action, "title"),
		).WithPrompt(paramString(action, "prompt")).WithProvider(paramString(action, "provider"))
		if err := task.Validate(); err != nil {
			return "", err
		}
		return string(task.ID), rt.Tasks.Create(ctx, task)

	case core.ActionUpdateTask:
		if rt.Tasks == nil {
			return "", fmt.Errorf("no task runner configured")
		}
		id := core.TaskID(paramString(action, "task_id"))
		if id == "" {
			id = core.TaskID(event.PayloadString("task_id"))
		}
		if id == "" {
			return "", fmt.Errorf("update_task requires a task_id")
		}
		patch := core.TaskPatch{}
		if s := paramString(action, "status"); s != "" {
			status := core.TaskStatus(s)
			patch.Status = &status
		}
		return string(id), rt.Tasks.Update(ctx, id, patch)

	case core.ActionExecuteTask:
		if rt.Tasks == nil {
			return "", fmt.Errorf("no task runner configured")
		}
		id := core.TaskID(paramString(action, "task_id"))
		if id == "" {
			id = core.TaskID(event.PayloadString("task_id"))
		}
		if id == "" {
			return "", fmt.Errorf("execute_task requires a task_id")
		}
		res, err := rt.Tasks.Execute(ctx, id)
		if err != nil {
			return "", err
		}
		if res.Status != core.TaskStatusSucceeded {
			return res.Output, fmt.Errorf("task %s finished %s: %s", id, res.Status, res.Error)
		}
		return res.Output, nil

	case core.ActionNotify:
		if rt.Notifier == nil {
			return "", fmt.Errorf("no notifier configured")
		}
		return "", rt.Notifier.Notify(ctx, paramString(action, "subject"), paramString(action, "message"))

	case core.ActionCallWebhook:
		if rt.Webhooks == nil {
			return "", fmt.Errorf("no webhook caller configured")
		}
		url := paramString(action, "url")
		if url == "" {
			return "", fmt.Errorf("call_webhook requires a url")
		}
		body, err := json.Marshal(map[string]interface{}{
			"event":   event,
			"payload": action.Params["payload"],
		})
		if err != nil {
			return "", err
		}
		headers := map[string]string{"Content-Type": "application/json"}
		if secret := paramString(action, "secret"); secret != "" {
			headers["X-Taskweave-Signature"] = SignPayload(secret, body)
		}
		resp, err := rt.Webhooks.Post(ctx, url, headers, body)
		if err != nil {
			return "", err
		}
		if resp.StatusCode >= 300 {
			return "", fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return fmt.Sprintf("status %d", resp.StatusCode), nil

	case core.ActionInvokeProvider:
		if rt.Providers == nil {
			return "", fmt.Errorf("no provider registry configured")
		}
		provider, err := rt.Providers.Get(paramString(action, "provider"))
		if err != nil {
			return "", err
		}
		res, err := provider.Invoke(ctx, core.InvokeRequest{
			Prompt: paramString(action, "prompt"),
			Model:  paramString(action, "model"),
		})
		if err != nil {
			return "", err
		}
		return res.Output, nil

	case core.ActionStartWorkflow:
		if rt.Workflows == nil {
			return "", fmt.Errorf("no workflow runner configured")
		}
		return rt.Workflows.Start(ctx, paramString(action, "workflow"))

	case core.ActionStopWorkflow:
		if rt.Workflows == nil {
			return "", fmt.Errorf("no workflow runner configured")
		}
		runID := paramString(action, "run_id")
		if runID == "" {
			runID = event.PayloadString("run_id")
		}
		return runID, rt.Workflows.Stop(ctx, runID)

	case core.ActionSetVariable:
		if rt.Variables == nil {
			return "", fmt.Errorf("no variable store configured")
		}
		name := paramString(action, "name")
		if name == "" {
			return "", fmt.Errorf("set_variable requires a name")
		}
		rt.Variables.Set(name, action.Params["value"])
		return name, nil

	case core.ActionDelay:
		d, err := time.ParseDuration(paramString(action, "duration"))
		if err != nil {
			return "", fmt.Errorf("delay requires a valid duration: %w", err)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(d):
			return d.String(), nil
		}

	default:
		return "", fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

// SignPayload computes the hex HMAC-SHA256 signature webhook consumers
// verify against the X-Taskweave-Signature header.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an inbound signature in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := SignPayload(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func paramString(action core.Action, key string) string {
	if v, ok := action.Params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}
