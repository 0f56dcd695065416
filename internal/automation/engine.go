// Package automation implements the event-driven rule engine: triggers
// match events, conditions gate them, and actions react to them. It
// also hosts the condition evaluator shared with the task executor.
package automation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/internal/core"
	"github.com/taskweave/taskweave/internal/logging"
)

// Engine owns the registered automation rules and reacts to events. It
// implements core.EventSink; matching rules run concurrently, actions
// within one rule run sequentially.
type Engine struct {
	runtime Runtime
	logger  *logging.Logger

	mu    sync.RWMutex
	rules map[string]*core.AutomationRule
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the engine logger.
func WithEngineLogger(logger *logging.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a rule engine bound to the given runtime.
func NewEngine(rt Runtime, opts ...EngineOption) *Engine {
	if rt.Variables == nil {
		rt.Variables = NewVariables()
	}
	e := &Engine{
		runtime: rt,
		logger:  logging.NewNop(),
		rules:   make(map[string]*core.AutomationRule),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register validates and stores a rule. A rule without an ID gets one
// assigned; registering an existing ID replaces the rule but keeps its
// execution statistics.
func (e *Engine) Register(rule *core.AutomationRule) (*core.AutomationRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if prev, ok := e.rules[rule.ID]; ok {
		rule.Stats = prev.Stats
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	e.rules[rule.ID] = rule

	e.logger.WithRule(rule.ID).Info("rule registered",
		"label", rule.Label,
		"trigger", rule.Trigger.Kind,
		"enabled", rule.Enabled,
	)
	return rule, nil
}

// Delete removes a rule. Rules never expire on their own.
func (e *Engine) Delete(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[id]; !ok {
		return core.ErrNotFound("rule", id)
	}
	delete(e.rules, id)
	return nil
}

// Enable turns a rule on.
func (e *Engine) Enable(id string) error {
	return e.setEnabled(id, true)
}

// Disable turns a rule off without deleting it.
func (e *Engine) Disable(id string) error {
	return e.setEnabled(id, false)
}

func (e *Engine) setEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rule, ok := e.rules[id]
	if !ok {
		return core.ErrNotFound("rule", id)
	}
	rule.Enabled = enabled
	return nil
}

// Get returns a rule by ID.
func (e *Engine) Get(id string) (*core.AutomationRule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rule, ok := e.rules[id]
	if !ok {
		return nil, core.ErrNotFound("rule", id)
	}
	return rule, nil
}

// List returns all registered rules.
func (e *Engine) List() []*core.AutomationRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*core.AutomationRule, 0, len(e.rules))
	for _, rule := range e.rules {
		out = append(out, rule)
	}
	return out
}

// HandleEvent implements core.EventSink. Every enabled rule whose
// trigger matches is evaluated; matching rules execute concurrently
// and independently. HandleEvent returns when all of them finish.
func (e *Engine) HandleEvent(ctx context.Context, event core.Event) {
	e.mu.RLock()
	matched := make([]*core.AutomationRule, 0)
	for _, rule := range e.rules {
		if rule.Enabled && matchTrigger(rule.Trigger, event) {
			matched = append(matched, rule)
		}
	}
	e.mu.RUnlock()

	if len(matched) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, rule := range matched {
		rule := rule
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.fire(ctx, rule, event)
		}()
	}
	wg.Wait()
}

// Run consumes events from a subscription channel until the context is
// cancelled or the channel closes.
func (e *Engine) Run(ctx context.Context, events <-chan core.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			e.HandleEvent(ctx, event)
		}
	}
}

// fire evaluates one matched rule's conditions and runs its actions. A
// malformed condition is logged and treated as not matched.
func (e *Engine) fire(ctx context.Context, rule *core.AutomationRule, event core.Event) {
	log := e.logger.WithRule(rule.ID)

	scope := ScopeFromEvent(&event, e.runtime.Variables.All())
	ok, err := EvaluateAll(rule.Conditions, scope)
	if err != nil {
		log.Warn("rule condition evaluation failed", "event", event.Type, "error", err)
		return
	}
	if !ok {
		log.Debug("rule conditions not met", "event", event.Type)
		return
	}

	e.mu.Lock()
	rule.Stats.ExecutionCount++
	now := time.Now()
	rule.Stats.LastExecutedAt = &now
	e.mu.Unlock()

	log.Info("rule fired", "event", event.Type, "actions", len(rule.Actions))
	results := runActions(ctx, rule.Actions, event, e.runtime)
	for _, res := range results {
		if !res.Success {
			log.Warn("action failed", "kind", res.Kind, "error", res.Error)
		}
	}
}

// Stats returns a copy of a rule's execution statistics.
func (e *Engine) Stats(id string) (core.RuleStats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rule, ok := e.rules[id]
	if !ok {
		return core.RuleStats{}, core.ErrNotFound("rule", id)
	}
	return rule.Stats, nil
}

// Variables is the default in-memory VariableStore.
type Variables struct {
	mu   sync.RWMutex
	vars map[string]interface{}
}

// NewVariables creates an empty variable store.
func NewVariables() *Variables {
	return &Variables{vars: make(map[string]interface{})}
}

// Set stores a variable. Last writer wins.
func (v *Variables) Set(name string, value interface{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vars[name] = value
}

// All returns a copy of the variables.
func (v *Variables) All() map[string]interface{} {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]interface{}, len(v.vars))
	for k, val := range v.vars {
		out[k] = val
	}
	return out
}
