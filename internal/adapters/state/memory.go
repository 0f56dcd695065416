// Package state provides the task store adapters: an in-memory store
// for tests and single runs, and a SQLite store for durable setups.
package state

import (
	"context"
	"sync"

	"github.com/taskweave/taskweave/internal/core"
)

// MemoryTaskStore keeps tasks in process memory.
type MemoryTaskStore struct {
	mu      sync.RWMutex
	tasks   map[core.TaskID]*core.Task
	outputs map[core.TaskID]string
	order   []core.TaskID
}

// NewMemoryTaskStore creates an empty in-memory task store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks:   make(map[core.TaskID]*core.Task),
		outputs: make(map[core.TaskID]string),
	}
}

// Create stores a new task. Fails when the ID already exists.
func (s *MemoryTaskStore) Create(_ context.Context, task *core.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; ok {
		return core.ErrState("TASK_EXISTS", "task already exists: "+string(task.ID))
	}
	copied := *task
	s.tasks[task.ID] = &copied
	s.order = append(s.order, task.ID)
	return nil
}

// Get returns a copy of a task.
func (s *MemoryTaskStore) Get(_ context.Context, id core.TaskID) (*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, core.ErrNotFound("task", string(id))
	}
	copied := *task
	return &copied, nil
}

// Update applies a patch to a task. Nil patch fields are untouched.
func (s *MemoryTaskStore) Update(_ context.Context, id core.TaskID, patch core.TaskPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return core.ErrNotFound("task", string(id))
	}
	if patch.Status != nil {
		task.Status = *patch.Status
	}
	if patch.Output != nil {
		s.outputs[id] = *patch.Output
	}
	if patch.Error != nil {
		task.Error = *patch.Error
	}
	if patch.CostUSD != nil {
		task.CostUSD = *patch.CostUSD
	}
	if patch.Tokens != nil {
		task.Tokens = *patch.Tokens
	}
	return nil
}

// Output returns the stored output for a task, if any.
func (s *MemoryTaskStore) Output(id core.TaskID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.outputs[id]
	return out, ok
}

// List returns copies of all tasks in insertion order.
func (s *MemoryTaskStore) List(_ context.Context) ([]*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Task, 0, len(s.order))
	for _, id := range s.order {
		copied := *s.tasks[id]
		out = append(out, &copied)
	}
	return out, nil
}
