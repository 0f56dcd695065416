// Package checkpoint provides the stores the workflow executor writes
// stage snapshots to. The memory store serves a single process; the
// file store survives restarts.
package checkpoint

import (
	"context"
	"sort"
	"sync"

	"github.com/taskweave/taskweave/internal/core"
)

// MemoryStore keeps checkpoints in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string][]core.Checkpoint
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string][]core.Checkpoint)}
}

// Save appends a checkpoint for its run.
func (s *MemoryStore) Save(_ context.Context, cp core.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[cp.RunID] = append(s.runs[cp.RunID], cp)
	return nil
}

// Load returns the latest checkpoint for a run.
func (s *MemoryStore) Load(_ context.Context, runID string) (*core.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cps := s.runs[runID]
	if len(cps) == 0 {
		return nil, core.ErrNotFound("checkpoint", runID)
	}
	latest := cps[0]
	for _, cp := range cps[1:] {
		if cp.StageIndex > latest.StageIndex {
			latest = cp
		}
	}
	return &latest, nil
}

// List returns all checkpoints for a run ordered by stage.
func (s *MemoryStore) List(_ context.Context, runID string) ([]core.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]core.Checkpoint(nil), s.runs[runID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].StageIndex < out[j].StageIndex })
	return out, nil
}
