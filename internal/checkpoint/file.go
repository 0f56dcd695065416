package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/taskweave/taskweave/internal/core"
)

// FileStore persists one JSON file per checkpoint under
// <dir>/<runID>/stage-<n>.json. Writes are atomic so a crash never
// leaves a truncated checkpoint behind.
type FileStore struct {
	dir string
}

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating checkpoint dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the checkpoint atomically.
func (s *FileStore) Save(_ context.Context, cp core.Checkpoint) error {
	runDir := filepath.Join(s.dir, cp.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("creating run dir: %w", err)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}

	path := filepath.Join(runDir, fmt.Sprintf("stage-%04d.json", cp.StageIndex))
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	return nil
}

// Load returns the run's latest checkpoint.
func (s *FileStore) Load(ctx context.Context, runID string) (*core.Checkpoint, error) {
	cps, err := s.List(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(cps) == 0 {
		return nil, core.ErrNotFound("checkpoint", runID)
	}
	latest := cps[len(cps)-1]
	return &latest, nil
}

// List returns all checkpoints for a run ordered by stage.
func (s *FileStore) List(_ context.Context, runID string) ([]core.Checkpoint, error) {
	runDir := filepath.Join(s.dir, runID)
	entries, err := os.ReadDir(runDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading run dir: %w", err)
	}

	type indexed struct {
		stage int
		name  string
	}
	files := make([]indexed, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "stage-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "stage-"), ".json"))
		if err != nil {
			continue
		}
		files = append(files, indexed{stage: n, name: name})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].stage < files[j].stage })

	out := make([]core.Checkpoint, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(runDir, f.name))
		if err != nil {
			return nil, fmt.Errorf("reading checkpoint %s: %w", f.name, err)
		}
		var cp core.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			return nil, fmt.Errorf("decoding checkpoint %s: %w", f.name, err)
		}
		out = append(out, cp)
	}
	return out, nil
}
