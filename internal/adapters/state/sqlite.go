package state

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/taskweave/taskweave/internal/core"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLiteTaskStore implements core.TaskStore backed by SQLite. WAL mode
// keeps concurrent stage workers from serializing on reads.
type SQLiteTaskStore struct {
	db *sql.DB
}

// NewSQLiteTaskStore opens (creating if needed) the task database.
func NewSQLiteTaskStore(dbPath string) (*SQLiteTaskStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteTaskStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteTaskStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteTaskStore) migrate() error {
	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		version = 0
	}
	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}
	return nil
}

// Create inserts a new task.
func (s *SQLiteTaskStore) Create(ctx context.Context, task *core.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	deps, err := json.Marshal(task.DependsOn)
	if err != nil {
		return fmt.Errorf("encoding dependencies: %w", err)
	}
	conds, err := json.Marshal(task.Conditions)
	if err != nil {
		return fmt.Errorf("encoding conditions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, title, prompt, depends_on, status, priority, provider, model,
			conditions, estimated_duration_ms, estimated_cost, estimated_tokens,
			cost_usd, tokens, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(task.ID), task.Title, task.Prompt, string(deps), string(task.Status),
		task.Priority, task.Provider, task.Model, string(conds),
		task.EstimatedDuration.Milliseconds(), task.EstimatedCost, task.EstimatedTokens,
		task.CostUSD, task.Tokens, task.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

// Get loads one task.
func (s *SQLiteTaskStore) Get(ctx context.Context, id core.TaskID) (*core.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, prompt, depends_on, status, priority, provider, model,
		       conditions, estimated_duration_ms, estimated_cost, estimated_tokens,
		       cost_usd, tokens, error, started_at, completed_at
		FROM tasks WHERE id = ?`, string(id))

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound("task", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("loading task: %w", err)
	}
	return task, nil
}

// Update applies a patch. Nil patch fields are untouched.
func (s *SQLiteTaskStore) Update(ctx context.Context, id core.TaskID, patch core.TaskPatch) error {
	sets := "updated_at = CURRENT_TIMESTAMP"
	args := make([]interface{}, 0, 6)

	if patch.Status != nil {
		sets += ", status = ?"
		args = append(args, string(*patch.Status))
	}
	if patch.Output != nil {
		sets += ", output = ?"
		args = append(args, *patch.Output)
	}
	if patch.Error != nil {
		sets += ", error = ?"
		args = append(args, *patch.Error)
	}
	if patch.CostUSD != nil {
		sets += ", cost_usd = ?"
		args = append(args, *patch.CostUSD)
	}
	if patch.Tokens != nil {
		sets += ", tokens = ?"
		args = append(args, *patch.Tokens)
	}
	args = append(args, string(id))

	res, err := s.db.ExecContext(ctx, "UPDATE tasks SET "+sets+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound("task", string(id))
	}
	return nil
}

// List returns all tasks ordered by creation time.
func (s *SQLiteTaskStore) List(ctx context.Context) ([]*core.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, prompt, depends_on, status, priority, provider, model,
		       conditions, estimated_duration_ms, estimated_cost, estimated_tokens,
		       cost_usd, tokens, error, started_at, completed_at
		FROM tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var out []*core.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row scanner) (*core.Task, error) {
	var (
		task       core.Task
		id         string
		status     string
		deps       string
		conds      string
		durationMS int64
		started    sql.NullTime
		completed  sql.NullTime
	)
	err := row.Scan(
		&id, &task.Title, &task.Prompt, &deps, &status, &task.Priority,
		&task.Provider, &task.Model, &conds, &durationMS,
		&task.EstimatedCost, &task.EstimatedTokens,
		&task.CostUSD, &task.Tokens, &task.Error, &started, &completed,
	)
	if err != nil {
		return nil, err
	}

	task.ID = core.TaskID(id)
	task.Status = core.TaskStatus(status)
	task.EstimatedDuration = time.Duration(durationMS) * time.Millisecond
	if err := json.Unmarshal([]byte(deps), &task.DependsOn); err != nil {
		return nil, fmt.Errorf("decoding dependencies: %w", err)
	}
	if err := json.Unmarshal([]byte(conds), &task.Conditions); err != nil {
		return nil, fmt.Errorf("decoding conditions: %w", err)
	}
	if started.Valid {
		t := started.Time
		task.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		task.CompletedAt = &t
	}
	return &task, nil
}
