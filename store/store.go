package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/drover/action"
	"github.com/hazyhaar/drover/workflow"
)

const schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS workflow_steps (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	workflow_id  INTEGER NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	step_order   INTEGER NOT NULL,
	action_type  TEXT NOT NULL,
	selector     TEXT NOT NULL DEFAULT '',
	value        TEXT NOT NULL DEFAULT '',
	attribute    TEXT NOT NULL DEFAULT '',
	extract_type TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_steps_workflow ON workflow_steps(workflow_id, step_order);

CREATE TABLE IF NOT EXISTS identity_pool (
	id   INTEGER PRIMARY KEY CHECK (id = 1),
	pool TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS delay_policy (
	id        INTEGER PRIMARY KEY CHECK (id = 1),
	min_ms    INTEGER NOT NULL,
	max_ms    INTEGER NOT NULL,
	randomize INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	workflow_id INTEGER NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	status      TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS run_results (
	run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position  INTEGER NOT NULL,
	status    TEXT NOT NULL,
	message   TEXT NOT NULL DEFAULT '',
	url       TEXT NOT NULL DEFAULT '',
	text      TEXT NOT NULL DEFAULT '',
	list_json TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (run_id, position)
);
`

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Workflow is a stored workflow definition.
type Workflow struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Run is one recorded workflow execution with its ordered result ledger.
type Run struct {
	ID         string          `json:"id"`
	WorkflowID int64           `json:"workflow_id"`
	Status     action.Status   `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Results    []action.Result `json:"results"`
}

// Store wraps the database. It implements workflow.Store and
// cloak.Store.
type Store struct {
	db *sql.DB
}

// New wraps an already opened database.
func New(db *sql.DB) *Store { return &Store{db: db} }

// Open opens path and returns a ready Store.
func Open(path string) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// CreateWorkflow inserts a named workflow and returns its id.
func (s *Store) CreateWorkflow(ctx context.Context, name, description string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO workflows (name, description, created_at) VALUES (?, ?, ?)`,
		name, description, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("store: create workflow %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: create workflow %q: %w", name, err)
	}
	return id, nil
}

// ListWorkflows returns every stored workflow, oldest first.
func (s *Store) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM workflows ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list workflows: %w", err)
	}
	defer rows.Close()

	var out []Workflow
	for rows.Next() {
		var w Workflow
		var created int64
		if err := rows.Scan(&w.ID, &w.Name, &w.Description, &created); err != nil {
			return nil, fmt.Errorf("store: list workflows: %w", err)
		}
		w.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, w)
	}
	return out, rows.Err()
}

// GetWorkflow returns one workflow by id.
func (s *Store) GetWorkflow(ctx context.Context, id int64) (Workflow, error) {
	var w Workflow
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM workflows WHERE id = ?`, id).
		Scan(&w.ID, &w.Name, &w.Description, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Workflow{}, fmt.Errorf("store: workflow %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Workflow{}, fmt.Errorf("store: get workflow %d: %w", id, err)
	}
	w.CreatedAt = time.Unix(created, 0).UTC()
	return w, nil
}

// DeleteWorkflow removes a workflow and, via cascade, its steps and runs.
func (s *Store) DeleteWorkflow(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete workflow %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: workflow %d: %w", id, ErrNotFound)
	}
	return nil
}

// AddStep appends one step to a workflow.
func (s *Store) AddStep(ctx context.Context, workflowID int64, order int, desc action.Descriptor) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_steps
			(workflow_id, step_order, action_type, selector, value, attribute, extract_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		workflowID, order, string(desc.Verb), desc.Selector, desc.Value, desc.Attribute, desc.ExtractType)
	if err != nil {
		return 0, fmt.Errorf("store: add step to workflow %d: %w", workflowID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: add step to workflow %d: %w", workflowID, err)
	}
	return id, nil
}

// ReplaceSteps swaps a workflow's step list in one transaction.
func (s *Store) ReplaceSteps(ctx context.Context, workflowID int64, steps []workflow.Step) error {
	return runTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM workflow_steps WHERE workflow_id = ?`, workflowID); err != nil {
			return fmt.Errorf("store: clear steps of workflow %d: %w", workflowID, err)
		}
		for _, st := range steps {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO workflow_steps
					(workflow_id, step_order, action_type, selector, value, attribute, extract_type)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				workflowID, st.Order, string(st.Action.Verb), st.Action.Selector,
				st.Action.Value, st.Action.Attribute, st.Action.ExtractType); err != nil {
				return fmt.Errorf("store: insert step for workflow %d: %w", workflowID, err)
			}
		}
		return nil
	})
}

// LoadSteps returns the workflow's steps in storage order. The engine
// sorts by the explicit step_order field itself.
func (s *Store) LoadSteps(ctx context.Context, workflowID int64) ([]workflow.Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, step_order, action_type, selector, value, attribute, extract_type
		FROM workflow_steps
		WHERE workflow_id = ?
		ORDER BY id`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("store: load steps of workflow %d: %w", workflowID, err)
	}
	defer rows.Close()

	var out []workflow.Step
	for rows.Next() {
		var st workflow.Step
		var verb string
		if err := rows.Scan(&st.ID, &st.Order, &verb, &st.Action.Selector,
			&st.Action.Value, &st.Action.Attribute, &st.Action.ExtractType); err != nil {
			return nil, fmt.Errorf("store: load steps of workflow %d: %w", workflowID, err)
		}
		st.Action.Verb = action.Verb(verb)
		out = append(out, st)
	}
	return out, rows.Err()
}

// SaveRun records one finished execution under a fresh run id. The run
// status is the status of the last result, error when the ledger is
// empty.
func (s *Store) SaveRun(ctx context.Context, workflowID int64, startedAt time.Time, results []action.Result) (string, error) {
	runID := uuid.NewString()
	status := action.StatusError
	if n := len(results); n > 0 {
		status = results[n-1].Status
	}

	err := runTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO runs (id, workflow_id, status, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?)`,
			runID, workflowID, string(status), startedAt.Unix(), time.Now().Unix()); err != nil {
			return fmt.Errorf("store: insert run: %w", err)
		}
		for i, r := range results {
			list, err := json.Marshal(r.List)
			if err != nil {
				return fmt.Errorf("store: encode result list: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO run_results (run_id, position, status, message, url, text, list_json)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				runID, i, string(r.Status), r.Message, r.URL, r.Text, string(list)); err != nil {
				return fmt.Errorf("store: insert result %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return runID, nil
}

// GetRun returns one recorded run with its ordered results.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	var r Run
	var status string
	var started, finished int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, status, started_at, finished_at FROM runs WHERE id = ?`, runID).
		Scan(&r.ID, &r.WorkflowID, &status, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("store: run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("store: get run %s: %w", runID, err)
	}
	r.Status = action.Status(status)
	r.StartedAt = time.Unix(started, 0).UTC()
	r.FinishedAt = time.Unix(finished, 0).UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, message, url, text, list_json
		FROM run_results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return Run{}, fmt.Errorf("store: get run %s results: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var res action.Result
		var st, listJSON string
		if err := rows.Scan(&st, &res.Message, &res.URL, &res.Text, &listJSON); err != nil {
			return Run{}, fmt.Errorf("store: get run %s results: %w", runID, err)
		}
		res.Status = action.Status(st)
		if err := json.Unmarshal([]byte(listJSON), &res.List); err != nil {
			return Run{}, fmt.Errorf("store: decode result list: %w", err)
		}
		r.Results = append(r.Results, res)
	}
	return r, rows.Err()
}

// ListRuns returns the run headers of one workflow, newest first.
// Results are not loaded.
func (s *Store) ListRuns(ctx context.Context, workflowID int64) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, status, started_at, finished_at
		FROM runs WHERE workflow_id = ? ORDER BY started_at DESC, id`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("store: list runs of workflow %d: %w", workflowID, err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var status string
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.WorkflowID, &status, &started, &finished); err != nil {
			return nil, fmt.Errorf("store: list runs of workflow %d: %w", workflowID, err)
		}
		r.Status = action.Status(status)
		r.StartedAt = time.Unix(started, 0).UTC()
		r.FinishedAt = time.Unix(finished, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
