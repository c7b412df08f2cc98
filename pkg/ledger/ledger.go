// Package ledger records step runs and every step execution in a Postgres
// database.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/systemstart/steppipe/pkg/steps"
)

// DB is the subset of *sql.DB the ledger uses.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const (
	createRunsQuery = `CREATE TABLE IF NOT EXISTS step_runs (
		run_id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		class TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		error_message TEXT
	)`

	createExecutionsQuery = `CREATE TABLE IF NOT EXISTS step_executions (
		step_execution_id UUID PRIMARY KEY,
		run_id UUID NOT NULL REFERENCES step_runs (run_id),
		step_name TEXT NOT NULL,
		class TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		elapsed_ms BIGINT,
		outputs INTEGER,
		error_message TEXT
	)`

	insertRunQuery = `INSERT INTO step_runs (run_id, name, class, status, started_at)
	 VALUES ($1,$2,$3,$4,$5)`

	finishRunQuery = `UPDATE step_runs SET status = $2, finished_at = $3, error_message = $4
	 WHERE run_id = $1`

	insertExecutionQuery = `INSERT INTO step_executions (step_execution_id, run_id, step_name, class, status, started_at)
	 VALUES ($1,$2,$3,$4,$5,$6)`

	finishExecutionQuery = `INSERT INTO step_executions (
		step_execution_id, run_id, step_name, class, status, started_at, finished_at, elapsed_ms, outputs, error_message
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	ON CONFLICT (step_execution_id) DO UPDATE SET
		status = EXCLUDED.status,
		finished_at = EXCLUDED.finished_at,
		elapsed_ms = EXCLUDED.elapsed_ms,
		outputs = EXCLUDED.outputs,
		error_message = EXCLUDED.error_message`
)

// StatusRunning marks runs and executions that have not finished.
const StatusRunning = "running"

type runIDKey struct{}

// WithRunID returns a context carrying the run id executions are recorded
// under.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunID returns the run id carried by ctx.
func RunID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}

type execution struct {
	id      string
	started time.Time
}

// Ledger implements steps.Observer. Write failures are logged, never
// returned to the running step.
type Ledger struct {
	db     DB
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	running map[*steps.Instance]execution
}

// New returns a ledger writing to db.
func New(db DB, logger *slog.Logger) *Ledger {
	if db == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		db:      db,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		running: make(map[*steps.Instance]execution),
	}
}

// Migrate creates the ledger tables.
func (l *Ledger) Migrate(ctx context.Context) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("ledger not initialized")
	}
	for _, q := range []string{createRunsQuery, createExecutionsQuery} {
		if _, err := l.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrating ledger: %w", err)
		}
	}
	return nil
}

// BeginRun records the start of a run of step and returns its id.
func (l *Ledger) BeginRun(ctx context.Context, step *steps.Instance) (string, error) {
	if l == nil || l.db == nil {
		return "", fmt.Errorf("ledger not initialized")
	}
	id := uuid.NewString()
	if _, err := l.db.ExecContext(ctx, insertRunQuery, id, step.Name(), step.Class().Name, StatusRunning, l.now()); err != nil {
		return "", fmt.Errorf("recording run: %w", err)
	}
	return id, nil
}

// EndRun records the outcome of run runID.
func (l *Ledger) EndRun(ctx context.Context, runID string, res *steps.Result, runErr error) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("ledger not initialized")
	}
	status := string(steps.StatusFailed)
	if res != nil {
		status = string(res.Status)
	}
	if _, err := l.db.ExecContext(ctx, finishRunQuery, runID, status, l.now(), errorMessage(runErr)); err != nil {
		return fmt.Errorf("recording run result: %w", err)
	}
	return nil
}

func (l *Ledger) StepStarted(ctx context.Context, step *steps.Instance) {
	runID, ok := RunID(ctx)
	if l == nil || !ok {
		return
	}
	exec := execution{id: uuid.NewString(), started: l.now()}
	l.mu.Lock()
	l.running[step] = exec
	l.mu.Unlock()

	if _, err := l.db.ExecContext(ctx, insertExecutionQuery,
		exec.id, runID, step.QualifiedName(), step.Class().Name, StatusRunning, exec.started,
	); err != nil {
		l.logger.Warn("Failed to record step start", "step", step.QualifiedName(), "error", err)
	}
}

func (l *Ledger) StepFinished(ctx context.Context, step *steps.Instance, res *steps.Result) {
	runID, ok := RunID(ctx)
	if l == nil || !ok {
		return
	}
	now := l.now()
	l.mu.Lock()
	exec, started := l.running[step]
	delete(l.running, step)
	l.mu.Unlock()
	if !started {
		// skipped steps are never started
		exec = execution{id: uuid.NewString(), started: now}
	}

	if _, err := l.db.ExecContext(ctx, finishExecutionQuery,
		exec.id, runID, step.QualifiedName(), step.Class().Name, string(res.Status),
		exec.started, now, res.Elapsed.Milliseconds(), len(res.Outputs), errorMessage(res.Err),
	); err != nil {
		l.logger.Warn("Failed to record step result", "step", step.QualifiedName(), "error", err)
	}
}

func errorMessage(err error) sql.NullString {
	if err == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: err.Error(), Valid: true}
}

var _ steps.Observer = (*Ledger)(nil)
