package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/jpegconform/internal/harness"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded invocation of the harness.
type Run struct {
	ID              string    `json:"id"`
	Seq             int64     `json:"seq"`
	StartedAt       time.Time `json:"started_at"`
	Program         string    `json:"program"`
	ToolVersion     string    `json:"tool_version,omitempty"`
	ContractVersion int       `json:"contract_version"`
	Passed          int       `json:"passed"`
	Failed          int       `json:"failed"`
}

// ScenarioRecord is one scenario outcome in the history of that scenario.
type ScenarioRecord struct {
	RunID           string    `json:"run_id"`
	Seq             int64     `json:"seq"`
	StartedAt       time.Time `json:"started_at"`
	Pass            bool      `json:"pass"`
	ExecutionFailed bool      `json:"execution_failed,omitempty"`
	Errors          []string  `json:"errors,omitempty"`
}

const runColumns = `id, seq, started_at, program, tool_version, contract_version, passed, failed`

// ListRuns returns the most recent runs, newest first. limit <= 0 returns
// every run.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY seq DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns a single run by ID.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	return run, err
}

// LatestRun returns the most recently written run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY seq DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("latest run: %w", ErrRunNotFound)
	}
	return run, err
}

// ReadResults returns the scenario results of a run in report order.
// Durations are restored with millisecond precision.
func (s *Store) ReadResults(ctx context.Context, runID string) ([]*harness.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scenario, pass, state, execution_failed, duration_ms, steps, errors
		FROM scenario_results
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := []*harness.Result{}
	for rows.Next() {
		var (
			r                     harness.Result
			state                 string
			durationMS            int64
			stepsJSON, errorsJSON string
		)
		if err := rows.Scan(&r.Scenario, &r.Pass, &state, &r.ExecutionFailed, &durationMS, &stepsJSON, &errorsJSON); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.State = harness.State(state)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		if r.Steps, err = unmarshalSteps(stepsJSON); err != nil {
			return nil, err
		}
		if r.Errors, err = unmarshalErrors(errorsJSON); err != nil {
			return nil, err
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

// ScenarioHistory returns the recorded outcomes of one scenario, newest
// run first. limit <= 0 returns the full history.
func (s *Store) ScenarioHistory(ctx context.Context, scenario string, limit int) ([]ScenarioRecord, error) {
	query := `
		SELECT r.id, r.seq, r.started_at, sr.pass, sr.execution_failed, sr.errors
		FROM scenario_results sr
		JOIN runs r ON sr.run_id = r.id
		WHERE sr.scenario = ?
		ORDER BY r.seq DESC`
	args := []any{scenario}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scenario history: %w", err)
	}
	defer rows.Close()

	records := []ScenarioRecord{}
	for rows.Next() {
		var (
			rec        ScenarioRecord
			startedAt  string
			errorsJSON string
		)
		if err := rows.Scan(&rec.RunID, &rec.Seq, &startedAt, &rec.Pass, &rec.ExecutionFailed, &errorsJSON); err != nil {
			return nil, fmt.Errorf("scan scenario history: %w", err)
		}
		if rec.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if rec.Errors, err = unmarshalErrors(errorsJSON); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scenario history: %w", err)
	}
	return records, nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run       Run
		startedAt string
	)
	err := row.Scan(&run.ID, &run.Seq, &startedAt, &run.Program, &run.ToolVersion,
		&run.ContractVersion, &run.Passed, &run.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return Run{}, err
	}
	return run, nil
}
