package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/jpegconform/internal/harness"
)

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// WriteRun records a finished run and all of its scenario results in one
// transaction. Missing fields are filled in: ID with NewRunID, StartedAt
// with the store clock, ContractVersion with the current status-line
// contract. Passed and Failed are always recomputed from results.
//
// The stored run is returned, including its assigned Seq.
func (s *Store) WriteRun(ctx context.Context, run Run, results []*harness.Result) (Run, error) {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now()
	}
	run.StartedAt = run.StartedAt.UTC()
	if run.ContractVersion == 0 {
		run.ContractVersion = harness.StatusLineContractVersion
	}
	run.Passed, run.Failed = harness.Summary(results)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("write run: begin: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&run.Seq); err != nil {
		return Run{}, fmt.Errorf("write run: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, started_at, program, tool_version, contract_version, passed, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Seq,
		formatTime(run.StartedAt),
		run.Program,
		run.ToolVersion,
		run.ContractVersion,
		run.Passed,
		run.Failed,
	)
	if err != nil {
		return Run{}, fmt.Errorf("write run: %w", err)
	}

	for i, r := range results {
		if err := writeResult(ctx, tx, run.ID, i, r); err != nil {
			return Run{}, fmt.Errorf("write run: scenario %s: %w", r.Scenario, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("write run: commit: %w", err)
	}
	return run, nil
}

func writeResult(ctx context.Context, tx *sql.Tx, runID string, position int, r *harness.Result) error {
	stepsJSON, err := marshalSteps(r.Steps)
	if err != nil {
		return err
	}
	errorsJSON, err := marshalErrors(r.Errors)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scenario_results
		(run_id, position, scenario, pass, state, execution_failed, duration_ms, steps, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		position,
		r.Scenario,
		boolToInt(r.Pass),
		string(r.State),
		boolToInt(r.ExecutionFailed),
		r.Duration.Milliseconds(),
		stepsJSON,
		errorsJSON,
	)
	return err
}

// DeleteRun removes a run and, through the foreign key, its results.
// Deleting an unknown run returns ErrRunNotFound.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete run %s: %w", id, ErrRunNotFound)
	}
	return nil
}
