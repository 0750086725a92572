package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oversight-labs/amlsentry/internal/domain"
)

// RunStore implements domain.RunStore using PostgreSQL.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a new RunStore backed by the given connection pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

const runSelectCols = `id, status, started_at, finished_at, error_message,
	total_transactions, flagged_transactions, excluded_transactions, reasoning_failures`

func scanRun(row pgx.Row) (domain.Run, error) {
	var r domain.Run
	err := row.Scan(
		&r.ID, &r.Status, &r.StartedAt, &r.FinishedAt, &r.ErrorMessage,
		&r.TotalTransactions, &r.FlaggedTransactions,
		&r.ExcludedTransactions, &r.ReasoningFailures,
	)
	return r, err
}

// Create inserts a new run row. The run is expected to be in the RUNNING
// state with counters still at zero.
func (s *RunStore) Create(ctx context.Context, run domain.Run) error {
	const query = `
		INSERT INTO runs (id, status, started_at, error_message,
			total_transactions, flagged_transactions,
			excluded_transactions, reasoning_failures)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		run.ID, run.Status, run.StartedAt, run.ErrorMessage,
		run.TotalTransactions, run.FlaggedTransactions,
		run.ExcludedTransactions, run.ReasoningFailures,
	)
	if err != nil {
		return fmt.Errorf("postgres: create run %s: %w", run.ID, err)
	}
	return nil
}

// Finish writes the terminal state and final counters of a run.
func (s *RunStore) Finish(ctx context.Context, run domain.Run) error {
	const query = `
		UPDATE runs SET
			status = $2,
			finished_at = $3,
			error_message = $4,
			total_transactions = $5,
			flagged_transactions = $6,
			excluded_transactions = $7,
			reasoning_failures = $8
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		run.ID, run.Status, run.FinishedAt, run.ErrorMessage,
		run.TotalTransactions, run.FlaggedTransactions,
		run.ExcludedTransactions, run.ReasoningFailures,
	)
	if err != nil {
		return fmt.Errorf("postgres: finish run %s: %w", run.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: finish run %s: %w", run.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID returns a single run, or domain.ErrNotFound.
func (s *RunStore) GetByID(ctx context.Context, id string) (domain.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runSelectCols+` FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Run{}, fmt.Errorf("postgres: get run %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Run{}, fmt.Errorf("postgres: get run %s: %w", id, err)
	}
	return run, nil
}

// ListRecent returns the most recently started runs, newest first.
func (s *RunStore) ListRecent(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+runSelectCols+` FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	return runs, nil
}
