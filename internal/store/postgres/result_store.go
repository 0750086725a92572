package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oversight-labs/amlsentry/internal/domain"
)

// ResultStore implements domain.ResultStore using PostgreSQL. The full record
// is kept as JSONB; the columns queried by the API (flagged, position,
// entity) are lifted out for indexing.
type ResultStore struct {
	pool *pgxpool.Pool
}

// NewResultStore creates a new ResultStore backed by the given connection pool.
func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

const resultSelectCols = `transaction_id, entity_id, position, amount,
	flagged, rules, llm_output, verification, record`

// InsertBatch inserts result records efficiently using pgx Batch. Re-inserting
// the same (run, transaction) pair is a no-op.
func (s *ResultStore) InsertBatch(ctx context.Context, runID string, records []domain.ResultRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO run_results (
			run_id, transaction_id, entity_id, position, amount,
			flagged, rules, llm_output, verification, record
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10
		) ON CONFLICT (run_id, transaction_id) DO NOTHING`

	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("postgres: marshal result %d: %w", rec.TransactionID, err)
		}
		rules := rec.Rules
		if rules == nil {
			rules = []domain.RuleCode{}
		}
		batch.Queue(query,
			runID, rec.TransactionID, rec.EntityID, rec.Position, rec.Amount,
			rec.Flagged, rules, rec.LLMOutput, rec.Verification, payload,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert result batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByRun returns one page of results in original input order, plus the
// total count matching the filter.
func (s *ResultStore) ListByRun(ctx context.Context, runID string, opts domain.ListOpts) ([]domain.ResultRecord, int, error) {
	countQuery := `SELECT COUNT(*) FROM run_results WHERE run_id = $1`
	if opts.FlaggedOnly {
		countQuery += ` AND flagged`
	}

	var total int
	if err := s.pool.QueryRow(ctx, countQuery, runID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: count results for run %s: %w", runID, err)
	}

	query := `SELECT ` + resultSelectCols + ` FROM run_results WHERE run_id = $1`
	if opts.FlaggedOnly {
		query += ` AND flagged`
	}
	query += ` ORDER BY position ASC`

	args := []any{runID}
	argIdx := 2
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: list results for run %s: %w", runID, err)
	}
	defer rows.Close()

	var records []domain.ResultRecord
	for rows.Next() {
		rec, err := scanResult(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("postgres: scan result: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("postgres: list results for run %s: %w", runID, err)
	}
	return records, total, nil
}

// GetByTxnID returns a single result record, or domain.ErrNotFound.
func (s *ResultStore) GetByTxnID(ctx context.Context, runID string, txnID int64) (domain.ResultRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+resultSelectCols+` FROM run_results WHERE run_id = $1 AND transaction_id = $2`,
		runID, txnID)

	rec, err := scanResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ResultRecord{}, fmt.Errorf("postgres: get result %d in run %s: %w", txnID, runID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ResultRecord{}, fmt.Errorf("postgres: get result %d in run %s: %w", txnID, runID, err)
	}
	return rec, nil
}

// scanResult rebuilds a ResultRecord from its lifted columns plus the JSONB
// payload. The fixed fields live in columns; everything else in the payload
// becomes Extra.
func scanResult(row pgx.Row) (domain.ResultRecord, error) {
	var (
		rec     domain.ResultRecord
		rules   []string
		payload []byte
	)
	err := row.Scan(
		&rec.TransactionID, &rec.EntityID, &rec.Position, &rec.Amount,
		&rec.Flagged, &rules, &rec.LLMOutput, &rec.Verification, &payload,
	)
	if err != nil {
		return domain.ResultRecord{}, err
	}

	rec.Rules = make([]domain.RuleCode, len(rules))
	for i, r := range rules {
		rec.Rules[i] = domain.RuleCode(r)
	}

	var full map[string]any
	if err := json.Unmarshal(payload, &full); err != nil {
		return domain.ResultRecord{}, fmt.Errorf("unmarshal record payload: %w", err)
	}
	for _, fixed := range []string{"transaction_id", "amount", "rules", "llm_output", "verification"} {
		delete(full, fixed)
	}
	rec.Extra = full
	return rec, nil
}
