package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cueworks/stagehand/internal/director"
)

// ErrRunNotFound is returned when a run lookup yields no rows.
var ErrRunNotFound = errors.New("run not found")

// RunRepository archives run records. It implements director.RunStore, so a
// daemon built with a database writes every status transition here.
type RunRepository struct {
	db *pgxpool.Pool
}

// NewRunRepository creates a RunRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewRunRepository(db *pgxpool.Pool) *RunRepository {
	return &RunRepository{db: db}
}

// UpsertRun inserts the row for rec.ID or updates it in place. The director
// calls this on every status transition, so the row always reflects the
// run's latest observed state.
//
// Postcondition: A row for rec.ID exists with rec's status, cursors, and
// timestamps.
func (r *RunRepository) UpsertRun(ctx context.Context, rec director.RunRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO runs (id, list_id, status, cursors, started_at, updated_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   status      = EXCLUDED.status,
		   cursors     = EXCLUDED.cursors,
		   updated_at  = EXCLUDED.updated_at,
		   finished_at = EXCLUDED.finished_at`,
		rec.ID, rec.ListID, string(rec.Status), rec.Cursors,
		rec.StartedAt, rec.UpdatedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting run %s: %w", rec.ID, err)
	}
	return nil
}

// GetRun retrieves the archived record for one run.
//
// Postcondition: Returns the record or ErrRunNotFound.
func (r *RunRepository) GetRun(ctx context.Context, id uuid.UUID) (director.RunRecord, error) {
	var rec director.RunRecord
	var status string
	err := r.db.QueryRow(ctx,
		`SELECT id, list_id, status, cursors, started_at, updated_at, finished_at
		 FROM runs WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.ListID, &status, &rec.Cursors,
		&rec.StartedAt, &rec.UpdatedAt, &rec.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return director.RunRecord{}, ErrRunNotFound
		}
		return director.RunRecord{}, fmt.Errorf("querying run %s: %w", id, err)
	}
	rec.Status = director.Status(status)
	return rec, nil
}

// ListRuns returns archived records ordered newest first. An empty listID
// matches every list; limit <= 0 means no limit.
func (r *RunRepository) ListRuns(ctx context.Context, listID string, limit int) ([]director.RunRecord, error) {
	query := `SELECT id, list_id, status, cursors, started_at, updated_at, finished_at
	          FROM runs`
	args := []any{}
	if listID != "" {
		query += ` WHERE list_id = $1`
		args = append(args, listID)
	}
	query += ` ORDER BY updated_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var recs []director.RunRecord
	for rows.Next() {
		var rec director.RunRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.ListID, &status, &rec.Cursors,
			&rec.StartedAt, &rec.UpdatedAt, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		rec.Status = director.Status(status)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run rows: %w", err)
	}
	return recs, nil
}

// CountByStatus tallies archived runs per status.
func (r *RunRepository) CountByStatus(ctx context.Context) (map[director.Status]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[director.Status]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning run count: %w", err)
		}
		counts[director.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run counts: %w", err)
	}
	return counts, nil
}

// PruneFinished deletes terminal rows whose last update is older than the
// cutoff, and reports how many were removed.
//
// Precondition: olderThan should be positive; a zero duration prunes every
// terminal row.
func (r *RunRepository) PruneFinished(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	tag, err := r.db.Exec(ctx,
		`DELETE FROM runs
		 WHERE status IN ($1, $2) AND updated_at < $3`,
		string(director.StatusFinished), string(director.StatusStopped), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning finished runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
