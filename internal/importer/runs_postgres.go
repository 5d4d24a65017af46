package importer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type PostgresRunRepo struct {
	db *sql.DB
}

func NewPostgresRunRepo(db *sql.DB) *PostgresRunRepo { return &PostgresRunRepo{db: db} }

const runColumns = `id, sync_started_at, sync_completed_at, imported_count, updated_count, skipped_count,
error_count, total_processed, status, sync_type, COALESCE(error_message, '')`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var (
		r         Run
		completed sql.NullTime
		status    string
		typ       string
	)
	if err := row.Scan(&r.ID, &r.StartedAt, &completed, &r.Imported, &r.Updated, &r.Skipped,
		&r.Errors, &r.Total, &status, &typ, &r.ErrorMessage); err != nil {
		return Run{}, err
	}
	if completed.Valid {
		t := completed.Time.UTC()
		r.CompletedAt = &t
	}
	r.StartedAt = r.StartedAt.UTC()
	r.Status = RunStatus(status)
	r.Type = SyncType(typ)
	return r, nil
}

func (p *PostgresRunRepo) Start(ctx context.Context, typ SyncType, at time.Time) (Run, error) {
	q := `INSERT INTO sync_runs (id, sync_started_at, status, sync_type)
VALUES ($1, $2, 'running', $3)
RETURNING ` + runColumns
	return scanRun(p.db.QueryRowContext(ctx, q, uuid.NewString(), at.UTC(), string(typ)))
}

func (p *PostgresRunRepo) Finish(ctx context.Context, id string, o Outcome) (Run, error) {
	q := `UPDATE sync_runs
SET sync_completed_at = $2, imported_count = $3, updated_count = $4, skipped_count = $5,
    error_count = $6, total_processed = $7, status = $8, error_message = NULLIF($9, '')
WHERE id = $1 AND status = 'running'
RETURNING ` + runColumns
	run, err := scanRun(p.db.QueryRowContext(ctx, q, id, o.CompletedAt.UTC(), o.Imported, o.Updated, o.Skipped,
		o.Errors, o.total(), string(o.Status), o.ErrorMessage))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return run, err
}

func (p *PostgresRunRepo) List(ctx context.Context, from, to time.Time) ([]Run, error) {
	var (
		where []string
		args  []any
	)
	if !from.IsZero() {
		args = append(args, from.UTC())
		where = append(where, fmt.Sprintf("sync_started_at >= $%d", len(args)))
	}
	if !to.IsZero() {
		args = append(args, to.UTC())
		where = append(where, fmt.Sprintf("sync_started_at <= $%d", len(args)))
	}
	q := `SELECT ` + runColumns + ` FROM sync_runs`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY sync_started_at DESC`

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresRunRepo) LastCompleted(ctx context.Context) (*time.Time, error) {
	var t sql.NullTime
	err := p.db.QueryRowContext(ctx, `SELECT max(sync_completed_at) FROM sync_runs`).Scan(&t)
	if err != nil {
		return nil, err
	}
	if !t.Valid {
		return nil, nil
	}
	u := t.Time.UTC()
	return &u, nil
}
