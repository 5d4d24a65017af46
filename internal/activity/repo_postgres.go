package activity

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, a Activity) error {
	const q = `
INSERT INTO activities (id, user_id, lead_id, type, details, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`
	var leadID any
	if a.LeadID != "" {
		leadID = a.LeadID
	}
	_, err := r.db.ExecContext(ctx, q, a.ID, a.UserID, leadID, string(a.Type), a.Details, a.CreatedAt)
	return err
}

func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Activity, error) {
	where, args := whereClause(f)
	q := `SELECT id, user_id, COALESCE(lead_id::text, ''), type, COALESCE(details, ''), created_at FROM activities` +
		where + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Activity, 0)
	for rows.Next() {
		var (
			a   Activity
			typ string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.LeadID, &typ, &a.Details, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Type = Type(typ)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context, f Filter) (int, error) {
	where, args := whereClause(f)
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities`+where, args...).Scan(&n)
	return n, err
}

func whereClause(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.LeadID != "" {
		add("lead_id = $%d", f.LeadID)
	}
	if len(f.Types) > 0 {
		ts := make([]string, len(f.Types))
		for i, t := range f.Types {
			ts[i] = string(t)
		}
		add("type = ANY($%d)", ts)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < $%d", f.To)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
