package users

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"leadpool-crm/pkg/utils"
)

// NOTE: emails are stored lowercased by Service; users.email is UNIQUE.

const userColumns = `id, email, name, role, status, COALESCE(phone, ''), COALESCE(password_hash, ''), created_at, updated_at`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

type scanner interface{ Scan(dest ...any) error }

func scanUser(s scanner) (User, error) {
	var (
		u      User
		status string
	)
	if err := s.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &status, &u.Phone, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	u.Status = Status(status)
	u.CreatedAt, u.UpdatedAt = u.CreatedAt.UTC(), u.UpdatedAt.UTC()
	return u, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrNotFound
	}
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *PostgresRepo) FindByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = lower($1)`, email))
}

func (r *PostgresRepo) FindByPhone(ctx context.Context, candidates []string) (User, error) {
	if len(candidates) == 0 {
		return User{}, ErrNotFound
	}
	q := `SELECT ` + userColumns + ` FROM users WHERE phone = ANY($1) ORDER BY created_at ASC LIMIT 1`
	return scanUser(r.db.QueryRowContext(ctx, q, candidates))
}

func (r *PostgresRepo) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

const upsertUser = `
INSERT INTO users (id, email, name, role, status, phone, password_hash, created_at, updated_at)
VALUES ($1, lower($2), $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), now(), now())
ON CONFLICT (email) DO UPDATE SET
	name = EXCLUDED.name,
	role = EXCLUDED.role,
	status = EXCLUDED.status,
	phone = EXCLUDED.phone,
	password_hash = COALESCE(EXCLUDED.password_hash, users.password_hash),
	updated_at = now()
RETURNING ` + userColumns

func (r *PostgresRepo) Upsert(ctx context.Context, u User) (User, error) {
	return upsert(ctx, r.db, u)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func upsert(ctx context.Context, q queryRower, u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return scanUser(q.QueryRowContext(ctx, upsertUser, u.ID, u.Email, u.Name, u.Role, string(u.Status), u.Phone, u.PasswordHash))
}

func (r *PostgresRepo) SetStatus(ctx context.Context, id string, s Status) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrNotFound
	}
	q := `UPDATE users SET status = $2, updated_at = now() WHERE id = $1 RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(ctx, q, id, string(s)))
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// bootstrapLockID serializes concurrent /setup-admin calls.
const bootstrapLockID = 7_210_001

func (r *PostgresRepo) CreateFirstAdmin(ctx context.Context, u User) (User, error) {
	var out User
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, bootstrapLockID); err != nil {
			return err
		}
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE role = $1)`, u.Role).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrAdminExists
		}
		var err error
		out, err = upsert(ctx, tx, u)
		return err
	})
	return out, err
}

func (r *PostgresRepo) CountActive(ctx context.Context, role string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM users WHERE status = 'Active' AND ($1 = '' OR role = $1)`, role).Scan(&n)
	return n, err
}
