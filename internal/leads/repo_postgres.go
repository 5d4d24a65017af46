package leads

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// NOTE: PostgresStore expects the leads table from migrations/0001_init.sql.
// Writes send whatever columns the caller supplies; an unknown column comes
// back as SQLSTATE 42703 and is surfaced as *SchemaError for SelfHealingStore.
// Known columns reported missing are remembered, and from then on the select
// and RETURNING lists read a constant in their place.

const pgUndefinedColumn = "42703"

// leadColumn is one scanned column: expr reads it, fallback stands in once the
// schema is known to lack it. Order matches scanLead.
type leadColumn struct {
	name, expr, fallback string
}

var leadColumns = []leadColumn{
	{ColID, "id", ""},
	{ColExternalID, "COALESCE(external_id, '')", "''"},
	{ColName, "name", "''"},
	{ColEmail, "COALESCE(email, '')", "''"},
	{ColPhone, "phone", "''"},
	{ColCity, "COALESCE(city, '')", "''"},
	{ColStatus, "status", "'new'"},
	{ColAssignedTo, "COALESCE(assigned_to::text, '')", "''"},
	{ColNextFollowUp, "next_follow_up", "NULL::timestamptz"},
	{ColFollowUpNotes, "COALESCE(follow_up_notes, '')", "''"},
	{ColSource, "COALESCE(source, '')", "''"},
	{ColInterest, "COALESCE(interest, '')", "''"},
	{ColNotes, "COALESCE(notes, '')", "''"},
	{ColQuestions, "questions", "NULL::jsonb"},
	{ColAdCampaign, "COALESCE(ad_campaign, '')", "''"},
	{ColPlatformData, "platform_data", "NULL::jsonb"},
	{ColCreatedAt, "created_at", "now()"},
	{ColUpdatedAt, "updated_at", "now()"},
	{ColLastContactedAt, "last_contacted_at", "NULL::timestamptz"},
	{ColLastActivityType, "COALESCE(last_activity_type, '')", "''"},
}

type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time

	mu      sync.RWMutex
	missing map[string]bool
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now, missing: map[string]bool{}}
}

func (s *PostgresStore) isMissing(col string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.missing[col]
}

func (s *PostgresStore) selectColumns() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	parts := make([]string, len(leadColumns))
	for i, c := range leadColumns {
		if s.missing[c.name] && c.fallback != "" {
			parts[i] = c.fallback
		} else {
			parts[i] = c.expr
		}
	}
	return strings.Join(parts, ", ")
}

// learn records a known column that err reports missing. It returns true when
// the column is newly learned and the caller did not supply it, so the
// statement is worth running again; a supplied column is left for
// SelfHealingStore to strip.
func (s *PostgresStore) learn(err error, supplied func(col string) bool) bool {
	var se *SchemaError
	if !errors.As(err, &se) || se.Column == "" || se.Column == ColID || !knownColumn(se.Column) {
		return false
	}
	s.mu.Lock()
	fresh := !s.missing[se.Column]
	s.missing[se.Column] = true
	s.mu.Unlock()
	return fresh && !supplied(se.Column)
}

// withSchemaRetry runs op until it succeeds or fails on something other than
// a column the caller never supplied. Each pass learns at most one column.
func (s *PostgresStore) withSchemaRetry(supplied func(col string) bool, op func() error) error {
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil || attempt >= len(leadColumns) || !s.learn(err, supplied) {
			return err
		}
	}
}

func suppliedNone(string) bool { return false }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(r rowScanner) (Lead, error) {
	var (
		l            Lead
		status       string
		questions    []byte
		platformData []byte
		nextFollowUp sql.NullTime
		lastContact  sql.NullTime
	)
	if err := r.Scan(
		&l.ID,
		&l.ExternalID,
		&l.Name,
		&l.Email,
		&l.Phone,
		&l.City,
		&status,
		&l.AssignedTo,
		&nextFollowUp,
		&l.FollowUpNotes,
		&l.Source,
		&l.Interest,
		&l.Notes,
		&questions,
		&l.AdCampaign,
		&platformData,
		&l.CreatedAt,
		&l.UpdatedAt,
		&lastContact,
		&l.LastActivityType,
	); err != nil {
		return Lead{}, err
	}
	l.Status = Status(status)
	if nextFollowUp.Valid {
		t := nextFollowUp.Time.UTC()
		l.NextFollowUp = &t
	}
	if lastContact.Valid {
		t := lastContact.Time.UTC()
		l.LastContactedAt = &t
	}
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &l.Questions); err != nil {
			return Lead{}, fmt.Errorf("leads: decode questions: %w", err)
		}
	}
	if len(platformData) > 0 {
		if err := json.Unmarshal(platformData, &l.PlatformData); err != nil {
			return Lead{}, fmt.Errorf("leads: decode platform_data: %w", err)
		}
	}
	return l, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Lead, error) {
	var l Lead
	err := s.withSchemaRetry(suppliedNone, func() error {
		var err error
		l, err = scanLead(s.db.QueryRowContext(ctx, `SELECT `+s.selectColumns()+` FROM leads WHERE id = $1`, id))
		return mapPgError(err)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	return l, nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Lead, error) {
	var out []Lead
	err := s.withSchemaRetry(suppliedNone, func() error {
		var err error
		out, err = s.list(ctx, f)
		return mapPgError(err)
	})
	return out, err
}

func (s *PostgresStore) list(ctx context.Context, f Filter) ([]Lead, error) {
	where, args := buildWhere(f)
	q := `SELECT ` + s.selectColumns() + ` FROM leads` + where + s.orderClause(f.Order)
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context, f Filter) (int, error) {
	where, args := buildWhere(f)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads`+where, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PostgresStore) Insert(ctx context.Context, rows []Fields) ([]Lead, error) {
	if len(rows) == 0 {
		return []Lead{}, nil
	}
	supplied := func(col string) bool {
		for _, r := range rows {
			if r.Has(col) {
				return true
			}
		}
		return false
	}
	var out []Lead
	err := s.withSchemaRetry(supplied, func() error {
		var err error
		out, err = s.insert(ctx, rows)
		return err
	})
	return out, err
}

func (s *PostgresStore) insert(ctx context.Context, rows []Fields) ([]Lead, error) {
	now := s.clock().UTC()
	// Timestamps the caller left out are stamped here unless the schema lacks them.
	stamp := map[string]bool{ColCreatedAt: !s.isMissing(ColCreatedAt), ColUpdatedAt: !s.isMissing(ColUpdatedAt)}

	// Column set is the union over all rows; rows lacking a column get DEFAULT.
	colSet := map[string]bool{ColID: true}
	for c, ok := range stamp {
		if ok {
			colSet[c] = true
		}
	}
	for _, r := range rows {
		for k := range r {
			colSet[k] = true
		}
	}
	cols := Fields{}
	for k := range colSet {
		cols[k] = nil
	}
	colNames := cols.Keys()

	var (
		args   []any
		tuples []string
	)
	for _, r := range rows {
		r = r.Clone()
		if v, ok := r[ColID]; !ok || isEmptyValue(v) {
			r[ColID] = uuid.NewString()
		}
		for c, ok := range stamp {
			if _, set := r[c]; ok && !set {
				r[c] = now
			}
		}
		ph := make([]string, 0, len(colNames))
		for _, c := range colNames {
			v, ok := r[c]
			if !ok {
				ph = append(ph, "DEFAULT")
				continue
			}
			sv, err := sqlValue(c, v)
			if err != nil {
				return nil, err
			}
			args = append(args, sv)
			ph = append(ph, fmt.Sprintf("$%d", len(args)))
		}
		tuples = append(tuples, "("+strings.Join(ph, ", ")+")")
	}

	q := fmt.Sprintf(`INSERT INTO leads (%s) VALUES %s RETURNING %s`,
		quoteColumns(colNames), strings.Join(tuples, ", "), s.selectColumns())

	res, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer res.Close()

	out := make([]Lead, 0, len(rows))
	for res.Next() {
		l, err := scanLead(res)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := res.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, f Fields, pre Precondition) (Lead, error) {
	var l Lead
	err := s.withSchemaRetry(f.Has, func() error {
		set, args, err := buildSet(f, s.clock().UTC(), !s.isMissing(ColUpdatedAt))
		if err != nil {
			return err
		}
		args = append(args, id)
		q := fmt.Sprintf(`UPDATE leads SET %s WHERE id = $%d`, set, len(args))
		if pre == IfUnassigned {
			q += ` AND assigned_to IS NULL`
		}
		q += ` RETURNING ` + s.selectColumns()

		l, err = scanLead(s.db.QueryRowContext(ctx, q, args...))
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return mapPgError(err)
	})
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Lead{}, err
	}

	// Zero rows: either the lead is gone or the precondition failed.
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1)`, id).Scan(&exists); err != nil {
		return Lead{}, err
	}
	if !exists {
		return Lead{}, ErrNotFound
	}
	if pre == IfUnassigned {
		return Lead{}, ErrAlreadyAssigned
	}
	return Lead{}, ErrNotFound
}

func (s *PostgresStore) UpdateMany(ctx context.Context, ids []string, f Fields) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int64
	err := s.withSchemaRetry(f.Has, func() error {
		set, args, err := buildSet(f, s.clock().UTC(), !s.isMissing(ColUpdatedAt))
		if err != nil {
			return err
		}
		args = append(args, ids)
		q := fmt.Sprintf(`UPDATE leads SET %s WHERE id = ANY($%d)`, set, len(args))
		res, err := s.db.ExecContext(ctx, q, args...)
		if err != nil {
			return mapPgError(err)
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// buildSet renders the SET list; stamp adds updated_at when f lacks it.
func buildSet(f Fields, now time.Time, stamp bool) (string, []any, error) {
	if len(f) == 0 {
		return "", nil, validationErr("no fields to update")
	}
	f = f.Clone()
	if _, ok := f[ColUpdatedAt]; !ok && stamp {
		f[ColUpdatedAt] = now
	}
	var (
		parts []string
		args  []any
	)
	for _, c := range f.Keys() {
		v, err := sqlValue(c, f[c])
		if err != nil {
			return "", nil, err
		}
		args = append(args, v)
		parts = append(parts, fmt.Sprintf("%s = $%d", pgx.Identifier{c}.Sanitize(), len(args)))
	}
	return strings.Join(parts, ", "), args, nil
}

func buildWhere(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if len(f.IDs) > 0 {
		add("id = ANY($%d)", f.IDs)
	}
	if f.AssignedTo != "" {
		add("assigned_to = $%d", f.AssignedTo)
	}
	if f.Unassigned {
		conds = append(conds, "assigned_to IS NULL")
	}
	if f.AssignedOnly {
		conds = append(conds, "assigned_to IS NOT NULL")
	}
	if len(f.Statuses) > 0 {
		st := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			st[i] = string(s)
		}
		add("status = ANY($%d)", st)
	}
	if len(f.Phones) > 0 {
		add("phone = ANY($%d)", f.Phones)
	}
	if len(f.ExternalIDs) > 0 {
		add("external_id = ANY($%d)", f.ExternalIDs)
	}
	if f.FollowUpDueBy != nil {
		add("next_follow_up <= $%d", f.FollowUpDueBy.UTC())
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		args = append(args, "%"+q+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d OR phone ILIKE $%d)", n, n, n))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStore) orderClause(o Order) string {
	switch {
	case o == OrderFollowUpAsc && !s.isMissing(ColNextFollowUp):
		return " ORDER BY next_follow_up ASC NULLS LAST, id"
	case o != OrderFollowUpAsc && !s.isMissing(ColCreatedAt):
		return " ORDER BY created_at DESC, id"
	default:
		return " ORDER BY id"
	}
}

func quoteColumns(cols []string) string {
	q := make([]string, len(cols))
	for i, c := range cols {
		q[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(q, ", ")
}

// sqlValue converts a Fields value to a driver argument. Empty strings become
// NULL for optional text columns so "unset" and "cleared" read the same.
func sqlValue(col string, v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if t == "" && col != ColName && col != ColPhone {
			return nil, nil
		}
		return t, nil
	case Status:
		return string(t), nil
	case time.Time:
		if t.IsZero() {
			return nil, nil
		}
		return t.UTC(), nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		return t.UTC(), nil
	case map[string]any:
		if len(t) == 0 {
			return nil, nil
		}
		b, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("leads: encode %s: %w", col, err)
		}
		return string(b), nil
	default:
		return v, nil
	}
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedColumn {
		return &SchemaError{Column: ParseMissingColumn(pgErr.Message), Cause: err}
	}
	if err != nil && strings.Contains(err.Error(), "does not exist") {
		if col := ParseMissingColumn(err.Error()); col != "" {
			return &SchemaError{Column: col, Cause: err}
		}
	}
	return err
}
