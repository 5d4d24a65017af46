package leads

import (
	"context"
	"errors"
	"log/slog"

	"leadpool-crm/pkg/logger"
)

// SelfHealingStore wraps a Store so writes survive schema drift: every column
// the store names as missing is stripped in turn and the write retried. When
// the store cannot name the column, or stripping leaves nothing that helps,
// the write is retried once with Base fields (BaseColumns plus IdentityColumns).
// Reads pass through untouched.
type SelfHealingStore struct {
	Store
	log    *slog.Logger
	onHeal func(stage string)
}

// NewSelfHealingStore decorates inner. A nil log uses the context logger.
func NewSelfHealingStore(inner Store, log *slog.Logger) *SelfHealingStore {
	return &SelfHealingStore{Store: inner, log: log}
}

// OnHeal registers a hook called with "strip" or "base" before each retry.
func (s *SelfHealingStore) OnHeal(fn func(stage string)) *SelfHealingStore {
	s.onHeal = fn
	return s
}

func (s *SelfHealingStore) healed(stage string) {
	if s.onHeal != nil {
		s.onHeal(stage)
	}
}

func (s *SelfHealingStore) logger(ctx context.Context) *slog.Logger {
	if s.log != nil {
		return s.log
	}
	return logger.From(ctx)
}

func (s *SelfHealingStore) Insert(ctx context.Context, rows []Fields) ([]Lead, error) {
	out, err := s.Store.Insert(ctx, rows)
	for {
		col, ok := schemaColumn(err)
		if !ok {
			return out, err
		}
		if col == "" || !anyHas(rows, col) {
			break
		}
		s.logger(ctx).Warn("lead schema mismatch, retrying without column", "op", "insert", "column", col, "rows", len(rows))
		s.healed("strip")
		stripped := make([]Fields, len(rows))
		for i, r := range rows {
			stripped[i] = r.Without(col)
		}
		rows = stripped
		out, err = s.Store.Insert(ctx, rows)
	}

	s.logger(ctx).Warn("lead schema mismatch, falling back to base columns", "op", "insert", "rows", len(rows), "err", err)
	s.healed("base")
	base := make([]Fields, len(rows))
	for i, r := range rows {
		base[i] = r.Base()
	}
	return s.Store.Insert(ctx, base)
}

func (s *SelfHealingStore) Update(ctx context.Context, id string, f Fields, pre Precondition) (Lead, error) {
	out, err := s.Store.Update(ctx, id, f, pre)
	for {
		col, ok := schemaColumn(err)
		if !ok {
			return out, err
		}
		if col == "" || !f.Has(col) {
			break
		}
		s.logger(ctx).Warn("lead schema mismatch, retrying without column", "op", "update", "lead_id", id, "column", col)
		s.healed("strip")
		f = f.Without(col)
		if len(f) == 0 {
			return Lead{}, err
		}
		out, err = s.Store.Update(ctx, id, f, pre)
	}

	base := baseUpdate(f)
	if len(base) == 0 {
		return Lead{}, err
	}
	s.logger(ctx).Warn("lead schema mismatch, falling back to base columns", "op", "update", "lead_id", id, "err", err)
	s.healed("base")
	return s.Store.Update(ctx, id, base, pre)
}

func (s *SelfHealingStore) UpdateMany(ctx context.Context, ids []string, f Fields) (int, error) {
	n, err := s.Store.UpdateMany(ctx, ids, f)
	for {
		col, ok := schemaColumn(err)
		if !ok {
			return n, err
		}
		if col == "" || !f.Has(col) {
			break
		}
		s.logger(ctx).Warn("lead schema mismatch, retrying without column", "op", "update_many", "column", col, "rows", len(ids))
		s.healed("strip")
		f = f.Without(col)
		if len(f) == 0 {
			return 0, err
		}
		n, err = s.Store.UpdateMany(ctx, ids, f)
	}

	base := baseUpdate(f)
	if len(base) == 0 {
		return 0, err
	}
	s.logger(ctx).Warn("lead schema mismatch, falling back to base columns", "op", "update_many", "rows", len(ids), "err", err)
	s.healed("base")
	return s.Store.UpdateMany(ctx, ids, base)
}

// baseUpdate is f.Base() that still carries an explicit assigned_to = NULL,
// which Base drops as empty.
func baseUpdate(f Fields) Fields {
	base := f.Base()
	if v, ok := f[ColAssignedTo]; ok && v == nil {
		base[ColAssignedTo] = nil
	}
	return base
}

func anyHas(rows []Fields, col string) bool {
	for _, r := range rows {
		if r.Has(col) {
			return true
		}
	}
	return false
}

func schemaColumn(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var se *SchemaError
	if errors.As(err, &se) {
		return se.Column, true
	}
	if errors.Is(err, ErrSchemaMismatch) {
		return "", true
	}
	return "", false
}
