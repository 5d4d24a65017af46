package leads

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func missingColumnErr(col string) error {
	return mapPgError(errors.New(`ERROR: column "` + col + `" does not exist (SQLSTATE 42703)`))
}

func TestPostgresStore_ReturningSkipsMissingColumn(t *testing.T) {
	s := NewPostgresStore(nil)
	if !strings.Contains(s.selectColumns(), "COALESCE(interest, '')") {
		t.Fatalf("expected interest selected before drift: %s", s.selectColumns())
	}

	// The column was only read (RETURNING), so the statement is retried as is.
	var calls int
	err := s.withSchemaRetry(Fields{ColName: "Asha"}.Has, func() error {
		calls++
		if strings.Contains(s.selectColumns(), "interest") {
			return missingColumnErr(ColInterest)
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("expected one retry then success, got calls=%d err=%v", calls, err)
	}
	if cols := s.selectColumns(); strings.Contains(cols, "interest") || !strings.Contains(cols, "COALESCE(notes, '')") {
		t.Fatalf("expected interest replaced by a constant, got %s", cols)
	}
}

func TestPostgresStore_SuppliedMissingColumnIsLeftToHealing(t *testing.T) {
	s := NewPostgresStore(nil)
	var calls int
	err := s.withSchemaRetry(Fields{ColCity: "Pune"}.Has, func() error {
		calls++
		return missingColumnErr(ColCity)
	})
	var se *SchemaError
	if !errors.As(err, &se) || se.Column != ColCity || calls != 1 {
		t.Fatalf("expected SchemaError on city after one call, got calls=%d err=%v", calls, err)
	}
	if !s.isMissing(ColCity) {
		t.Fatalf("expected city remembered as missing")
	}
}

func TestPostgresStore_RepeatedMissingColumnStops(t *testing.T) {
	s := NewPostgresStore(nil)
	var calls int
	err := s.withSchemaRetry(suppliedNone, func() error {
		calls++
		return missingColumnErr(ColExternalID)
	})
	if !errors.Is(err, ErrSchemaMismatch) || calls != 2 {
		t.Fatalf("expected to give up after relearning the same column, got calls=%d err=%v", calls, err)
	}
}

func TestPostgresStore_UnknownColumnNotLearned(t *testing.T) {
	s := NewPostgresStore(nil)
	if s.learn(missingColumnErr("favourite"), suppliedNone) {
		t.Fatalf("unknown column should not trigger a retry")
	}
	if s.learn(missingColumnErr(ColID), suppliedNone) {
		t.Fatalf("id is never substituted")
	}
}

func TestPostgresStore_StampsOnlyPresentTimestamps(t *testing.T) {
	s := NewPostgresStore(nil)
	s.learn(missingColumnErr(ColUpdatedAt), suppliedNone)
	s.learn(missingColumnErr(ColCreatedAt), suppliedNone)

	set, _, err := buildSet(Fields{ColStatus: StatusLost}, time.Now(), !s.isMissing(ColUpdatedAt))
	if err != nil {
		t.Fatalf("buildSet: %v", err)
	}
	if strings.Contains(set, "updated_at") {
		t.Fatalf("expected no updated_at stamp, got %s", set)
	}
	if got := s.orderClause(OrderNewest); got != " ORDER BY id" {
		t.Fatalf("expected id ordering without created_at, got %q", got)
	}
}
