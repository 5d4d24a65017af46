package leads

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrNotFound = errors.New("leads: not found")
	// ErrAlreadyAssigned is returned when an IfUnassigned update loses the race.
	// Callers must not retry the same lead.
	ErrAlreadyAssigned = errors.New("leads: already assigned")
	ErrSchemaMismatch  = errors.New("leads: schema mismatch")
	ErrValidation      = errors.New("leads: validation failed")
	ErrNotOwner        = errors.New("leads: lead is not assigned to caller")
)

// SchemaError reports a write rejected because Column does not exist in the
// current storage schema. Column may be empty when the store could not name it.
type SchemaError struct {
	Column string
	Cause  error
}

func (e *SchemaError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("leads: schema mismatch: %v", e.Cause)
	}
	return fmt.Sprintf("leads: schema mismatch on column %q", e.Column)
}

func (e *SchemaError) Unwrap() error { return ErrSchemaMismatch }

var missingColumnRe = regexp.MustCompile(`(?i)column "([^"]+)"`)

// ParseMissingColumn extracts the column name from messages such as
// `column "interest" of relation "leads" does not exist`.
func ParseMissingColumn(msg string) string {
	m := missingColumnRe.FindStringSubmatch(msg)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Store is the persistence contract for leads.
//
// Update with IfUnassigned is the only operation that must be atomic at the
// storage layer: of N concurrent calls for the same unassigned lead exactly one
// succeeds, the rest get ErrAlreadyAssigned. Everything else is last-write-wins.
type Store interface {
	Get(ctx context.Context, id string) (Lead, error)
	List(ctx context.Context, f Filter) ([]Lead, error)
	Count(ctx context.Context, f Filter) (int, error)

	// Insert writes all rows or none. Rows without an id get one assigned.
	Insert(ctx context.Context, rows []Fields) ([]Lead, error)
	Update(ctx context.Context, id string, f Fields, pre Precondition) (Lead, error)
	// UpdateMany applies f to every listed id and reports how many rows changed.
	UpdateMany(ctx context.Context, ids []string, f Fields) (int, error)
	Delete(ctx context.Context, id string) error
}
