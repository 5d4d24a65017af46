package users

import "context"

type Repository interface {
	Get(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	// FindByPhone returns the first user whose phone equals any candidate.
	FindByPhone(ctx context.Context, candidates []string) (User, error)
	List(ctx context.Context) ([]User, error)
	// Upsert inserts or updates by email, keeping id, created_at and any
	// existing password hash when u carries none.
	Upsert(ctx context.Context, u User) (User, error)
	SetStatus(ctx context.Context, id string, s Status) (User, error)
	Delete(ctx context.Context, id string) error
	// CreateFirstAdmin inserts u only if no admin exists, atomically.
	CreateFirstAdmin(ctx context.Context, u User) (User, error)
	CountActive(ctx context.Context, role string) (int, error)
}
