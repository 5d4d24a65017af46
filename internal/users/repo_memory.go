package users

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryRepo struct {
	mu    sync.Mutex
	users map[string]User
	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{users: map[string]User{}, clock: time.Now}
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *MemoryRepo) FindByEmail(ctx context.Context, email string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *MemoryRepo) FindByPhone(ctx context.Context, candidates []string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var hits []User
	for _, u := range r.users {
		for _, c := range candidates {
			if u.Phone != "" && u.Phone == c {
				hits = append(hits, u)
				break
			}
		}
	}
	if len(hits) == 0 {
		return User{}, ErrNotFound
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].CreatedAt.Before(hits[j].CreatedAt) })
	return hits[0], nil
}

func (r *MemoryRepo) List(ctx context.Context) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) Upsert(ctx context.Context, u User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upsertLocked(u), nil
}

func (r *MemoryRepo) upsertLocked(u User) User {
	now := r.clock().UTC()
	for id, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			u.ID = id
			u.CreatedAt = existing.CreatedAt
			if u.PasswordHash == "" {
				u.PasswordHash = existing.PasswordHash
			}
			u.UpdatedAt = now
			r.users[id] = u
			return u
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt, u.UpdatedAt = now, now
	r.users[u.ID] = u
	return u
}

func (r *MemoryRepo) SetStatus(ctx context.Context, id string, s Status) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	u.Status = s
	u.UpdatedAt = r.clock().UTC()
	r.users[id] = u
	return u, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *MemoryRepo) CreateFirstAdmin(ctx context.Context, u User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Role == u.Role {
			return User{}, ErrAdminExists
		}
	}
	return r.upsertLocked(u), nil
}

func (r *MemoryRepo) CountActive(ctx context.Context, role string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.users {
		if u.Active() && (role == "" || u.Role == role) {
			n++
		}
	}
	return n, nil
}
