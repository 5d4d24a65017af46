package activity

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory append-only repository for tests.
type MemoryRepo struct {
	mu         sync.Mutex
	activities []Activity
	// FailAppend makes Append return this error when set.
	FailAppend error
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, a Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailAppend != nil {
		return r.FailAppend
	}
	r.activities = append(r.activities, a)
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, f Filter) ([]Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Activity, 0)
	for _, a := range r.activities {
		if f.match(a) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepo) Count(ctx context.Context, f Filter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.activities {
		if f.match(a) {
			n++
		}
	}
	return n, nil
}

// All returns a copy of every stored activity in append order.
func (r *MemoryRepo) All() []Activity {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Activity, len(r.activities))
	copy(out, r.activities)
	return out
}
