package leads

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local runs.
// DropColumn simulates an older schema generation.
type MemoryStore struct {
	mu      sync.Mutex
	leads   map[string]Lead
	dropped map[string]bool
	clock   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leads:   map[string]Lead{},
		dropped: map[string]bool{},
		clock:   time.Now,
	}
}

// DropColumn makes subsequent writes touching col fail with a SchemaError.
func (s *MemoryStore) DropColumn(col string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped[col] = true
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return Lead{}, ErrNotFound
	}
	return copyLead(l), nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.matching(f)
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []Lead{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context, f Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.matching(f)), nil
}

func (s *MemoryStore) Insert(ctx context.Context, rows []Fields) ([]Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().UTC()
	built := make([]Lead, 0, len(rows))
	for _, row := range rows {
		if err := s.checkColumns(row); err != nil {
			return nil, err
		}
		l := Lead{Status: StatusNew, CreatedAt: now, UpdatedAt: now}
		if err := applyFields(&l, row); err != nil {
			return nil, err
		}
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		if _, exists := s.leads[l.ID]; exists {
			return nil, fmt.Errorf("leads: duplicate id %s", l.ID)
		}
		built = append(built, l)
	}
	out := make([]Lead, 0, len(built))
	for _, l := range built {
		s.leads[l.ID] = l
		out = append(out, copyLead(l))
	}
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, f Fields, pre Precondition) (Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkColumns(f); err != nil {
		return Lead{}, err
	}
	l, ok := s.leads[id]
	if !ok {
		return Lead{}, ErrNotFound
	}
	if pre == IfUnassigned && l.AssignedTo != "" {
		return Lead{}, ErrAlreadyAssigned
	}
	if err := applyFields(&l, f); err != nil {
		return Lead{}, err
	}
	if _, ok := f[ColUpdatedAt]; !ok {
		l.UpdatedAt = s.clock().UTC()
	}
	s.leads[id] = l
	return copyLead(l), nil
}

func (s *MemoryStore) UpdateMany(ctx context.Context, ids []string, f Fields) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkColumns(f); err != nil {
		return 0, err
	}
	now := s.clock().UTC()
	n := 0
	for _, id := range ids {
		l, ok := s.leads[id]
		if !ok {
			continue
		}
		if err := applyFields(&l, f); err != nil {
			return n, err
		}
		l.UpdatedAt = now
		s.leads[id] = l
		n++
	}
	return n, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[id]; !ok {
		return ErrNotFound
	}
	delete(s.leads, id)
	return nil
}

func (s *MemoryStore) checkColumns(f Fields) error {
	for _, col := range f.Keys() {
		if !knownColumn(col) || s.dropped[col] {
			return &SchemaError{Column: col, Cause: fmt.Errorf("column %q of relation \"leads\" does not exist", col)}
		}
	}
	return nil
}

func (s *MemoryStore) matching(f Filter) []Lead {
	out := make([]Lead, 0)
	for _, l := range s.leads {
		if matches(l, f) {
			out = append(out, copyLead(l))
		}
	}
	switch f.Order {
	case OrderFollowUpAsc:
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i].NextFollowUp, out[j].NextFollowUp
			if a == nil || b == nil {
				return b == nil && a != nil
			}
			return a.Before(*b)
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].ID < out[j].ID
			}
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}
	return out
}

func matches(l Lead, f Filter) bool {
	if len(f.IDs) > 0 && !containsString(f.IDs, l.ID) {
		return false
	}
	if f.AssignedTo != "" && l.AssignedTo != f.AssignedTo {
		return false
	}
	if f.Unassigned && l.AssignedTo != "" {
		return false
	}
	if f.AssignedOnly && l.AssignedTo == "" {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if l.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Phones) > 0 && !containsString(f.Phones, l.Phone) {
		return false
	}
	if len(f.ExternalIDs) > 0 && !containsString(f.ExternalIDs, l.ExternalID) {
		return false
	}
	if f.FollowUpDueBy != nil {
		if l.NextFollowUp == nil || l.NextFollowUp.After(*f.FollowUpDueBy) {
			return false
		}
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(l.Name), q) &&
			!strings.Contains(strings.ToLower(l.Email), q) &&
			!strings.Contains(l.Phone, q) {
			return false
		}
	}
	return true
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func copyLead(l Lead) Lead {
	l.Questions = copyMap(l.Questions)
	l.PlatformData = copyMap(l.PlatformData)
	if l.NextFollowUp != nil {
		t := *l.NextFollowUp
		l.NextFollowUp = &t
	}
	if l.LastContactedAt != nil {
		t := *l.LastContactedAt
		l.LastContactedAt = &t
	}
	return l
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
