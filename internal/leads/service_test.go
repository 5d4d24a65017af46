package leads

import (
	"context"
	"errors"
	"sync"
	"testing"

	"leadpool-crm/internal/activity"
	"leadpool-crm/internal/realtime"
	"leadpool-crm/pkg/phone"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (n *recordingNotifier) Publish(ctx context.Context, e realtime.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func TestCreate_RequiresNameAndPhone(t *testing.T) {
	svc, _, _ := newTestService(t)
	admin := Actor{ID: "admin", Admin: true}

	if _, err := svc.Create(context.Background(), admin, CreateInput{Phone: "9876543210"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing name, got %v", err)
	}
	if _, err := svc.Create(context.Background(), admin, CreateInput{Name: "Asha"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing phone, got %v", err)
	}
}

func TestCreate_DefaultsAndCreationActivity(t *testing.T) {
	store := NewMemoryStore()
	repo := activity.NewMemoryRepo()
	svc := NewService(store, activity.NewService(repo, nil), Options{Phones: phone.NewNormalizer("IN")})

	l, err := svc.Create(context.Background(), Actor{ID: "admin", Admin: true}, CreateInput{Name: "Asha", Phone: "98765 43210"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if l.Status != StatusNew || l.Source != "Website" || l.Phone != "+919876543210" || !l.InPool() {
		t.Fatalf("unexpected lead %+v", l)
	}
	acts := repo.All()
	if len(acts) != 1 || acts[0].Type != activity.TypeCreation || acts[0].LeadID != l.ID {
		t.Fatalf("expected creation activity, got %+v", acts)
	}
}

func TestQuickAdd_Placeholders(t *testing.T) {
	svc, _, _ := newTestService(t)

	l, err := svc.QuickAdd(context.Background(), Actor{ID: "admin", Admin: true}, QuickAddInput{Phone: "+91 98765 43210"})
	if err != nil {
		t.Fatalf("quick add: %v", err)
	}
	if l.Name != "Lead 3210" {
		t.Fatalf("unexpected name %q", l.Name)
	}
	if l.Email != "lead919876543210@temp.com" {
		t.Fatalf("unexpected email %q", l.Email)
	}
	if l.Source != "Quick Add" || l.Status != StatusNew || !l.InPool() {
		t.Fatalf("unexpected lead %+v", l)
	}

	if _, err := svc.QuickAdd(context.Background(), Actor{ID: "admin"}, QuickAddInput{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestUpdate_ReassignAndClear(t *testing.T) {
	svc, store, _ := newTestService(t)
	lead := seedLead(t, store, Fields{})
	admin := Actor{ID: "admin", Admin: true}

	agent := "A"
	got, err := svc.Update(context.Background(), admin, lead.ID, UpdateInput{AssignedTo: &agent})
	if err != nil || got.AssignedTo != "A" {
		t.Fatalf("assign: %v %+v", err, got)
	}
	empty := ""
	got, err = svc.Update(context.Background(), admin, lead.ID, UpdateInput{AssignedTo: &empty})
	if err != nil || !got.InPool() {
		t.Fatalf("clear: %v %+v", err, got)
	}
	if _, err := svc.Update(context.Background(), admin, lead.ID, UpdateInput{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty update, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	svc, store, _ := newTestService(t)
	lead := seedLead(t, store, Fields{})
	admin := Actor{ID: "admin", Admin: true}

	if err := svc.Delete(context.Background(), admin, lead.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(context.Background(), admin, lead.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestService_PublishesChanges(t *testing.T) {
	store := NewMemoryStore()
	n := &recordingNotifier{}
	svc := NewService(store, nil, Options{Notifier: n})
	lead := seedLead(t, store, Fields{})

	if _, err := svc.AcceptLead(context.Background(), "A", lead.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := svc.ReleaseLead(context.Background(), Actor{ID: "A"}, lead.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(n.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(n.events))
	}
	if n.events[0].AssignedTo != "A" || !n.events[0].PoolChanged {
		t.Fatalf("accept event should leave pool: %+v", n.events[0])
	}
	if n.events[1].PreviousAssignedTo != "A" || !n.events[1].PoolChanged {
		t.Fatalf("release event should enter pool: %+v", n.events[1])
	}
}

func TestPoolAndAssignedTo(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedLead(t, store, Fields{ColName: "pool"})
	seedLead(t, store, Fields{ColName: "mine", ColAssignedTo: "A"})
	seedLead(t, store, Fields{ColName: "theirs", ColAssignedTo: "B"})

	pool, err := svc.Pool(context.Background(), 0)
	if err != nil || len(pool) != 1 || pool[0].Name != "pool" {
		t.Fatalf("unexpected pool %v %+v", err, pool)
	}
	mine, err := svc.AssignedTo(context.Background(), "A")
	if err != nil || len(mine) != 1 || mine[0].Name != "mine" {
		t.Fatalf("unexpected my leads %v %+v", err, mine)
	}
}
