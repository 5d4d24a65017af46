package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadpool-crm/internal/activity"
	"leadpool-crm/internal/leads"
	"leadpool-crm/internal/users"
)

type fixture struct {
	store *leads.MemoryStore
	acts  *activity.MemoryRepo
	users *users.MemoryRepo
	svc   *Service
}

func newFixture(t *testing.T, now time.Time) fixture {
	t.Helper()
	f := fixture{store: leads.NewMemoryStore(), acts: activity.NewMemoryRepo(), users: users.NewMemoryRepo()}
	f.svc = NewService(f.store, f.acts, f.users)
	f.svc.clock = func() time.Time { return now }
	return f
}

func (f fixture) lead(t *testing.T, assignee string, st leads.Status, due *time.Time) {
	t.Helper()
	row := leads.Fields{leads.ColName: "L", leads.ColPhone: "+919800000000", leads.ColStatus: st}
	row.SetAssignedTo(assignee)
	if due != nil {
		row[leads.ColNextFollowUp] = *due
	}
	if _, err := f.store.Insert(context.Background(), []leads.Fields{row}); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func (f fixture) act(t *testing.T, user string, typ activity.Type, at time.Time) {
	t.Helper()
	if err := f.acts.Append(context.Background(), activity.Activity{ID: at.String() + user + string(typ), UserID: user, Type: typ, CreatedAt: at}); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestTeam_CountsOnlyCallersData(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	f := newFixture(t, now)

	overdue := now.Add(-48 * time.Hour)
	laterToday := now.Add(5 * time.Hour)
	tomorrow := now.Add(24 * time.Hour)
	f.lead(t, "a1", leads.StatusContacted, &overdue)
	f.lead(t, "a1", leads.StatusContacted, &laterToday)
	f.lead(t, "a1", leads.StatusQualified, &tomorrow)
	f.lead(t, "a1", leads.StatusConverted, nil)
	f.lead(t, "a2", leads.StatusConverted, &overdue)
	f.lead(t, "", leads.StatusNew, nil)

	f.act(t, "a1", activity.TypeCall, now.Add(-time.Hour))
	f.act(t, "a1", activity.TypeCall, now.Add(-2*time.Hour))
	f.act(t, "a1", activity.TypeWhatsApp, now.Add(-time.Hour))
	f.act(t, "a1", activity.TypeCall, now.Add(-24*time.Hour))
	f.act(t, "a2", activity.TypeCall, now.Add(-time.Hour))

	out, err := f.svc.Team(context.Background(), "a1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := TeamDashboard{MyLeads: 4, TodaysTasks: 2, CallsMade: 2, Converted: 1}
	if out != want {
		t.Fatalf("expected %+v, got %+v", want, out)
	}
}

func TestTeam_RequiresAgent(t *testing.T) {
	f := newFixture(t, time.Now())
	if _, err := f.svc.Team(context.Background(), ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestAdmin_Aggregates(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	ctx := context.Background()

	f.lead(t, "", leads.StatusNew, nil)
	f.lead(t, "", leads.StatusLost, nil)
	f.lead(t, "a1", leads.StatusConverted, nil)
	f.lead(t, "a2", leads.StatusConverted, nil)
	f.lead(t, "a2", leads.StatusContacted, nil)

	f.act(t, "a1", activity.TypeCall, now.Add(-time.Hour))
	f.act(t, "a2", activity.TypeCall, now.Add(-3*time.Hour))
	f.act(t, "a2", activity.TypeCall, now.Add(-20*time.Hour))

	if _, err := f.users.Upsert(ctx, users.User{Email: "a1@x.io", Role: "team", Status: users.StatusActive}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := f.users.Upsert(ctx, users.User{Email: "a2@x.io", Role: "team", Status: users.StatusInactive}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := f.users.Upsert(ctx, users.User{Email: "boss@x.io", Role: "admin", Status: users.StatusActive}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	out, err := f.svc.Admin(ctx)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalLeads != 5 || out.PoolLeads != 2 || out.ConvertedTotal != 2 {
		t.Fatalf("unexpected totals %+v", out)
	}
	if out.ByStatus["new"] != 1 || out.ByStatus["lost"] != 1 || out.ByStatus["qualified"] != 0 {
		t.Fatalf("unexpected by-status %+v", out.ByStatus)
	}
	if out.CallsToday != 2 {
		t.Fatalf("expected 2 calls today, got %d", out.CallsToday)
	}
	if out.ActiveAgents != 1 {
		t.Fatalf("expected 1 active agent, got %d", out.ActiveAgents)
	}
}

func TestActivity_RangeValidationAndCounts(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	ctx := context.Background()

	if _, err := f.svc.Activity(ctx, ActivitySummaryRequest{Range: TimeRange{From: now, To: now}}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for empty range, got %v", err)
	}

	f.act(t, "a1", activity.TypeCall, now.Add(-time.Hour))
	f.act(t, "a1", activity.TypeWhatsApp, now.Add(-time.Hour))
	f.act(t, "a1", activity.TypeNote, now.Add(-time.Hour))
	f.act(t, "a2", activity.TypeCall, now.Add(-time.Hour))

	out, err := f.svc.Activity(ctx, ActivitySummaryRequest{UserID: "a1", Range: Day(now)})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Calls != 1 || out.WhatsApp != 1 || out.Notes != 1 || out.StatusChanges != 0 {
		t.Fatalf("unexpected summary %+v", out)
	}
}
