package activity

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStamper struct {
	calls []string
	err   error
}

func (f *fakeStamper) StampContact(ctx context.Context, leadID, activityType string, at time.Time) error {
	f.calls = append(f.calls, leadID+":"+activityType)
	return f.err
}

func TestService_RecordRequiresUserAndType(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)

	if _, err := svc.Record(context.Background(), "", "l1", TypeCall, ""); !errors.Is(err, ErrInvalidActivity) {
		t.Fatalf("expected ErrInvalidActivity, got %v", err)
	}
	if _, err := svc.Record(context.Background(), "u1", "l1", Type("email"), ""); !errors.Is(err, ErrInvalidActivity) {
		t.Fatalf("expected ErrInvalidActivity, got %v", err)
	}
}

func TestService_RecordAppends(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)
	now := time.Unix(1700000000, 0).UTC()
	svc.clock = func() time.Time { return now }

	a, err := svc.Record(context.Background(), "u1", "l1", TypeNote, "left voicemail")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if a.ID == "" || !a.CreatedAt.Equal(now) {
		t.Fatalf("expected id and timestamp, got %+v", a)
	}
	all := repo.All()
	if len(all) != 1 || all[0].Details != "left voicemail" {
		t.Fatalf("unexpected activities %+v", all)
	}
}

func TestService_ContactTypesStampLead(t *testing.T) {
	st := &fakeStamper{}
	svc := NewService(NewMemoryRepo(), st)

	for _, typ := range []Type{TypeCall, TypeWhatsApp, TypeNote, TypeStatusChange} {
		if _, err := svc.Record(context.Background(), "u1", "l1", typ, ""); err != nil {
			t.Fatalf("record %s: %v", typ, err)
		}
	}
	if len(st.calls) != 2 || st.calls[0] != "l1:call" || st.calls[1] != "l1:whatsapp" {
		t.Fatalf("unexpected stamps %v", st.calls)
	}
}

func TestService_StampFailureIsSwallowed(t *testing.T) {
	repo := NewMemoryRepo()
	st := &fakeStamper{err: errors.New("db down")}
	svc := NewService(repo, st)

	if _, err := svc.Record(context.Background(), "u1", "l1", TypeCall, "dialled"); err != nil {
		t.Fatalf("stamp failure must not surface, got %v", err)
	}
	if len(repo.All()) != 1 {
		t.Fatalf("activity must be durable before stamping")
	}
}

func TestService_AppendFailureSkipsStamp(t *testing.T) {
	repo := NewMemoryRepo()
	repo.FailAppend = errors.New("db down")
	st := &fakeStamper{}
	svc := NewService(repo, st)

	if _, err := svc.Record(context.Background(), "u1", "l1", TypeCall, ""); err == nil {
		t.Fatalf("expected append error")
	}
	if len(st.calls) != 0 {
		t.Fatalf("stamp must not run when append fails")
	}
}

func TestMemoryRepo_CountWindow(t *testing.T) {
	repo := NewMemoryRepo()
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	_ = repo.Append(context.Background(), Activity{ID: "1", UserID: "u1", Type: TypeCall, CreatedAt: day.Add(-time.Minute)})
	_ = repo.Append(context.Background(), Activity{ID: "2", UserID: "u1", Type: TypeCall, CreatedAt: day.Add(time.Hour)})
	_ = repo.Append(context.Background(), Activity{ID: "3", UserID: "u1", Type: TypeNote, CreatedAt: day.Add(time.Hour)})
	_ = repo.Append(context.Background(), Activity{ID: "4", UserID: "u2", Type: TypeCall, CreatedAt: day.Add(time.Hour)})

	n, _ := repo.Count(context.Background(), Filter{UserID: "u1", Types: []Type{TypeCall}, From: day, To: day.Add(24 * time.Hour)})
	if n != 1 {
		t.Fatalf("expected 1 call today, got %d", n)
	}
}
