package jobs

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"leadpool-crm/internal/importer"
)

type fakeSyncer struct {
	enabled bool
	calls   atomic.Int32
	err     error
}

func (f *fakeSyncer) SyncEnabled() bool { return f.enabled }

func (f *fakeSyncer) Sync(ctx context.Context, typ importer.SyncType) (importer.Run, error) {
	f.calls.Add(1)
	if typ != importer.SyncAuto {
		panic("scheduler must trigger auto syncs")
	}
	return importer.Run{ID: "r1", Status: importer.RunSuccess}, f.err
}

func TestNewScheduler_RejectsBadSchedule(t *testing.T) {
	if _, err := NewScheduler(&fakeSyncer{}, "every tuesday", time.Minute, nil); err == nil {
		t.Fatalf("expected schedule parse error")
	}
	for _, sched := range []string{"@hourly", "*/15 * * * *", "@every 5m"} {
		if _, err := NewScheduler(&fakeSyncer{}, sched, time.Minute, nil); err != nil {
			t.Fatalf("schedule %q: unexpected err %v", sched, err)
		}
	}
}

func TestScheduler_RunOnceTriggersAutoSync(t *testing.T) {
	f := &fakeSyncer{enabled: true}
	s, err := NewScheduler(f, "@hourly", time.Minute, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.runOnce()
	if f.calls.Load() != 1 {
		t.Fatalf("expected 1 sync, got %d", f.calls.Load())
	}
}

func TestScheduler_InProgressIsNotAnError(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f := &fakeSyncer{enabled: true, err: importer.ErrSyncInProgress}
	s, err := NewScheduler(f, "@hourly", time.Minute, log)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.runOnce()
	if strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Fatalf("expected no error log, got %s", buf.String())
	}
	if !strings.Contains(buf.String(), "another sync is running") {
		t.Fatalf("expected skip log, got %s", buf.String())
	}
}

func TestScheduler_DisabledDoesNotSchedule(t *testing.T) {
	f := &fakeSyncer{enabled: false}
	s, err := NewScheduler(f, "@every 1s", time.Minute, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if n := len(s.cron.Entries()); n != 0 {
		t.Fatalf("expected no entries, got %d", n)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
