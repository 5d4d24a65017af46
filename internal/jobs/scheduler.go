// Package jobs runs the periodic spreadsheet sync.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"leadpool-crm/internal/importer"

	"github.com/robfig/cron/v3"
)

type Syncer interface {
	SyncEnabled() bool
	Sync(ctx context.Context, typ importer.SyncType) (importer.Run, error)
}

// Scheduler triggers an auto sync on a cron schedule. Overlapping ticks are
// skipped; the sync lock additionally guards against manual syncs and other
// instances.
type Scheduler struct {
	cron     *cron.Cron
	syncer   Syncer
	schedule string
	timeout  time.Duration
	log      *slog.Logger
}

// NewScheduler validates schedule (standard 5-field expression or @descriptor).
// timeout bounds each run, including lock wait and finalization.
func NewScheduler(syncer Syncer, schedule string, timeout time.Duration, log *slog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("jobs: invalid sync schedule %q: %w", schedule, err)
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "sync-scheduler")
	cl := cronLogger{log: log}
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		syncer:   syncer,
		schedule: schedule,
		timeout:  timeout,
		log:      log,
	}, nil
}

// Start registers the sync job and starts the scheduler. It is a no-op when
// spreadsheet sync is not configured.
func (s *Scheduler) Start() error {
	if s.syncer == nil || !s.syncer.SyncEnabled() {
		s.log.Info("spreadsheet sync disabled; scheduler not started")
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.runOnce); err != nil {
		return err
	}
	s.log.Info("sync scheduler started", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

// Stop halts new ticks and waits for a running sync until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("sync scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("sync scheduler stop timed out", "err", ctx.Err())
	}
}

func (s *Scheduler) runOnce() {
	// Sync applies its own timeout; this one also covers lock acquisition.
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout+30*time.Second)
		defer cancel()
	}
	run, err := s.syncer.Sync(ctx, importer.SyncAuto)
	switch {
	case errors.Is(err, importer.ErrSyncInProgress):
		s.log.Info("scheduled sync skipped; another sync is running")
	case err != nil:
		s.log.Error("scheduled sync failed", "err", err)
	default:
		s.log.Debug("scheduled sync finished", "run_id", run.ID, "status", run.Status)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
