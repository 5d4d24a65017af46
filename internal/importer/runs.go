package importer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

type SyncType string

const (
	SyncManual SyncType = "manual"
	SyncAuto   SyncType = "auto"
)

func (t SyncType) Valid() bool { return t == SyncManual || t == SyncAuto }

var ErrRunNotFound = errors.New("importer: sync run not found")

// Run is the audit row for one sync attempt. It is created running and
// finalized exactly once.
type Run struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"sync_started_at"`
	CompletedAt  *time.Time `json:"sync_completed_at,omitempty"`
	Imported     int        `json:"imported_count"`
	Updated      int        `json:"updated_count"`
	Skipped      int        `json:"skipped_count"`
	Errors       int        `json:"error_count"`
	Total        int        `json:"total_processed"`
	Status       RunStatus  `json:"status"`
	Type         SyncType   `json:"sync_type"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// Outcome is what Finish writes onto a running row.
type Outcome struct {
	Imported     int
	Updated      int
	Skipped      int
	Errors       int
	Status       RunStatus
	ErrorMessage string
	CompletedAt  time.Time
}

func (o Outcome) total() int { return o.Imported + o.Updated + o.Errors }

// classify picks the terminal status from row counts: any error with no
// success is failed, some errors is partial, none is success.
func classify(imported, updated, errs int) RunStatus {
	switch {
	case errs == 0:
		return RunSuccess
	case imported+updated == 0:
		return RunFailed
	default:
		return RunPartial
	}
}

type RunRepository interface {
	Start(ctx context.Context, typ SyncType, at time.Time) (Run, error)
	// Finish only touches a row that is still running; a second call for the
	// same id returns ErrRunNotFound.
	Finish(ctx context.Context, id string, o Outcome) (Run, error)
	// List returns runs started in [from, to] newest first. Zero bounds are open.
	List(ctx context.Context, from, to time.Time) ([]Run, error)
	// LastCompleted returns the most recent completion time, or nil.
	LastCompleted(ctx context.Context) (*time.Time, error)
}

type MemoryRunRepo struct {
	mu   sync.Mutex
	runs map[string]Run
}

func NewMemoryRunRepo() *MemoryRunRepo {
	return &MemoryRunRepo{runs: map[string]Run{}}
}

func (r *MemoryRunRepo) Start(ctx context.Context, typ SyncType, at time.Time) (Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run := Run{ID: uuid.NewString(), StartedAt: at.UTC(), Status: RunRunning, Type: typ}
	r.runs[run.ID] = run
	return run, nil
}

func (r *MemoryRunRepo) Finish(ctx context.Context, id string, o Outcome) (Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok || run.Status != RunRunning {
		return Run{}, ErrRunNotFound
	}
	done := o.CompletedAt.UTC()
	run.CompletedAt = &done
	run.Imported, run.Updated, run.Skipped, run.Errors = o.Imported, o.Updated, o.Skipped, o.Errors
	run.Total = o.total()
	run.Status = o.Status
	run.ErrorMessage = o.ErrorMessage
	r.runs[id] = run
	return run, nil
}

func (r *MemoryRunRepo) List(ctx context.Context, from, to time.Time) ([]Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Run
	for _, run := range r.runs {
		if !from.IsZero() && run.StartedAt.Before(from) {
			continue
		}
		if !to.IsZero() && run.StartedAt.After(to) {
			continue
		}
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (r *MemoryRunRepo) LastCompleted(ctx context.Context) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *time.Time
	for _, run := range r.runs {
		if run.CompletedAt != nil && (last == nil || run.CompletedAt.After(*last)) {
			t := *run.CompletedAt
			last = &t
		}
	}
	return last, nil
}

// TodayStats summarizes runs started since local midnight.
type TodayStats struct {
	TotalSyncs    int     `json:"totalSyncs"`
	TotalImported int     `json:"totalImported"`
	TotalUpdated  int     `json:"totalUpdated"`
	SuccessRate   float64 `json:"successRate"`
}

func summarize(runs []Run) TodayStats {
	var s TodayStats
	ok := 0
	for _, r := range runs {
		s.TotalSyncs++
		s.TotalImported += r.Imported
		s.TotalUpdated += r.Updated
		if r.Status == RunSuccess {
			ok++
		}
	}
	if s.TotalSyncs > 0 {
		s.SuccessRate = float64(ok) / float64(s.TotalSyncs) * 100
	}
	return s
}
