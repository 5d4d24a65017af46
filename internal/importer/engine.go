package importer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"leadpool-crm/internal/leads"
	"leadpool-crm/pkg/logger"
	"leadpool-crm/pkg/phone"
	"leadpool-crm/pkg/utils"
)

const (
	previewSample      = 10
	lookupChunk        = 500
	syncLockKey        = "sync:sheets"
	defaultSyncTimeout = 2 * time.Minute
)

// ErrSyncInProgress is returned when another sync holds the lock.
var ErrSyncInProgress = errors.New("importer: a sync is already running")

// Locker grants the single-flight lock around spreadsheet sync.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Observer receives one call per finished import or sync.
type Observer interface {
	ObserveSync(syncType, status string, d time.Duration, imported, updated, skipped, errs int)
}

type Options struct {
	Source   Source
	Locker   Locker
	Observer Observer
	Phones   phone.Normalizer
	Timeout  time.Duration
}

// Engine merges external batches into the lead store without creating
// duplicates. CSV uploads skip matches by phone; spreadsheet sync updates
// matches by external id and leaves a Run behind.
type Engine struct {
	leads    leads.Store
	runs     RunRepository
	source   Source
	locker   Locker
	observer Observer
	phones   phone.Normalizer
	timeout  time.Duration
	clock    func() time.Time
}

func NewEngine(store leads.Store, runs RunRepository, opts Options) *Engine {
	phones := opts.Phones
	if phones == (phone.Normalizer{}) {
		phones = phone.NewNormalizer("")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultSyncTimeout
	}
	return &Engine{
		leads:    store,
		runs:     runs,
		source:   opts.Source,
		locker:   opts.Locker,
		observer: opts.Observer,
		phones:   phones,
		timeout:  timeout,
		clock:    time.Now,
	}
}

// SyncEnabled reports whether a spreadsheet source is configured.
func (e *Engine) SyncEnabled() bool { return e.source != nil }

// Preview is the dry-run result of a CSV upload.
type Preview struct {
	Total          int       `json:"total"`
	New            int       `json:"new"`
	Duplicates     int       `json:"duplicates"`
	Dropped        int       `json:"dropped"`
	NewLeads       []CSVLead `json:"newLeads"`
	DuplicateLeads []CSVLead `json:"duplicateLeads"`
}

type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Dropped  int `json:"dropped"`
}

type csvPlan struct {
	fresh   []CSVLead
	dupes   []CSVLead
	dropped int
}

// planCSV runs fetch, key selection and classification without writing.
func (e *Engine) planCSV(ctx context.Context, t Table) (csvPlan, error) {
	headers := t.Headers(normalizeCSVHeader)
	var missing []string
	for _, req := range []string{"name", "phone"} {
		if !contains(headers, req) {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return csvPlan{}, fmt.Errorf("%w: %v", ErrMissingColumns, missing)
	}

	rows, dropped := csvLeads(t.Records(normalizeCSVHeader), e.phones)
	if len(rows) == 0 {
		return csvPlan{}, ErrNoValidRows
	}

	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, r.key)
	}
	existing, err := e.existingPhones(ctx, keys)
	if err != nil {
		return csvPlan{}, err
	}

	plan := csvPlan{dropped: dropped}
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		if existing[r.key] || seen[r.key] {
			plan.dupes = append(plan.dupes, r)
			continue
		}
		seen[r.key] = true
		plan.fresh = append(plan.fresh, r)
	}
	return plan, nil
}

// existingPhones batch-loads leads by phone and returns the normalized keys
// already present.
func (e *Engine) existingPhones(ctx context.Context, keys []string) (map[string]bool, error) {
	out := make(map[string]bool, len(keys))
	for start := 0; start < len(keys); start += lookupChunk {
		end := min(start+lookupChunk, len(keys))
		batch := keys[start:end]
		lookup := make([]string, 0, len(batch)*2)
		for _, k := range batch {
			lookup = append(lookup, e.phones.Candidates(k)...)
		}
		found, err := e.leads.List(ctx, leads.Filter{Phones: lookup})
		if err != nil {
			return nil, err
		}
		for _, l := range found {
			if n, err := e.phones.Normalize(l.Phone); err == nil {
				out[n] = true
			}
		}
	}
	return out, nil
}

func (e *Engine) PreviewCSV(ctx context.Context, t Table) (Preview, error) {
	plan, err := e.planCSV(ctx, t)
	if err != nil {
		return Preview{}, err
	}
	return Preview{
		Total:          len(plan.fresh) + len(plan.dupes),
		New:            len(plan.fresh),
		Duplicates:     len(plan.dupes),
		Dropped:        plan.dropped,
		NewLeads:       head(plan.fresh, previewSample),
		DuplicateLeads: head(plan.dupes, previewSample),
	}, nil
}

// ImportCSV inserts the new rows in one batch and never touches duplicates.
func (e *Engine) ImportCSV(ctx context.Context, t Table) (ImportResult, error) {
	start := e.clock()
	plan, err := e.planCSV(ctx, t)
	if err != nil {
		return ImportResult{}, err
	}
	res := ImportResult{Skipped: len(plan.dupes), Dropped: plan.dropped}
	if len(plan.fresh) > 0 {
		rows := make([]leads.Fields, len(plan.fresh))
		for i, r := range plan.fresh {
			rows[i] = r.fields()
		}
		if _, err := e.leads.Insert(ctx, rows); err != nil {
			e.observe("csv", RunFailed, start, 0, 0, res.Skipped, len(rows))
			return ImportResult{}, fmt.Errorf("importer: insert leads: %w", err)
		}
		res.Imported = len(rows)
	}
	logger.From(ctx).Info("csv import finished", "imported", res.Imported, "skipped", res.Skipped, "dropped", res.Dropped)
	e.observe("csv", RunSuccess, start, res.Imported, 0, res.Skipped, 0)
	return res, nil
}

// Sync reconciles the spreadsheet into the lead store under a Run record.
// Whatever happens after the run row exists (fetch error, timeout, panic)
// the row is finalized before Sync returns.
func (e *Engine) Sync(ctx context.Context, typ SyncType) (Run, error) {
	if e.source == nil {
		return Run{}, ErrSyncDisabled
	}
	if !typ.Valid() {
		typ = SyncManual
	}
	ctx = logger.Component(ctx, "sync")
	log := logger.From(ctx)

	if e.locker != nil {
		release, err := e.locker.Acquire(ctx, syncLockKey, e.timeout+30*time.Second)
		switch {
		case errors.Is(err, utils.ErrLockHeld):
			return Run{}, ErrSyncInProgress
		case err != nil:
			log.Warn("sync lock unavailable; proceeding without lock", "err", err)
		default:
			defer release()
		}
	}

	started := e.clock()
	run, err := e.runs.Start(ctx, typ, started)
	if err != nil {
		return Run{}, fmt.Errorf("importer: start sync run: %w", err)
	}
	log = log.With("run_id", run.ID, "sync_type", typ)

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	counts, err := e.reconcileSafely(runCtx)
	if err == nil && runCtx.Err() != nil {
		err = runCtx.Err()
	}

	o := Outcome{
		Imported:    counts.imported,
		Updated:     counts.updated,
		Skipped:     counts.skipped,
		Errors:      counts.errors,
		CompletedAt: e.clock(),
	}
	if err != nil {
		o.Status = RunFailed
		o.ErrorMessage = failureMessage(err, e.timeout)
	} else {
		o.Status = classify(counts.imported, counts.updated, counts.errors)
	}

	// The caller's context may already be gone; the row must still close.
	final, ferr := e.runs.Finish(context.WithoutCancel(ctx), run.ID, o)
	if ferr != nil {
		log.Error("sync run finalize failed", "err", ferr)
		return Run{}, fmt.Errorf("importer: finish sync run: %w", ferr)
	}
	e.observe(string(typ), o.Status, started, o.Imported, o.Updated, o.Skipped, o.Errors)

	attrs := []any{"status", o.Status, "imported", o.Imported, "updated", o.Updated, "skipped", o.Skipped, "errors", o.Errors}
	switch o.Status {
	case RunSuccess:
		log.Info("sync finished", attrs...)
	case RunPartial:
		log.Warn("sync finished", attrs...)
	default:
		log.Error("sync finished", append(attrs, "err", o.ErrorMessage)...)
	}
	return final, nil
}

type syncCounts struct {
	imported, updated, skipped, errors int
}

func (e *Engine) reconcileSafely(ctx context.Context) (c syncCounts, err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.From(ctx).Error("sync panicked", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("sync panicked: %v", p)
		}
	}()
	return e.reconcile(ctx, &c)
}

// reconcile writes progress into c as it goes so a later failure still
// reports what was committed.
func (e *Engine) reconcile(ctx context.Context, c *syncCounts) (syncCounts, error) {
	table, err := e.source.Fetch(ctx)
	if err != nil {
		return *c, err
	}
	if len(table) < 2 {
		return *c, nil
	}

	order := []string{}
	byID := map[string]sheetLead{}
	for _, rec := range table.Records(NormalizeHeader) {
		sl, ok := mapSheetRecord(rec, e.phones)
		if !ok {
			c.skipped++
			continue
		}
		if _, dup := byID[sl.externalID]; dup {
			c.skipped++
		} else {
			order = append(order, sl.externalID)
		}
		byID[sl.externalID] = sl
	}
	if len(order) == 0 {
		return *c, nil
	}

	existing := make(map[string]string, len(order))
	for start := 0; start < len(order); start += lookupChunk {
		end := min(start+lookupChunk, len(order))
		found, err := e.leads.List(ctx, leads.Filter{ExternalIDs: order[start:end]})
		if err != nil {
			return *c, fmt.Errorf("lookup existing leads: %w", err)
		}
		for _, l := range found {
			existing[l.ExternalID] = l.ID
		}
	}

	var fresh []leads.Fields
	log := logger.From(ctx)
	for _, ext := range order {
		sl := byID[ext]
		id, ok := existing[ext]
		if !ok {
			fresh = append(fresh, sl.insert)
			continue
		}
		if ctx.Err() != nil {
			return *c, ctx.Err()
		}
		f := sl.update.Clone()
		f[leads.ColUpdatedAt] = e.clock().UTC()
		if _, err := e.leads.Update(ctx, id, f, leads.Always); err != nil {
			log.Warn("sync row update failed", "external_id", ext, "err", err)
			c.errors++
			continue
		}
		c.updated++
	}

	if len(fresh) > 0 {
		if _, err := e.leads.Insert(ctx, fresh); err != nil {
			log.Warn("sync batch insert failed", "rows", len(fresh), "err", err)
			c.errors += len(fresh)
		} else {
			c.imported += len(fresh)
		}
	}
	return *c, nil
}

func (e *Engine) observe(typ string, status RunStatus, start time.Time, imported, updated, skipped, errs int) {
	if e.observer == nil {
		return
	}
	e.observer.ObserveSync(typ, string(status), e.clock().Sub(start), imported, updated, skipped, errs)
}

func failureMessage(err error, timeout time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("sync timed out after %s", timeout)
	}
	return err.Error()
}

// ListRuns returns runs started in [from, to], newest first.
func (e *Engine) ListRuns(ctx context.Context, from, to time.Time) ([]Run, error) {
	return e.runs.List(ctx, from, to)
}

// TodayStats aggregates runs started since local midnight.
func (e *Engine) TodayStats(ctx context.Context) (TodayStats, error) {
	now := e.clock()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	runs, err := e.runs.List(ctx, midnight, time.Time{})
	if err != nil {
		return TodayStats{}, err
	}
	return summarize(runs), nil
}

func (e *Engine) LastSyncTime(ctx context.Context) (*time.Time, error) {
	return e.runs.LastCompleted(ctx)
}

func head(in []CSVLead, n int) []CSVLead {
	if len(in) > n {
		in = in[:n]
	}
	out := make([]CSVLead, len(in))
	copy(out, in)
	return out
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
