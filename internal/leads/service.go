package leads

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadpool-crm/internal/activity"
	"leadpool-crm/internal/realtime"
	"leadpool-crm/pkg/logger"
	"leadpool-crm/pkg/phone"
)

const (
	defaultSource     = "Website"
	quickAddSource    = "Quick Add"
	unassignChunkSize = 200
)

// ActivityRecorder appends to the activity log.
type ActivityRecorder interface {
	Record(ctx context.Context, userID, leadID string, typ activity.Type, details string) (activity.Activity, error)
}

// Notifier receives a change event after every successful write.
type Notifier interface {
	Publish(ctx context.Context, e realtime.Event) error
}

// Actor is the authenticated caller of a mutation.
type Actor struct {
	ID    string
	Admin bool
}

type Options struct {
	Notifier Notifier
	Phones   phone.Normalizer
}

// Service implements lead CRUD, the pool protocol and the status machine on
// top of a Store. All concurrency control is delegated to the Store.
type Service struct {
	store    Store
	activity ActivityRecorder
	notifier Notifier
	phones   phone.Normalizer
	// chunk bounds the rows touched per UnassignAll statement.
	chunk int
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(store Store, rec ActivityRecorder, opts Options) *Service {
	phones := opts.Phones
	if phones == (phone.Normalizer{}) {
		phones = phone.NewNormalizer("")
	}
	return &Service{
		store:    store,
		activity: rec,
		notifier: opts.Notifier,
		phones:   phones,
		chunk:    unassignChunkSize,
		clock:    time.Now,
	}
}

type CreateInput struct {
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"omitempty,email"`
	Phone      string `json:"phone" validate:"required"`
	City       string `json:"city"`
	Source     string `json:"source"`
	Interest   string `json:"interest"`
	Notes      string `json:"notes"`
	Status     Status `json:"status"`
	AssignedTo string `json:"assigned_to"`
}

// Create validates and inserts a single lead, then logs a creation activity.
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (Lead, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Lead{}, validationErr("name is required")
	}
	ph, err := s.phones.Normalize(in.Phone)
	if err != nil {
		return Lead{}, validationErr("phone is required")
	}
	if in.Status == "" {
		in.Status = StatusNew
	}
	if !in.Status.Valid() {
		return Lead{}, validationErr("invalid status %q", in.Status)
	}
	if in.Source == "" {
		in.Source = defaultSource
	}

	row := Fields{
		ColName:     in.Name,
		ColEmail:    strings.TrimSpace(in.Email),
		ColPhone:    ph,
		ColCity:     in.City,
		ColStatus:   in.Status,
		ColSource:   in.Source,
		ColInterest: in.Interest,
		ColNotes:    in.Notes,
	}
	row.SetAssignedTo(in.AssignedTo)
	return s.insertOne(ctx, actor, row, "Lead created")
}

type QuickAddInput struct {
	Phone    string `json:"phone" validate:"required"`
	Name     string `json:"name"`
	Email    string `json:"email" validate:"omitempty,email"`
	Interest string `json:"interest"`
}

// QuickAdd creates a pool lead from little more than a phone number, filling
// placeholder name and email.
func (s *Service) QuickAdd(ctx context.Context, actor Actor, in QuickAddInput) (Lead, error) {
	ph, err := s.phones.Normalize(in.Phone)
	if err != nil {
		return Lead{}, validationErr("phone is required")
	}
	digits := phone.Digits(ph)
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = "Lead " + phone.LastDigits(ph, 4)
	}
	email := strings.TrimSpace(in.Email)
	if email == "" {
		email = fmt.Sprintf("lead%s@temp.com", digits)
	}
	row := Fields{
		ColName:     name,
		ColEmail:    email,
		ColPhone:    ph,
		ColStatus:   StatusNew,
		ColSource:   quickAddSource,
		ColInterest: in.Interest,
	}
	row.SetAssignedTo("")
	return s.insertOne(ctx, actor, row, "Lead created via quick add")
}

func (s *Service) insertOne(ctx context.Context, actor Actor, row Fields, details string) (Lead, error) {
	out, err := s.store.Insert(ctx, []Fields{row})
	if err != nil {
		return Lead{}, err
	}
	if len(out) != 1 {
		return Lead{}, fmt.Errorf("leads: insert returned %d rows", len(out))
	}
	l := out[0]
	s.record(ctx, actor.ID, l.ID, activity.TypeCreation, details)
	s.publish(ctx, realtime.OpInsert, l, "")
	return l, nil
}

func (s *Service) Get(ctx context.Context, id string) (Lead, error) {
	if id == "" {
		return Lead{}, ErrNotFound
	}
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]Lead, error) {
	return s.store.List(ctx, f)
}

// Pool lists unassigned leads, newest first.
func (s *Service) Pool(ctx context.Context, limit int) ([]Lead, error) {
	return s.store.List(ctx, Filter{Unassigned: true, Limit: limit})
}

// AssignedTo lists an agent's leads, newest first.
func (s *Service) AssignedTo(ctx context.Context, agentID string) ([]Lead, error) {
	if agentID == "" {
		return nil, validationErr("agent id is required")
	}
	return s.store.List(ctx, Filter{AssignedTo: agentID})
}

// UpdateInput carries an admin edit. Nil pointers leave the column untouched;
// AssignedTo set to "" returns the lead to the pool.
type UpdateInput struct {
	Name       *string `json:"name"`
	Email      *string `json:"email" validate:"omitempty,email"`
	Phone      *string `json:"phone"`
	City       *string `json:"city"`
	Source     *string `json:"source"`
	Interest   *string `json:"interest"`
	Notes      *string `json:"notes"`
	AssignedTo *string `json:"assigned_to"`
}

func (s *Service) Update(ctx context.Context, actor Actor, id string, in UpdateInput) (Lead, error) {
	f := Fields{}
	setStr := func(col string, v *string) {
		if v != nil {
			f[col] = strings.TrimSpace(*v)
		}
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return Lead{}, validationErr("name cannot be empty")
	}
	setStr(ColName, in.Name)
	setStr(ColEmail, in.Email)
	setStr(ColCity, in.City)
	setStr(ColSource, in.Source)
	setStr(ColInterest, in.Interest)
	setStr(ColNotes, in.Notes)
	if in.Phone != nil {
		ph, err := s.phones.Normalize(*in.Phone)
		if err != nil {
			return Lead{}, validationErr("phone cannot be empty")
		}
		f[ColPhone] = ph
	}
	if in.AssignedTo != nil {
		f.SetAssignedTo(strings.TrimSpace(*in.AssignedTo))
	}
	if len(f) == 0 {
		return Lead{}, validationErr("no fields to update")
	}

	before, err := s.store.Get(ctx, id)
	if err != nil {
		return Lead{}, err
	}
	l, err := s.store.Update(ctx, id, f, Always)
	if err != nil {
		return Lead{}, err
	}
	s.publish(ctx, realtime.OpUpdate, l, before.AssignedTo)
	return l, nil
}

// Delete removes a lead permanently.
func (s *Service) Delete(ctx context.Context, actor Actor, id string) error {
	before, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	logger.From(ctx).Info("lead deleted", "lead_id", id, "actor_id", actor.ID)
	s.publish(ctx, realtime.OpDelete, Lead{ID: id}, before.AssignedTo)
	return nil
}

// record appends an activity; failures are logged because the lead write it
// describes has already happened.
func (s *Service) record(ctx context.Context, userID, leadID string, typ activity.Type, details string) {
	if s.activity == nil || userID == "" {
		return
	}
	if _, err := s.activity.Record(ctx, userID, leadID, typ, details); err != nil {
		logger.From(ctx).Error("activity record failed", "lead_id", leadID, "type", typ, "err", err)
	}
}

func (s *Service) publish(ctx context.Context, op realtime.Op, l Lead, previousAssignee string) {
	if s.notifier == nil {
		return
	}
	e := realtime.Event{
		Table:              "leads",
		Op:                 op,
		ID:                 l.ID,
		AssignedTo:         l.AssignedTo,
		PreviousAssignedTo: previousAssignee,
		PoolChanged:        (op != realtime.OpDelete && l.AssignedTo == "") || previousAssignee == "",
		At:                 s.clock().UTC(),
	}
	if err := s.notifier.Publish(ctx, e); err != nil {
		logger.From(ctx).Warn("change publish failed", "lead_id", l.ID, "op", op, "err", err)
	}
}
