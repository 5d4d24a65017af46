package leads

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadpool-crm/internal/activity"
	"leadpool-crm/internal/realtime"
)

const (
	defaultUrgentLimit = 10
	maxUrgentLimit     = 30
)

// UpdateStatus sets a lead's status. There is no transition guard: any status
// may follow any other, including reopening converted or lost leads.
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, leadID string, status Status) (Lead, error) {
	if !status.Valid() {
		return Lead{}, validationErr("invalid status %q", status)
	}
	cur, err := s.authorize(ctx, actor, leadID)
	if err != nil {
		return Lead{}, err
	}

	l, err := s.store.Update(ctx, leadID, Fields{ColStatus: status}, Always)
	if err != nil {
		return Lead{}, err
	}
	s.record(ctx, actor.ID, leadID, activity.TypeStatusChange,
		fmt.Sprintf("Status changed from %s to %s", cur.Status, status))
	s.publish(ctx, realtime.OpUpdate, l, cur.AssignedTo)
	return l, nil
}

// ScheduleFollowUp sets the next follow-up. Past timestamps are accepted; the
// lead then shows up as overdue immediately.
func (s *Service) ScheduleFollowUp(ctx context.Context, actor Actor, leadID string, when time.Time, notes string) (Lead, error) {
	if when.IsZero() {
		return Lead{}, validationErr("follow-up time is required")
	}
	cur, err := s.authorize(ctx, actor, leadID)
	if err != nil {
		return Lead{}, err
	}
	notes = strings.TrimSpace(notes)

	l, err := s.store.Update(ctx, leadID, Fields{
		ColNextFollowUp:  when.UTC(),
		ColFollowUpNotes: notes,
	}, Always)
	if err != nil {
		return Lead{}, err
	}
	s.record(ctx, actor.ID, leadID, activity.TypeNote, "Scheduled follow-up: "+notes)
	s.publish(ctx, realtime.OpUpdate, l, cur.AssignedTo)
	return l, nil
}

// UrgentFollowUps lists the agent's leads whose follow-up is due, oldest first.
// limit is clamped to [1, 30]; zero means 10.
func (s *Service) UrgentFollowUps(ctx context.Context, agentID string, limit int) ([]Lead, error) {
	if agentID == "" {
		return nil, validationErr("agent id is required")
	}
	switch {
	case limit <= 0:
		limit = defaultUrgentLimit
	case limit > maxUrgentLimit:
		limit = maxUrgentLimit
	}
	now := s.clock().UTC()
	return s.store.List(ctx, Filter{
		AssignedTo:    agentID,
		FollowUpDueBy: &now,
		Order:         OrderFollowUpAsc,
		Limit:         limit,
	})
}

// authorize loads the lead and checks the actor may work it: admins always,
// team members only on leads assigned to them.
func (s *Service) authorize(ctx context.Context, actor Actor, leadID string) (Lead, error) {
	if actor.ID == "" {
		return Lead{}, validationErr("actor is required")
	}
	cur, err := s.store.Get(ctx, leadID)
	if err != nil {
		return Lead{}, err
	}
	if !actor.Admin && cur.AssignedTo != actor.ID {
		return Lead{}, ErrNotOwner
	}
	return cur, nil
}

// ContactStamper writes last_contacted_at and last_activity_type for the
// activity log.
type ContactStamper struct {
	store Store
}

func NewContactStamper(store Store) ContactStamper { return ContactStamper{store: store} }

func (c ContactStamper) StampContact(ctx context.Context, leadID, activityType string, at time.Time) error {
	_, err := c.store.Update(ctx, leadID, Fields{
		ColLastContactedAt:  at.UTC(),
		ColLastActivityType: activityType,
	}, Always)
	return err
}
