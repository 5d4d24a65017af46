// Package stats computes dashboard numbers at read time from the lead store,
// the activity log and the user directory. Nothing here keeps counters.
package stats

import (
	"context"
	"errors"
	"time"

	"leadpool-crm/internal/activity"
	"leadpool-crm/internal/leads"
	"leadpool-crm/internal/rbac"
)

var ErrInvalidRequest = errors.New("stats: invalid request")

type LeadCounter interface {
	Count(ctx context.Context, f leads.Filter) (int, error)
}

type ActivityCounter interface {
	Count(ctx context.Context, f activity.Filter) (int, error)
}

type UserCounter interface {
	CountActive(ctx context.Context, role string) (int, error)
}

type Service struct {
	leads      LeadCounter
	activities ActivityCounter
	users      UserCounter
	clock      func() time.Time
}

func NewService(l LeadCounter, a ActivityCounter, u UserCounter) *Service {
	return &Service{leads: l, activities: a, users: u, clock: time.Now}
}

// Team builds the agent dashboard. Today's tasks are follow-ups due before
// the end of the current day, overdue ones included.
func (s *Service) Team(ctx context.Context, agentID string) (TeamDashboard, error) {
	if agentID == "" {
		return TeamDashboard{}, ErrInvalidRequest
	}
	today := Day(s.clock())
	endOfDay := today.To.Add(-time.Nanosecond)

	var (
		out TeamDashboard
		err error
	)
	if out.MyLeads, err = s.leads.Count(ctx, leads.Filter{AssignedTo: agentID}); err != nil {
		return TeamDashboard{}, err
	}
	if out.TodaysTasks, err = s.leads.Count(ctx, leads.Filter{AssignedTo: agentID, FollowUpDueBy: &endOfDay}); err != nil {
		return TeamDashboard{}, err
	}
	if out.Converted, err = s.leads.Count(ctx, leads.Filter{AssignedTo: agentID, Statuses: []leads.Status{leads.StatusConverted}}); err != nil {
		return TeamDashboard{}, err
	}
	if out.CallsMade, err = s.activities.Count(ctx, activity.Filter{
		UserID: agentID,
		Types:  []activity.Type{activity.TypeCall},
		From:   today.From,
		To:     today.To,
	}); err != nil {
		return TeamDashboard{}, err
	}
	return out, nil
}

func (s *Service) Admin(ctx context.Context) (AdminDashboard, error) {
	today := Day(s.clock())
	out := AdminDashboard{ByStatus: make(map[string]int, len(leads.Statuses))}

	var err error
	if out.TotalLeads, err = s.leads.Count(ctx, leads.Filter{}); err != nil {
		return AdminDashboard{}, err
	}
	if out.PoolLeads, err = s.leads.Count(ctx, leads.Filter{Unassigned: true}); err != nil {
		return AdminDashboard{}, err
	}
	for _, st := range leads.Statuses {
		n, err := s.leads.Count(ctx, leads.Filter{Statuses: []leads.Status{st}})
		if err != nil {
			return AdminDashboard{}, err
		}
		out.ByStatus[string(st)] = n
	}
	out.ConvertedTotal = out.ByStatus[string(leads.StatusConverted)]

	if out.CallsToday, err = s.activities.Count(ctx, activity.Filter{
		Types: []activity.Type{activity.TypeCall},
		From:  today.From,
		To:    today.To,
	}); err != nil {
		return AdminDashboard{}, err
	}
	if s.users != nil {
		if out.ActiveAgents, err = s.users.CountActive(ctx, rbac.RoleTeam); err != nil {
			return AdminDashboard{}, err
		}
	}
	return out, nil
}

// Activity breaks down the activity log for a range.
func (s *Service) Activity(ctx context.Context, req ActivitySummaryRequest) (ActivitySummary, error) {
	if !req.Range.valid() {
		return ActivitySummary{}, ErrInvalidRequest
	}
	out := ActivitySummary{UserID: req.UserID, Range: req.Range}
	counts := []struct {
		typ activity.Type
		dst *int
	}{
		{activity.TypeCall, &out.Calls},
		{activity.TypeWhatsApp, &out.WhatsApp},
		{activity.TypeStatusChange, &out.StatusChanges},
		{activity.TypeNote, &out.Notes},
		{activity.TypeCreation, &out.Created},
	}
	for _, c := range counts {
		n, err := s.activities.Count(ctx, activity.Filter{
			UserID: req.UserID,
			Types:  []activity.Type{c.typ},
			From:   req.Range.From,
			To:     req.Range.To,
		})
		if err != nil {
			return ActivitySummary{}, err
		}
		*c.dst = n
	}
	return out, nil
}
