package leads

import (
	"context"
	"errors"

	"leadpool-crm/internal/activity"
	"leadpool-crm/internal/realtime"
	"leadpool-crm/pkg/logger"
)

// AcceptLead claims a pool lead for agentID and marks it contacted.
//
// The claim is a single conditional update (assigned_to IS NULL); of any number
// of concurrent callers exactly one wins and the rest get ErrAlreadyAssigned.
// Pool membership depends only on assigned_to, so converted or lost leads
// released back to the pool can be accepted again.
func (s *Service) AcceptLead(ctx context.Context, agentID, leadID string) (Lead, error) {
	if agentID == "" {
		return Lead{}, validationErr("agent id is required")
	}
	if leadID == "" {
		return Lead{}, ErrNotFound
	}
	f := Fields{ColStatus: StatusContacted}
	f.SetAssignedTo(agentID)

	l, err := s.store.Update(ctx, leadID, f, IfUnassigned)
	if err != nil {
		if errors.Is(err, ErrAlreadyAssigned) {
			logger.From(ctx).Info("lead accept lost race", "lead_id", leadID, "agent_id", agentID)
		}
		return Lead{}, err
	}
	s.record(ctx, agentID, leadID, activity.TypeStatusChange, "Lead accepted and assigned")
	s.publish(ctx, realtime.OpUpdate, l, "")
	return l, nil
}

// ReleaseLead returns a lead to the pool. It is idempotent: releasing a pool
// lead is a no-op. Team members may only release their own leads.
func (s *Service) ReleaseLead(ctx context.Context, actor Actor, leadID string) (Lead, error) {
	cur, err := s.store.Get(ctx, leadID)
	if err != nil {
		return Lead{}, err
	}
	if cur.InPool() {
		return cur, nil
	}
	if !actor.Admin && cur.AssignedTo != actor.ID {
		return Lead{}, ErrNotOwner
	}

	l, err := s.store.Update(ctx, leadID, Fields{}.SetAssignedTo(""), Always)
	if err != nil {
		return Lead{}, err
	}
	s.publish(ctx, realtime.OpUpdate, l, cur.AssignedTo)
	return l, nil
}

type UnassignResult struct {
	Released int `json:"released"`
	PoolSize int `json:"pool_size"`
}

// UnassignAll returns every assigned lead to the pool in chunks so no single
// statement touches the whole table.
func (s *Service) UnassignAll(ctx context.Context, actor Actor) (UnassignResult, error) {
	var res UnassignResult
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		batch, err := s.store.List(ctx, Filter{AssignedOnly: true, Limit: s.chunk})
		if err != nil {
			return res, err
		}
		if len(batch) == 0 {
			break
		}
		ids := make([]string, len(batch))
		for i, l := range batch {
			ids[i] = l.ID
		}
		n, err := s.store.UpdateMany(ctx, ids, Fields{}.SetAssignedTo(""))
		if err != nil {
			return res, err
		}
		res.Released += n
		if n == 0 {
			break
		}
	}

	pool, err := s.store.Count(ctx, Filter{Unassigned: true})
	if err != nil {
		return res, err
	}
	res.PoolSize = pool

	logger.From(ctx).Info("all leads unassigned", "actor_id", actor.ID, "released", res.Released, "pool_size", res.PoolSize)
	if res.Released > 0 {
		s.publish(ctx, realtime.OpUpdate, Lead{ID: "*"}, "")
	}
	return res, nil
}
