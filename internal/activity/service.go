package activity

import (
	"context"
	"errors"
	"time"

	"leadpool-crm/pkg/logger"

	"github.com/google/uuid"
)

// Repository is the persistence contract for activities.
// It is append-only: no Update/Delete.
type Repository interface {
	Append(ctx context.Context, a Activity) error
	List(ctx context.Context, f Filter) ([]Activity, error)
	Count(ctx context.Context, f Filter) (int, error)
}

// ContactStamper denormalizes the latest contact onto the lead row.
type ContactStamper interface {
	StampContact(ctx context.Context, leadID, activityType string, at time.Time) error
}

type Service struct {
	repo    Repository
	stamper ContactStamper
	clock   func() time.Time
}

// NewService builds the log. stamper may be nil.
func NewService(repo Repository, stamper ContactStamper) *Service {
	return &Service{repo: repo, stamper: stamper, clock: time.Now}
}

var ErrInvalidActivity = errors.New("activity: invalid activity")

// Record appends an activity. For call and whatsapp activities tied to a lead
// it then stamps the lead; a failed stamp is logged and never returned, since
// the activity itself is already durable.
func (s *Service) Record(ctx context.Context, userID, leadID string, typ Type, details string) (Activity, error) {
	if s.repo == nil {
		return Activity{}, errors.New("activity: repository not configured")
	}
	if userID == "" || !typ.Valid() {
		return Activity{}, ErrInvalidActivity
	}

	a := Activity{
		ID:        uuid.NewString(),
		UserID:    userID,
		LeadID:    leadID,
		Type:      typ,
		Details:   details,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.repo.Append(ctx, a); err != nil {
		return Activity{}, err
	}

	if typ.IsContact() && leadID != "" && s.stamper != nil {
		if err := s.stamper.StampContact(ctx, leadID, string(typ), a.CreatedAt); err != nil {
			logger.From(ctx).Warn("lead contact stamp failed", "lead_id", leadID, "activity_id", a.ID, "type", typ, "err", err)
		}
	}
	return a, nil
}

// ForLead returns a lead's history, newest first.
func (s *Service) ForLead(ctx context.Context, leadID string, limit int) ([]Activity, error) {
	if leadID == "" {
		return nil, ErrInvalidActivity
	}
	return s.repo.List(ctx, Filter{LeadID: leadID, Limit: limit})
}

// Count exposes read-time aggregation to the stats layer.
func (s *Service) Count(ctx context.Context, f Filter) (int, error) {
	return s.repo.Count(ctx, f)
}
