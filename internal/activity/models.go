package activity

import "time"

// Activity is an immutable, append-only record of something an agent did.
//
// Invariants:
// - Activities are never updated or deleted.
// - LeadID is optional (account-level actions carry none).
// - Statistics such as "calls made today" are computed from this log at read
//   time; nothing keeps running counters.
//
// Storage (Postgres): table activities, INSERT-only, indexed on
// (user_id, type, created_at) and (lead_id, created_at).
type Activity struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`
	LeadID string `json:"lead_id,omitempty" db:"lead_id"`

	Type    Type   `json:"type" db:"type"`
	Details string `json:"details,omitempty" db:"details"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Type string

const (
	TypeCall         Type = "call"
	TypeWhatsApp     Type = "whatsapp"
	TypeNote         Type = "note"
	TypeStatusChange Type = "status_change"
	TypeCreation     Type = "creation"
)

func (t Type) Valid() bool {
	switch t {
	case TypeCall, TypeWhatsApp, TypeNote, TypeStatusChange, TypeCreation:
		return true
	default:
		return false
	}
}

// IsContact reports whether the activity reached the lead and should stamp
// last_contacted_at on it.
func (t Type) IsContact() bool {
	return t == TypeCall || t == TypeWhatsApp
}

// Filter narrows List and Count. Zero values mean "no constraint";
// From is inclusive and To exclusive.
type Filter struct {
	UserID string
	LeadID string
	Types  []Type
	From   time.Time
	To     time.Time
	Limit  int
}

func (f Filter) match(a Activity) bool {
	if f.UserID != "" && a.UserID != f.UserID {
		return false
	}
	if f.LeadID != "" && a.LeadID != f.LeadID {
		return false
	}
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if a.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !f.From.IsZero() && a.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !a.CreatedAt.Before(f.To) {
		return false
	}
	return true
}
