package leads

import (
	"sort"
	"time"
)

// Status is the pipeline position of a lead. Any status may follow any other;
// converted and lost are terminal in intent only.
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusQualified Status = "qualified"
	StatusConverted Status = "converted"
	StatusLost      Status = "lost"
)

// Statuses lists every status in pipeline order.
var Statuses = []Status{StatusNew, StatusContacted, StatusQualified, StatusConverted, StatusLost}

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusQualified, StatusConverted, StatusLost:
		return true
	default:
		return false
	}
}

// Lead is a prospective customer record.
//
// Invariants:
// - AssignedTo == "" means the lead sits in the shared pool.
// - At most one agent holds AssignedTo at a time; only Store.Update with
//   IfUnassigned may move a lead out of the pool.
// - Phone (or ExternalID for spreadsheet rows) is the import natural key;
//   the store itself enforces no uniqueness.
type Lead struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id,omitempty"`

	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone"`
	City  string `json:"city,omitempty"`

	Status     Status `json:"status"`
	AssignedTo string `json:"assigned_to,omitempty"`

	NextFollowUp  *time.Time `json:"next_follow_up,omitempty"`
	FollowUpNotes string     `json:"follow_up_notes,omitempty"`

	Source       string         `json:"source,omitempty"`
	Interest     string         `json:"interest,omitempty"`
	Notes        string         `json:"notes,omitempty"`
	Questions    map[string]any `json:"questions,omitempty"`
	AdCampaign   string         `json:"ad_campaign,omitempty"`
	PlatformData map[string]any `json:"platform_data,omitempty"`

	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastContactedAt  *time.Time `json:"last_contacted_at,omitempty"`
	LastActivityType string     `json:"last_activity_type,omitempty"`
}

func (l Lead) InPool() bool { return l.AssignedTo == "" }

// Column names of the leads table.
const (
	ColID               = "id"
	ColExternalID       = "external_id"
	ColName             = "name"
	ColEmail            = "email"
	ColPhone            = "phone"
	ColCity             = "city"
	ColStatus           = "status"
	ColAssignedTo       = "assigned_to"
	ColNextFollowUp     = "next_follow_up"
	ColFollowUpNotes    = "follow_up_notes"
	ColSource           = "source"
	ColInterest         = "interest"
	ColNotes            = "notes"
	ColQuestions        = "questions"
	ColAdCampaign       = "ad_campaign"
	ColPlatformData     = "platform_data"
	ColCreatedAt        = "created_at"
	ColUpdatedAt        = "updated_at"
	ColLastContactedAt  = "last_contacted_at"
	ColLastActivityType = "last_activity_type"
)

// BaseColumns survive every schema generation; writes degrade to these when
// richer columns are missing.
var BaseColumns = []string{ColName, ColEmail, ColPhone, ColStatus, ColSource, ColAssignedTo}

// IdentityColumns ride along with the base fallback whenever a write carries
// them. external_id is the spreadsheet natural key; losing it would make the
// next sync insert the row again.
var IdentityColumns = []string{ColID, ColExternalID, ColCreatedAt}

// Fields is a partial lead keyed by column name. Values are string, Status,
// time.Time, *time.Time, map[string]any or nil (SQL NULL).
type Fields map[string]any

func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func (f Fields) Has(col string) bool {
	_, ok := f[col]
	return ok
}

// Without returns a copy lacking the given columns.
func (f Fields) Without(cols ...string) Fields {
	out := f.Clone()
	for _, c := range cols {
		delete(out, c)
	}
	return out
}

// Base returns a copy restricted to BaseColumns and IdentityColumns with
// empty values dropped.
func (f Fields) Base() Fields {
	out := Fields{}
	for _, c := range append(BaseColumns[:len(BaseColumns):len(BaseColumns)], IdentityColumns...) {
		v, ok := f[c]
		if !ok || isEmptyValue(v) {
			continue
		}
		out[c] = v
	}
	return out
}

// Keys returns the column names in a stable order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetAssignedTo stores agentID, or NULL when agentID is empty.
func (f Fields) SetAssignedTo(agentID string) Fields {
	if agentID == "" {
		f[ColAssignedTo] = nil
	} else {
		f[ColAssignedTo] = agentID
	}
	return f
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case Status:
		return t == ""
	case map[string]any:
		return len(t) == 0
	case *time.Time:
		return t == nil
	case time.Time:
		return t.IsZero()
	default:
		return false
	}
}

// Precondition guards an Update.
type Precondition int

const (
	// Always applies the update unconditionally (last write wins).
	Always Precondition = iota
	// IfUnassigned applies the update only while assigned_to IS NULL.
	IfUnassigned
)

// Order selects the sort used by List.
type Order int

const (
	OrderNewest Order = iota
	OrderFollowUpAsc
)

// Filter narrows List and Count. Zero values mean "no constraint".
type Filter struct {
	IDs          []string
	AssignedTo   string
	Unassigned   bool
	AssignedOnly bool
	Statuses     []Status
	Phones       []string
	ExternalIDs  []string
	// FollowUpDueBy keeps leads whose next_follow_up is set and <= the value.
	FollowUpDueBy *time.Time
	// Search matches name, phone or email case-insensitively.
	Search string
	Order  Order
	Limit  int
	Offset int
}
