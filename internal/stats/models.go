package stats

import "time"

// TimeRange is half-open: From inclusive, To exclusive.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) valid() bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

// Day returns the local calendar day containing t.
func Day(t time.Time) TimeRange {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return TimeRange{From: start, To: start.AddDate(0, 0, 1)}
}

// TeamDashboard is what an agent sees on their home screen.
type TeamDashboard struct {
	MyLeads     int `json:"myLeads"`
	TodaysTasks int `json:"todaysTasks"`
	CallsMade   int `json:"callsMade"`
	Converted   int `json:"converted"`
}

type AdminDashboard struct {
	TotalLeads     int            `json:"totalLeads"`
	PoolLeads      int            `json:"poolLeads"`
	ByStatus       map[string]int `json:"byStatus"`
	CallsToday     int            `json:"callsToday"`
	ConvertedTotal int            `json:"convertedTotal"`
	ActiveAgents   int            `json:"activeAgents"`
}

// ActivitySummaryRequest counts contact activity in a range, optionally for
// one user.
type ActivitySummaryRequest struct {
	UserID string    `json:"user_id,omitempty"`
	Range  TimeRange `json:"range"`
}

type ActivitySummary struct {
	UserID        string    `json:"user_id,omitempty"`
	Range         TimeRange `json:"range"`
	Calls         int       `json:"calls"`
	WhatsApp      int       `json:"whatsapp"`
	StatusChanges int       `json:"status_changes"`
	Notes         int       `json:"notes"`
	Created       int       `json:"created"`
}
