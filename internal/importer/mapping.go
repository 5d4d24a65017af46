package importer

import (
	"strings"
	"time"

	"leadpool-crm/internal/leads"
	"leadpool-crm/pkg/phone"
)

const (
	csvSource   = "CSV Upload"
	sheetSource = "Google Sheets Import"
	unknownName = "Unknown"
)

// CSVLead is an upload row after header normalization.
type CSVLead struct {
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone"`
	Source   string `json:"source,omitempty"`
	City     string `json:"city,omitempty"`
	Interest string `json:"interest,omitempty"`
	Notes    string `json:"notes,omitempty"`

	key string
}

func (c CSVLead) fields() leads.Fields {
	f := leads.Fields{
		leads.ColName:     c.Name,
		leads.ColEmail:    c.Email,
		leads.ColPhone:    c.Phone,
		leads.ColStatus:   leads.StatusNew,
		leads.ColSource:   c.Source,
		leads.ColCity:     c.City,
		leads.ColInterest: c.Interest,
		leads.ColNotes:    c.Notes,
	}
	f.SetAssignedTo("")
	return f
}

// csvLeads converts records, dropping rows without a name or phone. Dropped
// rows are not part of the batch at all.
func csvLeads(recs []Record, phones phone.Normalizer) (out []CSVLead, dropped int) {
	for _, r := range recs {
		name, rawPhone := r["name"], r["phone"]
		if name == "" || rawPhone == "" {
			dropped++
			continue
		}
		ph, err := phones.Normalize(rawPhone)
		if err != nil {
			dropped++
			continue
		}
		src := r["source"]
		if src == "" {
			src = csvSource
		}
		out = append(out, CSVLead{
			Name:     name,
			Email:    r["email"],
			Phone:    ph,
			Source:   src,
			City:     r["city"],
			Interest: r["interest"],
			Notes:    r["notes"],
			key:      ph,
		})
	}
	return out, dropped
}

// sheetLead is a spreadsheet row mapped onto lead columns.
type sheetLead struct {
	externalID string
	insert     leads.Fields
	update     leads.Fields
}

// mapSheetRecord applies the lead-ads sheet layout. Rows without an id, or
// with neither name nor phone, are rejected.
func mapSheetRecord(r Record, phones phone.Normalizer) (sheetLead, bool) {
	id := r["id"]
	if id == "" || (r["full_name"] == "" && r["phone"] == "") {
		return sheetLead{}, false
	}

	name := r["full_name"]
	if name == "" {
		name = unknownName
	}
	ph := r["phone"]
	if n, err := phones.Normalize(ph); err == nil {
		ph = n
	}

	status := leads.Status(strings.ToLower(r["lead_status"]))
	if !status.Valid() {
		status = leads.StatusNew
	}

	var campaign []string
	for _, k := range []string{"campaign_name", "ad_name"} {
		if v := r[k]; v != "" {
			campaign = append(campaign, v)
		}
	}

	questions := pick(r, "product_interest", "dropshipping_experience")
	platform := pick(r, "ad_id", "adset_id", "campaign_id", "form_id", "inbox_url", "is_organic")

	source := r["platform"]
	if source == "" {
		source = sheetSource
	}

	update := leads.Fields{
		leads.ColName:         name,
		leads.ColEmail:        r["email"],
		leads.ColPhone:        ph,
		leads.ColStatus:       status,
		leads.ColInterest:     r["product_interest"],
		leads.ColQuestions:    nilIfEmpty(questions),
		leads.ColAdCampaign:   strings.Join(campaign, " - "),
		leads.ColPlatformData: nilIfEmpty(platform),
	}

	insert := update.Clone()
	insert[leads.ColExternalID] = id
	insert[leads.ColSource] = source
	insert.SetAssignedTo("")
	if t, ok := parseSheetTime(r["created_time"]); ok {
		insert[leads.ColCreatedAt] = t
	}
	return sheetLead{externalID: id, insert: insert, update: update}, true
}

func pick(r Record, keys ...string) map[string]any {
	out := map[string]any{}
	for _, k := range keys {
		if v := r[k]; v != "" {
			out[k] = v
		}
	}
	return out
}

func nilIfEmpty(m map[string]any) any {
	if len(m) == 0 {
		return nil
	}
	return m
}

var sheetTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

func parseSheetTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range sheetTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
