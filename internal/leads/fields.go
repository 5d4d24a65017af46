package leads

import (
	"fmt"
	"time"
)

var allColumns = map[string]bool{
	ColID: true, ColExternalID: true, ColName: true, ColEmail: true, ColPhone: true,
	ColCity: true, ColStatus: true, ColAssignedTo: true, ColNextFollowUp: true,
	ColFollowUpNotes: true, ColSource: true, ColInterest: true, ColNotes: true,
	ColQuestions: true, ColAdCampaign: true, ColPlatformData: true, ColCreatedAt: true,
	ColUpdatedAt: true, ColLastContactedAt: true, ColLastActivityType: true,
}

func knownColumn(col string) bool { return allColumns[col] }

// applyFields copies f onto l. Unknown columns must be rejected before this is called.
func applyFields(l *Lead, f Fields) error {
	for col, v := range f {
		var err error
		switch col {
		case ColID:
			l.ID, err = asString(col, v)
		case ColExternalID:
			l.ExternalID, err = asString(col, v)
		case ColName:
			l.Name, err = asString(col, v)
		case ColEmail:
			l.Email, err = asString(col, v)
		case ColPhone:
			l.Phone, err = asString(col, v)
		case ColCity:
			l.City, err = asString(col, v)
		case ColStatus:
			var s string
			s, err = asString(col, v)
			l.Status = Status(s)
		case ColAssignedTo:
			l.AssignedTo, err = asString(col, v)
		case ColNextFollowUp:
			l.NextFollowUp, err = asTimePtr(col, v)
		case ColFollowUpNotes:
			l.FollowUpNotes, err = asString(col, v)
		case ColSource:
			l.Source, err = asString(col, v)
		case ColInterest:
			l.Interest, err = asString(col, v)
		case ColNotes:
			l.Notes, err = asString(col, v)
		case ColQuestions:
			l.Questions, err = asMap(col, v)
		case ColAdCampaign:
			l.AdCampaign, err = asString(col, v)
		case ColPlatformData:
			l.PlatformData, err = asMap(col, v)
		case ColCreatedAt:
			var t *time.Time
			t, err = asTimePtr(col, v)
			if t != nil {
				l.CreatedAt = *t
			}
		case ColUpdatedAt:
			var t *time.Time
			t, err = asTimePtr(col, v)
			if t != nil {
				l.UpdatedAt = *t
			}
		case ColLastContactedAt:
			l.LastContactedAt, err = asTimePtr(col, v)
		case ColLastActivityType:
			l.LastActivityType, err = asString(col, v)
		default:
			err = &SchemaError{Column: col}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func asString(col string, v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case Status:
		return string(t), nil
	default:
		return "", fmt.Errorf("leads: column %s: unsupported value %T", col, v)
	}
}

func asTimePtr(col string, v any) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if t.IsZero() {
			return nil, nil
		}
		u := t.UTC()
		return &u, nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		u := t.UTC()
		return &u, nil
	default:
		return nil, fmt.Errorf("leads: column %s: unsupported value %T", col, v)
	}
}

func asMap(col string, v any) (map[string]any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return copyMap(t), nil
	default:
		return nil, fmt.Errorf("leads: column %s: unsupported value %T", col, v)
	}
}
