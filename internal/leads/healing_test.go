package leads

import (
	"context"
	"errors"
	"testing"
)

func TestParseMissingColumn(t *testing.T) {
	cases := map[string]string{
		`column "interest" of relation "leads" does not exist`:             "interest",
		`ERROR: Column "platform_data" does not exist (SQLSTATE 42703)`:      "platform_data",
		`Could not find the 'questions' column of 'leads' in the schema cache`: "",
	}
	for msg, want := range cases {
		if got := ParseMissingColumn(msg); got != want {
			t.Fatalf("ParseMissingColumn(%q) = %q, want %q", msg, got, want)
		}
	}
}

func TestSelfHealingInsert_StripsUnknownColumn(t *testing.T) {
	inner := NewMemoryStore()
	store := NewSelfHealingStore(inner, nil)

	out, err := store.Insert(context.Background(), []Fields{{
		ColName:     "Asha",
		ColPhone:    "+919876543210",
		ColCity:     "Pune",
		"favourite": "blue",
	}})
	if err != nil {
		t.Fatalf("insert should heal, got %v", err)
	}
	if len(out) != 1 || out[0].Name != "Asha" || out[0].City != "Pune" {
		t.Fatalf("expected all known fields stored, got %+v", out)
	}
}

func TestSelfHealingInsert_StripsEachMissingColumn(t *testing.T) {
	inner := NewMemoryStore()
	inner.DropColumn(ColInterest)
	inner.DropColumn(ColCity)
	store := NewSelfHealingStore(inner, nil)

	out, err := store.Insert(context.Background(), []Fields{{
		ColName:     "Ravi",
		ColPhone:    "+919876543211",
		ColInterest: "shopify",
		ColCity:     "Delhi",
		ColSource:   "CSV Upload",
		ColNotes:    "called twice",
	}})
	if err != nil {
		t.Fatalf("insert should heal, got %v", err)
	}
	got := out[0]
	if got.Name != "Ravi" || got.Source != "CSV Upload" || got.Interest != "" || got.City != "" {
		t.Fatalf("expected missing columns stripped, got %+v", got)
	}
	if got.Notes != "called twice" {
		t.Fatalf("expected surviving optional column kept, got %+v", got)
	}
}

// unnamedSchemaStore rejects the first write of each kind with a schema error
// that does not name the column.
type unnamedSchemaStore struct {
	*MemoryStore
	insertFails, updateFails int
}

func (s *unnamedSchemaStore) Insert(ctx context.Context, rows []Fields) ([]Lead, error) {
	if s.insertFails > 0 {
		s.insertFails--
		return nil, &SchemaError{Cause: errors.New("schema cache is stale")}
	}
	return s.MemoryStore.Insert(ctx, rows)
}

func (s *unnamedSchemaStore) UpdateMany(ctx context.Context, ids []string, f Fields) (int, error) {
	if s.updateFails > 0 {
		s.updateFails--
		return 0, &SchemaError{Cause: errors.New("schema cache is stale")}
	}
	return s.MemoryStore.UpdateMany(ctx, ids, f)
}

func TestSelfHealingInsert_BaseFallbackKeepsIdentity(t *testing.T) {
	inner := &unnamedSchemaStore{MemoryStore: NewMemoryStore(), insertFails: 1}
	var stages []string
	store := NewSelfHealingStore(inner, nil).OnHeal(func(stage string) { stages = append(stages, stage) })

	out, err := store.Insert(context.Background(), []Fields{{
		ColID:         "lead-1",
		ColExternalID: "fb-101",
		ColName:       "Ravi",
		ColPhone:      "+919876543211",
		ColInterest:   "shopify",
	}})
	if err != nil {
		t.Fatalf("insert should heal, got %v", err)
	}
	got := out[0]
	if got.ID != "lead-1" || got.ExternalID != "fb-101" || got.Interest != "" {
		t.Fatalf("expected base columns plus identity, got %+v", got)
	}
	if len(stages) != 1 || stages[0] != "base" {
		t.Fatalf("unexpected heal stages %v", stages)
	}
}

func TestSelfHealingUpdateMany_StripsThenFallsBack(t *testing.T) {
	mem := NewMemoryStore()
	mem.DropColumn(ColInterest)
	mem.DropColumn(ColCity)
	store := NewSelfHealingStore(mem, nil)
	lead := seedLead(t, mem, Fields{ColAssignedTo: "A"})

	f := Fields{ColInterest: "ads", ColCity: "Goa"}
	f.SetAssignedTo("")
	n, err := store.UpdateMany(context.Background(), []string{lead.ID}, f)
	if err != nil || n != 1 {
		t.Fatalf("expected healed update of 1 row, got %d %v", n, err)
	}
	if got, _ := mem.Get(context.Background(), lead.ID); got.AssignedTo != "" {
		t.Fatalf("expected lead unassigned, got %+v", got)
	}

	unnamed := &unnamedSchemaStore{MemoryStore: NewMemoryStore(), updateFails: 1}
	other := seedLead(t, unnamed.MemoryStore, Fields{ColAssignedTo: "B"})
	g := Fields{ColNotes: "bulk"}
	g.SetAssignedTo("")
	if n, err := NewSelfHealingStore(unnamed, nil).UpdateMany(context.Background(), []string{other.ID}, g); err != nil || n != 1 {
		t.Fatalf("expected base fallback to clear assignee, got %d %v", n, err)
	}
	got, _ := unnamed.Get(context.Background(), other.ID)
	if got.AssignedTo != "" || got.Notes != "" {
		t.Fatalf("expected only assigned_to written, got %+v", got)
	}
}

func TestSelfHealingUpdate_KeepsPrecondition(t *testing.T) {
	inner := NewMemoryStore()
	inner.DropColumn(ColLastActivityType)
	store := NewSelfHealingStore(inner, nil)
	lead := seedLead(t, inner, Fields{ColAssignedTo: "A"})

	f := Fields{ColStatus: StatusContacted, ColLastActivityType: "call"}
	f.SetAssignedTo("B")
	if _, err := store.Update(context.Background(), lead.ID, f, IfUnassigned); !errors.Is(err, ErrAlreadyAssigned) {
		t.Fatalf("expected ErrAlreadyAssigned after healing, got %v", err)
	}

	got, err := store.Update(context.Background(), lead.ID, Fields{ColStatus: StatusQualified, ColLastActivityType: "call"}, Always)
	if err != nil {
		t.Fatalf("update should heal, got %v", err)
	}
	if got.Status != StatusQualified {
		t.Fatalf("expected status written, got %s", got.Status)
	}
}

func TestSelfHealingUpdate_OnlyUnknownColumnFails(t *testing.T) {
	inner := NewMemoryStore()
	inner.DropColumn(ColLastContactedAt)
	store := NewSelfHealingStore(inner, nil)
	lead := seedLead(t, inner, Fields{})

	_, err := store.Update(context.Background(), lead.ID, Fields{ColLastContactedAt: nil}, Always)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch when nothing is left to write, got %v", err)
	}
}

func TestSelfHealing_PassesOtherErrors(t *testing.T) {
	store := NewSelfHealingStore(NewMemoryStore(), nil)
	if _, err := store.Update(context.Background(), "missing", Fields{ColStatus: StatusLost}, Always); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSelfHealing_ReportsStages(t *testing.T) {
	inner := NewMemoryStore()
	inner.DropColumn(ColInterest)
	inner.DropColumn(ColCity)
	var stages []string
	store := NewSelfHealingStore(inner, nil).OnHeal(func(stage string) { stages = append(stages, stage) })

	_, err := store.Insert(context.Background(), []Fields{{
		ColName:     "Meera",
		ColPhone:    "+919876543219",
		ColInterest: "ads",
		ColCity:     "Goa",
	}})
	if err != nil {
		t.Fatalf("insert should heal, got %v", err)
	}
	if len(stages) != 2 || stages[0] != "strip" || stages[1] != "strip" {
		t.Fatalf("unexpected heal stages %v", stages)
	}
}
