package settings

import (
	"context"
	"errors"
	"testing"
)

func TestWhatsAppTemplate_DefaultsUntilSet(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()

	got, err := svc.WhatsAppTemplate(ctx)
	if err != nil || got != DefaultWhatsAppTemplate {
		t.Fatalf("expected default template, got %q %v", got, err)
	}
	if _, err := svc.SetWhatsAppTemplate(ctx, "  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.SetWhatsAppTemplate(ctx, "Hi {name}"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := svc.WhatsAppTemplate(ctx); got != "Hi {name}" {
		t.Fatalf("expected stored template, got %q", got)
	}
}

func TestPut_ValidatesKeyAndUpserts(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()

	if _, err := svc.Put(ctx, "Bad Key", "x"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Put(ctx, KeyMessageTemplates, `["a"]`); err != nil {
		t.Fatalf("put: %v", err)
	}
	second, err := svc.Put(ctx, KeyMessageTemplates, `["a","b"]`)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if second.UpdatedAt.IsZero() {
		t.Fatalf("expected updated_at")
	}
	all, _ := svc.List(ctx)
	if len(all) != 1 || all[0].Value != `["a","b"]` {
		t.Fatalf("unexpected settings %+v", all)
	}
	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
