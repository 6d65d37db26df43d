package store

import (
	"context"
	"testing"
	"time"

	"github.com/arenahall/lobbyd/internal/domain"
)

func TestAuditRepo_RecordAndList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &AuditRepo{}
	now := time.Now().Unix()

	records := []domain.AuditRecord{
		{ID: "aud-1", SessionID: "s-1", Category: "refusal", Actor: "alice", Action: "login", DecisionJSON: `{"allow":false}`, CreatedAt: now},
		{ID: "aud-2", SessionID: "s-1", Category: "operator", Actor: "ops", Action: "ready", CreatedAt: now + 1},
		{ID: "aud-3", SessionID: "s-2", Category: "refusal", Actor: "bob", Action: "ability:leap", CreatedAt: now + 2},
	}
	for _, r := range records {
		if _, err := repo.Record(ctx, db, r); err != nil {
			t.Fatalf("Record %s: %v", r.ID, err)
		}
	}

	got, err := repo.ListBySession(ctx, db, "s-1", "")
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].ID != "aud-1" || got[1].ID != "aud-2" {
		t.Errorf("order = %s, %s", got[0].ID, got[1].ID)
	}
	if got[1].RequestJSON != "{}" || got[1].DecisionJSON != "{}" {
		t.Errorf("blank bodies stored as %q / %q", got[1].RequestJSON, got[1].DecisionJSON)
	}
}

func TestAuditRepo_DerivesSeverityAndID(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &AuditRepo{}

	tests := []struct {
		category string
		want     string
	}{
		{"refusal", SeverityWarn},
		{"operator", SeverityInfo},
		{"other", SeverityInfo},
	}
	for _, tt := range tests {
		rec, err := repo.Record(ctx, db, domain.AuditRecord{SessionID: "s-1", Category: tt.category, Action: "x"})
		if err != nil {
			t.Fatalf("Record %s: %v", tt.category, err)
		}
		if rec.Severity != tt.want {
			t.Errorf("%s severity = %q, want %q", tt.category, rec.Severity, tt.want)
		}
		if rec.ID == "" {
			t.Errorf("%s record has no id", tt.category)
		}
	}

	explicit, err := repo.Record(ctx, db, domain.AuditRecord{SessionID: "s-1", Category: "refusal", Action: "x", Severity: "error"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if explicit.Severity != "error" {
		t.Errorf("explicit severity overwritten: %q", explicit.Severity)
	}

	warnings, err := repo.ListBySession(ctx, db, "s-1", SeverityWarn)
	if err != nil {
		t.Fatalf("ListBySession warn: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Category != "refusal" {
		t.Errorf("warnings = %+v", warnings)
	}
}

func TestAuditRepo_DuplicateID(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &AuditRepo{}

	rec := domain.AuditRecord{
		ID: "aud-dup", SessionID: "s-1", Category: "operator",
		Action: "reset", CreatedAt: time.Now().Unix(),
	}
	if _, err := repo.Record(ctx, db, rec); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	if _, err := repo.Record(ctx, db, rec); err == nil {
		t.Error("expected error on duplicate ID, got nil")
	}
}

func TestAuditRepo_ListBySession_Empty(t *testing.T) {
	db := openTestDB(t)
	got, err := (&AuditRepo{}).ListBySession(context.Background(), db, "nonexistent", "")
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for empty result, got %v", got)
	}
}
