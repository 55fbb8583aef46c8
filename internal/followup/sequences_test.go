package followup

import (
	"errors"
	"testing"
	"time"

	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
)

func TestParseStepOffset(t *testing.T) {
	tests := []struct {
		key  string
		want time.Duration
	}{
		{"hour_1", time.Hour},
		{"hour_24", 24 * time.Hour},
		{"day_3", 72 * time.Hour},
		{"day_14", 14 * 24 * time.Hour},
		{"week_1", 24 * time.Hour},
		{"day_x", 24 * time.Hour},
		{"day_-2", 24 * time.Hour},
		{"soon", 24 * time.Hour},
	}
	for _, tt := range tests {
		if got := parseStepOffset(tt.key); got != tt.want {
			t.Errorf("parseStepOffset(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestLookupUnknownSequence(t *testing.T) {
	_, err := Lookup("drip")
	if !apperr.Is(err, apperr.KindConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
	var unknown *UnknownSequenceError
	if !errors.As(err, &unknown) || unknown.Name != "drip" {
		t.Fatalf("err = %v, want UnknownSequenceError", err)
	}
}

func TestPlanReminder(t *testing.T) {
	def, err := Lookup("reminder")
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	leadID := uuid.New()

	planned := Plan(def, leadID, "email", base)
	if len(planned) != 2 {
		t.Fatalf("planned %d events, want 2", len(planned))
	}
	if !planned[0].ScheduledAt.Equal(base.Add(time.Hour)) || !planned[1].ScheduledAt.Equal(base.Add(24*time.Hour)) {
		t.Fatalf("schedule = %v, %v", planned[0].ScheduledAt, planned[1].ScheduledAt)
	}
	for _, e := range planned {
		if e.Status != StatusPending || e.LeadID != leadID || e.SequenceType != "reminder" || e.Channel != "email" {
			t.Fatalf("event = %+v", e)
		}
	}
	if planned[0].Content != "Quick reminder about your inquiry" {
		t.Fatalf("content = %q", planned[0].Content)
	}
}

func TestDefinitionsAreCopies(t *testing.T) {
	defs := Definitions()
	if len(defs) != 3 || defs[0].Name != "nurture" || defs[2].Name != "reminder" {
		t.Fatalf("definitions = %+v", defs)
	}
	defs[0].Steps[0].Template = "changed"

	again, _ := Lookup("nurture")
	if again.Steps[0].Template != "Thank you for your interest!" {
		t.Fatal("template mutated through returned copy")
	}
}
