package qualification

import (
	"math"
	"testing"
)

func TestAssessTimeline(t *testing.T) {
	tests := []struct {
		text string
		want float64
	}{
		{"need this ASAP", 1.0},
		{"", 0.5},
		{"maybe next year", 0.3},
		{"within the week", 1.0},
		{"Urgent!", 1.0},
		{"sometime soon", 0.8},
		{"next month", 0.8},
		{"end of quarter", 0.6},
		{"later", 0.3},
		{"no idea", 0.5},
		// Earlier tiers win over later ones.
		{"this week or next year", 1.0},
	}
	for _, tt := range tests {
		if got := AssessTimeline(tt.text); got != tt.want {
			t.Errorf("AssessTimeline(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestAssessBudget(t *testing.T) {
	tests := []struct {
		text string
		want float64
	}{
		{"Unlimited", 1.0},
		{"a significant amount", 1.0},
		{"decent", 0.8},
		{"reasonable budget", 0.8},
		{"pretty tight", 0.3},
		{"small", 0.3},
		{"", 0.5},
		{"unknown", 0.5},
	}
	for _, tt := range tests {
		if got := AssessBudget(tt.text); got != tt.want {
			t.Errorf("AssessBudget(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestNormalizeFitAndIntent(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"fit missing", NormalizeFit(nil), 0.5},
		{"fit scaled", NormalizeFit(f(80)), 0.8},
		{"fit above range", NormalizeFit(f(140)), 1},
		{"fit below range", NormalizeFit(f(-5)), 0},
		{"fit NaN", NormalizeFit(f(math.NaN())), 0.5},
		{"intent missing", NormalizeIntent(nil), 0.5},
		{"intent NaN", NormalizeIntent(f(math.NaN())), 0.5},
		{"intent clamped", NormalizeIntent(f(3)), 1},
		{"intent kept", NormalizeIntent(f(0.4)), 0.4},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestFirmographicBuckets(t *testing.T) {
	sizes := map[int]float64{101: 20, 100: 15, 51: 15, 50: 10, 11: 10, 10: 0, -4: 0}
	for size, want := range sizes {
		if got := CompanySizePoints(size); got != want {
			t.Errorf("CompanySizePoints(%d) = %v, want %v", size, got, want)
		}
	}

	budgets := map[float64]float64{50001: 25, 50000: 20, 10001: 20, 10000: 10, 1001: 10, 1000: 0}
	for amount, want := range budgets {
		if got := BudgetPoints(amount); got != want {
			t.Errorf("BudgetPoints(%v) = %v, want %v", amount, got, want)
		}
	}

	if got := EngagementPoints(0.5); got != 15 {
		t.Errorf("EngagementPoints(0.5) = %v", got)
	}
	if got := EngagementPoints(4); got != 30 {
		t.Errorf("EngagementPoints(4) = %v", got)
	}
	if got := EngagementPoints(-1); got != 0 {
		t.Errorf("EngagementPoints(-1) = %v", got)
	}
	if got := EngagementPoints(math.NaN()); got != 0 {
		t.Errorf("EngagementPoints(NaN) = %v", got)
	}

	if IndustryPoints("  Technology ") != 15 || IndustryPoints("mining") != 0 {
		t.Error("industry bucket mismatch")
	}
	if ContactPoints(true, true) != 10 || ContactPoints(false, true) != 5 || ContactPoints(false, false) != 0 {
		t.Error("contact bucket mismatch")
	}
}
