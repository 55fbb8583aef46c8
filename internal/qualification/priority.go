package qualification

import "strings"

// Priority is the work tier derived from a quality score.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority reads a priority label. Unknown labels are reported as not ok.
func ParsePriority(raw string) (Priority, bool) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(raw))); p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p, true
	}
	return "", false
}

// PriorityFor maps a score to its tier: ≥75 high, ≥50 medium, else low.
func PriorityFor(score float64) Priority {
	switch {
	case score >= 75:
		return PriorityHigh
	case score >= 50:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Rank is the A-F grade of a firmographic score.
type Rank string

const (
	RankA Rank = "A"
	RankB Rank = "B"
	RankC Rank = "C"
	RankD Rank = "D"
	RankF Rank = "F"
)

// RankFor grades a score: ≥80 A, ≥60 B, ≥40 C, ≥20 D, else F.
func RankFor(score float64) Rank {
	switch {
	case score >= 80:
		return RankA
	case score >= 60:
		return RankB
	case score >= 40:
		return RankC
	case score >= 20:
		return RankD
	default:
		return RankF
	}
}

var rankRecommendations = map[Rank]string{
	RankA: "Immediate follow-up recommended",
	RankB: "Schedule follow-up within 24 hours",
	RankC: "Add to nurture campaign",
	RankD: "Keep in database for future engagement",
	RankF: "Consider removing from active pipeline",
}

// Recommendation returns the agent-facing sentence for a rank.
func (r Rank) Recommendation() string {
	return rankRecommendations[r]
}

var tierRecommendations = map[Priority][]string{
	PriorityHigh: {
		"Schedule consultation call immediately",
		"Prepare custom proposal",
		"Assign to top sales representative",
	},
	PriorityMedium: {
		"Send product information",
		"Schedule follow-up call",
		"Add to nurture sequence",
	},
	PriorityLow: {
		"Send educational content",
		"Add to long-term nurture campaign",
	},
}

const maxAISteps = 2

// Recommendations returns the canned actions for a tier followed by the
// first two AI-suggested steps, trimmed but otherwise kept as given.
func Recommendations(p Priority, aiSteps []string) []string {
	aiSteps = aiSteps[:min(maxAISteps, len(aiSteps))]
	canned := tierRecommendations[p]
	out := make([]string, 0, len(canned)+len(aiSteps))
	out = append(out, canned...)
	for _, step := range aiSteps {
		out = append(out, strings.TrimSpace(step))
	}
	return out
}
