// Package qualification turns lead signals into a bounded quality score,
// a priority tier and an ordered list of next actions.
package qualification

import (
	"math"
	"strings"
)

// Neutral is the sub-score used when a signal is missing or unreadable.
const Neutral = 0.5

// LeadSignal is the transient input bundle for one scoring call.
type LeadSignal struct {
	// Conversational signals.
	AIFitScore   *float64 `json:"aiFitScore,omitempty"`
	TimelineText string   `json:"timelineText,omitempty"`
	BudgetText   string   `json:"budgetText,omitempty"`
	IntentScore  *float64 `json:"intentScore,omitempty"`

	// Firmographic signals.
	CompanySize    int     `json:"companySize"`
	EngagementRate float64 `json:"engagementRate"`
	BudgetAmount   float64 `json:"budgetAmount"`
	Industry       string  `json:"industry"`
	HasEmail       bool    `json:"hasEmail"`
	HasPhone       bool    `json:"hasPhone"`

	RecommendedSteps []string `json:"recommendedSteps,omitempty"`
}

// HasConversational reports whether any conversational signal is present.
func (s LeadSignal) HasConversational() bool {
	return s.AIFitScore != nil ||
		s.IntentScore != nil ||
		strings.TrimSpace(s.TimelineText) != "" ||
		strings.TrimSpace(s.BudgetText) != ""
}

type keywordTier struct {
	keywords []string
	value    float64
}

// Checked in order; the first tier with a matching keyword wins.
var timelineTiers = []keywordTier{
	{keywords: []string{"urgent", "asap", "immediately", "week"}, value: 1.0},
	{keywords: []string{"month", "soon"}, value: 0.8},
	{keywords: []string{"quarter"}, value: 0.6},
	{keywords: []string{"year", "later"}, value: 0.3},
}

var budgetTiers = []keywordTier{
	{keywords: []string{"large", "significant", "substantial", "unlimited"}, value: 1.0},
	{keywords: []string{"good", "decent", "reasonable"}, value: 0.8},
	{keywords: []string{"limited", "tight", "small"}, value: 0.3},
}

// AssessTimeline maps free-text purchase timing to [0,1].
func AssessTimeline(text string) float64 {
	return matchTier(text, timelineTiers)
}

// AssessBudget maps free-text budget language to [0,1].
func AssessBudget(text string) float64 {
	return matchTier(text, budgetTiers)
}

func matchTier(text string, tiers []keywordTier) float64 {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Neutral
	}
	for _, tier := range tiers {
		for _, kw := range tier.keywords {
			if strings.Contains(lower, kw) {
				return tier.value
			}
		}
	}
	return Neutral
}

// NormalizeFit converts a 0-100 fit score to [0,1]. Missing or NaN is neutral.
func NormalizeFit(score *float64) float64 {
	if score == nil || math.IsNaN(*score) {
		return Neutral
	}
	return clampUnit(*score / 100)
}

// NormalizeIntent clamps an intent probability to [0,1]. Missing or NaN is neutral.
func NormalizeIntent(score *float64) float64 {
	if score == nil || math.IsNaN(*score) {
		return Neutral
	}
	return clampUnit(*score)
}

var targetIndustries = map[string]struct{}{
	"technology": {},
	"finance":    {},
	"healthcare": {},
	"retail":     {},
}

// CompanySizePoints buckets headcount into 0..20 points.
func CompanySizePoints(size int) float64 {
	switch {
	case size > 100:
		return 20
	case size > 50:
		return 15
	case size > 10:
		return 10
	default:
		return 0
	}
}

// EngagementPoints scales an engagement rate to 0..30 points.
func EngagementPoints(rate float64) float64 {
	if math.IsNaN(rate) || rate <= 0 {
		return 0
	}
	return math.Min(rate*30, 30)
}

// BudgetPoints buckets a budget amount into 0..25 points.
func BudgetPoints(amount float64) float64 {
	switch {
	case amount > 50000:
		return 25
	case amount > 10000:
		return 20
	case amount > 1000:
		return 10
	default:
		return 0
	}
}

// IndustryPoints awards 15 points to target industries.
func IndustryPoints(industry string) float64 {
	if _, ok := targetIndustries[strings.ToLower(strings.TrimSpace(industry))]; ok {
		return 15
	}
	return 0
}

// ContactPoints awards 10 for email and phone, 5 for either, 0 for neither.
func ContactPoints(hasEmail, hasPhone bool) float64 {
	switch {
	case hasEmail && hasPhone:
		return 10
	case hasEmail || hasPhone:
		return 5
	default:
		return 0
	}
}

func clampUnit(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
