package qualification

import (
	"fmt"
	"math"

	"leadflow_backend/platform/apperr"
)

// Strategy names a scoring mode.
type Strategy string

const (
	StrategyWeighted     Strategy = "weighted"
	StrategyFirmographic Strategy = "firmographic"
)

// Score is the output of one Scorer call.
type Score struct {
	Value              float64  `json:"value"`
	Strategy           Strategy `json:"strategy"`
	Rank               Rank     `json:"rank,omitempty"`
	RankRecommendation string   `json:"rankRecommendation,omitempty"`
}

// Scorer computes a quality score in [0,100] from a signal bundle.
type Scorer interface {
	Strategy() Strategy
	Score(signal LeadSignal) Score
}

const weightTolerance = 1e-6

// Weights are the per-factor multipliers of the weighted strategy.
type Weights struct {
	Fit      float64 `json:"fit" yaml:"fit"`
	Timeline float64 `json:"timeline" yaml:"timeline"`
	Budget   float64 `json:"budget" yaml:"budget"`
	Intent   float64 `json:"intent" yaml:"intent"`
}

// DefaultWeights weighs every factor equally.
func DefaultWeights() Weights {
	return Weights{Fit: 0.25, Timeline: 0.25, Budget: 0.25, Intent: 0.25}
}

// Validate rejects negative weights and sets that do not sum to 1.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{"fit": w.Fit, "timeline": w.Timeline, "budget": w.Budget, "intent": w.Intent} {
		if math.IsNaN(v) || v < 0 {
			return apperr.Configuration(fmt.Sprintf("scoring weight %s must be non-negative, got %v", name, v))
		}
	}
	sum := w.Fit + w.Timeline + w.Budget + w.Intent
	if math.Abs(sum-1) > weightTolerance {
		return apperr.Configuration(fmt.Sprintf("scoring weights must sum to 1.0, got %v", sum))
	}
	return nil
}

// WeightedScorer scores conversational signals on a 0-100 scale.
type WeightedScorer struct {
	weights Weights
}

// NewWeightedScorer validates the weights and builds a scorer.
func NewWeightedScorer(w Weights) (*WeightedScorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &WeightedScorer{weights: w}, nil
}

func (s *WeightedScorer) Strategy() Strategy { return StrategyWeighted }

// Score returns 100 × Σ(subscore × weight), clamped to [0,100].
func (s *WeightedScorer) Score(signal LeadSignal) Score {
	sum := NormalizeFit(signal.AIFitScore)*s.weights.Fit +
		AssessTimeline(signal.TimelineText)*s.weights.Timeline +
		AssessBudget(signal.BudgetText)*s.weights.Budget +
		NormalizeIntent(signal.IntentScore)*s.weights.Intent

	return Score{Value: clamp(sum*100, 0, 100), Strategy: StrategyWeighted}
}

// FirmographicScorer adds point buckets, capped at 100.
type FirmographicScorer struct{}

func (FirmographicScorer) Strategy() Strategy { return StrategyFirmographic }

// Score sums the firmographic buckets and attaches the A-F rank.
func (FirmographicScorer) Score(signal LeadSignal) Score {
	total := CompanySizePoints(signal.CompanySize) +
		EngagementPoints(signal.EngagementRate) +
		BudgetPoints(signal.BudgetAmount) +
		IndustryPoints(signal.Industry) +
		ContactPoints(signal.HasEmail, signal.HasPhone)

	value := clamp(total, 0, 100)
	rank := RankFor(value)
	return Score{
		Value:              value,
		Strategy:           StrategyFirmographic,
		Rank:               rank,
		RankRecommendation: rank.Recommendation(),
	}
}

// Selector picks a Scorer for a signal bundle.
type Selector struct {
	weighted     *WeightedScorer
	firmographic FirmographicScorer
}

// NewSelector builds a Selector with the given weighted-mode weights.
func NewSelector(w Weights) (*Selector, error) {
	weighted, err := NewWeightedScorer(w)
	if err != nil {
		return nil, err
	}
	return &Selector{weighted: weighted}, nil
}

// For returns the weighted scorer when conversational signals are present,
// the firmographic scorer otherwise.
func (s *Selector) For(signal LeadSignal) Scorer {
	if signal.HasConversational() {
		return s.weighted
	}
	return s.firmographic
}

// Firmographic returns the additive scorer regardless of the signal bundle.
func (s *Selector) Firmographic() Scorer {
	return s.firmographic
}
