// Package textgen is the text-generation collaborator: intent
// classification, follow-up copy and conversational lead qualification,
// backed by an ADK model.
package textgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// Intent is the coarse purpose of an inbound message.
type Intent string

const (
	IntentSales   Intent = "SALES"
	IntentSupport Intent = "SUPPORT"
	IntentBooking Intent = "BOOKING"
	IntentOther   Intent = "OTHER"
)

// ParseIntent maps model output to an Intent, defaulting to OTHER.
func ParseIntent(raw string) Intent {
	word := strings.ToUpper(strings.TrimSpace(raw))
	word = strings.Trim(word, ".!\"' ")
	switch Intent(word) {
	case IntentSales, IntentSupport, IntentBooking:
		return Intent(word)
	}
	return IntentOther
}

// ErrDisabled is returned when no model is configured.
var ErrDisabled = errors.New("text generation disabled")

// Turn is one message of a conversation transcript.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LeadContext describes the lead a message is generated for.
type LeadContext struct {
	Name            string
	Company         string
	Industry        string
	LastInteraction string
}

// Qualification is the structured output of conversational qualification.
type Qualification struct {
	QualityScore         *float64 `json:"quality_score"`
	Timeline             string   `json:"timeline"`
	Budget               string   `json:"budget"`
	IntentScore          *float64 `json:"intent_score"`
	FitAssessment        string   `json:"fit_assessment"`
	RecommendedNextSteps []string `json:"recommended_next_steps"`
	Concerns             []string `json:"concerns"`
}

const (
	classifyInstruction = "Classify the user intent into: SALES, SUPPORT, BOOKING, or OTHER. Reply with only one word."
	followUpInstruction = "You write short follow-up messages to sales leads. Reply with the message text only."
	qualifyInstruction  = "You qualify sales leads. Analyze the customer data and conversation and reply with a single JSON object."

	conversationWindow = 5
)

// Service calls a cheap model for classification and copy, and a smart
// model for qualification.
type Service struct {
	cheap model.LLM
	smart model.LLM
}

// New creates a Service. Either model may be nil, in which case the
// operations that need it return ErrDisabled.
func New(cheap, smart model.LLM) *Service {
	if smart == nil {
		smart = cheap
	}
	return &Service{cheap: cheap, smart: smart}
}

// ClassifyIntent labels a message. On any failure the intent is OTHER and
// the error is returned for logging.
func (s *Service) ClassifyIntent(ctx context.Context, message string) (Intent, error) {
	text, err := s.complete(ctx, s.cheap, classifyInstruction, message, 0, false)
	if err != nil {
		return IntentOther, err
	}
	return ParseIntent(text), nil
}

// GenerateMessage writes follow-up copy for a lead.
func (s *Service) GenerateMessage(ctx context.Context, lead LeadContext, kind, channel string) (string, error) {
	limit := "under 500 characters"
	if channel == "sms" || channel == "whatsapp" || channel == "chat" {
		limit = "under 200 characters"
	}
	last := lead.LastInteraction
	if last == "" {
		last = "Recent inquiry"
	}

	prompt := fmt.Sprintf(`Generate a professional and personalized follow-up %s message for:

Customer: %s
Company: %s
Previous Interaction: %s

The message should be friendly, professional, %s, and end with a clear call to action.`,
		kind, lead.Name, lead.Company, last, limit)

	text, err := s.complete(ctx, s.cheap, followUpInstruction, prompt, 0.7, false)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty follow-up message")
	}
	return strings.TrimSpace(text), nil
}

// Qualify analyzes a conversation and returns structured qualification signals.
func (s *Service) Qualify(ctx context.Context, lead LeadContext, conversation []Turn) (Qualification, error) {
	if len(conversation) > conversationWindow {
		conversation = conversation[len(conversation)-conversationWindow:]
	}
	var transcript strings.Builder
	for _, turn := range conversation {
		fmt.Fprintf(&transcript, "%s: %s\n", turn.Role, turn.Content)
	}

	prompt := fmt.Sprintf(`Analyze this customer and conversation to qualify the lead.

Customer Data:
- Name: %s
- Company: %s
- Industry: %s

Conversation:
%s
Reply with JSON:
{
  "quality_score": <0-100>,
  "timeline": "<purchase timeline in the customer's words, or empty>",
  "budget": "<budget description in the customer's words, or empty>",
  "intent_score": <0-1>,
  "fit_assessment": "<brief explanation>",
  "recommended_next_steps": [<list of actions>],
  "concerns": [<list of any concerns>]
}`, lead.Name, lead.Company, lead.Industry, transcript.String())

	text, err := s.complete(ctx, s.smart, qualifyInstruction, prompt, 0.3, true)
	if err != nil {
		return Qualification{}, err
	}

	var q Qualification
	if err := json.Unmarshal([]byte(extractJSON(text)), &q); err != nil {
		return Qualification{}, fmt.Errorf("decode qualification: %w", err)
	}
	return q, nil
}

func (s *Service) complete(ctx context.Context, llm model.LLM, instruction, prompt string, temperature float32, jsonOut bool) (string, error) {
	if s == nil || llm == nil {
		return "", ErrDisabled
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: userContent(instruction),
		Temperature:       &temperature,
	}
	if jsonOut {
		cfg.ResponseMIMEType = "application/json"
	}
	req := &model.LLMRequest{
		Model:    llm.Name(),
		Contents: []*genai.Content{userContent(prompt)},
		Config:   cfg,
	}

	var out strings.Builder
	for resp, err := range llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return "", err
		}
		if resp == nil || resp.Content == nil {
			continue
		}
		for _, part := range resp.Content.Parts {
			if part != nil {
				out.WriteString(part.Text)
			}
		}
	}
	return out.String(), nil
}

func userContent(text string) *genai.Content {
	return &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{genai.NewPartFromText(text)}}
}

// extractJSON trims any prose or code fences around the first JSON object.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}
