package textgen

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

type stubLLM struct {
	reply   string
	err     error
	lastReq *model.LLMRequest
}

func (s *stubLLM) Name() string { return "stub" }

func (s *stubLLM) GenerateContent(_ context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	s.lastReq = req
	return func(yield func(*model.LLMResponse, error) bool) {
		if s.err != nil {
			yield(nil, s.err)
			return
		}
		yield(&model.LLMResponse{Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{genai.NewPartFromText(s.reply)}}}, nil)
	}
}

func TestParseIntent(t *testing.T) {
	tests := map[string]Intent{
		"SALES":       IntentSales,
		" support.\n": IntentSupport,
		"Booking":     IntentBooking,
		"weather":     IntentOther,
		"":            IntentOther,
	}
	for raw, want := range tests {
		if got := ParseIntent(raw); got != want {
			t.Errorf("ParseIntent(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestClassifyIntentFallsBackToOther(t *testing.T) {
	svc := New(&stubLLM{err: errors.New("boom")}, nil)
	intent, err := svc.ClassifyIntent(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if intent != IntentOther {
		t.Fatalf("intent = %s, want OTHER", intent)
	}
}

func TestClassifyIntentUsesCheapModel(t *testing.T) {
	cheap := &stubLLM{reply: "sales"}
	smart := &stubLLM{reply: "SUPPORT"}
	svc := New(cheap, smart)

	intent, err := svc.ClassifyIntent(context.Background(), "what does it cost?")
	if err != nil {
		t.Fatalf("ClassifyIntent: %v", err)
	}
	if intent != IntentSales {
		t.Fatalf("intent = %s", intent)
	}
	if smart.lastReq != nil {
		t.Fatal("smart model should not be used for classification")
	}
}

func TestQualifyParsesFencedJSON(t *testing.T) {
	smart := &stubLLM{reply: "```json\n{\"quality_score\": 82, \"timeline\": \"this month\", \"budget\": \"decent\", \"intent_score\": 0.9, \"recommended_next_steps\": [\"Book demo\", \"Send deck\", \"Call CFO\"]}\n```"}
	svc := New(&stubLLM{}, smart)

	turns := make([]Turn, 8)
	for i := range turns {
		turns[i] = Turn{Role: "user", Content: "msg"}
	}
	turns[7].Content = "latest"

	q, err := svc.Qualify(context.Background(), LeadContext{Name: "Ana"}, turns)
	if err != nil {
		t.Fatalf("Qualify: %v", err)
	}
	if q.QualityScore == nil || *q.QualityScore != 82 {
		t.Fatalf("quality score = %v", q.QualityScore)
	}
	if q.Timeline != "this month" || len(q.RecommendedNextSteps) != 3 {
		t.Fatalf("qualification = %+v", q)
	}
	prompt := smart.lastReq.Contents[0].Parts[0].Text
	if strings.Count(prompt, "user: msg") != 4 || !strings.Contains(prompt, "user: latest") {
		t.Fatalf("expected last five turns in prompt, got:\n%s", prompt)
	}
	if smart.lastReq.Config.ResponseMIMEType != "application/json" {
		t.Fatal("expected json response mime type")
	}
}

func TestDisabledService(t *testing.T) {
	svc := New(nil, nil)
	if _, err := svc.GenerateMessage(context.Background(), LeadContext{}, "reminder", "email"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}
