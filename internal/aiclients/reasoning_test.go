package aiclients

import (
	"testing"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/config"
)

func configWithProvider(provider string) config.AIConfig {
	return config.AIConfig{
		ReasoningProvider: provider,
		AnthropicAPIKey:   "sk-ant-test",
		OpenAIAPIKey:      "sk-oai-test",
	}
}

func TestNewReasoningDefaultsToAnthropicOnUnknownProvider(t *testing.T) {
	logger := commons.NewLogger("debug")
	r := NewReasoning(configWithProvider("bogus"), logger)
	if _, ok := r.(*anthropicReasoning); !ok {
		t.Fatalf("expected anthropicReasoning fallback, got %T", r)
	}
}

func TestNewReasoningSelectsOpenAI(t *testing.T) {
	logger := commons.NewLogger("debug")
	r := NewReasoning(configWithProvider("openai"), logger)
	if _, ok := r.(*openaiReasoning); !ok {
		t.Fatalf("expected openaiReasoning, got %T", r)
	}
}

func TestParseAnalysisDecodesStructuredResponse(t *testing.T) {
	text := `{"valid":true,"summary":"caller confirmed name","shouldProceed":true,"nextQuestionId":"q3","feedback":""}`
	result, err := parseAnalysis(text)
	if err != nil {
		t.Fatalf("parseAnalysis: %v", err)
	}
	if !result.Valid || !result.ShouldProceed || result.NextQuestionID != "q3" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestParseAnalysisRejectsMalformedJSON(t *testing.T) {
	if _, err := parseAnalysis("not json"); err == nil {
		t.Fatal("expected malformed reasoning response to error")
	}
}
