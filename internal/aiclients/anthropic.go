package aiclients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/config"
)

// messagesAPI is the narrow subset of the Anthropic Messages API this
// adapter depends on, so tests can substitute a fake without hitting the
// network.
type messagesAPI interface {
	New(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

type anthropicReasoning struct {
	logger commons.Logger
	api    messagesAPI
	apiKey string
}

// NewAnthropicReasoning builds the primary Reasoning capability backed by
// Claude (spec.md §4.10), grounded on the narrow-wrapper idiom of
// internal/telephony/twilio.go.
func NewAnthropicReasoning(cfg config.AIConfig, logger commons.Logger) Reasoning {
	client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))
	return &anthropicReasoning{logger: logger, api: client.Messages, apiKey: cfg.AnthropicAPIKey}
}

func (a *anthropicReasoning) Available() bool { return a.apiKey != "" }

// analysisSchema is what the reasoning prompt instructs the model to
// return, matching spec.md §4.6's structured response exactly.
type analysisSchema struct {
	Valid          bool   `json:"valid"`
	Summary        string `json:"summary"`
	ShouldProceed  bool   `json:"shouldProceed"`
	NextQuestionID string `json:"nextQuestionId"`
	Feedback       string `json:"feedback"`
}

func buildAnalysisPrompt(req AnalysisRequest) string {
	return fmt.Sprintf(
		"You are analysing one turn of a recorded phone conversation.\n"+
			"Question asked: %s\n"+
			"Caller's transcribed answer: %s\n"+
			"Prior context summary: %s\n\n"+
			"Reply with ONLY a JSON object of the shape "+
			`{"valid":bool,"summary":string,"shouldProceed":bool,"nextQuestionId":string,"feedback":string}`+
			". Use an empty string for nextQuestionId/feedback when not applicable.",
		req.QuestionPrompt, req.Transcript, req.ContextSummary,
	)
}

// Analyze implements Reasoning (spec.md §4.6 step 4).
func (a *anthropicReasoning) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	if !a.Available() {
		return nil, errors.New("reasoning client not configured")
	}

	msg, err := a.api.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.ModelClaude3_5SonnetLatest,
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildAnalysisPrompt(req))),
		},
	})
	if err != nil {
		return nil, err
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return parseAnalysis(text)
}

// parseAnalysis decodes a reasoning provider's raw text response into the
// structured contract spec.md §4.6 requires. Kept separate from the
// provider call so it can be exercised directly in tests without faking
// the underlying SDK's response type.
func parseAnalysis(text string) (*AnalysisResult, error) {
	var parsed analysisSchema
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("parse reasoning response: %w", err)
	}
	return &AnalysisResult{
		Valid:          parsed.Valid,
		Summary:        parsed.Summary,
		ShouldProceed:  parsed.ShouldProceed,
		NextQuestionID: parsed.NextQuestionID,
		Feedback:       parsed.Feedback,
	}, nil
}
