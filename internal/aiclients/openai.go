package aiclients

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/config"
)

// chatAPI is the narrow subset of the OpenAI Chat Completions API this
// adapter depends on, so tests can substitute a fake.
type chatAPI interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

type openaiReasoning struct {
	logger commons.Logger
	api    chatAPI
	apiKey string
}

// NewOpenAIReasoning builds the fallback Reasoning capability
// (spec.md §4.10, DOMAIN STACK table: "Alternate reasoning backend,
// selected by config, same capability contract"), selected alongside
// NewAnthropicReasoning via the cfg.AI.ReasoningProvider switch at
// construction time (the integration_client.go provider-switch idiom,
// applied here at wiring time rather than per-call).
func NewOpenAIReasoning(cfg config.AIConfig, logger commons.Logger) Reasoning {
	client := openai.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey))
	return &openaiReasoning{logger: logger, api: client.Chat.Completions, apiKey: cfg.OpenAIAPIKey}
}

func (o *openaiReasoning) Available() bool { return o.apiKey != "" }

// Analyze implements Reasoning using the same structured-JSON contract as
// the Anthropic backend, so the Turn Processor (C6) is indifferent to
// which provider answered.
func (o *openaiReasoning) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	if !o.Available() {
		return nil, errors.New("reasoning client not configured")
	}

	resp, err := o.api.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModelGPT4o,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(buildAnalysisPrompt(req)),
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("reasoning response had no choices")
	}

	return parseAnalysis(resp.Choices[0].Message.Content)
}

// NewReasoning selects the configured reasoning backend by provider name
// (spec.md §9 open question: implementers choose how providers are
// selected; this mirrors integration_client.go's string-switch wiring).
func NewReasoning(cfg config.AIConfig, logger commons.Logger) Reasoning {
	switch cfg.ReasoningProvider {
	case "openai":
		return NewOpenAIReasoning(cfg, logger)
	case "anthropic", "":
		return NewAnthropicReasoning(cfg, logger)
	default:
		logger.Warnf("unknown reasoning provider %q, defaulting to anthropic", cfg.ReasoningProvider)
		return NewAnthropicReasoning(cfg, logger)
	}
}
