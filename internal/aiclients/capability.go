// Package aiclients implements the Synthesis/Recognition/Reasoning
// Clients (C10): capability-typed wrappers over external AI services,
// each exposing an availability probe so callers degrade gracefully
// instead of branching on concrete provider types (spec.md §4.10).
// Grounded on the provider-switch shape of
// pkg/clients/integration/integration_client.go, generalised from gRPC
// fan-out across many chat/embedding providers to three narrow
// capability contracts.
package aiclients

import "context"

// Synthesis turns prompt text into audio bytes for the Prompt Handler
// (C4) to serve or cache.
type Synthesis interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Available() bool
}

// Recognition transcribes a locally-fetched recording (C7's output) into
// text for the Turn Processor (C6).
type Recognition interface {
	Recognize(ctx context.Context, filePath string) (string, error)
	Available() bool
}

// AnalysisRequest is the input to Reasoning.Analyze (spec.md §4.6 step 4).
type AnalysisRequest struct {
	QuestionPrompt string
	Transcript     string
	ContextSummary string
}

// AnalysisResult mirrors the structured response spec.md §4.6 requires:
// {valid, summary, shouldProceed, nextQuestionId|null, feedback|null}.
type AnalysisResult struct {
	Valid          bool
	Summary        string
	ShouldProceed  bool
	NextQuestionID string
	Feedback       string
}

// Reasoning judges an answer's validity and decides how the conversation
// should proceed.
type Reasoning interface {
	Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error)
	Available() bool
}
