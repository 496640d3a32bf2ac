// Package turnprocessor implements the Turn Processor (C6): the pipeline
// that runs on the provider's recording-complete callback, stitching
// together the Recording Fetcher (C7), Recognition/Reasoning clients
// (C10), the Dialog Engine (C5) and the Notification Publisher (C8) into
// one turn, per spec.md §4.6. Grounded on the step-pipeline shape of the
// teacher's call-flow handlers, generalised from a single fixed script to
// a data-driven conversation flow.
package turnprocessor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/aiclients"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/callregistry"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/clock"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/dialog"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/notifier"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/recording"
)

// maxRecognitionRetries bounds the "retry once with a clarification
// prompt" degradation of spec.md §4.6 before the call is closed outright.
const maxRecognitionRetries = 1

// Processor is the Turn Processor contract (C6). recordingDurationSeconds
// is the provider's own report of the recording clip's length, carried
// through to the Notification Publisher (spec.md §3/§6); 0 if the provider
// didn't send one.
type Processor interface {
	HandleRecording(ctx context.Context, providerSid, recordingURL string, recordingDurationSeconds int) error
}

type processor struct {
	registry    callregistry.Store
	engine      dialog.Engine
	fetcher     recording.Fetcher
	recognition aiclients.Recognition
	reasoning   aiclients.Reasoning
	publisher   notifier.Publisher
	clock       clock.Clock
	logger      commons.Logger

	maxConversationDuration time.Duration

	failMu   sync.Mutex
	failures map[string]int
}

// NewProcessor builds the Turn Processor.
func NewProcessor(
	registry callregistry.Store,
	engine dialog.Engine,
	fetcher recording.Fetcher,
	recognition aiclients.Recognition,
	reasoning aiclients.Reasoning,
	publisher notifier.Publisher,
	maxConversationDuration time.Duration,
	clk clock.Clock,
	logger commons.Logger,
) Processor {
	if maxConversationDuration <= 0 {
		maxConversationDuration = 5 * time.Minute
	}
	return &processor{
		registry:                registry,
		engine:                  engine,
		fetcher:                 fetcher,
		recognition:             recognition,
		reasoning:               reasoning,
		publisher:               publisher,
		maxConversationDuration: maxConversationDuration,
		clock:                   clk,
		logger:                  logger,
		failures:                make(map[string]int),
	}
}

// HandleRecording runs one full turn: fetch the recording, transcribe it,
// analyse the answer against the current question, record it in the
// Dialog Engine, and either continue, retry or close the conversation
// (spec.md §4.6). It returns an error when the call record can't be
// located or when closing out fails; a caller that fronts this with an
// HTTP handler logs that error and still acknowledges with 2xx (spec.md §7).
func (p *processor) HandleRecording(ctx context.Context, providerSid, recordingURL string, recordingDurationSeconds int) error {
	rec, err := p.registry.GetByProviderSid(ctx, providerSid)
	if err != nil {
		return fmt.Errorf("locate call for providerSid=%s: %w", providerSid, err)
	}

	fetchResult, fetchErr := p.fetcher.Fetch(ctx, recordingURL, recordingDurationSeconds)
	if fetchErr != nil {
		p.logger.Errorf("turn processor: recording fetch failed for call=%s: %v", rec.InternalID, fetchErr)
		return p.closeOut(ctx, rec, "We're sorry, we ran into a technical issue saving your recording. Thank you for your time, goodbye.", nil)
	}
	if err := p.registry.AttachRecording(ctx, providerSid, fetchResult.Filename); err != nil {
		p.logger.Warnf("turn processor: attach recording failed for call=%s: %v", rec.InternalID, err)
	}

	transcript, recErr := p.recognition.Recognize(ctx, fetchResult.Path)
	if recErr != nil || strings.TrimSpace(transcript) == "" {
		return p.handleRecognitionFailure(ctx, rec, fetchResult, recErr)
	}
	p.resetFailures(rec.InternalID)

	question, state, err := p.engine.Current(rec.InternalID)
	if err != nil {
		p.logger.Warnf("turn processor: no dialog state for call=%s, closing: %v", rec.InternalID, err)
		return p.closeOut(ctx, rec, "Thank you for your time, goodbye.", fetchResult)
	}

	normalized := strings.TrimSpace(transcript)
	analysis, err := p.analyse(ctx, question, transcript, state)
	if err != nil {
		p.logger.Warnf("turn processor: reasoning failed for call=%s, using static-next fallback: %v", rec.InternalID, err)
		analysis = dialog.Analysis{Valid: true, ShouldProceed: true, Summary: "answer recorded"}
	}

	if err := p.engine.RecordAnswer(rec.InternalID, transcript, normalized); err != nil {
		p.logger.Warnf("turn processor: record answer rejected for call=%s: %v", rec.InternalID, err)
		analysis = dialog.Analysis{Valid: false, Feedback: "Sorry, that didn't come through as expected. Could you repeat that?"}
	}

	remaining := p.remainingBudget(state)
	action, err := p.engine.Decide(rec.InternalID, analysis, remaining)
	if err != nil {
		p.logger.Errorf("turn processor: decide failed for call=%s: %v", rec.InternalID, err)
		return p.closeOut(ctx, rec, "Thank you for your time, goodbye.", fetchResult)
	}

	switch action.Kind {
	case dialog.ActionContinueWith:
		return nil
	case dialog.ActionRetry:
		p.logger.Infof("turn processor: retrying turn for call=%s: %s", rec.InternalID, action.FeedbackText)
		return nil
	case dialog.ActionClose:
		return p.closeOut(ctx, rec, action.ClosingText, fetchResult)
	default:
		return p.closeOut(ctx, rec, "Thank you for your time, goodbye.", fetchResult)
	}
}

// handleRecognitionFailure implements the bounded clarification-retry
// degradation of spec.md §4.6: the first failure leaves the current
// question in place, so the next prompt webhook hit asks it again; the
// clarification feedback goes to Decide only and is not spoken to the
// callee. Exhausting the retry budget closes the call politely while
// still notifying, since a recording exists.
func (p *processor) handleRecognitionFailure(ctx context.Context, rec *callregistry.CallRecord, fetchResult *recording.FetchResult, cause error) error {
	p.logger.Warnf("turn processor: recognition failed for call=%s: %v", rec.InternalID, cause)

	p.failMu.Lock()
	p.failures[rec.InternalID]++
	count := p.failures[rec.InternalID]
	p.failMu.Unlock()

	if count > maxRecognitionRetries {
		delete(p.failures, rec.InternalID)
		return p.closeOut(ctx, rec, "We're having trouble hearing you. Thank you for your time, goodbye.", fetchResult)
	}

	_, err := p.engine.Decide(rec.InternalID, dialog.Analysis{
		Valid:        false,
		Feedback:     "Sorry, I didn't catch that. Could you say that again?",
		ShouldProceed: true,
	}, 0)
	if err != nil {
		p.logger.Warnf("turn processor: decide-for-retry failed for call=%s: %v", rec.InternalID, err)
	}
	return nil
}

func (p *processor) resetFailures(callID string) {
	p.failMu.Lock()
	delete(p.failures, callID)
	p.failMu.Unlock()
}

func (p *processor) analyse(ctx context.Context, question *dialog.Question, transcript string, state *dialog.ConversationState) (dialog.Analysis, error) {
	if p.reasoning == nil || !p.reasoning.Available() {
		return dialog.Analysis{}, fmt.Errorf("reasoning client unavailable")
	}
	result, err := p.reasoning.Analyze(ctx, aiclients.AnalysisRequest{
		QuestionPrompt: question.PromptTemplate,
		Transcript:     transcript,
		ContextSummary: contextSummary(state),
	})
	if err != nil {
		return dialog.Analysis{}, err
	}
	return dialog.Analysis{
		Valid:          result.Valid,
		Summary:        result.Summary,
		ShouldProceed:  result.ShouldProceed,
		NextQuestionID: result.NextQuestionID,
		Feedback:       result.Feedback,
	}, nil
}

// contextSummary renders the conversation's recorded answers (question id
// and normalized text) into a compact string for the reasoning prompt, so
// the model sees what's already been said without replaying the full
// transcript history. It returns "" until at least one context slot is set.
func contextSummary(state *dialog.ConversationState) string {
	if state == nil || len(state.ContextSlots) == 0 {
		return ""
	}
	var b strings.Builder
	for _, id := range state.AnswerOrder {
		ans, ok := state.Answers[id]
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", id, ans.NormalizedText)
	}
	return b.String()
}

func (p *processor) remainingBudget(state *dialog.ConversationState) time.Duration {
	if state == nil {
		return p.maxConversationDuration
	}
	elapsed := p.clock.Now().Sub(state.StartedAt)
	remaining := p.maxConversationDuration - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// closeOut stamps the Dialog Engine's closing message onto the call record
// so the Prompt Webhook Handler serves the hangup script next, publishes
// the completion notification (spec.md §4.8), and releases the in-memory
// conversation state. fetchResult is nil when no recording was ever
// retrieved for this call (e.g. the fetch itself failed).
func (p *processor) closeOut(ctx context.Context, rec *callregistry.CallRecord, closingText string, fetchResult *recording.FetchResult) error {
	if err := p.registry.AttachClosing(ctx, rec.ProviderSid, closingText); err != nil {
		p.logger.Errorf("turn processor: attach closing failed for call=%s: %v", rec.InternalID, err)
	}

	summary, err := p.engine.Summary(rec.InternalID)
	if err != nil {
		summary = nil
	}

	metadata := rec.Metadata()
	event := notifier.Event{
		CallSid:        rec.ProviderSid,
		AccountID:      rec.AccountID,
		Status:         string(callregistry.StatusCompleted),
		Recorded:       fetchResult != nil,
		Summary:        closingText,
		StorytellerID:  metadata["storytellerId"],
		FamilyMemberID: metadata["familyMemberId"],
		Question:       rec.Question,
		Metadata:       summariseAnswers(summary),
	}
	if fetchResult != nil {
		event.Filename = fetchResult.Filename
		event.DurationSeconds = fetchResult.DurationSeconds
		event.FileSize = fetchResult.SizeBytes
	}
	if pubErr := p.publisher.Publish(event); pubErr != nil {
		p.logger.Errorf("turn processor: notification publish failed for call=%s: %v", rec.InternalID, pubErr)
	} else if markErr := p.registry.MarkNotified(ctx, rec.ProviderSid); markErr != nil {
		p.logger.Warnf("turn processor: mark notified failed for call=%s: %v", rec.InternalID, markErr)
	}

	p.engine.End(rec.InternalID)
	return nil
}

func summariseAnswers(state *dialog.ConversationState) map[string]string {
	if state == nil {
		return nil
	}
	out := make(map[string]string, len(state.Answers))
	for id, ans := range state.Answers {
		out[id] = ans.NormalizedText
	}
	return out
}
