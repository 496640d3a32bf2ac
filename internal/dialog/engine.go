package dialog

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/apperrors"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/clock"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/config"
)

// Engine is the Dialog Engine contract (C5, spec.md §4.5): Begin/Current/
// RecordAnswer/Decide/Summary operate on one ConversationState per live
// call, each guarded by its own short-lived lock so concurrent calls never
// contend with each other.
type Engine interface {
	Begin(callID string) (*Question, error)
	Current(callID string) (*Question, *ConversationState, error)
	RecordAnswer(callID, rawTranscript, normalizedText string) error
	Decide(callID string, analysis Analysis, remaining time.Duration) (*NextAction, error)
	Summary(callID string) (*ConversationState, error)
	End(callID string)
}

type conversationEntry struct {
	mu    sync.Mutex
	state *ConversationState
}

type engine struct {
	flow   *ConversationFlow
	scoring config.DialogScoringConfig
	clock  clock.Clock
	logger commons.Logger

	mapMu         sync.RWMutex
	conversations map[string]*conversationEntry
}

// NewEngine constructs the Dialog Engine over an immutable ConversationFlow
// loaded at startup (spec.md §3).
func NewEngine(flow *ConversationFlow, scoring config.DialogScoringConfig, clk clock.Clock, logger commons.Logger) Engine {
	return &engine{
		flow:          flow,
		scoring:       scoring,
		clock:         clk,
		logger:        logger,
		conversations: make(map[string]*conversationEntry),
	}
}

func (e *engine) entryFor(callID string) *conversationEntry {
	e.mapMu.RLock()
	ent, ok := e.conversations[callID]
	e.mapMu.RUnlock()
	if ok {
		return ent
	}

	e.mapMu.Lock()
	defer e.mapMu.Unlock()
	if ent, ok = e.conversations[callID]; ok {
		return ent
	}
	ent = &conversationEntry{}
	e.conversations[callID] = ent
	return ent
}

// Begin starts a new conversation at the flow's first question
// (spec.md §4.5).
func (e *engine) Begin(callID string) (*Question, error) {
	ent := e.entryFor(callID)
	ent.mu.Lock()
	defer ent.mu.Unlock()

	first := e.flow.Questions[e.flow.FirstQuestionID]
	now := e.clock.Now()
	ent.state = &ConversationState{
		CallID:            callID,
		CurrentQuestionID: first.ID,
		Answers:           make(map[string]AnswerEntry),
		ContextSlots:      make(map[string]string),
		StartedAt:         now,
		LastUpdatedAt:     now,
	}
	return first, nil
}

// Current returns the active question and a point-in-time snapshot of the
// conversation state (spec.md §4.5: "reads by the Prompt Handler are
// point-in-time snapshots").
func (e *engine) Current(callID string) (*Question, *ConversationState, error) {
	ent := e.entryFor(callID)
	ent.mu.Lock()
	defer ent.mu.Unlock()

	if ent.state == nil {
		return nil, nil, apperrors.New(apperrors.NotFound, "no active conversation for call")
	}
	q, ok := e.flow.Questions[ent.state.CurrentQuestionID]
	if !ok {
		return nil, nil, apperrors.New(apperrors.Internal, "current question not found in flow")
	}
	return q, ent.state.Snapshot(), nil
}

// validateFormat applies a Question's format-level Validation rule to the
// normalized transcript (spec.md §3). This is independent of the semantic
// validity judgement the reasoning client produces in Analysis.Valid.
func validateFormat(q *Question, normalizedText string) error {
	switch q.Validation {
	case ValidationNone, "":
		return nil
	case ValidationNonEmpty:
		if strings.TrimSpace(normalizedText) == "" {
			return apperrors.New(apperrors.InvalidInput, "answer must not be empty")
		}
		return nil
	case ValidationIntegerInRange:
		n, err := strconv.Atoi(strings.TrimSpace(normalizedText))
		if err != nil {
			return apperrors.New(apperrors.InvalidInput, "answer must be an integer").WithDetails(map[string]interface{}{"cause": err.Error()})
		}
		if n < q.MinInt || n > q.MaxInt {
			return apperrors.New(apperrors.InvalidInput, fmt.Sprintf("answer must be between %d and %d", q.MinInt, q.MaxInt))
		}
		return nil
	default:
		return nil
	}
}

// RecordAnswer records the transcript against the currently active
// question, enforcing its format-level validation rule (spec.md §4.5).
func (e *engine) RecordAnswer(callID, rawTranscript, normalizedText string) error {
	ent := e.entryFor(callID)
	ent.mu.Lock()
	defer ent.mu.Unlock()

	if ent.state == nil {
		return apperrors.New(apperrors.NotFound, "no active conversation for call")
	}
	q, ok := e.flow.Questions[ent.state.CurrentQuestionID]
	if !ok {
		return apperrors.New(apperrors.Internal, "current question not found in flow")
	}
	if err := validateFormat(q, normalizedText); err != nil {
		return err
	}

	now := e.clock.Now()
	if _, already := ent.state.Answers[q.ID]; !already {
		ent.state.AnswerOrder = append(ent.state.AnswerOrder, q.ID)
	}
	ent.state.Answers[q.ID] = AnswerEntry{
		RawTranscript:  rawTranscript,
		NormalizedText: normalizedText,
		AnsweredAt:     now,
	}
	if q.ContextKey != "" {
		ent.state.ContextSlots[q.ContextKey] = normalizedText
	}
	ent.state.LastUpdatedAt = now
	return nil
}

// Decide determines the next action after a reasoning pass, per the
// sum-type result of spec.md §4.5: ContinueWith(next) | Retry(feedback) |
// Close(closingText). An invalid analysis always yields Retry. So does a
// valid analysis that declines to proceed but carries feedback, regardless
// of static/dynamic wiring — shouldProceed is what drives Retry vs Close,
// not Valid. A valid analysis that names a NextQuestionID (interactive
// redirection) takes precedence over the flow's own static pointer or
// dynamic scoring.
func (e *engine) Decide(callID string, analysis Analysis, remaining time.Duration) (*NextAction, error) {
	ent := e.entryFor(callID)
	ent.mu.Lock()
	defer ent.mu.Unlock()

	if ent.state == nil {
		return nil, apperrors.New(apperrors.NotFound, "no active conversation for call")
	}

	if !analysis.Valid || (!analysis.ShouldProceed && analysis.Feedback != "") {
		return &NextAction{Kind: ActionRetry, FeedbackText: analysis.Feedback}, nil
	}

	current, ok := e.flow.Questions[ent.state.CurrentQuestionID]
	if !ok {
		return nil, apperrors.New(apperrors.Internal, "current question not found in flow")
	}

	if current.IsClosing(e.flow) || !analysis.ShouldProceed {
		return &NextAction{Kind: ActionClose, ClosingText: analysis.Summary}, nil
	}

	if analysis.NextQuestionID != "" {
		if next, ok := e.flow.Questions[analysis.NextQuestionID]; ok {
			ent.state.CurrentQuestionID = next.ID
			ent.state.LastUpdatedAt = e.clock.Now()
			return &NextAction{Kind: ActionContinueWith, Question: next}, nil
		}
		e.logger.Warnf("reasoning client named unknown next question %q, falling back to flow", analysis.NextQuestionID)
	}

	var next *Question
	if current.IsDynamic() {
		if q, ok := SelectNext(e.flow, ent.state, remaining, e.scoring); ok {
			next = q
		}
	} else if current.Next != "" && current.Next != EndFlow {
		next = e.flow.Questions[current.Next]
	}

	if next == nil {
		return &NextAction{Kind: ActionClose, ClosingText: analysis.Summary}, nil
	}

	ent.state.CurrentQuestionID = next.ID
	ent.state.LastUpdatedAt = e.clock.Now()
	return &NextAction{Kind: ActionContinueWith, Question: next}, nil
}

// Summary returns the final snapshot of a conversation's answers
// (spec.md §4.5), used when triggering the Notification Publisher (C8).
func (e *engine) Summary(callID string) (*ConversationState, error) {
	ent := e.entryFor(callID)
	ent.mu.Lock()
	defer ent.mu.Unlock()

	if ent.state == nil {
		return nil, apperrors.New(apperrors.NotFound, "no active conversation for call")
	}
	return ent.state.Snapshot(), nil
}

// End releases the in-memory conversation state (spec.md §9: bounded
// in-memory footprint). The Turn Processor calls it when it closes a
// conversation; a provider status callback reporting a terminal status
// does not release state, and there is no idle expiry.
func (e *engine) End(callID string) {
	e.mapMu.Lock()
	defer e.mapMu.Unlock()
	delete(e.conversations, callID)
}
