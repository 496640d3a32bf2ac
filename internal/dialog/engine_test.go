package dialog

import (
	"testing"
	"time"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/clock"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/config"
)

func basicFlow(t *testing.T) *ConversationFlow {
	t.Helper()
	flow, err := NewFlow("q1", "q_close", []*Question{
		{ID: "q1", PromptTemplate: "What is your name?", Validation: ValidationNonEmpty, Kind: KindFreeText, ContextKey: "name", Next: "q2"},
		{ID: "q2", PromptTemplate: "How old are you?", Validation: ValidationIntegerInRange, Kind: KindFreeText, MinInt: 0, MaxInt: 130, Next: "q_close"},
		{ID: "q_close", PromptTemplate: "Thanks, {{name}}, goodbye.", Validation: ValidationNone, Kind: KindFreeText, Next: EndFlow},
	})
	if err != nil {
		t.Fatalf("build flow: %v", err)
	}
	return flow
}

func dynamicFlow(t *testing.T) *ConversationFlow {
	t.Helper()
	flow, err := NewFlow("q1", "q_none", []*Question{
		{ID: "q1", PromptTemplate: "Tell me about your family.", Validation: ValidationNonEmpty, Kind: KindFreeText, ContextKey: "family", Next: DynamicNext},
		{ID: "q2", PromptTemplate: "What did your family do for holidays?", Kind: KindFreeText, ContextKey: "family"},
		{ID: "q3", PromptTemplate: "What was your favorite job?", Kind: KindFreeText, ContextKey: "job"},
	})
	if err != nil {
		t.Fatalf("build flow: %v", err)
	}
	return flow
}

func defaultScoring() config.DialogScoringConfig {
	return config.DialogScoringConfig{
		FreeTextScore:         10,
		MultipleChoiceScore:   8,
		YesNoScore:            6,
		ContextSlotScore:      5,
		FamilyKeywordScore:    4,
		RelevantContextScore:  3,
		AnsweredPenalty:       -100,
		FamilyKeywords:        []string{"family", "holidays"},
		ShortPromptChars1Min:  100,
		ShortPromptBonus1Min:  10,
		LongPromptPenalty1Min: -10,
		ShortPromptChars2Min:  150,
		ShortPromptBonus2Min:  8,
	}
}

func TestDialogMonotonicity(t *testing.T) {
	flow := basicFlow(t)
	fc := clock.NewFake(time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC))
	e := NewEngine(flow, defaultScoring(), fc, commons.NewLogger("debug"))

	first, err := e.Begin("call-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if first.ID != "q1" {
		t.Fatalf("expected q1, got %s", first.ID)
	}

	if err := e.RecordAnswer("call-1", "my name is Alice", "Alice"); err != nil {
		t.Fatalf("record answer: %v", err)
	}

	action, err := e.Decide("call-1", Analysis{Valid: true, ShouldProceed: true}, 5*time.Minute)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if action.Kind != ActionContinueWith || action.Question.ID != "q2" {
		t.Fatalf("expected continue to q2, got %+v", action)
	}

	// Answering the next question (q2) appends it after q1 in the answer
	// order.
	if err := e.RecordAnswer("call-1", "thirty", "30"); err != nil {
		t.Fatalf("record answer 2: %v", err)
	}
	summary, err := e.Summary("call-1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(summary.AnswerOrder) != 2 {
		t.Fatalf("expected 2 answers recorded, got %d", len(summary.AnswerOrder))
	}

	action, err = e.Decide("call-1", Analysis{Valid: true, ShouldProceed: true}, 5*time.Minute)
	if err != nil {
		t.Fatalf("decide 2: %v", err)
	}
	if action.Kind != ActionContinueWith || action.Question.ID != "q_close" {
		t.Fatalf("expected continue to q_close, got %+v", action)
	}

	action, err = e.Decide("call-1", Analysis{Valid: true, ShouldProceed: true}, 5*time.Minute)
	if err != nil {
		t.Fatalf("decide 3: %v", err)
	}
	if action.Kind != ActionClose {
		t.Fatalf("expected close at the closing question, got %+v", action)
	}
}

func TestRecordAnswerRejectsOutOfRangeInteger(t *testing.T) {
	flow := basicFlow(t)
	fc := clock.NewFake(time.Now())
	e := NewEngine(flow, defaultScoring(), fc, commons.NewLogger("debug"))

	if _, err := e.Begin("call-2"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, _ = e.Decide("call-2", Analysis{Valid: true, ShouldProceed: true}, time.Hour) // advance past q1

	if err := e.RecordAnswer("call-2", "two hundred", "200"); err == nil {
		t.Fatal("expected out-of-range integer answer to be rejected")
	}
}

func TestDecideRetryOnInvalidAnalysis(t *testing.T) {
	flow := basicFlow(t)
	fc := clock.NewFake(time.Now())
	e := NewEngine(flow, defaultScoring(), fc, commons.NewLogger("debug"))

	if _, err := e.Begin("call-3"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	action, err := e.Decide("call-3", Analysis{Valid: false, Feedback: "please say your name"}, time.Minute)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if action.Kind != ActionRetry || action.FeedbackText != "please say your name" {
		t.Fatalf("expected retry with feedback, got %+v", action)
	}
}

func TestDecideRetriesOnValidAnalysisThatDeclinesToProceed(t *testing.T) {
	flow := basicFlow(t)
	fc := clock.NewFake(time.Now())
	e := NewEngine(flow, defaultScoring(), fc, commons.NewLogger("debug"))

	if _, err := e.Begin("call-3b"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	action, err := e.Decide("call-3b", Analysis{Valid: true, ShouldProceed: false, Feedback: "please clarify"}, time.Minute)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if action.Kind != ActionRetry || action.FeedbackText != "please clarify" {
		t.Fatalf("expected retry with feedback even though Valid=true, got %+v", action)
	}
}

func TestDynamicSelectionPrefersFamilyKeywordOverUnrelatedQuestion(t *testing.T) {
	flow := dynamicFlow(t)
	fc := clock.NewFake(time.Now())
	scoring := defaultScoring()
	e := NewEngine(flow, scoring, fc, commons.NewLogger("debug"))

	if _, err := e.Begin("call-4"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := e.RecordAnswer("call-4", "we traveled every holiday", "we traveled every holiday"); err != nil {
		t.Fatalf("record answer: %v", err)
	}

	action, err := e.Decide("call-4", Analysis{Valid: true, ShouldProceed: true}, 10*time.Minute)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if action.Kind != ActionContinueWith || action.Question.ID != "q2" {
		t.Fatalf("expected dynamic selection to favor q2 (family keyword + context), got %+v", action)
	}
}

func TestReasoningNextQuestionOverridesFlow(t *testing.T) {
	flow := basicFlow(t)
	fc := clock.NewFake(time.Now())
	e := NewEngine(flow, defaultScoring(), fc, commons.NewLogger("debug"))

	if _, err := e.Begin("call-5"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	action, err := e.Decide("call-5", Analysis{Valid: true, ShouldProceed: true, NextQuestionID: "q_close"}, time.Minute)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if action.Kind != ActionContinueWith || action.Question.ID != "q_close" {
		t.Fatalf("expected reasoning-named next question to override static pointer, got %+v", action)
	}
}
