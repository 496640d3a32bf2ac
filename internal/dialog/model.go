// Package dialog implements the Dialog Engine (C5): the per-call
// conversation state machine that serves prompts, records answers and
// decides the next question, per spec.md §3/§4.5. The flow configuration
// is loaded once at startup and immutable thereafter (spec.md §3,
// "Question... Lifecycle: loaded once at startup... immutable").
package dialog

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// ValidationRule is one of the validation kinds of spec.md §3.
type ValidationRule string

const (
	ValidationNone           ValidationRule = "none"
	ValidationNonEmpty       ValidationRule = "nonEmpty"
	ValidationIntegerInRange ValidationRule = "integerInRange"
)

// AnswerKind is the expected answer kind of a Question (spec.md §3),
// used by the dynamic scoring algorithm's type-affinity bonus.
type AnswerKind string

const (
	KindFreeText       AnswerKind = "freeText"
	KindMultipleChoice AnswerKind = "multipleChoice"
	KindYesNo          AnswerKind = "yesNo"
)

// DynamicNext is the sentinel Question.Next value marking a question as
// dynamically-selected rather than statically pointer-driven.
const DynamicNext = "dynamic"

// EndFlow is the sentinel Question.Next value meaning "close the call".
const EndFlow = "end"

// Question is one node of the ConversationFlow (spec.md §3).
type Question struct {
	ID             string         `json:"id"`
	PromptTemplate string         `json:"promptTemplate"`
	Validation     ValidationRule `json:"validation"`
	Kind           AnswerKind     `json:"kind"`
	ContextKey     string         `json:"contextKey,omitempty"`
	Next           string         `json:"next"` // a question id, EndFlow, or DynamicNext
	MinInt         int            `json:"minInt,omitempty"`
	MaxInt         int            `json:"maxInt,omitempty"`
}

// IsDynamic reports whether next-question selection for this question
// must use the scoring algorithm rather than a static pointer.
func (q Question) IsDynamic() bool {
	return q.Next == DynamicNext
}

// IsClosing reports whether q is the flow's distinguished closing
// question.
func (q Question) IsClosing(flow *ConversationFlow) bool {
	return q.ID == flow.ClosingQuestionID
}

var placeholderRe = regexp.MustCompile(`\{\{(\w+)\}\}`)

// RenderPrompt substitutes {{name}} placeholders in template with values
// from slots (spec.md §3: "prompt template (may reference context slots
// via {{name}} placeholders)"). Unresolved placeholders are left as-is.
func RenderPrompt(template string, slots map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := slots[name]; ok {
			return v
		}
		return match
	})
}

// referencedSlots returns every slot name the template references.
func referencedSlots(template string) []string {
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		out = append(out, m[1])
	}
	return out
}

// ConversationFlow is the ordered question set (spec.md §3), with a
// distinguished first and closing question.
type ConversationFlow struct {
	Questions         map[string]*Question `json:"-"`
	Order             []string              `json:"-"`
	FirstQuestionID   string                `json:"firstQuestionId"`
	ClosingQuestionID string                `json:"closingQuestionId"`
}

// flowFile is the on-disk shape of the flow configuration file.
type flowFile struct {
	FirstQuestionID   string      `json:"firstQuestionId"`
	ClosingQuestionID string      `json:"closingQuestionId"`
	Questions         []*Question `json:"questions"`
}

// LoadFlow reads the ConversationFlow from a JSON configuration file,
// loaded once at startup per spec.md §3.
func LoadFlow(path string) (*ConversationFlow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow config %s: %w", path, err)
	}
	var ff flowFile
	if err := json.Unmarshal(raw, &ff); err != nil {
		return nil, fmt.Errorf("parse flow config %s: %w", path, err)
	}
	return NewFlow(ff.FirstQuestionID, ff.ClosingQuestionID, ff.Questions)
}

// NewFlow builds a ConversationFlow from an in-memory question list.
// Dynamic selection breaks score ties by ascending question id, not by
// list order.
func NewFlow(firstID, closingID string, questions []*Question) (*ConversationFlow, error) {
	flow := &ConversationFlow{
		Questions:         make(map[string]*Question, len(questions)),
		FirstQuestionID:   firstID,
		ClosingQuestionID: closingID,
	}
	for _, q := range questions {
		flow.Questions[q.ID] = q
		flow.Order = append(flow.Order, q.ID)
	}
	if _, ok := flow.Questions[firstID]; !ok {
		return nil, fmt.Errorf("flow: first question %q not found", firstID)
	}
	return flow, nil
}

// AnswerEntry is one recorded answer (spec.md §3).
type AnswerEntry struct {
	RawTranscript  string    `json:"rawTranscript"`
	NormalizedText string    `json:"normalizedText"`
	AnsweredAt     time.Time `json:"answeredAt"`
}

// ConversationState is the per-live-call conversation record (spec.md
// §3). Mutated only by the Turn Processor or explicit cleanup; reads by
// the Prompt Handler are point-in-time snapshots (handed out as copies by
// the Engine, never this struct directly).
type ConversationState struct {
	CallID            string
	CurrentQuestionID string
	AnswerOrder       []string
	Answers           map[string]AnswerEntry
	ContextSlots      map[string]string
	StartedAt         time.Time
	LastUpdatedAt     time.Time
}

// Snapshot returns a defensive copy safe to hand to a reader outside the
// Engine's lock (spec.md §4.5: "reads by the Prompt Handler are
// point-in-time snapshots").
func (c *ConversationState) Snapshot() *ConversationState {
	cp := &ConversationState{
		CallID:            c.CallID,
		CurrentQuestionID: c.CurrentQuestionID,
		StartedAt:         c.StartedAt,
		LastUpdatedAt:     c.LastUpdatedAt,
		Answers:           make(map[string]AnswerEntry, len(c.Answers)),
		ContextSlots:      make(map[string]string, len(c.ContextSlots)),
		AnswerOrder:       append([]string(nil), c.AnswerOrder...),
	}
	for k, v := range c.Answers {
		cp.Answers[k] = v
	}
	for k, v := range c.ContextSlots {
		cp.ContextSlots[k] = v
	}
	return cp
}

// NextActionKind is one arm of the NextAction sum type (spec.md §4.5).
type NextActionKind string

const (
	ActionContinueWith NextActionKind = "continue"
	ActionRetry        NextActionKind = "retry"
	ActionClose        NextActionKind = "close"
)

// NextAction is Decide's result: ContinueWith(Question) | Retry(feedback)
// | Close(closingText).
type NextAction struct {
	Kind        NextActionKind
	Question    *Question
	FeedbackText string
	ClosingText string
}

// Analysis is the structured reasoning-client response the Turn Processor
// feeds into Decide (spec.md §4.6 step 4).
type Analysis struct {
	Valid          bool
	Summary        string
	ShouldProceed  bool
	NextQuestionID string
	Feedback       string
}
