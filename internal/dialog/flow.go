package dialog

import (
	"sort"
	"strings"
	"time"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/config"
)

// kindScore returns the type-affinity base score for a question's answer
// kind (spec.md §4.5 dynamic selection, step "type affinity").
func kindScore(k AnswerKind, cfg config.DialogScoringConfig) int {
	switch k {
	case KindFreeText:
		return cfg.FreeTextScore
	case KindMultipleChoice:
		return cfg.MultipleChoiceScore
	case KindYesNo:
		return cfg.YesNoScore
	default:
		return 0
	}
}

// containsFamilyKeyword reports whether the rendered prompt mentions any
// configured family-domain keyword (case-insensitive).
func containsFamilyKeyword(rendered string, keywords []string) bool {
	lower := strings.ToLower(rendered)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// score computes the dynamic-selection score for a single candidate
// question against the current conversation state (spec.md §4.5): base
// type-affinity score, plus bonuses for referencing a populated context
// slot, mentioning a family-domain keyword, or continuing a context key
// already touched by a prior answer; minus a heavy penalty for questions
// already answered; plus/minus remaining-time-budget adjustments based on
// the rendered prompt's length.
func score(q *Question, state *ConversationState, remaining time.Duration, cfg config.DialogScoringConfig) int {
	if _, answered := state.Answers[q.ID]; answered {
		return cfg.AnsweredPenalty
	}

	rendered := RenderPrompt(q.PromptTemplate, state.ContextSlots)
	total := kindScore(q.Kind, cfg)

	for _, slot := range referencedSlots(q.PromptTemplate) {
		if _, populated := state.ContextSlots[slot]; populated {
			total += cfg.ContextSlotScore
			break
		}
	}

	if containsFamilyKeyword(rendered, cfg.FamilyKeywords) {
		total += cfg.FamilyKeywordScore
	}

	if q.ContextKey != "" {
		if _, touched := state.ContextSlots[q.ContextKey]; touched {
			total += cfg.RelevantContextScore
		}
	}

	switch {
	case remaining <= time.Minute:
		if len(rendered) <= cfg.ShortPromptChars1Min {
			total += cfg.ShortPromptBonus1Min
		} else {
			total += cfg.LongPromptPenalty1Min
		}
	case remaining <= 2*time.Minute:
		if len(rendered) <= cfg.ShortPromptChars2Min {
			total += cfg.ShortPromptBonus2Min
		}
	}

	return total
}

// SelectNext runs the dynamic-selection algorithm of spec.md §4.5: score
// every unanswered candidate question, pick the highest positive score,
// breaking ties by question id for determinism. Returns (nil, false) when
// no candidate scores above zero, meaning the call should close.
func SelectNext(flow *ConversationFlow, state *ConversationState, remaining time.Duration, cfg config.DialogScoringConfig) (*Question, bool) {
	candidateIDs := make([]string, 0, len(flow.Order))
	for _, id := range flow.Order {
		if id == state.CurrentQuestionID {
			continue
		}
		candidateIDs = append(candidateIDs, id)
	}
	sort.Strings(candidateIDs)

	var best *Question
	bestScore := 0
	for _, id := range candidateIDs {
		q := flow.Questions[id]
		s := score(q, state, remaining, cfg)
		if s > 0 && (best == nil || s > bestScore) {
			best = q
			bestScore = s
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}
