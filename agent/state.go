package agent

import (
	"fmt"
	"strings"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/model"
)

// State is the mutable record accumulated across one specialist run. Merge
// semantics are explicit per field: the conversation history only appends,
// derived step outputs replace by key (last write wins). There is no generic
// map merge.
type State struct {
	Language      string
	SubjectAge    int
	SubjectName   string
	Concern       string
	History       []model.Turn
	ExplorationQA []core.QuestionAnswer
	DeepQA        []core.QuestionAnswer

	derived map[string]StepResult
}

// NewState builds a run state from request context, applying the documented
// defaults (age 6, language "en") where the caller supplied nothing.
func NewState(concern string) *State {
	return &State{
		Language:   "en",
		SubjectAge: core.DefaultSubjectAge,
		Concern:    concern,
		derived:    map[string]StepResult{},
	}
}

// AppendHistory appends turns to the conversation history. History never
// shrinks or reorders within a run.
func (s *State) AppendHistory(turns ...model.Turn) {
	s.History = append(s.History, turns...)
}

// SetDerived records a step's output under its key, replacing any prior value.
func (s *State) SetDerived(key string, result StepResult) {
	s.derived[key] = result
}

// Derived returns the recorded output for a key, or an empty result.
func (s *State) Derived(key string) StepResult {
	return s.derived[key]
}

// DerivedValue returns just the text for a key, or the given default when the
// step never ran.
func (s *State) DerivedValue(key, def string) string {
	if r, ok := s.derived[key]; ok {
		return r.Value
	}
	return def
}

// Results returns a copy of all recorded step outputs keyed by field.
func (s *State) Results() map[string]StepResult {
	out := make(map[string]StepResult, len(s.derived))
	for k, v := range s.derived {
		out[k] = v
	}
	return out
}

// QASummary renders the accumulated exploration context as prompt text, or
// an empty string when no exploration preceded this run.
func (s *State) QASummary() string {
	if len(s.ExplorationQA) == 0 && len(s.DeepQA) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("PREVIOUS QUESTIONS AND ANSWERS:\n")
	for _, qa := range s.ExplorationQA {
		fmt.Fprintf(&b, "\nQ%d: %s\nA%d: %s\n", qa.QuestionNumber, qa.Question, qa.QuestionNumber, qa.Answer)
	}
	for _, qa := range s.DeepQA {
		fmt.Fprintf(&b, "\nQ%d: %s\nA%d: %s\n", qa.QuestionNumber, qa.Question, qa.QuestionNumber, qa.Answer)
	}
	return b.String()
}

// HistorySummary renders recent conversation turns as prompt text.
func (s *State) HistorySummary() string {
	if len(s.History) == 0 {
		return "No previous messages."
	}
	var b strings.Builder
	for _, t := range s.History {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	return b.String()
}
