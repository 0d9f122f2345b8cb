package core

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Phase is the strictly ordered lifecycle of an exploration topic.
type Phase string

const (
	// PhaseNotStarted precedes the first question.
	PhaseNotStarted Phase = "not_started"
	// PhaseExplorationQuestions is the first fixed-length clarifying phase.
	PhaseExplorationQuestions Phase = "exploration_questions"
	// PhaseDeepQuestions is the second, history-informed phase.
	PhaseDeepQuestions Phase = "deep_questions"
	// PhaseCompleted means all answers are recorded and the accumulated
	// context is ready for the specialist.
	PhaseCompleted Phase = "completed"
)

// Question type labels carried on exploration_question events.
const (
	QuestionTypeExploration = "exploration"
	QuestionTypeDeep        = "deep"
)

// QuestionAnswer is one asked question and, once submitted, its answer.
type QuestionAnswer struct {
	Question       string     `json:"question"`
	Answer         string     `json:"answer,omitempty"`
	QuestionType   string     `json:"question_type"`
	QuestionNumber int        `json:"question_number"`
	AskedAt        time.Time  `json:"asked_at"`
	AnsweredAt     *time.Time `json:"answered_at,omitempty"`
}

// ExplorationState tracks one topic's clarifying sub-dialogue. It is owned by
// the dispatcher, keyed by conversation and topic id, and consumed read-once
// by the specialist after completion.
//
// Invariants:
//   - CurrentQuestionNumber is monotonically non-decreasing within a topic
//   - phase transitions follow not_started -> exploration_questions ->
//     deep_questions -> completed with no skips or revisits
//   - len(ExplorationQA)+len(DeepQA) == CurrentQuestionNumber-1 once at
//     least one answer is recorded
type ExplorationState struct {
	TopicID               string           `json:"topic_id"`
	ConversationID        string           `json:"conversation_id"`
	Phase                 Phase            `json:"phase"`
	CurrentQuestionNumber int              `json:"current_question_number"`
	TotalQuestions        int              `json:"total_questions"`
	ExplorationQA         []QuestionAnswer `json:"exploration_qa"`
	DeepQA                []QuestionAnswer `json:"deep_qa"`
	InitialConcern        string           `json:"initial_concern"`
	PendingQuestion       *QuestionAnswer  `json:"pending_question,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

// NewExplorationState opens a topic for a conversation at phase not_started.
func NewExplorationState(conversationID, initialConcern string, totalQuestions int) *ExplorationState {
	now := time.Now().UTC()
	return &ExplorationState{
		TopicID:        NewTopicID(),
		ConversationID: conversationID,
		Phase:          PhaseNotStarted,
		TotalQuestions: totalQuestions,
		InitialConcern: initialConcern,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// AnsweredCount returns the number of recorded answers across both phases.
func (s *ExplorationState) AnsweredCount() int {
	return len(s.ExplorationQA) + len(s.DeepQA)
}

// Clone returns a deep copy safe for independent mutation.
func (s *ExplorationState) Clone() *ExplorationState {
	clone := *s
	clone.ExplorationQA = make([]QuestionAnswer, len(s.ExplorationQA))
	copy(clone.ExplorationQA, s.ExplorationQA)
	clone.DeepQA = make([]QuestionAnswer, len(s.DeepQA))
	copy(clone.DeepQA, s.DeepQA)
	if s.PendingQuestion != nil {
		pq := *s.PendingQuestion
		clone.PendingQuestion = &pq
	}
	return &clone
}

// NewTopicID generates an exploration topic identifier of the form
// topic_<12 hex chars>.
func NewTopicID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return "topic_" + hex.EncodeToString(b)
}
