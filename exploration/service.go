package exploration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/model"
)

// Question is one emitted clarifying question.
type Question struct {
	Text    string
	Number  int
	Type    string // exploration or deep
	IsLast  bool
	TopicID string
}

// Outcome is the result of one accepted answer: either the next question or
// the completed topic state, never both.
type Outcome struct {
	Question  *Question
	Completed *core.ExplorationState
}

// Options configure the exploration service.
type Options struct {
	Logger               logging.Logger
	ExplorationQuestions int
	DeepQuestions        int
	Temperature          float64
}

// Service drives the exploration state machine for one topic at a time per
// conversation. All state mutation happens on a clone and is stored only
// after the full transition succeeds, so a failed submission leaves the
// persisted state untouched.
type Service struct {
	model model.Model
	store core.ExplorationStore
	opts  Options
}

// NewService creates an exploration service.
func NewService(m model.Model, store core.ExplorationStore, optFns ...func(o *Options)) *Service {
	opts := Options{
		Logger:               logging.NoOpLogger{},
		ExplorationQuestions: DefaultExplorationQuestions,
		DeepQuestions:        DefaultDeepQuestions,
		Temperature:          0.7,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Service{model: m, store: store, opts: opts}
}

func (s *Service) totalQuestions() int {
	return s.opts.ExplorationQuestions + s.opts.DeepQuestions
}

// Start opens a topic for a conversation and returns the first question.
// Any previously completed topic for the conversation is replaced.
func (s *Service) Start(ctx context.Context, conversationID string, subject *core.Subject, concern string) (*Question, error) {
	state := core.NewExplorationState(conversationID, concern, s.totalQuestions())
	state.Phase = core.PhaseExplorationQuestions

	q := s.askQuestion(ctx, state, 1, subject)
	if err := s.store.PutExploration(ctx, state); err != nil {
		return nil, fmt.Errorf("%w: put exploration: %v", core.ErrStore, err)
	}

	s.opts.Logger.Info("exploration started",
		"conversation_id", conversationID, "topic_id", state.TopicID)
	return q, nil
}

// SubmitAnswer records the answer to the pending question and advances the
// state machine. Sequence errors leave stored state unchanged.
func (s *Service) SubmitAnswer(ctx context.Context, conversationID, answer string, subject *core.Subject) (*Outcome, error) {
	stored, err := s.store.GetExploration(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: conversation %s", core.ErrNoPendingQuestion, conversationID)
	}
	if stored.Phase == core.PhaseCompleted {
		return nil, core.ErrExplorationComplete
	}
	if stored.PendingQuestion == nil {
		return nil, core.ErrNoPendingQuestion
	}
	if strings.TrimSpace(answer) == "" {
		return nil, fmt.Errorf("%w: answer must not be empty", core.ErrValidation)
	}

	state := stored.Clone()
	pending := *state.PendingQuestion
	now := time.Now().UTC()
	pending.Answer = answer
	pending.AnsweredAt = &now
	if pending.QuestionType == core.QuestionTypeExploration {
		state.ExplorationQA = append(state.ExplorationQA, pending)
	} else {
		state.DeepQA = append(state.DeepQA, pending)
	}
	state.PendingQuestion = nil
	state.UpdatedAt = now

	answered := pending.QuestionNumber
	switch {
	case answered < state.TotalQuestions:
		if answered == s.opts.ExplorationQuestions {
			state.Phase = core.PhaseDeepQuestions
		}
		q := s.askQuestion(ctx, state, answered+1, subject)
		if err := s.store.PutExploration(ctx, state); err != nil {
			return nil, fmt.Errorf("%w: put exploration: %v", core.ErrStore, err)
		}
		return &Outcome{Question: q}, nil
	default:
		state.Phase = core.PhaseCompleted
		if err := s.store.PutExploration(ctx, state); err != nil {
			return nil, fmt.Errorf("%w: put exploration: %v", core.ErrStore, err)
		}
		s.opts.Logger.Info("exploration completed",
			"conversation_id", conversationID, "topic_id", state.TopicID)
		return &Outcome{Completed: state.Clone()}, nil
	}
}

// Active reports whether the conversation has a topic in a questioning phase.
func (s *Service) Active(ctx context.Context, conversationID string) (bool, error) {
	state, err := s.store.GetExploration(ctx, conversationID)
	if err != nil {
		return false, nil
	}
	return state.Phase == core.PhaseExplorationQuestions || state.Phase == core.PhaseDeepQuestions, nil
}

// Discard removes a consumed topic after its context has been handed to a
// specialist.
func (s *Service) Discard(ctx context.Context, conversationID string) error {
	return s.store.DeleteExploration(ctx, conversationID)
}

// askQuestion generates question number n, falling back to the canned
// question on model failure, and installs it as the pending question.
func (s *Service) askQuestion(ctx context.Context, state *core.ExplorationState, number int, subject *core.Subject) *Question {
	qType := core.QuestionTypeExploration
	if number > s.opts.ExplorationQuestions {
		qType = core.QuestionTypeDeep
	}

	age := core.DefaultSubjectAge
	if subject != nil && subject.AgeYears > 0 {
		age = subject.AgeYears
	}

	text, err := s.generateQuestion(ctx, state, number, age)
	if err != nil {
		s.opts.Logger.Warn("question generation failed, using fallback",
			"topic_id", state.TopicID, "question_number", number, "error", err)
		text = FallbackQuestion(number)
	}

	state.CurrentQuestionNumber = number
	state.PendingQuestion = &core.QuestionAnswer{
		Question:       text,
		QuestionType:   qType,
		QuestionNumber: number,
		AskedAt:        time.Now().UTC(),
	}
	state.UpdatedAt = time.Now().UTC()

	return &Question{
		Text:    text,
		Number:  number,
		Type:    qType,
		IsLast:  number == state.TotalQuestions,
		TopicID: state.TopicID,
	}
}

func (s *Service) generateQuestion(ctx context.Context, state *core.ExplorationState, number, subjectAge int) (string, error) {
	system, user := buildQuestionPrompt(state, number, s.opts.ExplorationQuestions, s.totalQuestions(), subjectAge)
	respCh, errCh := s.model.Generate(ctx, model.Request{
		System:      system,
		Turns:       []model.Turn{{Role: core.RoleUser, Content: user}},
		Temperature: s.opts.Temperature,
	})

	var text string
	for resp := range respCh {
		if !resp.Partial {
			text = resp.Text
		}
	}
	if err := <-errCh; err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty question", core.ErrUpstreamModel)
	}
	return text, nil
}
