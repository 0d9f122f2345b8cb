package exploration

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/model"
	"github.com/parleyhq/parley/store"
)

func newTestService(t *testing.T) (*Service, *model.MockModel) {
	t.Helper()
	m := model.NewMockModel("test")
	return NewService(m, store.NewInMemoryStore()), m
}

func TestService_Start(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	q, err := svc.Start(ctx, "conv-1", nil, "My child will not sleep")
	require.NoError(t, err)

	assert.Equal(t, 1, q.Number)
	assert.Equal(t, core.QuestionTypeExploration, q.Type)
	assert.False(t, q.IsLast)
	assert.NotEmpty(t, q.Text)
	assert.Regexp(t, `^topic_[0-9a-f]{12}$`, q.TopicID)

	active, err := svc.Active(ctx, "conv-1")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestService_FullSequence(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	q, err := svc.Start(ctx, "conv-1", &core.Subject{ID: "child-1", AgeYears: 4}, "tantrums at dinner")
	require.NoError(t, err)
	require.Equal(t, 1, q.Number)

	for i := 1; i < 10; i++ {
		outcome, err := svc.SubmitAnswer(ctx, "conv-1", fmt.Sprintf("answer %d", i), nil)
		require.NoError(t, err)
		require.NotNil(t, outcome.Question, "answer %d should yield a next question", i)
		assert.Nil(t, outcome.Completed)

		next := outcome.Question
		assert.Equal(t, i+1, next.Number, "question numbers increase monotonically")
		if next.Number <= 5 {
			assert.Equal(t, core.QuestionTypeExploration, next.Type)
		} else {
			assert.Equal(t, core.QuestionTypeDeep, next.Type)
		}
		assert.Equal(t, next.Number == 10, next.IsLast)
	}

	outcome, err := svc.SubmitAnswer(ctx, "conv-1", "answer 10", nil)
	require.NoError(t, err)
	assert.Nil(t, outcome.Question)
	require.NotNil(t, outcome.Completed)

	state := outcome.Completed
	assert.Equal(t, core.PhaseCompleted, state.Phase)
	assert.Len(t, state.ExplorationQA, 5)
	assert.Len(t, state.DeepQA, 5)
	assert.Equal(t, "tantrums at dinner", state.InitialConcern)
	for i, qa := range state.ExplorationQA {
		assert.Equal(t, i+1, qa.QuestionNumber)
		require.NotNil(t, qa.AnsweredAt)
	}
	for i, qa := range state.DeepQA {
		assert.Equal(t, i+6, qa.QuestionNumber)
	}

	active, err := svc.Active(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestService_PhaseTransitionAfterFifthAnswer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Start(ctx, "conv-1", nil, "concern")
	require.NoError(t, err)

	var outcome *Outcome
	for i := 1; i <= 5; i++ {
		outcome, err = svc.SubmitAnswer(ctx, "conv-1", fmt.Sprintf("answer %d", i), nil)
		require.NoError(t, err)
	}

	require.NotNil(t, outcome.Question)
	assert.Equal(t, 6, outcome.Question.Number)
	assert.Equal(t, core.QuestionTypeDeep, outcome.Question.Type)
}

func TestService_SubmitAnswer_NoTopic(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.SubmitAnswer(context.Background(), "missing", "answer", nil)
	assert.ErrorIs(t, err, core.ErrNoPendingQuestion)
}

func TestService_SubmitAnswer_EmptyAnswer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Start(ctx, "conv-1", nil, "concern")
	require.NoError(t, err)

	_, err = svc.SubmitAnswer(ctx, "conv-1", "   ", nil)
	assert.ErrorIs(t, err, core.ErrValidation)

	// rejection leaves the pending question answerable
	outcome, err := svc.SubmitAnswer(ctx, "conv-1", "a real answer", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Question.Number)
}

func TestService_SubmitAnswer_AfterCompletion(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Start(ctx, "conv-1", nil, "concern")
	require.NoError(t, err)
	for i := 1; i <= 10; i++ {
		_, err = svc.SubmitAnswer(ctx, "conv-1", fmt.Sprintf("answer %d", i), nil)
		require.NoError(t, err)
	}

	_, err = svc.SubmitAnswer(ctx, "conv-1", "one more", nil)
	assert.ErrorIs(t, err, core.ErrExplorationComplete)
}

func TestService_FallbackQuestions_OnModelFailure(t *testing.T) {
	svc, m := newTestService(t)
	m.FailAll(true)
	ctx := context.Background()

	q, err := svc.Start(ctx, "conv-1", nil, "concern")
	require.NoError(t, err)
	assert.Equal(t, FallbackQuestion(1), q.Text)

	outcome, err := svc.SubmitAnswer(ctx, "conv-1", "answer", nil)
	require.NoError(t, err)
	assert.Equal(t, FallbackQuestion(2), outcome.Question.Text)
}

func TestService_Discard(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Start(ctx, "conv-1", nil, "concern")
	require.NoError(t, err)

	require.NoError(t, svc.Discard(ctx, "conv-1"))

	active, err := svc.Active(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestFallbackQuestion_CoversAllNumbers(t *testing.T) {
	for n := 1; n <= 10; n++ {
		assert.NotEmpty(t, FallbackQuestion(n), "question %d", n)
	}
}
