package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/model"
)

// collect drains a pipeline run into partial texts and the terminal chunk.
func collect(t *testing.T, chunks <-chan Chunk, errCh <-chan error) ([]string, *Chunk, error) {
	t.Helper()
	var partials []string
	var final *Chunk
	for ch := range chunks {
		if ch.Partial {
			partials = append(partials, ch.Text)
			continue
		}
		c := ch
		final = &c
	}
	return partials, final, <-errCh
}

func TestPipeline_Run_Success(t *testing.T) {
	m := model.NewMockModel("test")
	p := NewPipeline(m)
	sp := NewRealityCheckerSpecialist()
	st := NewState("My child refuses to nap")

	chunks, errCh := p.Run(context.Background(), sp, st)
	partials, final, err := collect(t, chunks, errCh)

	require.NoError(t, err)
	require.NotNil(t, final)
	assert.False(t, final.FellBack)
	assert.Equal(t, strings.Join(partials, ""), final.Text)

	// every step recorded its output
	for _, key := range []string{"concern_category", "norm_assessment", "reframed_concern", "reply"} {
		r, ok := final.Steps[key]
		assert.True(t, ok, "missing step result %q", key)
		assert.False(t, r.FellBack)
		assert.NotEmpty(t, r.Value)
	}
}

func TestPipeline_Run_ComposeFallback_English(t *testing.T) {
	m := model.NewMockModel("test")
	m.FailAll(true)
	p := NewPipeline(m)
	sp := NewQuickAnswerSpecialist()
	st := NewState("Is it normal for a toddler to throw food?")

	chunks, errCh := p.Run(context.Background(), sp, st)
	partials, final, err := collect(t, chunks, errCh)

	require.NoError(t, err)
	require.NotNil(t, final)
	assert.True(t, final.FellBack)
	assert.Equal(t, fallbackReplyEN, final.Text)
	assert.Equal(t, fallbackReplyEN, strings.Join(partials, ""))
}

func TestPipeline_Run_ComposeFallback_Turkish(t *testing.T) {
	m := model.NewMockModel("test")
	m.FailAll(true)
	p := NewPipeline(m)
	sp := NewQuickAnswerSpecialist()
	st := NewState("Çocuğum yemek yemiyor")
	st.Language = "tr"

	chunks, errCh := p.Run(context.Background(), sp, st)
	partials, final, err := collect(t, chunks, errCh)

	require.NoError(t, err)
	require.NotNil(t, final)
	assert.True(t, final.FellBack)
	assert.Equal(t, fallbackReplyTR, final.Text)
	assert.Equal(t, fallbackReplyTR, strings.Join(partials, ""))
}

func TestPipeline_Run_PartialDegradation(t *testing.T) {
	m := model.NewMockModel("test")
	m.FailTimes(3) // all derived steps fail, compose succeeds
	p := NewPipeline(m)
	sp := NewRealityCheckerSpecialist()
	st := NewState("My 6yo wakes up at night")

	chunks, errCh := p.Run(context.Background(), sp, st)
	partials, final, err := collect(t, chunks, errCh)

	require.NoError(t, err)
	require.NotNil(t, final)
	assert.True(t, final.FellBack)
	assert.NotEqual(t, fallbackReplyEN, final.Text)
	assert.Equal(t, strings.Join(partials, ""), final.Text)

	assert.True(t, final.Steps["concern_category"].FellBack)
	assert.Equal(t, "general behavioral concern", final.Steps["concern_category"].Value)
	assert.True(t, final.Steps["norm_assessment"].FellBack)
	assert.True(t, final.Steps["reframed_concern"].FellBack)
	assert.False(t, final.Steps["reply"].FellBack)
}

func TestPipeline_Run_StepOrder(t *testing.T) {
	m := model.NewMockModel("test")
	p := NewPipeline(m)

	var order []string
	record := func(name string) func(s *State) (string, string) {
		return func(s *State) (string, string) {
			order = append(order, name)
			return "system", name
		}
	}
	sp := &Specialist{
		ID:        "ordered",
		Fallbacks: defaultFallbacks(),
		Steps: []Step{
			{Name: "first", Key: "a", Prompt: record("first"), Fallback: func(string) string { return "" }},
			{Name: "second", Key: "b", Prompt: record("second"), Fallback: func(string) string { return "" }},
			{Name: "compose", Key: "reply", Prompt: record("compose"), Fallback: func(string) string { return "" }},
		},
	}

	chunks, errCh := p.Run(context.Background(), sp, NewState("test"))
	_, final, err := collect(t, chunks, errCh)

	require.NoError(t, err)
	require.NotNil(t, final)
	assert.Equal(t, []string{"first", "second", "compose"}, order)
}

func TestPipeline_Run_LaterStepSeesEarlierFallback(t *testing.T) {
	m := model.NewMockModel("test")
	m.FailTimes(1)
	p := NewPipeline(m)

	var seen string
	sp := &Specialist{
		ID:        "chained",
		Fallbacks: defaultFallbacks(),
		Steps: []Step{
			{
				Name:     "derive",
				Key:      "derived",
				Prompt:   func(s *State) (string, string) { return "system", "derive" },
				Fallback: func(string) string { return "fallback value" },
			},
			{
				Name: "compose",
				Key:  "reply",
				Prompt: func(s *State) (string, string) {
					seen = s.DerivedValue("derived", "")
					return "system", "compose"
				},
				Fallback: func(string) string { return fallbackReplyEN },
			},
		},
	}

	chunks, errCh := p.Run(context.Background(), sp, NewState("test"))
	_, final, err := collect(t, chunks, errCh)

	require.NoError(t, err)
	require.NotNil(t, final)
	assert.Equal(t, "fallback value", seen)
}

func TestPipeline_Run_ContextCancelled(t *testing.T) {
	m := model.NewMockModel("test")
	p := NewPipeline(m)
	sp := NewQuickAnswerSpecialist()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chunks, errCh := p.Run(ctx, sp, NewState("test"))
	_, _, err := collect(t, chunks, errCh)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_Run_AbandonedConsumerDoesNotWedge(t *testing.T) {
	m := model.NewMockModel("test")
	// enough words to overrun the chunk buffer after the consumer walks away
	m.AddResponse("long", strings.Repeat("word ", 100))
	p := NewPipeline(m)
	sp := &Specialist{
		ID:        "long-winded",
		Fallbacks: defaultFallbacks(),
		Steps: []Step{
			{
				Name:     "compose",
				Key:      "reply",
				Prompt:   func(s *State) (string, string) { return "system", "long" },
				Fallback: func(string) string { return fallbackReplyEN },
			},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	chunks, errCh := p.Run(ctx, sp, NewState("test"))

	// read one delta, then abandon the stream mid-flight
	<-chunks
	cancel()

	assert.ErrorIs(t, <-errCh, context.Canceled)
	for range chunks {
	}
}

func TestSpecialist_FallbackFor_UnknownLanguage(t *testing.T) {
	sp := NewQuickAnswerSpecialist()
	assert.Equal(t, fallbackReplyEN, sp.FallbackFor("de"))
	assert.Equal(t, fallbackReplyTR, sp.FallbackFor("tr"))
}
