package agent

import (
	"context"
	"time"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/model"
)

// Specialist is one interchangeable reply generator identified by id. Each
// carries its own prompt steps and a full-reply fallback per language, used
// when the composing step itself fails.
type Specialist struct {
	ID          string
	DisplayName string
	Description string
	Temperature float64

	// Fallbacks maps language code to the canned full reply. "en" must be
	// present; unknown languages resolve to English.
	Fallbacks map[string]string

	// Steps run strictly in order. The last step composes the reply and is
	// the only streaming step.
	Steps []Step
}

// FallbackFor returns the canned full reply for a language, defaulting to
// English for any language without a dedicated string.
func (sp *Specialist) FallbackFor(lang string) string {
	if s, ok := sp.Fallbacks[lang]; ok {
		return s
	}
	return sp.Fallbacks["en"]
}

// PipelineOptions configure a Pipeline.
type PipelineOptions struct {
	Logger logging.Logger
}

// Pipeline executes specialist steps against a model.
type Pipeline struct {
	model model.Model
	opts  PipelineOptions
}

// NewPipeline creates a pipeline bound to a model.
func NewPipeline(m model.Model, optFns ...func(o *PipelineOptions)) *Pipeline {
	opts := PipelineOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Pipeline{model: m, opts: opts}
}

// Run executes the specialist's steps in order against the accumulated
// state. Non-final steps are non-streaming; a failed step stores its
// fallback value and processing continues. The final step streams partial
// chunks, then a terminal chunk whose Text is the full reply.
//
// If the final step fails before any partial chunk was delivered, the
// specialist's full fallback string for the state's language becomes the
// reply. If it fails after partial delivery, the reply is frozen at the
// text delivered so far, keeping the delivered-equals-final invariant.
func (p *Pipeline) Run(ctx context.Context, sp *Specialist, st *State) (<-chan Chunk, <-chan error) {
	out := make(chan Chunk, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		for i, step := range sp.Steps {
			if i == len(sp.Steps)-1 {
				p.runComposeStep(ctx, sp, step, st, out)
				if ctx.Err() != nil {
					errCh <- ctx.Err()
				}
				return
			}
			p.runDerivedStep(ctx, sp, step, st)
			if ctx.Err() != nil {
				errCh <- ctx.Err()
				return
			}
		}
	}()
	return out, errCh
}

// runDerivedStep executes a non-streaming step, storing either the model
// output or the step fallback. Reports whether the fallback was used.
func (p *Pipeline) runDerivedStep(ctx context.Context, sp *Specialist, step Step, st *State) bool {
	system, user := step.Prompt(st)
	start := time.Now()
	text, err := p.generate(ctx, sp, system, user, false, nil)
	if err != nil {
		p.opts.Logger.Warn("specialist step failed, using fallback",
			"specialist", sp.ID, "step", step.Name, "error", err, "duration", time.Since(start))
		st.SetDerived(step.Key, StepResult{Value: step.Fallback(st.Language), FellBack: true})
		return true
	}
	p.opts.Logger.Debug("specialist step completed",
		"specialist", sp.ID, "step", step.Name, "duration", time.Since(start))
	st.SetDerived(step.Key, StepResult{Value: text})
	return false
}

// runComposeStep executes the final, streaming step and emits the terminal
// chunk. Reports whether any fallback was substituted for the reply.
func (p *Pipeline) runComposeStep(ctx context.Context, sp *Specialist, step Step, st *State, out chan<- Chunk) bool {
	system, user := step.Prompt(st)
	start := time.Now()

	delivered := false
	full, err := p.generate(ctx, sp, system, user, true, func(delta string) {
		delivered = true
		send(ctx, out, Chunk{Partial: true, Text: delta})
	})

	anyStepFellBack := false
	for _, r := range st.Results() {
		if r.FellBack {
			anyStepFellBack = true
		}
	}

	switch {
	case err == nil:
		p.opts.Logger.Debug("specialist compose completed",
			"specialist", sp.ID, "step", step.Name, "duration", time.Since(start))
		st.SetDerived(step.Key, StepResult{Value: full})
		send(ctx, out, Chunk{Partial: false, Text: full, FellBack: anyStepFellBack, Steps: st.Results()})
		return false
	case ctx.Err() != nil:
		return true
	case !delivered:
		fallback := sp.FallbackFor(st.Language)
		p.opts.Logger.Warn("specialist compose failed, using fallback reply",
			"specialist", sp.ID, "step", step.Name, "error", err)
		st.SetDerived(step.Key, StepResult{Value: fallback, FellBack: true})
		if send(ctx, out, Chunk{Partial: true, Text: fallback}) {
			send(ctx, out, Chunk{Partial: false, Text: fallback, FellBack: true, Steps: st.Results()})
		}
		return true
	default:
		// stream broke after partial delivery: freeze what went out
		p.opts.Logger.Warn("specialist stream interrupted, freezing delivered text",
			"specialist", sp.ID, "step", step.Name, "error", err)
		st.SetDerived(step.Key, StepResult{Value: full, FellBack: true})
		send(ctx, out, Chunk{Partial: false, Text: full, FellBack: true, Steps: st.Results()})
		return true
	}
}

// send delivers one chunk unless the consumer's context ended, so an
// abandoned stream never wedges the pipeline goroutine on a full buffer.
func send(ctx context.Context, out chan<- Chunk, ch Chunk) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ch:
		return true
	}
}

// generate runs one model call, forwarding partial text through onDelta when
// streaming, and returns the final concatenated text.
func (p *Pipeline) generate(ctx context.Context, sp *Specialist, system, user string, stream bool, onDelta func(string)) (string, error) {
	req := model.Request{
		System:      system,
		Turns:       []model.Turn{{Role: core.RoleUser, Content: user}},
		Stream:      stream,
		Temperature: sp.Temperature,
	}

	respCh, errCh := p.model.Generate(ctx, req)

	var full string
	var final string
	for resp := range respCh {
		if resp.Partial {
			full += resp.Text
			if onDelta != nil {
				onDelta(resp.Text)
			}
			continue
		}
		final = resp.Text
	}
	if err := <-errCh; err != nil {
		if full != "" && final == "" {
			// partial text already surfaced before the failure
			return full, err
		}
		return "", err
	}
	if final != "" {
		return final, nil
	}
	return full, nil
}
