package agent

// StepResult is the outcome of one pipeline step. FellBack marks that the
// model call failed and Value carries the step's deterministic fallback
// instead of generated text. Making the substitution visible in the type
// keeps the partial-degradation contract out of implicit error handling.
type StepResult struct {
	Value    string
	FellBack bool
}

// Step is one prompt-construction node in a specialist pipeline. Steps run
// strictly in configured order; each step's output is stored in the run
// state under Key and feeds later prompts.
type Step struct {
	// Name identifies the step in logs.
	Name string

	// Key is the derived state field this step computes.
	Key string

	// Prompt builds the system and user prompt from the accumulated state.
	Prompt func(s *State) (system, user string)

	// Fallback supplies the deterministic substitute for this step's field
	// when the model call fails; keyed by language ("tr" or anything else
	// for English).
	Fallback func(lang string) string
}

// Chunk is one unit of specialist output. Partial chunks carry incremental
// text; the final chunk carries the full concatenated reply plus the
// per-step outcomes.
type Chunk struct {
	Partial  bool
	Text     string
	FellBack bool                  // final chunk: any step substituted a fallback
	Steps    map[string]StepResult // final chunk only
}
