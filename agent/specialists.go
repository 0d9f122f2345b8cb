package agent

import "fmt"

// Shared full-reply fallbacks. The English wording follows the product's
// established apology copy; Turkish is the one additional supported language.
const (
	fallbackReplyEN = "I apologize, but I'm having trouble processing your message right now. Please try again in a moment, or rephrase your question. Your concern is important to me."
	fallbackReplyTR = "Üzgünüm, şu anda mesajınızı işlemekte zorlanıyorum. Lütfen birazdan tekrar deneyin ya da sorunuzu farklı bir şekilde ifade edin. Endişeniz benim için önemli."
)

func pick(lang, tr, en string) string {
	if lang == "tr" {
		return tr
	}
	return en
}

func defaultFallbacks() map[string]string {
	return map[string]string{"en": fallbackReplyEN, "tr": fallbackReplyTR}
}

func languageInstruction(lang string) string {
	if lang == "tr" {
		return "Respond in Turkish."
	}
	return "Respond in English."
}

// NewRealityCheckerSpecialist builds the multi-step reality-checker:
// classify the concern, assess it against age norms, reframe it, then
// compose the reply.
func NewRealityCheckerSpecialist() *Specialist {
	return &Specialist{
		ID:          "reality-checker",
		DisplayName: "Reality Checker",
		Description: "Assesses whether a behavior is developmentally normal and reframes the concern.",
		Temperature: 0.7,
		Fallbacks:   defaultFallbacks(),
		Steps: []Step{
			{
				Name: "classify_concern",
				Key:  "concern_category",
				Prompt: func(s *State) (string, string) {
					system := "You classify parenting concerns into a short category label " +
						"(e.g. sleep, eating, tantrums, social, school, screen time). " +
						"Answer with the category only."
					user := fmt.Sprintf("Child's age: %d years\nConcern: %s", s.SubjectAge, s.Concern)
					return system, user
				},
				Fallback: func(lang string) string {
					return pick(lang, "genel davranış endişesi", "general behavioral concern")
				},
			},
			{
				Name: "assess_norm",
				Key:  "norm_assessment",
				Prompt: func(s *State) (string, string) {
					system := "You are a child development expert. State briefly (2-3 sentences) whether " +
						"the described behavior is developmentally typical for the child's age and why."
					user := fmt.Sprintf("Child's age: %d years\nCategory: %s\nConcern: %s",
						s.SubjectAge, s.DerivedValue("concern_category", "general behavioral concern"), s.Concern)
					return system, user
				},
				Fallback: func(lang string) string {
					return pick(lang,
						"Bu tür davranışlar bu yaş grubunda sık görülür ve tek başına endişe verici değildir.",
						"Behavior like this is common at this age and is usually not a cause for alarm on its own.")
				},
			},
			{
				Name: "reframe",
				Key:  "reframed_concern",
				Prompt: func(s *State) (string, string) {
					system := "Reframe the parent's concern in one warm, non-judgmental sentence that " +
						"normalizes their experience without dismissing it."
					user := fmt.Sprintf("Concern: %s\nAssessment: %s",
						s.Concern, s.DerivedValue("norm_assessment", ""))
					return system, user
				},
				Fallback: func(lang string) string {
					return pick(lang,
						"Birçok ebeveyn benzer durumlarla karşılaşır; endişenizi anlamak ilk adımdır.",
						"Many parents face situations like this; understanding your concern is the first step.")
				},
			},
			composeStep(func(s *State) string {
				return fmt.Sprintf(`ANALYSIS RESULTS:

Concern Category:
%s

Developmental Assessment:
%s

Reframed Concern:
%s`,
					s.DerivedValue("concern_category", "Not available"),
					s.DerivedValue("norm_assessment", "Not available"),
					s.DerivedValue("reframed_concern", "Not available"))
			}),
		},
	}
}

// NewBehaviorAnalystSpecialist builds the two-step behavior analyst:
// analyze the pattern, then compose the reply.
func NewBehaviorAnalystSpecialist() *Specialist {
	return &Specialist{
		ID:          "behavior-analyst",
		DisplayName: "Behavior Analyst",
		Description: "Analyzes behavior patterns across the conversation history.",
		Temperature: 0.7,
		Fallbacks:   defaultFallbacks(),
		Steps: []Step{
			{
				Name: "analyze_pattern",
				Key:  "behavior_analysis",
				Prompt: func(s *State) (string, string) {
					system := "You are a behavior analyst for parents. Provide a brief analysis " +
						"(3-4 paragraphs) of the described behavior: likely function of the behavior, " +
						"patterns or triggers visible in the context, and whether it is age-appropriate."
					user := fmt.Sprintf("Child's age: %d years\nConcern: %s\n\nConversation so far:\n%s\n%s",
						s.SubjectAge, s.Concern, s.HistorySummary(), s.QASummary())
					return system, user
				},
				Fallback: func(lang string) string {
					return pick(lang,
						"Geçmiş analiz şu anda kullanılamıyor.",
						"No historical analysis available.")
				},
			},
			composeStep(func(s *State) string {
				return fmt.Sprintf(`ANALYSIS RESULTS:

Behavior Pattern Analysis:
%s`, s.DerivedValue("behavior_analysis", "No historical analysis available"))
			}),
		},
	}
}

// NewMaterialConsultantSpecialist builds the single-step resource
// recommender.
func NewMaterialConsultantSpecialist() *Specialist {
	return &Specialist{
		ID:          "material-consultant",
		DisplayName: "Material Consultant",
		Description: "Recommends books, activities and strategies for a concern.",
		Temperature: 0.7,
		Fallbacks:   defaultFallbacks(),
		Steps: []Step{
			{
				Name: "compose",
				Key:  "reply",
				Prompt: func(s *State) (string, string) {
					system := "You are a resource consultant for parents. Recommend 2-3 specific, " +
						"practical resources (books, activities, strategies) matched to the child's age " +
						"and the concern. Keep the tone warm and practical. " + languageInstruction(s.Language)
					user := fmt.Sprintf("Child's age: %d years\nConcern: %s\n%s",
						s.SubjectAge, s.Concern, s.QASummary())
					return system, user
				},
				Fallback: func(lang string) string {
					return pick(lang, fallbackReplyTR, fallbackReplyEN)
				},
			},
		},
	}
}

// NewQuickAnswerSpecialist builds the single prompt-call specialist for
// simple questions that need no multi-step analysis.
func NewQuickAnswerSpecialist() *Specialist {
	return &Specialist{
		ID:          "quick-answer",
		DisplayName: "Quick Answer",
		Description: "Answers simple parenting questions in a single call.",
		Temperature: 0.7,
		Fallbacks:   defaultFallbacks(),
		Steps: []Step{
			{
				Name: "compose",
				Key:  "reply",
				Prompt: func(s *State) (string, string) {
					system := "You are an empathetic parenting assistant. Answer the parent's question " +
						"directly and concisely (2-3 paragraphs), with one actionable suggestion. " +
						languageInstruction(s.Language)
					user := fmt.Sprintf("Child's age: %d years\nQuestion: %s\n\nConversation so far:\n%s",
						s.SubjectAge, s.Concern, s.HistorySummary())
					return system, user
				},
				Fallback: func(lang string) string {
					return pick(lang, fallbackReplyTR, fallbackReplyEN)
				},
			},
		},
	}
}

// composeStep builds the shared final synthesis step used by multi-step
// specialists. The analysis argument renders the accumulated derived fields
// into the synthesis prompt.
func composeStep(analysis func(s *State) string) Step {
	return Step{
		Name: "compose",
		Key:  "reply",
		Prompt: func(s *State) (string, string) {
			system := "You are an empathetic child behavioral therapist assistant. Synthesize the " +
				"provided analysis into a warm, supportive, and actionable response for the parent. " +
				"Acknowledge the concern with empathy, normalize the behavior if it is " +
				"age-appropriate, explain the perspective in parent-friendly language, provide 2-3 " +
				"actionable recommendations, and end with encouragement. Use \"your child\" instead " +
				"of clinical terms. Aim for 4-6 paragraphs. " + languageInstruction(s.Language)
			user := fmt.Sprintf("Child's age: %d years\nParent's concern: %s\n\n%s\n%s",
				s.SubjectAge, s.Concern, analysis(s), s.QASummary())
			return system, user
		},
		Fallback: func(lang string) string {
			return pick(lang, fallbackReplyTR, fallbackReplyEN)
		},
	}
}
