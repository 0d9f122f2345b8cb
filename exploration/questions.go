package exploration

import (
	"fmt"
	"strings"

	"github.com/parleyhq/parley/core"
)

// Question-count configuration of the reference sub-dialogue: five
// exploration questions then five deep questions.
const (
	DefaultExplorationQuestions = 5
	DefaultDeepQuestions        = 5
)

// explorationSystemPrompt steers phase-one question generation through the
// fixed focus ladder.
const explorationSystemPrompt = `You are an empathetic exploration guide for parents seeking help with child behavioral concerns.

Your role is to ask ONE thoughtful question at a time to understand the parent's situation better.
You are asking question %d of %d in the exploration phase.

IMPORTANT RULES:
1. Ask ONLY ONE question - do not include multiple questions
2. Questions should be open-ended and empathetic
3. Build on the previous answers when forming new questions
4. Show warmth and understanding - the parent is reaching out for help
5. Keep questions concise but caring

QUESTION FOCUS BY NUMBER:
- Question 1: WHAT is happening? (specific behavior description)
- Question 2: WHEN does this occur? (timing, triggers, situations)
- Question 3: HOW LONG has this been happening? (duration, pattern changes)
- Question 4: WHO else is involved or affected? (family dynamics, other caregivers)
- Question 5: WHAT IMPACT is this having? (on child, family, daily life)

Just output the question directly - no preamble or explanation.`

// deepSystemPrompt steers phase-two question generation, which digs into
// patterns surfaced by the exploration answers.
const deepSystemPrompt = `You are a thoughtful child behavioral specialist preparing deeper follow-up questions.

The parent has already answered five exploration questions. You are asking deep question %d of %d (question %d of %d overall).

IMPORTANT RULES:
1. Ask ONLY ONE question
2. Build directly on the exploration answers: probe causes, attempted solutions, context changes and the child's own perspective
3. Stay warm and non-clinical
4. Do not repeat a question that was already asked

Just output the question directly - no preamble or explanation.`

// Deterministic per-number fallback questions, substituted when the model
// call fails so the sequence always advances.
var fallbackQuestions = map[int]string{
	1:  "Can you describe a typical situation when this occurs?",
	2:  "When does this usually happen?",
	3:  "How long has this been happening?",
	4:  "Who else is involved or affected when this happens?",
	5:  "How is this affecting your child and your family's daily life?",
	6:  "What have you tried so far, and how did your child respond?",
	7:  "How does your child behave in other settings, like school or with friends?",
	8:  "Have there been any recent changes at home or in your child's routine?",
	9:  "How does your child usually calm down after these moments?",
	10: "Is there anything else you feel is important for understanding the situation?",
}

// FallbackQuestion returns the canned question for a number.
func FallbackQuestion(number int) string {
	if q, ok := fallbackQuestions[number]; ok {
		return q
	}
	return "Could you tell me more about the situation?"
}

// buildQuestionPrompt assembles system and user prompts for the given
// question number from the accumulated topic state.
func buildQuestionPrompt(state *core.ExplorationState, number, explorationCount, totalCount int, subjectAge int) (string, string) {
	var system string
	if number <= explorationCount {
		system = fmt.Sprintf(explorationSystemPrompt, number, explorationCount)
	} else {
		system = fmt.Sprintf(deepSystemPrompt, number-explorationCount, totalCount-explorationCount, number, totalCount)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Child's age: %d years old\n", subjectAge)
	fmt.Fprintf(&b, "Parent's initial concern: %s\n", state.InitialConcern)
	if state.AnsweredCount() == 0 {
		b.WriteString("\nNo previous questions yet.\n")
	} else {
		b.WriteString("\nPREVIOUS QUESTIONS AND ANSWERS:\n")
		for _, qa := range state.ExplorationQA {
			fmt.Fprintf(&b, "\nQ%d: %s\nA%d: %s\n", qa.QuestionNumber, qa.Question, qa.QuestionNumber, qa.Answer)
		}
		for _, qa := range state.DeepQA {
			fmt.Fprintf(&b, "\nQ%d: %s\nA%d: %s\n", qa.QuestionNumber, qa.Question, qa.QuestionNumber, qa.Answer)
		}
	}
	b.WriteString("\nGenerate the next question.")
	return system, b.String()
}
