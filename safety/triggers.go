// Package safety detects sensitive topics in user messages and composed
// replies, appends the matching disclaimers and flags replies that need
// human review. It is pure string processing with no model calls.
package safety

import "regexp"

// SensitivityLevel grades how sensitive detected content is.
type SensitivityLevel string

const (
	// LevelSafe means no trigger matched.
	LevelSafe SensitivityLevel = "safe"
	// LevelModerate means medical mentions or developmental concerns.
	LevelModerate SensitivityLevel = "moderate"
	// LevelHigh means medical advice requests or combined concerns.
	LevelHigh SensitivityLevel = "high"
	// LevelCritical means emergency or harm content.
	LevelCritical SensitivityLevel = "critical"
)

// Flag categories attached to detections and surfaced on message_complete.
const (
	FlagEmergency     = "emergency"
	FlagHarm          = "harm"
	FlagMedicalAdvice = "medical_advice"
	FlagMedical       = "medical"
	FlagDevelopmental = "developmental_concern"
)

var (
	medicalPatterns = compileAll(
		`\b(adhd|add|autism|asd|asperger)\b`,
		`\b(depression|anxiety|ptsd|ocd)\b`,
		`\b(bipolar|schizophrenia|psychosis)\b`,
		`\b(disorder|syndrome|diagnosis)\b`,
		`\b(medication|prescri(be|ption)|pill|drug)\b`,
		`\b(therapist|psychiatrist|psychologist|doctor)\b`,
	)
	harmPatterns = compileAll(
		`\b(abuse|abusive|abused)\b`,
		`\b(hit|hitting|beat|beating|hurt|hurting)\b`,
		`\b(self[- ]harm|cutting|suicide|kill)\b`,
		`\b(neglect|neglected|abandoned)\b`,
		`\b(violence|violent|aggress(ion|ive))\b`,
		`\b(trauma|traumatic|traumatized)\b`,
	)
	emergencyPatterns = compileAll(
		`\b(emergency|urgent|immediate|crisis)\b`,
		`\b(danger|dangerous|unsafe)\b`,
		`\b(hospital|911|emergency room|er)\b`,
		`\b(suicide|suicidal|kill (myself|himself|herself))\b`,
	)
	developmentalPatterns = compileAll(
		`\b(not (talking|speaking|walking))\b`,
		`\b(severe(ly)? delay(ed)?)\b`,
		`\b(regress(ion|ing|ed))\b`,
		`\b(stop(ped)? (eating|drinking|sleeping))\b`,
	)
	medicalAdvicePatterns = compileAll(
		`\b(should (i|we) (give|take|use))\b`,
		`\b(how much|dosage|dose)\b`,
		`\b(stop (taking|using)|start (taking|using))\b`,
		`\b(safe to (give|take|use))\b`,
	)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(`(?i)` + p)
	}
	return compiled
}

// Detection is the outcome of scanning one piece of text.
type Detection struct {
	Level          SensitivityLevel
	RequiresReview bool
	Flags          []string
	MatchedTerms   []string
}

// Detect scans text for sensitive categories, highest severity first.
func Detect(text string) Detection {
	var flags []string
	var matched []string

	check := func(flag string, patterns []*regexp.Regexp) {
		var terms []string
		for _, p := range patterns {
			terms = append(terms, p.FindAllString(text, -1)...)
		}
		if len(terms) > 0 {
			flags = append(flags, flag)
			matched = append(matched, dedupe(terms)...)
		}
	}

	check(FlagEmergency, emergencyPatterns)
	check(FlagHarm, harmPatterns)
	check(FlagMedicalAdvice, medicalAdvicePatterns)
	check(FlagMedical, medicalPatterns)
	check(FlagDevelopmental, developmentalPatterns)

	level, review := assessSeverity(flags)
	return Detection{Level: level, RequiresReview: review, Flags: flags, MatchedTerms: matched}
}

// DetectAll merges detections across user message and reply, deduplicating
// flags while preserving first-seen order.
func DetectAll(texts ...string) Detection {
	var merged Detection
	merged.Level = LevelSafe
	for _, t := range texts {
		if t == "" {
			continue
		}
		d := Detect(t)
		merged.Flags = append(merged.Flags, d.Flags...)
		merged.MatchedTerms = append(merged.MatchedTerms, d.MatchedTerms...)
		merged.RequiresReview = merged.RequiresReview || d.RequiresReview
		if severityRank(d.Level) > severityRank(merged.Level) {
			merged.Level = d.Level
		}
	}
	merged.Flags = dedupe(merged.Flags)
	merged.MatchedTerms = dedupe(merged.MatchedTerms)
	return merged
}

func assessSeverity(flags []string) (SensitivityLevel, bool) {
	has := func(f string) bool {
		for _, x := range flags {
			if x == f {
				return true
			}
		}
		return false
	}
	switch {
	case len(flags) == 0:
		return LevelSafe, false
	case has(FlagEmergency) || has(FlagHarm):
		return LevelCritical, true
	case has(FlagMedicalAdvice) || (has(FlagDevelopmental) && has(FlagMedical)):
		return LevelHigh, true
	default:
		return LevelModerate, true
	}
}

func severityRank(l SensitivityLevel) int {
	switch l {
	case LevelCritical:
		return 3
	case LevelHigh:
		return 2
	case LevelModerate:
		return 1
	default:
		return 0
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
