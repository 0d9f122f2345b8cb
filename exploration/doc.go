// Package exploration drives the fixed-length clarifying sub-dialogue that
// precedes a specialist reply on new topics: five exploration questions
// (what, when, how long, who, impact) followed by five deep questions
// informed by the earlier answers. Question wording comes from the model
// with deterministic per-number fallbacks, so the sequence always advances.
package exploration
