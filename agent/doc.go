// Package agent implements the specialist capability: interchangeable
// prompt-templated reply generators, each a short linear pipeline of model
// calls. A step's model failure substitutes a deterministic
// language-appropriate fallback for that step's field only and the pipeline
// continues, so the user always receives a reply.
package agent
