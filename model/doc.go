// Package model defines the minimal language-model interface driving
// specialist pipelines and exploration question generation, plus a MockModel
// for tests. Provider adapters live in the openai and anthropic subpackages.
package model
