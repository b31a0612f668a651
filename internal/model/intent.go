package model

import "strings"

// Intent is the closed-set task category of a query
type Intent string

const (
	IntentFactual    Intent = "factual"
	IntentComparison Intent = "comparison"
	IntentProcedural Intent = "procedural"
	IntentOpinion    Intent = "opinion"
)

// DefaultIntents is the built-in intent set
var DefaultIntents = []Intent{IntentFactual, IntentComparison, IntentProcedural, IntentOpinion}

// NormalizeIntent lowercases and trims a label for set membership checks
func NormalizeIntent(s string) Intent {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, `"'.,;:!?*[]()`)
	return Intent(s)
}
