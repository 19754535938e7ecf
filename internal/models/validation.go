package models

import "time"

// Validation verdicts.
const (
	VerdictPass          = "PASS"
	VerdictFail          = "FAIL"
	VerdictNeedsMoreData = "NEEDS_MORE_DATA"
)

// ThoughtStep is one entry of the validation audit trail. It has no
// control-flow effect.
type ThoughtStep struct {
	Stage  string    `json:"stage"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

// ValidationResult is stored in the idea's validation_result jsonb column.
type ValidationResult struct {
	Verdict        string             `json:"verdict"`
	WeightedScore  float64            `json:"weighted_score"`
	LensScores     map[string]float64 `json:"lens_scores"`
	Analyses       map[string]string  `json:"analyses,omitempty"`
	KeyFindings    []string           `json:"key_findings,omitempty"`
	Flags          []string           `json:"flags,omitempty"`
	ChainOfThought []ThoughtStep      `json:"chain_of_thought,omitempty"`
}
