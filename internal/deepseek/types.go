// Package deepseek is the classification service client. It wraps the
// DeepSeek chat completion API behind three typed operations: per-source
// judgment, cross-source synthesis, and search-term expansion. Raw model
// text never leaves this package; callers see validated structs or typed
// failures.
package deepseek

import "github.com/kalambet/hypewatch/internal/evidence"

// Phase is a position on the five-phase hype cycle.
type Phase string

const (
	PhaseInnovationTrigger Phase = "innovation_trigger"
	PhasePeak              Phase = "peak"
	PhaseTrough            Phase = "trough"
	PhaseSlope             Phase = "slope"
	PhasePlateau           Phase = "plateau"
)

// ValidPhase reports whether p is one of the five enumerated phases.
func ValidPhase(p Phase) bool {
	switch p {
	case PhaseInnovationTrigger, PhasePeak, PhaseTrough, PhaseSlope, PhasePlateau:
		return true
	}
	return false
}

// SourceJudgment is one source's independent phase assessment.
type SourceJudgment struct {
	Source     evidence.Source `json:"source"`
	Phase      Phase           `json:"phase"`
	Confidence float64         `json:"confidence"`
	Reasoning  string          `json:"reasoning"`
}

// FinalJudgment is the synthesized cross-source classification. It exists
// only when at least three sources produced a SourceJudgment.
type FinalJudgment struct {
	Phase           Phase                              `json:"phase"`
	Confidence      float64                            `json:"confidence"`
	Reasoning       string                             `json:"reasoning"`
	SourceJudgments map[evidence.Source]SourceJudgment `json:"source_judgments"`
}
