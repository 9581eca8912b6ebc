package storage

import (
	"errors"
	"time"

	"github.com/kalambet/hypewatch/internal/deepseek"
	"github.com/kalambet/hypewatch/internal/evidence"
)

// ErrNotFound is returned when no live analysis exists for a keyword.
var ErrNotFound = errors.New("analysis not found")

// Analysis is one cached classification result, keyed by normalized
// keyword. A record is live while now < ExpiresAt; refreshing a keyword
// overwrites the previous record. ExpandedTerms is non-empty exactly when
// ExpansionApplied is set.
type Analysis struct {
	ID               string
	Keyword          string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	Phase            deepseek.Phase
	Confidence       float64
	Reasoning        string
	SourceJudgments  map[evidence.Source]deepseek.SourceJudgment
	Evidence         map[evidence.Source]*evidence.Evidence
	ExpansionApplied bool
	ExpandedTerms    []string
	Errors           []string
}
