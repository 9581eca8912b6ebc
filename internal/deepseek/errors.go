package deepseek

import "fmt"

// ParseError means the model response could not be read as the expected
// JSON shape (after code-fence stripping).
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing model response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError means the model returned parseable JSON whose fields
// violate the judgment contract (unknown phase, confidence outside [0,1],
// empty reasoning). Responses failing validation are never coerced.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s in model response: %s", e.Field, e.Reason)
}

// GenerationError means term expansion produced malformed or empty output.
type GenerationError struct {
	Reason string
}

func (e *GenerationError) Error() string {
	return "term generation failed: " + e.Reason
}

// InsufficientInputError means Synthesize was handed fewer judgments than
// the quorum it requires. Defensive: the orchestrator checks quorum first.
type InsufficientInputError struct {
	Got, Want int
}

func (e *InsufficientInputError) Error() string {
	return fmt.Sprintf("synthesis requires at least %d source judgments, got %d", e.Want, e.Got)
}
