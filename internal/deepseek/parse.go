package deepseek

import (
	"encoding/json"
	"strconv"
	"strings"
)

// stripCodeFence removes a surrounding markdown code block from a model
// response. Models occasionally wrap JSON in ```json fences despite being
// asked not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// judgmentPayload mirrors the JSON shape every judgment prompt requests.
type judgmentPayload struct {
	Phase      string   `json:"phase"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// parseJudgment decodes and validates a phase/confidence/reasoning response.
// Anything that fails validation is rejected, never coerced.
func parseJudgment(raw string) (Phase, float64, string, error) {
	cleaned := stripCodeFence(raw)

	var p judgmentPayload
	if err := json.Unmarshal([]byte(cleaned), &p); err != nil {
		return "", 0, "", &ParseError{Raw: raw, Err: err}
	}

	phase := Phase(p.Phase)
	if !ValidPhase(phase) {
		return "", 0, "", &ValidationError{Field: "phase", Reason: "unknown phase " + strconv.Quote(p.Phase)}
	}
	if p.Confidence == nil || *p.Confidence < 0 || *p.Confidence > 1 {
		return "", 0, "", &ValidationError{Field: "confidence", Reason: "must be a number in [0,1]"}
	}
	if strings.TrimSpace(p.Reasoning) == "" {
		return "", 0, "", &ValidationError{Field: "reasoning", Reason: "must be non-empty"}
	}

	return phase, *p.Confidence, p.Reasoning, nil
}

// termsPayload mirrors the JSON shape the expansion prompt requests.
type termsPayload struct {
	Terms []string `json:"terms"`
}

// parseTerms decodes a term-expansion response.
func parseTerms(raw string) ([]string, error) {
	cleaned := stripCodeFence(raw)

	var p termsPayload
	if err := json.Unmarshal([]byte(cleaned), &p); err != nil {
		return nil, &GenerationError{Reason: "response is not a terms object: " + err.Error()}
	}
	if len(p.Terms) == 0 {
		return nil, &GenerationError{Reason: "response contained no terms"}
	}
	return p.Terms, nil
}
