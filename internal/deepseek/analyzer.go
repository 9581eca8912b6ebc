package deepseek

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kalambet/hypewatch/internal/evidence"
)

// synthesisQuorum is the minimum number of source judgments Synthesize
// accepts. Mirrors the orchestrator's quorum as a defensive precondition.
const synthesisQuorum = 3

const (
	judgmentTemperature  = 0.3
	expansionTemperature = 0.7
)

// JudgeSource classifies one source's evidence independently of the other
// sources. The response is validated at this boundary; a malformed judgment
// is returned as a typed error, never coerced.
func (c *Client) JudgeSource(ctx context.Context, keyword string, ev evidence.Evidence) (SourceJudgment, error) {
	raw, err := c.chat(ctx, buildSourcePrompt(keyword, ev), judgmentTemperature)
	if err != nil {
		return SourceJudgment{}, err
	}

	phase, confidence, reasoning, err := parseJudgment(raw)
	if err != nil {
		return SourceJudgment{}, err
	}

	return SourceJudgment{
		Source:     ev.Source,
		Phase:      phase,
		Confidence: confidence,
		Reasoning:  reasoning,
	}, nil
}

// Synthesize weighs every available source judgment into one final
// classification. Cross-source weighting and conflict resolution is
// delegated entirely to the model; nothing is computed locally.
func (c *Client) Synthesize(ctx context.Context, keyword string, judgments map[evidence.Source]SourceJudgment) (FinalJudgment, error) {
	if len(judgments) < synthesisQuorum {
		return FinalJudgment{}, &InsufficientInputError{Got: len(judgments), Want: synthesisQuorum}
	}

	raw, err := c.chat(ctx, buildSynthesisPrompt(keyword, judgments), judgmentTemperature)
	if err != nil {
		return FinalJudgment{}, err
	}

	phase, confidence, reasoning, err := parseJudgment(raw)
	if err != nil {
		return FinalJudgment{}, err
	}

	return FinalJudgment{
		Phase:           phase,
		Confidence:      confidence,
		Reasoning:       reasoning,
		SourceJudgments: judgments,
	}, nil
}

// ExpandTerms generates related search terms for a sparse-signal keyword.
// It returns the model's raw candidate list; acceptance rules (denylist,
// duplicate rejection, count bounds) belong to the expansion controller.
func (c *Client) ExpandTerms(ctx context.Context, keyword string) ([]string, error) {
	raw, err := c.chat(ctx, buildExpansionPrompt(keyword), expansionTemperature)
	if err != nil {
		return nil, err
	}
	return parseTerms(raw)
}

// FindTickers maps a keyword to public stock tickers for the finance
// collector's discovery step.
func (c *Client) FindTickers(ctx context.Context, keyword string) ([]string, error) {
	raw, err := c.chat(ctx, buildTickerPrompt(keyword), judgmentTemperature)
	if err != nil {
		return nil, err
	}

	var p struct {
		Tickers []string `json:"tickers"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &p); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}

	var tickers []string
	for _, t := range p.Tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			tickers = append(tickers, t)
		}
	}
	if len(tickers) == 0 {
		return nil, &GenerationError{Reason: "response contained no tickers"}
	}
	return tickers, nil
}
