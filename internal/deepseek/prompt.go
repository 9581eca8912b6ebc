package deepseek

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kalambet/hypewatch/internal/evidence"
)

const phaseDefinitions = `Hype Cycle Phases:
1. innovation_trigger (Innovation Trigger): New technology concept emerges, limited mentions/publications/patents, early adopters experimenting, low engagement/citations, narrow focus
2. peak (Peak of Inflated Expectations): Explosive growth in all metrics, very high social media buzz, rapid increase in publications/patents, mainstream media coverage begins, high sentiment/optimism, accelerating momentum
3. trough (Trough of Disillusionment): Declining mentions from peak levels, negative sentiment shift, publication/patent growth slows or reverses, media coverage drops, investor sentiment turns negative, reality check on limitations
4. slope (Slope of Enlightenment): Stabilizing metrics after trough, improving sentiment from lows, steady sustainable growth, maturing research and patents, practical applications emerge, institutional adoption begins
5. plateau (Plateau of Productivity): Sustained moderate activity, neutral sentiment (technology normalized), stable publication/patent rates, broad established field, mainstream adoption, mature market`

const jsonInstruction = `Return ONLY a JSON object with no markdown formatting:
{"phase": "one of: innovation_trigger, peak, trough, slope, plateau", "confidence": 0.75, "reasoning": "1-2 sentence explanation"}`

var sourceLabels = map[evidence.Source]string{
	evidence.SourceSocial:  "Social Media (Hacker News)",
	evidence.SourcePapers:  "Academic Research (Semantic Scholar)",
	evidence.SourcePatents: "Patents (PatentsView)",
	evidence.SourceNews:    "News Coverage (GDELT)",
	evidence.SourceFinance: "Financial Markets (Yahoo Finance)",
}

var sourceGuidance = map[evidence.Source]string{
	evidence.SourceSocial: `- innovation_trigger: Low mentions (<50 total), low engagement, early buzz
- peak: Very high mentions (>200 in 30d), high sentiment (>0.5), accelerating momentum
- trough: Declining mentions from previous peak, negative sentiment shift
- slope: Stabilizing mentions, improving sentiment, steady growth
- plateau: Sustained moderate volume, neutral sentiment (0.0-0.3), stable trend`,
	evidence.SourcePapers: `- innovation_trigger: Emerging field (<10 papers in 2y), low citations (<5 avg), narrow breadth
- peak: Rapid publication growth, high momentum (accelerating), broad research, many authors
- trough: Declining publications, negative citation velocity, narrowing focus
- slope: Steady publications, mature field, moderate citations, improving velocity
- plateau: Stable publication rate, high citations, broad established field`,
	evidence.SourcePatents: `- innovation_trigger: Few patents (<10 in 2y), concentrated assignees (1-3 companies), domestic only
- peak: Rapid filing growth, many assignees (>20), global reach, accelerating momentum
- trough: Declining filings from peak, consolidation (fewer assignees), slowing velocity
- slope: Steady filings, maturing patents, diverse assignees, moderate citations
- plateau: Stable filing rate, established field, high citations, global coverage`,
	evidence.SourceNews: `- innovation_trigger: Low coverage (<50 articles), niche media, few domains, limited geography
- peak: Very high coverage (>500 articles), mainstream media, many domains, positive tone, increasing trend
- trough: Declining coverage from peak, negative tone shift, decreasing trend
- slope: Stabilizing coverage, improving tone, steady trend, broadening media
- plateau: Sustained moderate coverage, neutral tone, stable trend, mainstream domains`,
	evidence.SourceFinance: `- innovation_trigger: Few companies (<3), small market cap (<$10B total), high volatility (>30%)
- peak: Many companies (>10), large market cap, strong positive returns, high volatility, accelerating momentum
- trough: Declining returns from peak, negative price changes, very high volatility, negative sentiment
- slope: Stabilizing returns, improving sentiment, moderate volatility, steady momentum
- plateau: Stable moderate returns, neutral sentiment, low volatility (<15%), mature market`,
}

// buildSourcePrompt renders the per-source judgment prompt: the evidence
// summary, the phase definitions, and that source's interpretation guidance.
func buildSourcePrompt(keyword string, ev evidence.Evidence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are analyzing %s signals to determine the hype cycle phase for %q.\n\n", sourceLabels[ev.Source], keyword)
	b.WriteString("Data provided:\n")
	b.WriteString(formatEvidence(ev))
	b.WriteString("\n\n")
	b.WriteString(phaseDefinitions)
	b.WriteString("\n\nInterpretation guidance:\n")
	b.WriteString(sourceGuidance[ev.Source])
	fmt.Fprintf(&b, "\n\nBased on these signals, classify the hype cycle phase.\n\n%s", jsonInstruction)
	return b.String()
}

// formatEvidence renders metrics, signals, and top items as stable, compact
// prompt lines. Keys are sorted so two runs over identical evidence produce
// identical prompts.
func formatEvidence(ev evidence.Evidence) string {
	var lines []string

	keys := make([]string, 0, len(ev.Metrics))
	for k := range ev.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("- %s: %s", k, trimFloat(ev.Metrics[k])))
	}

	keys = keys[:0]
	for k := range ev.Signals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("- %s: %s", k, ev.Signals[k]))
	}

	for i, item := range ev.TopItems {
		if i >= 5 {
			break
		}
		line := fmt.Sprintf("- top item %d: %s", i+1, item.Title)
		if item.Note != "" {
			line += " (" + item.Note + ")"
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

// buildSynthesisPrompt renders the final cross-source weighting prompt from
// every available source judgment.
func buildSynthesisPrompt(keyword string, judgments map[evidence.Source]SourceJudgment) string {
	var summaries []string
	i := 0
	for _, src := range evidence.Sources() {
		j, ok := judgments[src]
		if !ok {
			continue
		}
		i++
		summaries = append(summaries, fmt.Sprintf("%d. %s:\n   Phase: %s\n   Confidence: %.2f\n   Reasoning: %s",
			i, sourceLabels[src], j.Phase, j.Confidence, j.Reasoning))
	}

	return fmt.Sprintf(`You are an expert technology analyst synthesizing multiple data sources to determine the definitive hype cycle position for %q.

You have analyzed this technology from %d independent perspectives:

%s

%s

Synthesize these perspectives into ONE final classification. Consider:
- Conflicting signals may indicate transition phases
- Weight sources by confidence scores
- Social media trends faster than academic validation
- Patents and finance lag behind hype but indicate real investment
- News coverage bridges mainstream adoption

Return ONLY a JSON object with no markdown formatting:
{"phase": "one of: innovation_trigger, peak, trough, slope, plateau", "confidence": 0.85, "reasoning": "2-3 sentence explanation synthesizing key evidence from all sources"}`,
		keyword, len(judgments), strings.Join(summaries, "\n\n"), phaseDefinitions)
}

// buildExpansionPrompt asks for related search terms for a sparse-signal
// keyword. Specific multi-word phrases work far better than broad category
// words, which the expansion controller rejects anyway.
func buildExpansionPrompt(keyword string) string {
	return fmt.Sprintf(`The technology keyword %q has very little public discussion under that exact name.

Generate 4-5 alternative search terms that practitioners would actually use for the same technology: synonyms, umbrella fields, closely related techniques, or commercial names.

Rules:
- Each term must be specific (multi-word phrases preferred)
- Never return generic words like "technology", "innovation", "system", "solution"
- Do not repeat the original keyword

Return ONLY a JSON object with no markdown formatting:
{"terms": ["term one", "term two", "term three", "term four"]}`, keyword)
}

// buildTickerPrompt asks for public tickers whose business is most exposed
// to the keyword. Used by the finance collector's discovery step.
func buildTickerPrompt(keyword string) string {
	return fmt.Sprintf(`List the stock tickers of up to 6 publicly traded companies (or sector ETFs if no pure-play companies exist) whose business is most directly exposed to %q.

Return ONLY a JSON object with no markdown formatting:
{"tickers": ["TICK1", "TICK2", "TICK3"]}`, keyword)
}
