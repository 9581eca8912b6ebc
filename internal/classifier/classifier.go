// Package classifier orchestrates one keyword analysis end to end: cache
// lookup, evidence fan-out, quorum check, niche detection with query
// expansion, two-stage LLM scoring, and persistence. Degraded paths (cache
// trouble, expansion trouble, individual judgment failures) are logged and
// absorbed; only a missed quorum or a failed synthesis abort the run.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/hypewatch/internal/config"
	"github.com/kalambet/hypewatch/internal/deepseek"
	"github.com/kalambet/hypewatch/internal/evidence"
	"github.com/kalambet/hypewatch/internal/storage"
)

// LLM is the slice of the DeepSeek client the orchestrator needs.
type LLM interface {
	ExpandTerms(ctx context.Context, keyword string) ([]string, error)
	JudgeSource(ctx context.Context, keyword string, ev evidence.Evidence) (deepseek.SourceJudgment, error)
	Synthesize(ctx context.Context, keyword string, judgments map[evidence.Source]deepseek.SourceJudgment) (deepseek.FinalJudgment, error)
}

// Cache is the result cache consulted before collection and written after
// scoring. Implemented by storage.Store.
type Cache interface {
	GetLive(ctx context.Context, keyword string, now time.Time) (*storage.Analysis, error)
	Save(ctx context.Context, a *storage.Analysis) error
}

// ErrEmptyKeyword is returned when the keyword normalizes to nothing.
var ErrEmptyKeyword = errors.New("keyword must not be empty")

// InsufficientEvidenceError reports a missed quorum, either at collection
// time or after stage-1 judgments. It maps to HTTP 503: the caller may
// retry later, unlike an internal failure.
type InsufficientEvidenceError struct {
	Stage     string
	Succeeded int
	Required  int
	Errors    []string
}

func (e *InsufficientEvidenceError) Error() string {
	return fmt.Sprintf("insufficient evidence at %s: %d of %d required sources", e.Stage, e.Succeeded, e.Required)
}

// Report is the full analysis result returned to API and CLI callers.
type Report struct {
	Keyword          string                                       `json:"keyword"`
	Phase            deepseek.Phase                               `json:"phase"`
	Confidence       float64                                      `json:"confidence"`
	Reasoning        string                                       `json:"reasoning"`
	SourceJudgments  map[evidence.Source]deepseek.SourceJudgment  `json:"source_judgments"`
	Evidence         map[evidence.Source]*evidence.Evidence       `json:"evidence"`
	SourcesSucceeded int                                          `json:"sources_succeeded"`
	PartialData      bool                                         `json:"partial_data"`
	ExpansionApplied bool                                         `json:"expansion_applied"`
	ExpandedTerms    []string                                     `json:"expanded_terms,omitempty"`
	Errors           []string                                     `json:"errors,omitempty"`
	CacheHit         bool                                         `json:"cache_hit"`
	Timestamp        time.Time                                    `json:"timestamp"`
	ExpiresAt        time.Time                                    `json:"expires_at"`
}

// NormalizeKeyword lowercases, trims, and collapses internal whitespace so
// cache keys are insensitive to formatting.
func NormalizeKeyword(keyword string) string {
	return strings.Join(strings.Fields(strings.ToLower(keyword)), " ")
}

// Classifier runs the analysis pipeline. Construct with New; the zero
// value is not usable.
type Classifier struct {
	collectors map[evidence.Source]evidence.Collector
	llm        LLM
	cache      Cache
	cfg        config.AnalysisConfig
	now        func() time.Time
}

func New(collectors map[evidence.Source]evidence.Collector, llm LLM, cache Cache, cfg config.AnalysisConfig) *Classifier {
	return &Classifier{
		collectors: collectors,
		llm:        llm,
		cache:      cache,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Classify positions one keyword on the hype cycle. A live cached result
// short-circuits the pipeline and is returned with CacheHit set.
func (c *Classifier) Classify(ctx context.Context, keyword string) (*Report, error) {
	kw := NormalizeKeyword(keyword)
	if kw == "" {
		return nil, ErrEmptyKeyword
	}
	now := c.now()

	if rec := c.cachedReport(ctx, kw, now); rec != nil {
		return rec, nil
	}

	outcomes := evidence.Gather(ctx, c.collectors, evidence.Request{Keyword: kw}, c.cfg.CollectTimeout())

	succeeded := evidence.Succeeded(outcomes)
	if succeeded < c.cfg.Quorum {
		return nil, &InsufficientEvidenceError{
			Stage:     "collection",
			Succeeded: succeeded,
			Required:  c.cfg.Quorum,
			Errors:    outcomeErrors(outcomes),
		}
	}

	var expandedTerms []string
	if social := outcomes[evidence.SourceSocial]; social.Status == evidence.StatusSuccess &&
		isNiche(social.Evidence, c.cfg.NicheMentions30d, c.cfg.NicheMentionsTotal) {
		slog.Info("classifier: niche keyword, expanding query", "keyword", kw)
		outcomes, expandedTerms = c.expandAndRecollect(ctx, kw, outcomes)
	}

	judgments, judgeErrs := c.judgeAll(ctx, kw, outcomes)
	if len(judgments) < c.cfg.Quorum {
		return nil, &InsufficientEvidenceError{
			Stage:     "judgment",
			Succeeded: len(judgments),
			Required:  c.cfg.Quorum,
			Errors:    judgeErrs,
		}
	}

	final, err := c.llm.Synthesize(ctx, kw, judgments)
	if err != nil {
		return nil, fmt.Errorf("synthesizing judgments for %q: %w", kw, err)
	}

	report := &Report{
		Keyword:          kw,
		Phase:            final.Phase,
		Confidence:       final.Confidence,
		Reasoning:        final.Reasoning,
		SourceJudgments:  final.SourceJudgments,
		Evidence:         successfulEvidence(outcomes),
		SourcesSucceeded: evidence.Succeeded(outcomes),
		PartialData:      evidence.Succeeded(outcomes) < len(c.collectors),
		ExpansionApplied: len(expandedTerms) > 0,
		ExpandedTerms:    expandedTerms,
		Errors:           append(outcomeErrors(outcomes), judgeErrs...),
		Timestamp:        now.UTC(),
		ExpiresAt:        now.UTC().Add(c.cfg.CacheTTL()),
	}

	c.persist(ctx, report)
	return report, nil
}

// cachedReport returns the live cached analysis as a report, or nil on a
// miss. Cache trouble is logged and treated as a miss.
func (c *Classifier) cachedReport(ctx context.Context, kw string, now time.Time) *Report {
	if c.cache == nil {
		return nil
	}
	rec, err := c.cache.GetLive(ctx, kw, now)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil
	case err != nil:
		slog.Warn("classifier: cache read failed, treating as miss", "keyword", kw, "error", err)
		return nil
	}

	return &Report{
		Keyword:          rec.Keyword,
		Phase:            rec.Phase,
		Confidence:       rec.Confidence,
		Reasoning:        rec.Reasoning,
		SourceJudgments:  rec.SourceJudgments,
		Evidence:         rec.Evidence,
		SourcesSucceeded: len(rec.Evidence),
		PartialData:      len(rec.Evidence) < len(evidence.Sources()),
		ExpansionApplied: rec.ExpansionApplied,
		ExpandedTerms:    rec.ExpandedTerms,
		Errors:           rec.Errors,
		CacheHit:         true,
		Timestamp:        rec.CreatedAt,
		ExpiresAt:        rec.ExpiresAt,
	}
}

// expandAndRecollect runs the query-expansion round: generate terms,
// filter them, and re-run the configured source subset with the broadened
// request, overlaying successful re-runs on the first round. Any failure
// along the way keeps the first round untouched. The quorum is not
// re-checked afterwards; it already passed on the first round.
func (c *Classifier) expandAndRecollect(ctx context.Context, kw string, outcomes map[evidence.Source]evidence.Outcome) (map[evidence.Source]evidence.Outcome, []string) {
	raw, err := c.llm.ExpandTerms(ctx, kw)
	if err != nil {
		slog.Warn("classifier: term expansion failed, keeping original evidence", "keyword", kw, "error", err)
		return outcomes, nil
	}
	terms, err := acceptTerms(raw, kw, c.cfg.ExpansionDenylist, c.cfg.ExpansionMinTerms, c.cfg.ExpansionMaxTerms)
	if err != nil {
		slog.Warn("classifier: term expansion rejected, keeping original evidence", "keyword", kw, "error", err)
		return outcomes, nil
	}

	rerun := make(map[evidence.Source]evidence.Collector)
	for _, name := range c.cfg.ExpansionSources {
		src := evidence.Source(name)
		if col, ok := c.collectors[src]; ok {
			rerun[src] = col
		}
	}
	if len(rerun) == 0 {
		return outcomes, nil
	}

	slog.Info("classifier: re-collecting with expanded terms", "keyword", kw, "terms", terms, "sources", len(rerun))
	second := evidence.Gather(ctx, rerun, evidence.Request{Keyword: kw, ExpandedTerms: terms}, c.cfg.CollectTimeout())
	return mergeOutcomes(outcomes, second), terms
}

// judgeAll runs stage-1 scoring: one independent judgment per successful
// outcome, concurrently. Individual failures become error strings; the
// quorum decision is the caller's.
func (c *Classifier) judgeAll(ctx context.Context, kw string, outcomes map[evidence.Source]evidence.Outcome) (map[evidence.Source]deepseek.SourceJudgment, []string) {
	var mu sync.Mutex
	judgments := make(map[evidence.Source]deepseek.SourceJudgment)
	var errs []string

	var g errgroup.Group
	for src, o := range outcomes {
		if o.Status != evidence.StatusSuccess {
			continue
		}
		ev := *o.Evidence
		g.Go(func() error {
			j, err := c.llm.JudgeSource(ctx, kw, ev)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s judgment: %v", src, err))
				return nil
			}
			judgments[src] = j
			return nil
		})
	}
	g.Wait()

	sort.Strings(errs)
	return judgments, errs
}

func (c *Classifier) persist(ctx context.Context, r *Report) {
	if c.cache == nil {
		return
	}
	rec := &storage.Analysis{
		ID:               uuid.NewString(),
		Keyword:          r.Keyword,
		CreatedAt:        r.Timestamp,
		ExpiresAt:        r.ExpiresAt,
		Phase:            r.Phase,
		Confidence:       r.Confidence,
		Reasoning:        r.Reasoning,
		SourceJudgments:  r.SourceJudgments,
		Evidence:         r.Evidence,
		ExpansionApplied: r.ExpansionApplied,
		ExpandedTerms:    r.ExpandedTerms,
		Errors:           r.Errors,
	}
	if err := c.cache.Save(ctx, rec); err != nil {
		slog.Warn("classifier: cache write failed, result not persisted", "keyword", r.Keyword, "error", err)
	}
}

func successfulEvidence(outcomes map[evidence.Source]evidence.Outcome) map[evidence.Source]*evidence.Evidence {
	out := make(map[evidence.Source]*evidence.Evidence)
	for src, o := range outcomes {
		if o.Status == evidence.StatusSuccess {
			out[src] = o.Evidence
		}
	}
	return out
}

// outcomeErrors flattens non-success outcomes into stable, human-readable
// strings for the report.
func outcomeErrors(outcomes map[evidence.Source]evidence.Outcome) []string {
	var errs []string
	for _, src := range evidence.Sources() {
		o, ok := outcomes[src]
		if !ok {
			continue
		}
		switch o.Status {
		case evidence.StatusFailed:
			errs = append(errs, fmt.Sprintf("%s: %s", src, o.Err))
		case evidence.StatusTimedOut:
			errs = append(errs, fmt.Sprintf("%s: timed out", src))
		}
	}
	return errs
}
