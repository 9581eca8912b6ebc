package deepseek

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/hypewatch/internal/evidence"
)

// newChatServer returns an httptest server answering every chat completion
// with the given content, plus a counter of requests seen.
func newChatServer(t *testing.T, content string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testEvidence() evidence.Evidence {
	return evidence.Evidence{
		Source:  evidence.SourceSocial,
		Keyword: "graphene",
		Metrics: map[string]float64{"mentions_30d": 120, "mentions_total": 900},
		Signals: map[string]string{"growth_trend": "stable"},
	}
}

func TestJudgeSource(t *testing.T) {
	srv, _ := newChatServer(t, `{"phase":"slope","confidence":0.7,"reasoning":"steady recovery"}`)
	c := NewClientWithBaseURL("test-key", srv.URL)

	j, err := c.JudgeSource(context.Background(), "graphene", testEvidence())
	if err != nil {
		t.Fatalf("JudgeSource: %v", err)
	}
	if j.Source != evidence.SourceSocial {
		t.Errorf("source = %s, want social", j.Source)
	}
	if j.Phase != PhaseSlope || j.Confidence != 0.7 {
		t.Errorf("judgment = %+v", j)
	}
}

func TestJudgeSourceMalformedResponse(t *testing.T) {
	srv, _ := newChatServer(t, `the evidence suggests a peak`)
	c := NewClientWithBaseURL("test-key", srv.URL)

	_, err := c.JudgeSource(context.Background(), "graphene", testEvidence())
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
}

func TestSynthesizeRequiresQuorum(t *testing.T) {
	c := NewClient("test-key")
	judgments := map[evidence.Source]SourceJudgment{
		evidence.SourceSocial: {Source: evidence.SourceSocial, Phase: PhasePeak, Confidence: 0.8, Reasoning: "r"},
		evidence.SourcePapers: {Source: evidence.SourcePapers, Phase: PhasePeak, Confidence: 0.6, Reasoning: "r"},
	}

	_, err := c.Synthesize(context.Background(), "graphene", judgments)
	var insufficient *InsufficientInputError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want *InsufficientInputError", err)
	}
	if insufficient.Got != 2 || insufficient.Want != 3 {
		t.Errorf("got/want = %d/%d", insufficient.Got, insufficient.Want)
	}
}

func TestSynthesize(t *testing.T) {
	srv, calls := newChatServer(t, `{"phase":"peak","confidence":0.85,"reasoning":"all signals hot"}`)
	c := NewClientWithBaseURL("test-key", srv.URL)

	judgments := map[evidence.Source]SourceJudgment{
		evidence.SourceSocial:  {Source: evidence.SourceSocial, Phase: PhasePeak, Confidence: 0.8, Reasoning: "r"},
		evidence.SourcePapers:  {Source: evidence.SourcePapers, Phase: PhasePeak, Confidence: 0.6, Reasoning: "r"},
		evidence.SourcePatents: {Source: evidence.SourcePatents, Phase: PhaseSlope, Confidence: 0.5, Reasoning: "r"},
	}

	final, err := c.Synthesize(context.Background(), "graphene", judgments)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if final.Phase != PhasePeak || final.Confidence != 0.85 {
		t.Errorf("final = %+v", final)
	}
	if len(final.SourceJudgments) != 3 {
		t.Errorf("source judgments not carried through: %d", len(final.SourceJudgments))
	}
	if calls.Load() != 1 {
		t.Errorf("chat calls = %d, want 1", calls.Load())
	}
}

func TestExpandTerms(t *testing.T) {
	srv, _ := newChatServer(t, "```json\n{\"terms\":[\"graphene oxide\",\"2d materials\",\"carbon nanotubes\"]}\n```")
	c := NewClientWithBaseURL("test-key", srv.URL)

	terms, err := c.ExpandTerms(context.Background(), "graphene")
	if err != nil {
		t.Fatalf("ExpandTerms: %v", err)
	}
	if len(terms) != 3 {
		t.Errorf("terms = %v", terms)
	}
}

func TestFindTickers(t *testing.T) {
	srv, _ := newChatServer(t, `{"tickers":[" nvda", "TSM", ""]}`)
	c := NewClientWithBaseURL("test-key", srv.URL)

	tickers, err := c.FindTickers(context.Background(), "ai accelerators")
	if err != nil {
		t.Fatalf("FindTickers: %v", err)
	}
	if len(tickers) != 2 || tickers[0] != "NVDA" || tickers[1] != "TSM" {
		t.Errorf("tickers = %v, want normalized [NVDA TSM]", tickers)
	}
}

func TestFindTickersEmpty(t *testing.T) {
	srv, _ := newChatServer(t, `{"tickers":[]}`)
	c := NewClientWithBaseURL("test-key", srv.URL)

	_, err := c.FindTickers(context.Background(), "obscure tech")
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("err = %v, want *GenerationError", err)
	}
}

func TestChatRetriesRateLimit(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": `{"terms":["a","b","c"]}`}},
			},
		})
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	terms, err := c.ExpandTerms(ctx, "graphene")
	if err != nil {
		t.Fatalf("ExpandTerms after retries: %v", err)
	}
	if len(terms) != 3 {
		t.Errorf("terms = %v", terms)
	}
	if calls.Load() != 3 {
		t.Errorf("requests = %d, want 3 (two 429s then success)", calls.Load())
	}
}

func TestChatGivesUpOnNonRetryableStatus(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL)
	if _, err := c.ExpandTerms(context.Background(), "graphene"); err == nil {
		t.Fatal("expected error on HTTP 500")
	}
	if calls.Load() != 1 {
		t.Errorf("requests = %d, want 1 (no retry on 500)", calls.Load())
	}
}
