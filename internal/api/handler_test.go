package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/hypewatch/internal/classifier"
	"github.com/kalambet/hypewatch/internal/deepseek"
	"github.com/kalambet/hypewatch/internal/storage"
)

type fakeAnalyzer struct {
	report *classifier.Report
	err    error
}

func (f *fakeAnalyzer) Classify(ctx context.Context, keyword string) (*classifier.Report, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

type fakeStore struct {
	pingErr error
	recent  []storage.Analysis
	listErr error
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.pingErr }
func (f *fakeStore) ListRecent(ctx context.Context, limit int) ([]storage.Analysis, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.recent, nil
}

func testHandler(analyzer Analyzer, store Storage) http.Handler {
	return NewHandler(Deps{Classifier: analyzer, Store: store, Version: "test"})
}

func TestAnalyzeSuccess(t *testing.T) {
	report := &classifier.Report{
		Keyword:          "quantum computing",
		Phase:            deepseek.PhasePeak,
		Confidence:       0.8,
		Reasoning:        "hot everywhere",
		SourcesSucceeded: 5,
	}
	h := testHandler(&fakeAnalyzer{report: report}, &fakeStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"keyword":"quantum computing"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	var got classifier.Report
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.Phase != deepseek.PhasePeak || got.Keyword != "quantum computing" {
		t.Errorf("response = %+v", got)
	}
}

func TestAnalyzeBadBody(t *testing.T) {
	h := testHandler(&fakeAnalyzer{}, &fakeStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAnalyzeEmptyKeyword(t *testing.T) {
	h := testHandler(&fakeAnalyzer{err: classifier.ErrEmptyKeyword}, &fakeStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"keyword":""}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAnalyzeInsufficientEvidence(t *testing.T) {
	h := testHandler(&fakeAnalyzer{err: &classifier.InsufficientEvidenceError{
		Stage:     "collection",
		Succeeded: 2,
		Required:  3,
		Errors:    []string{"patents: rate limited", "news: timed out"},
	}}, &fakeStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"keyword":"obscure"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var envelope struct {
		Error struct {
			Type      string   `json:"type"`
			Succeeded int      `json:"succeeded"`
			Required  int      `json:"required"`
			Details   []string `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	if envelope.Error.Type != "insufficient_evidence" {
		t.Errorf("type = %q", envelope.Error.Type)
	}
	if envelope.Error.Succeeded != 2 || envelope.Error.Required != 3 {
		t.Errorf("succeeded/required = %d/%d", envelope.Error.Succeeded, envelope.Error.Required)
	}
	if len(envelope.Error.Details) != 2 {
		t.Errorf("details = %v", envelope.Error.Details)
	}
}

func TestAnalyzeInternalError(t *testing.T) {
	h := testHandler(&fakeAnalyzer{err: errors.New("synthesis blew up")}, &fakeStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"keyword":"x"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	h := testHandler(&fakeAnalyzer{}, &fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body["status"] != "ok" || body["database"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestHealthDegraded(t *testing.T) {
	h := testHandler(&fakeAnalyzer{}, &fakeStore{pingErr: errors.New("locked")})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestAnalysesListing(t *testing.T) {
	now := time.Now().UTC()
	h := testHandler(&fakeAnalyzer{}, &fakeStore{recent: []storage.Analysis{
		{Keyword: "graphene", Phase: deepseek.PhaseSlope, Confidence: 0.6, CreatedAt: now, ExpiresAt: now.Add(24 * time.Hour)},
		{Keyword: "metaverse", Phase: deepseek.PhaseTrough, Confidence: 0.7, CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(23 * time.Hour), ExpansionApplied: true},
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/analyses", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Analyses []analysisSummary `json:"analyses"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(body.Analyses) != 2 {
		t.Fatalf("analyses = %d, want 2", len(body.Analyses))
	}
	if body.Analyses[0].Keyword != "graphene" || body.Analyses[1].ExpansionApplied != true {
		t.Errorf("analyses = %+v", body.Analyses)
	}
}
