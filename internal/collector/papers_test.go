package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/hypewatch/internal/evidence"
)

func TestPapersCollect(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("query"))
		json.NewEncoder(w).Encode(scholarResponse{
			Total: 30,
			Data: []scholarPaper{
				{Title: "Important paper", Year: 2025, CitationCount: 90, Venue: "NeurIPS",
					Authors: []struct {
						AuthorID string `json:"authorId"`
					}{{AuthorID: "a1"}, {AuthorID: "a2"}}},
				{Title: "Minor paper", Year: 2024, CitationCount: 10, Venue: "Workshop",
					Authors: []struct {
						AuthorID string `json:"authorId"`
					}{{AuthorID: "a3"}}},
			},
		})
	}))
	defer srv.Close()

	p := NewPapersWithBaseURL(srv.Client(), srv.URL)
	ev, err := p.Collect(context.Background(), evidence.Request{Keyword: "graphene"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	// One request per window: recent 2y and historical 5y.
	if len(queries) != 2 {
		t.Fatalf("requests = %d, want 2", len(queries))
	}
	if queries[0] != `"graphene"` {
		t.Errorf("query = %q, want quoted keyword", queries[0])
	}
	if ev.Metrics["publications_2y"] != 30 || ev.Metrics["publications_total"] != 60 {
		t.Errorf("publication counts = %v", ev.Metrics)
	}
	if ev.Metrics["avg_citations_2y"] != 50 {
		t.Errorf("avg_citations_2y = %v, want 50", ev.Metrics["avg_citations_2y"])
	}
	if ev.Metrics["author_diversity"] != 3 || ev.Metrics["venue_diversity"] != 2 {
		t.Errorf("diversity = %v/%v", ev.Metrics["author_diversity"], ev.Metrics["venue_diversity"])
	}
	if len(ev.TopItems) == 0 || ev.TopItems[0].Title != "Important paper" {
		t.Errorf("topItems = %+v, want most-cited first", ev.TopItems)
	}
}

func TestPapersExpandedTermsQuery(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("query")
		json.NewEncoder(w).Encode(scholarResponse{})
	}))
	defer srv.Close()

	p := NewPapersWithBaseURL(srv.Client(), srv.URL)
	req := evidence.Request{Keyword: "edge ai", ExpandedTerms: []string{"tinyml", "on-device inference"}}
	if _, err := p.Collect(context.Background(), req); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	want := `"edge ai" OR "tinyml" OR "on-device inference"`
	if query != want {
		t.Errorf("query = %q, want %q", query, want)
	}
}

func TestCitationVelocity(t *testing.T) {
	tests := []struct {
		recent, historical, want float64
	}{
		{20, 10, 1},
		{5, 10, -0.5},
		{10, 0, 1},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := citationVelocity(tt.recent, tt.historical); got != tt.want {
			t.Errorf("citationVelocity(%v, %v) = %v, want %v", tt.recent, tt.historical, got, tt.want)
		}
	}
}

func TestResearchSignals(t *testing.T) {
	if got := researchMaturity(60, 2); got != "mature" {
		t.Errorf("researchMaturity high-volume = %q, want mature", got)
	}
	if got := researchMaturity(5, 1); got != "emerging" {
		t.Errorf("researchMaturity sparse = %q, want emerging", got)
	}
	if got := researchMomentum(20, 10); got != "accelerating" {
		t.Errorf("researchMomentum = %q, want accelerating", got)
	}
	if got := researchTrend(2, 40); got != "decreasing" {
		t.Errorf("researchTrend = %q, want decreasing", got)
	}
	if got := researchBreadth(0, 0, 0); got != "narrow" {
		t.Errorf("researchBreadth with no data = %q, want narrow", got)
	}
}

func TestSearchTermsCap(t *testing.T) {
	req := evidence.Request{Keyword: "kw", ExpandedTerms: []string{"t1", "t2", "t3", "t4", "t5", "t6", "t7"}}
	terms := searchTerms(req)
	if len(terms) != 6 {
		t.Errorf("terms = %d, want keyword plus 5", len(terms))
	}
	if terms[0] != "kw" {
		t.Errorf("first term = %q, want the keyword", terms[0])
	}
	if !strings.HasPrefix(terms[5], "t5") {
		t.Errorf("last term = %q", terms[5])
	}
}
