package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/kalambet/hypewatch/internal/evidence"
)

const papersBaseURL = "https://api.semanticscholar.org/graph/v1/paper/search"

// Papers collects publication volume, citation metrics, and research
// breadth from Semantic Scholar across a recent (2-year) and historical
// (prior 5-year) window.
type Papers struct {
	baseURL    string
	httpClient *http.Client
}

func NewPapers(client *http.Client) *Papers {
	return &Papers{baseURL: papersBaseURL, httpClient: client}
}

// NewPapersWithBaseURL points the collector at a custom endpoint (for testing).
func NewPapersWithBaseURL(client *http.Client, baseURL string) *Papers {
	return &Papers{baseURL: baseURL, httpClient: client}
}

func (p *Papers) Source() evidence.Source { return evidence.SourcePapers }

type scholarPaper struct {
	Title         string `json:"title"`
	Year          int    `json:"year"`
	CitationCount int    `json:"citationCount"`
	Venue         string `json:"venue"`
	Authors       []struct {
		AuthorID string `json:"authorId"`
	} `json:"authors"`
}

type scholarResponse struct {
	Total int            `json:"total"`
	Data  []scholarPaper `json:"data"`
}

func (p *Papers) Collect(ctx context.Context, req evidence.Request) (*evidence.Evidence, error) {
	now := time.Now()
	year := now.Year()

	var errs []string
	recent := p.fetchPeriod(ctx, req, year-2, year, &errs)
	historical := p.fetchPeriod(ctx, req, year-5, year-2, &errs)

	if recent == nil && historical == nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("all semantic scholar requests failed: %v", errs)
	}

	var pubs2y, pubs5y int
	var avgCitations2y, avgCitations5y float64
	var topPapers []scholarPaper
	var authorDiversity, venueDiversity int

	if recent != nil {
		pubs2y = recent.Total
		avgCitations2y = avgCitations(recent.Data)
		topPapers = topByCitations(recent.Data, 5)
	}
	if historical != nil {
		pubs5y = historical.Total
		avgCitations5y = avgCitations(historical.Data)
		authorDiversity, venueDiversity = diversity(historical.Data)
	}

	ev := &evidence.Evidence{
		Source:      evidence.SourcePapers,
		Keyword:     req.Keyword,
		CollectedAt: now.UTC(),
		Metrics: map[string]float64{
			"publications_2y":    float64(pubs2y),
			"publications_5y":    float64(pubs5y),
			"publications_total": float64(pubs2y + pubs5y),
			"avg_citations_2y":   round2(avgCitations2y),
			"avg_citations_5y":   round2(avgCitations5y),
			"citation_velocity":  round3(citationVelocity(avgCitations2y, avgCitations5y)),
			"author_diversity":   float64(authorDiversity),
			"venue_diversity":    float64(venueDiversity),
		},
		Signals: map[string]string{
			"research_maturity": researchMaturity(pubs2y+pubs5y, avgCitations2y),
			"research_momentum": researchMomentum(pubs2y, pubs5y),
			"research_trend":    researchTrend(pubs2y, pubs5y),
			"research_breadth":  researchBreadth(authorDiversity, venueDiversity, pubs2y+pubs5y),
		},
		Errors: errs,
	}

	for _, paper := range topPapers {
		ev.TopItems = append(ev.TopItems, evidence.TopItem{
			Title: paper.Title,
			Score: float64(paper.CitationCount),
			Note:  fmt.Sprintf("%d, %s", paper.Year, paper.Venue),
		})
	}

	return ev, nil
}

// fetchPeriod queries one year window. With expanded terms the query becomes
// an OR of quoted phrases, matching Semantic Scholar's query syntax.
func (p *Papers) fetchPeriod(ctx context.Context, req evidence.Request, yearStart, yearEnd int, errs *[]string) *scholarResponse {
	terms := searchTerms(req)
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}

	params := url.Values{
		"query":  {strings.Join(quoted, " OR ")},
		"year":   {fmt.Sprintf("%d-%d", yearStart, yearEnd-1)},
		"fields": {"paperId,title,year,citationCount,authors,venue"},
		"limit":  {"100"},
	}

	var resp scholarResponse
	if err := getJSON(ctx, p.httpClient, p.baseURL, params, &resp); err != nil {
		*errs = append(*errs, fmt.Sprintf("semantic scholar %d-%d: %v", yearStart, yearEnd-1, err))
		return nil
	}
	return &resp
}

func avgCitations(papers []scholarPaper) float64 {
	if len(papers) == 0 {
		return 0
	}
	total := 0
	for _, p := range papers {
		total += p.CitationCount
	}
	return float64(total) / float64(len(papers))
}

func diversity(papers []scholarPaper) (authors, venues int) {
	authorSet := make(map[string]struct{})
	venueSet := make(map[string]struct{})
	for _, p := range papers {
		for _, a := range p.Authors {
			if a.AuthorID != "" {
				authorSet[a.AuthorID] = struct{}{}
			}
		}
		if p.Venue != "" {
			venueSet[p.Venue] = struct{}{}
		}
	}
	return len(authorSet), len(venueSet)
}

// citationVelocity is the growth rate of average citations from the
// historical to the recent window.
func citationVelocity(recent, historical float64) float64 {
	if historical == 0 {
		if recent == 0 {
			return 0
		}
		return 1
	}
	return (recent - historical) / historical
}

func researchMaturity(totalPubs int, avgCitations2y float64) string {
	if totalPubs > 50 || avgCitations2y > 20 {
		return "mature"
	}
	if totalPubs < 10 && avgCitations2y < 5 {
		return "emerging"
	}
	return "developing"
}

func researchMomentum(pubs2y, pubs5y int) string {
	recentRate := float64(pubs2y) / 2
	historicalRate := float64(pubs5y) / 5
	if historicalRate == 0 {
		if recentRate == 0 {
			return "steady"
		}
		return "accelerating"
	}
	switch ratio := recentRate / historicalRate; {
	case ratio > 1.5:
		return "accelerating"
	case ratio < 0.5:
		return "decelerating"
	default:
		return "steady"
	}
}

func researchTrend(pubs2y, pubs5y int) string {
	recentRate := float64(pubs2y) / 2
	historicalRate := float64(pubs5y) / 5
	if historicalRate == 0 {
		if recentRate == 0 {
			return "stable"
		}
		return "increasing"
	}
	switch diff := (recentRate - historicalRate) / historicalRate; {
	case diff > 0.3:
		return "increasing"
	case diff < -0.3:
		return "decreasing"
	default:
		return "stable"
	}
}

func researchBreadth(authors, venues, totalPubs int) string {
	if totalPubs == 0 {
		return "narrow"
	}
	authorRatio := float64(authors) / float64(totalPubs)
	venueRatio := float64(venues) / float64(totalPubs)
	if authorRatio > 2 && venueRatio > 0.3 {
		return "broad"
	}
	if authorRatio < 1.5 || venueRatio < 0.1 {
		return "narrow"
	}
	return "moderate"
}

func topByCitations(papers []scholarPaper, n int) []scholarPaper {
	sorted := make([]scholarPaper, len(papers))
	copy(sorted, papers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CitationCount > sorted[j].CitationCount })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
