package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/kalambet/hypewatch/internal/evidence"
)

const patentsBaseURL = "https://search.patentsview.org/api/v1/patent/"

// Patents collects filing volume, assignee diversity, and geographic
// distribution from the PatentsView search API across three non-overlapping
// windows: the last 2 years, the 5 years before that, and the 5 years
// before those.
type Patents struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewPatents(client *http.Client, apiKey string) *Patents {
	return &Patents{baseURL: patentsBaseURL, apiKey: apiKey, httpClient: client}
}

// NewPatentsWithBaseURL points the collector at a custom endpoint (for testing).
func NewPatentsWithBaseURL(client *http.Client, apiKey, baseURL string) *Patents {
	return &Patents{baseURL: baseURL, apiKey: apiKey, httpClient: client}
}

func (p *Patents) Source() evidence.Source { return evidence.SourcePatents }

type patentAssignee struct {
	Organization string `json:"assignee_organization"`
	Country      string `json:"assignee_country"`
}

type patentRecord struct {
	ID        string           `json:"patent_id"`
	Title     string           `json:"patent_title"`
	Date      string           `json:"patent_date"`
	Citations json.Number      `json:"patent_num_times_cited_by_us_patents"`
	Assignees []patentAssignee `json:"assignees"`
}

type patentsResponse struct {
	Error     bool           `json:"error"`
	TotalHits int            `json:"total_hits"`
	Patents   []patentRecord `json:"patents"`
}

func (p *Patents) Collect(ctx context.Context, req evidence.Request) (*evidence.Evidence, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("patentsview API key not configured")
	}

	now := time.Now()
	year := now.Year()

	var errs []string
	recent := p.fetchPeriod(ctx, req, year-2, year-1, &errs)
	mid := p.fetchPeriod(ctx, req, year-7, year-3, &errs)
	old := p.fetchPeriod(ctx, req, year-12, year-8, &errs)

	if recent == nil && mid == nil && old == nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("all patentsview requests failed: %v", errs)
	}

	var patents2y, patents5y, patents10y int
	var all []patentRecord
	if recent != nil {
		patents2y = recent.TotalHits
		all = append(all, recent.Patents...)
	}
	if mid != nil {
		patents5y = mid.TotalHits
		all = append(all, mid.Patents...)
	}
	if old != nil {
		patents10y = old.TotalHits
		all = append(all, old.Patents...)
	}
	total := patents2y + patents5y + patents10y

	assigneeCounts := make(map[string]int)
	countryCounts := make(map[string]int)
	for _, pat := range all {
		for _, a := range pat.Assignees {
			org := a.Organization
			if org == "" {
				org = "Individual"
			}
			assigneeCounts[org]++
			if a.Country != "" && a.Country != "Unknown" {
				countryCounts[a.Country]++
			}
		}
	}

	var avgCitations2y, avgCitations5y float64
	if recent != nil {
		avgCitations2y = avgPatentCitations(recent.Patents)
	}
	if mid != nil {
		avgCitations5y = avgPatentCitations(mid.Patents)
	}

	ev := &evidence.Evidence{
		Source:      evidence.SourcePatents,
		Keyword:     req.Keyword,
		CollectedAt: now.UTC(),
		Metrics: map[string]float64{
			"patents_2y":           float64(patents2y),
			"patents_5y":           float64(patents5y),
			"patents_10y":          float64(patents10y),
			"patents_total":        float64(total),
			"unique_assignees":     float64(len(assigneeCounts)),
			"geographic_diversity": float64(len(countryCounts)),
			"avg_citations_2y":     round2(avgCitations2y),
			"avg_citations_5y":     round2(avgCitations5y),
			"filing_velocity":      round3(filingVelocity(patents2y, patents5y)),
		},
		Signals: map[string]string{
			"assignee_concentration": assigneeConcentration(assigneeCounts, total),
			"geographic_reach":       geographicReach(countryCounts),
			"patent_maturity":        patentMaturity(total, avgCitations2y),
			"patent_momentum":        patentMomentum(patents2y, patents5y),
			"patent_trend":           patentTrend(patents2y, patents5y),
		},
		Errors: errs,
	}

	for _, pat := range topByPatentCitations(all, 5) {
		assignee := "Individual"
		if len(pat.Assignees) > 0 && pat.Assignees[0].Organization != "" {
			assignee = pat.Assignees[0].Organization
		}
		ev.TopItems = append(ev.TopItems, evidence.TopItem{
			Title: pat.Title,
			Score: float64(citedCount(pat)),
			Note:  fmt.Sprintf("%s, filed %s", assignee, pat.Date),
		})
	}

	return ev, nil
}

// fetchPeriod queries one year window. PatentsView takes its query, field
// list, and options as JSON-encoded GET parameters. Expanded terms become an
// OR across per-term title/abstract matches.
func (p *Patents) fetchPeriod(ctx context.Context, req evidence.Request, yearStart, yearEnd int, errs *[]string) *patentsResponse {
	var termClauses []any
	for _, term := range searchTerms(req) {
		termClauses = append(termClauses,
			map[string]any{"_text_all": map[string]string{"patent_title": term}},
			map[string]any{"_text_all": map[string]string{"patent_abstract": term}},
		)
	}
	query := map[string]any{
		"_and": []any{
			map[string]any{"_or": termClauses},
			map[string]any{"_gte": map[string]string{"patent_date": fmt.Sprintf("%d-01-01", yearStart)}},
			map[string]any{"_lte": map[string]string{"patent_date": fmt.Sprintf("%d-12-31", yearEnd)}},
		},
	}
	fields := []string{
		"patent_id", "patent_title", "patent_date",
		"patent_num_times_cited_by_us_patents", "assignees",
	}
	options := map[string]int{"size": 100}

	q, _ := json.Marshal(query)
	f, _ := json.Marshal(fields)
	o, _ := json.Marshal(options)
	params := url.Values{
		"q": {string(q)},
		"f": {string(f)},
		"o": {string(o)},
	}

	var resp patentsResponse
	headers := map[string]string{"X-Api-Key": p.apiKey}
	if err := getJSONWithHeaders(ctx, p.httpClient, p.baseURL, params, headers, &resp); err != nil {
		*errs = append(*errs, fmt.Sprintf("patentsview %d-%d: %v", yearStart, yearEnd, err))
		return nil
	}
	if resp.Error {
		*errs = append(*errs, fmt.Sprintf("patentsview %d-%d: API returned error flag", yearStart, yearEnd))
		return nil
	}
	return &resp
}

// citedCount parses the citation count leniently; the API has returned it
// both as a number and as a string.
func citedCount(p patentRecord) int {
	n, err := p.Citations.Int64()
	if err != nil {
		return 0
	}
	return int(n)
}

func avgPatentCitations(patents []patentRecord) float64 {
	if len(patents) == 0 {
		return 0
	}
	total := 0
	for _, p := range patents {
		total += citedCount(p)
	}
	return float64(total) / float64(len(patents))
}

func filingVelocity(patents2y, patents5y int) float64 {
	recentRate := float64(patents2y) / 2
	historicalRate := float64(patents5y) / 5
	if historicalRate == 0 {
		if recentRate == 0 {
			return 0
		}
		return 1
	}
	return (recentRate - historicalRate) / historicalRate
}

// assigneeConcentration buckets by the share of patents held by the top
// three assignees.
func assigneeConcentration(counts map[string]int, totalPatents int) string {
	if totalPatents == 0 || len(counts) == 0 {
		return "unknown"
	}
	values := make([]int, 0, len(counts))
	for _, c := range counts {
		values = append(values, c)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(values)))
	top3 := 0
	for i, c := range values {
		if i >= 3 {
			break
		}
		top3 += c
	}
	switch share := float64(top3) / float64(totalPatents); {
	case share > 0.5:
		return "concentrated"
	case share > 0.25:
		return "moderate"
	default:
		return "diverse"
	}
}

// geographicReach counts countries holding more than 5% of the sampled
// patents.
func geographicReach(countryCounts map[string]int) string {
	total := 0
	for _, c := range countryCounts {
		total += c
	}
	if total == 0 {
		return "unknown"
	}
	significant := 0
	for _, c := range countryCounts {
		if float64(c)/float64(total) > 0.05 {
			significant++
		}
	}
	switch {
	case significant == 1:
		return "domestic"
	case significant <= 3:
		return "regional"
	default:
		return "global"
	}
}

func patentMaturity(totalPatents int, avgCitations2y float64) string {
	if totalPatents > 500 || avgCitations2y > 15 {
		return "mature"
	}
	if totalPatents < 50 && avgCitations2y < 5 {
		return "emerging"
	}
	return "developing"
}

func patentMomentum(patents2y, patents5y int) string {
	recentRate := float64(patents2y) / 2
	historicalRate := float64(patents5y) / 5
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

func patentTrend(patents2y, patents5y int) string {
	recentRate := float64(patents2y) / 2
	historicalRate := float64(patents5y) / 5
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

func topByPatentCitations(patents []patentRecord, n int) []patentRecord {
	sorted := make([]patentRecord, len(patents))
	copy(sorted, patents)
	sort.Slice(sorted, func(i, j int) bool { return citedCount(sorted[i]) > citedCount(sorted[j]) })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
