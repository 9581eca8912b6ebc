package collector

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/kalambet/hypewatch/internal/evidence"
)

const socialBaseURL = "https://hn.algolia.com/api/v1/search"

// Social collects discussion volume, engagement, and trend signals from
// Hacker News via the Algolia search API across three time windows
// (30 days, 6 months, 1 year). It is the primary-signal source the niche
// detector evaluates.
type Social struct {
	baseURL    string
	httpClient *http.Client
}

func NewSocial(client *http.Client) *Social {
	return &Social{baseURL: socialBaseURL, httpClient: client}
}

// NewSocialWithBaseURL points the collector at a custom endpoint (for testing).
func NewSocialWithBaseURL(client *http.Client, baseURL string) *Social {
	return &Social{baseURL: baseURL, httpClient: client}
}

func (s *Social) Source() evidence.Source { return evidence.SourceSocial }

type algoliaHit struct {
	Title       string `json:"title"`
	Points      int    `json:"points"`
	NumComments int    `json:"num_comments"`
	CreatedAtI  int64  `json:"created_at_i"`
}

type algoliaResponse struct {
	NbHits int          `json:"nbHits"`
	Hits   []algoliaHit `json:"hits"`
}

type periodStats struct {
	mentions int
	hits     []algoliaHit
	ok       bool
}

func (s *Social) Collect(ctx context.Context, req evidence.Request) (*evidence.Evidence, error) {
	now := time.Now()
	cut30d := now.AddDate(0, 0, -30).Unix()
	cut6m := now.AddDate(0, -6, 0).Unix()
	cut1y := now.AddDate(-1, 0, 0).Unix()

	var errs []string
	p30d := s.fetchPeriod(ctx, req, cut30d, 0, &errs)
	p6m := s.fetchPeriod(ctx, req, cut6m, cut30d, &errs)
	p1y := s.fetchPeriod(ctx, req, cut1y, cut6m, &errs)

	if !p30d.ok && !p6m.ok && !p1y.ok {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("all hacker news requests failed: %v", errs)
	}

	avgPoints30d, avgComments30d := engagement(p30d.hits)
	avgPoints6m, avgComments6m := engagement(p6m.hits)
	total := p30d.mentions + p6m.mentions + p1y.mentions

	ev := &evidence.Evidence{
		Source:      evidence.SourceSocial,
		Keyword:     req.Keyword,
		CollectedAt: now.UTC(),
		Metrics: map[string]float64{
			"mentions_30d":     float64(p30d.mentions),
			"mentions_6m":      float64(p6m.mentions),
			"mentions_1y":      float64(p1y.mentions),
			"mentions_total":   float64(total),
			"avg_points_30d":   round2(avgPoints30d),
			"avg_comments_30d": round2(avgComments30d),
			"avg_points_6m":    round2(avgPoints6m),
			"avg_comments_6m":  round2(avgComments6m),
			"sentiment":        round3(sentiment(avgPoints30d)),
		},
		Signals: map[string]string{
			"recency":      recency(p30d.mentions, total),
			"growth_trend": growthTrend(p30d.mentions, p6m.mentions, p1y.mentions),
			"momentum":     momentum(p30d.mentions, p6m.mentions, p1y.mentions),
		},
		Errors: errs,
	}

	for _, h := range topByPoints(p30d.hits, 5) {
		ageDays := int(now.Sub(time.Unix(h.CreatedAtI, 0)).Hours() / 24)
		ev.TopItems = append(ev.TopItems, evidence.TopItem{
			Title: h.Title,
			Score: float64(h.Points),
			Note:  fmt.Sprintf("%d comments, %dd old", h.NumComments, ageDays),
		})
	}

	return ev, nil
}

// fetchPeriod queries one time window for the keyword and every expanded
// term, aggregating hit counts and samples. Individual request failures are
// recorded and the period marked unusable only if every term failed.
func (s *Social) fetchPeriod(ctx context.Context, req evidence.Request, startTS, endTS int64, errs *[]string) periodStats {
	var stats periodStats
	for _, term := range searchTerms(req) {
		filter := "created_at_i>" + strconv.FormatInt(startTS, 10)
		if endTS > 0 {
			filter += ",created_at_i<" + strconv.FormatInt(endTS, 10)
		}
		params := url.Values{
			"query":          {term},
			"tags":           {"story"},
			"numericFilters": {filter},
			"hitsPerPage":    {"20"},
		}

		var resp algoliaResponse
		if err := getJSON(ctx, s.httpClient, s.baseURL, params, &resp); err != nil {
			*errs = append(*errs, fmt.Sprintf("hacker news query %q: %v", term, err))
			continue
		}
		stats.ok = true
		stats.mentions += resp.NbHits
		stats.hits = append(stats.hits, resp.Hits...)
	}
	return stats
}

func engagement(hits []algoliaHit) (avgPoints, avgComments float64) {
	if len(hits) == 0 {
		return 0, 0
	}
	var points, comments int
	for _, h := range hits {
		points += h.Points
		comments += h.NumComments
	}
	return float64(points) / float64(len(hits)), float64(comments) / float64(len(hits))
}

// sentiment normalizes average story points to [-1, 1] with tanh;
// 50 points is the neutral baseline.
func sentiment(avgPoints float64) float64 {
	return math.Tanh((avgPoints - 50) / 100)
}

// recency buckets how much of the total activity happened in the last month.
func recency(mentions30d, total int) string {
	if total == 0 {
		return "low"
	}
	ratio := float64(mentions30d) / float64(total)
	switch {
	case ratio > 0.5:
		return "high"
	case ratio > 0.2:
		return "medium"
	default:
		return "low"
	}
}

// growthTrend compares the last 30 days against the monthly average of the
// preceding 11 months, with a 30% band counting as stable.
func growthTrend(mentions30d, mentions6m, mentions1y int) string {
	avgPerMonth := float64(mentions6m+mentions1y) / 11
	switch {
	case float64(mentions30d) > avgPerMonth*1.3:
		return "increasing"
	case float64(mentions30d) < avgPerMonth*0.7:
		return "decreasing"
	default:
		if mentions30d == 0 && avgPerMonth == 0 {
			return "unknown"
		}
		return "stable"
	}
}

// momentum compares the recent growth rate against the historical one.
func momentum(mentions30d, mentions6m, mentions1y int) string {
	if mentions30d == 0 && mentions6m == 0 {
		return "steady"
	}

	recent := float64(mentions30d)
	mid := float64(mentions6m) / 5
	old := float64(mentions1y) / 6

	midGrowth := 1.0
	if old > 0 {
		midGrowth = (mid - old) / old
	} else if mid == 0 {
		midGrowth = 0
	}

	recentGrowth := 1.0
	if mid > 0 {
		recentGrowth = (recent - mid) / mid
	} else if recent == 0 {
		recentGrowth = 0
	}

	switch {
	case recentGrowth > midGrowth*1.2:
		return "accelerating"
	case recentGrowth < midGrowth*0.8:
		return "decelerating"
	default:
		return "steady"
	}
}

func topByPoints(hits []algoliaHit, n int) []algoliaHit {
	sorted := make([]algoliaHit, len(hits))
	copy(sorted, hits)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Points > sorted[j].Points })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
