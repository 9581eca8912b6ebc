package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kalambet/hypewatch/internal/evidence"
)

const newsBaseURL = "https://api.gdeltproject.org/api/v2/doc/doc"

const gdeltTimeLayout = "20060102150405"

// News collects media coverage volume, tone, and domain diversity from the
// GDELT document API across three non-overlapping windows (30 days, the
// 60 days before that, the 9 months before those).
type News struct {
	baseURL    string
	httpClient *http.Client
}

func NewNews(client *http.Client) *News {
	return &News{baseURL: newsBaseURL, httpClient: client}
}

// NewNewsWithBaseURL points the collector at a custom endpoint (for testing).
func NewNewsWithBaseURL(client *http.Client, baseURL string) *News {
	return &News{baseURL: baseURL, httpClient: client}
}

func (n *News) Source() evidence.Source { return evidence.SourceNews }

type gdeltArticle struct {
	Title    string `json:"title"`
	Domain   string `json:"domain"`
	SeenDate string `json:"seendate"`
}

type gdeltArtList struct {
	Articles []gdeltArticle `json:"articles"`
}

type gdeltTimeline struct {
	Timeline []struct {
		Data []struct {
			Value float64 `json:"value"`
		} `json:"data"`
	} `json:"timeline"`
}

type gdeltToneBin struct {
	Bin   int `json:"bin"`
	Count int `json:"count"`
}

type gdeltToneChart struct {
	ToneChart []gdeltToneBin `json:"tonechart"`
}

type newsPeriod struct {
	articles        []gdeltArticle
	volumeIntensity float64
	tone            []gdeltToneBin
	ok              bool
}

func (n *News) Collect(ctx context.Context, req evidence.Request) (*evidence.Evidence, error) {
	now := time.Now()
	cut30d := now.AddDate(0, 0, -30)
	cut3m := now.AddDate(0, 0, -90)
	cut1y := now.AddDate(-1, 0, 0)

	var errs []string
	p30d := n.fetchPeriod(ctx, req, cut30d, now, true, &errs)
	p3m := n.fetchPeriod(ctx, req, cut3m, cut30d, false, &errs)
	p1y := n.fetchPeriod(ctx, req, cut1y, cut3m, false, &errs)

	if !p30d.ok && !p3m.ok && !p1y.ok {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("all gdelt requests failed: %v", errs)
	}

	articles30d := len(p30d.articles)
	articles3m := len(p3m.articles)
	articles1y := len(p1y.articles)
	total := articles30d + articles3m + articles1y

	domains := make(map[string]int)
	for _, p := range []newsPeriod{p30d, p3m, p1y} {
		for _, a := range p.articles {
			if a.Domain != "" {
				domains[a.Domain]++
			}
		}
	}

	avgTone, positive, neutral, negative := toneMetrics(p30d.tone)

	ev := &evidence.Evidence{
		Source:      evidence.SourceNews,
		Keyword:     req.Keyword,
		CollectedAt: now.UTC(),
		Metrics: map[string]float64{
			"articles_30d":   float64(articles30d),
			"articles_3m":    float64(articles3m),
			"articles_1y":    float64(articles1y),
			"articles_total": float64(total),
			"unique_domains": float64(len(domains)),
			"avg_tone":       round3(avgTone),
			"tone_positive":  float64(positive),
			"tone_neutral":   float64(neutral),
			"tone_negative":  float64(negative),
		},
		Signals: map[string]string{
			"media_attention":     mediaAttention(total),
			"coverage_trend":      coverageTrend(p30d.volumeIntensity, p3m.volumeIntensity, p1y.volumeIntensity),
			"sentiment_trend":     sentimentTrend(avgTone),
			"mainstream_adoption": mainstreamAdoption(len(domains), total),
		},
		Errors: errs,
	}

	for i, a := range p30d.articles {
		if i >= 5 {
			break
		}
		ev.TopItems = append(ev.TopItems, evidence.TopItem{
			Title: a.Title,
			Note:  fmt.Sprintf("%s, %s", a.Domain, a.SeenDate),
		})
	}

	return ev, nil
}

// fetchPeriod queries one time window: the article list, the volume
// timeline, and (for the recent window only) the tone chart. The period is
// usable if the article list came back; timeline and tone failures degrade
// to zero values.
func (n *News) fetchPeriod(ctx context.Context, req evidence.Request, start, end time.Time, withTone bool, errs *[]string) newsPeriod {
	base := url.Values{
		"query":         {gdeltQuery(req)},
		"format":        {"json"},
		"startdatetime": {start.Format(gdeltTimeLayout)},
		"enddatetime":   {end.Format(gdeltTimeLayout)},
	}
	window := start.Format("2006-01-02")

	var period newsPeriod

	artParams := cloneValues(base)
	artParams.Set("mode", "ArtList")
	artParams.Set("maxrecords", "250")
	var artList gdeltArtList
	if err := getJSON(ctx, n.httpClient, n.baseURL, artParams, &artList); err != nil {
		*errs = append(*errs, fmt.Sprintf("gdelt articles since %s: %v", window, err))
		return period
	}
	period.ok = true
	period.articles = artList.Articles

	timelineParams := cloneValues(base)
	timelineParams.Set("mode", "timelinevol")
	var timeline gdeltTimeline
	if err := getJSON(ctx, n.httpClient, n.baseURL, timelineParams, &timeline); err != nil {
		*errs = append(*errs, fmt.Sprintf("gdelt timeline since %s: %v", window, err))
	} else if len(timeline.Timeline) > 0 {
		points := timeline.Timeline[0].Data
		sum := 0.0
		for _, p := range points {
			sum += p.Value
		}
		if len(points) > 0 {
			period.volumeIntensity = sum / float64(len(points))
		}
	}

	if withTone {
		toneParams := cloneValues(base)
		toneParams.Set("mode", "ToneChart")
		var tone gdeltToneChart
		if err := getJSON(ctx, n.httpClient, n.baseURL, toneParams, &tone); err != nil {
			*errs = append(*errs, fmt.Sprintf("gdelt tone since %s: %v", window, err))
		} else {
			period.tone = tone.ToneChart
		}
	}

	return period
}

// gdeltQuery builds the search expression. GDELT requires parentheses
// around OR groups: ("keyword" OR "term1" OR ...).
func gdeltQuery(req evidence.Request) string {
	terms := searchTerms(req)
	if len(terms) == 1 {
		return `"` + terms[0] + `"`
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	return "(" + strings.Join(quoted, " OR ") + ")"
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

// toneMetrics reduces GDELT's tone histogram. Bins run 0 (most negative)
// to 10 (most positive); the weighted average is rescaled to [-1, 1].
func toneMetrics(bins []gdeltToneBin) (avgTone float64, positive, neutral, negative int) {
	totalCount := 0
	weighted := 0
	for _, b := range bins {
		totalCount += b.Count
		weighted += b.Bin * b.Count
		switch {
		case b.Bin >= 7:
			positive += b.Count
		case b.Bin <= 3:
			negative += b.Count
		default:
			neutral += b.Count
		}
	}
	if totalCount > 0 {
		avgTone = (float64(weighted)/float64(totalCount) - 5) / 5
	}
	return avgTone, positive, neutral, negative
}

func mediaAttention(totalArticles int) string {
	switch {
	case totalArticles >= 500:
		return "high"
	case totalArticles >= 100:
		return "medium"
	default:
		return "low"
	}
}

// coverageTrend compares recent volume intensity against the average of the
// two historical windows, with a 30% band counting as stable.
func coverageTrend(vol30d, vol3m, vol1y float64) string {
	if vol3m == 0 && vol1y == 0 {
		if vol30d > 0 {
			return "stable"
		}
		return "unknown"
	}
	historicalAvg := (vol3m + vol1y) / 2
	switch {
	case vol30d > historicalAvg*1.3:
		return "increasing"
	case vol30d < historicalAvg*0.7:
		return "decreasing"
	default:
		return "stable"
	}
}

func sentimentTrend(avgTone float64) string {
	switch {
	case avgTone > 0.2:
		return "positive"
	case avgTone < -0.2:
		return "negative"
	default:
		return "neutral"
	}
}

// mainstreamAdoption buckets domain diversity: broad coverage across many
// outlets means the topic has left the trade press.
func mainstreamAdoption(uniqueDomains, totalArticles int) string {
	if totalArticles == 0 {
		return "niche"
	}
	diversityRatio := float64(uniqueDomains) / float64(totalArticles)
	switch {
	case uniqueDomains >= 50 && diversityRatio > 0.3:
		return "mainstream"
	case uniqueDomains >= 20:
		return "emerging"
	default:
		return "niche"
	}
}
