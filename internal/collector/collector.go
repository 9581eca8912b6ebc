// Package collector implements the five evidence agents: social discussion
// (Hacker News), academic research (Semantic Scholar), patent filings
// (PatentsView), news coverage (GDELT), and financial markets (Yahoo
// Finance). Each collector owns its provider's query construction entirely
// behind the evidence.Collector contract and returns best-effort evidence
// with per-request errors recorded inline; it fails outright only when the
// provider yielded nothing usable at all.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kalambet/hypewatch/internal/evidence"
)

// TickerFinder maps a keyword to public stock tickers. Implemented by the
// DeepSeek client; the finance collector uses it for discovery.
type TickerFinder interface {
	FindTickers(ctx context.Context, keyword string) ([]string, error)
}

// Settings carries provider credentials. Only PatentsView requires one;
// the other providers are queried anonymously.
type Settings struct {
	PatentsViewAPIKey string
}

// New returns the full collector set keyed by source. The same registry is
// used for first-round fan-out and expansion re-runs; selection of the
// re-run subset happens in the classifier.
func New(httpClient *http.Client, tickers TickerFinder, settings Settings) map[evidence.Source]evidence.Collector {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return map[evidence.Source]evidence.Collector{
		evidence.SourceSocial:  NewSocial(httpClient),
		evidence.SourcePapers:  NewPapers(httpClient),
		evidence.SourcePatents: NewPatents(httpClient, settings.PatentsViewAPIKey),
		evidence.SourceNews:    NewNews(httpClient),
		evidence.SourceFinance: NewFinance(httpClient, tickers),
	}
}

// searchTerms returns the keyword plus any expanded terms, capped at five
// extra terms.
func searchTerms(req evidence.Request) []string {
	terms := []string{req.Keyword}
	for i, t := range req.ExpandedTerms {
		if i >= 5 {
			break
		}
		terms = append(terms, t)
	}
	return terms
}

// getJSON issues a GET with query parameters and decodes the JSON body.
func getJSON(ctx context.Context, client *http.Client, rawURL string, params url.Values, out any) error {
	return getJSONWithHeaders(ctx, client, rawURL, params, nil, out)
}

func getJSONWithHeaders(ctx context.Context, client *http.Client, rawURL string, params url.Values, headers map[string]string, out any) error {
	u := rawURL
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("rate limited (HTTP 429)")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
