package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/hypewatch/internal/evidence"
)

type fakeTickerFinder struct {
	symbols []string
	err     error
}

func (f *fakeTickerFinder) FindTickers(ctx context.Context, keyword string) ([]string, error) {
	return f.symbols, f.err
}

func chartJSON(now time.Time) string {
	ts := []int64{
		now.AddDate(0, 0, -10).Unix(),
		now.AddDate(0, 0, -5).Unix(),
		now.AddDate(0, 0, -1).Unix(),
	}
	return fmt.Sprintf(`{"chart":{"result":[{"timestamp":[%d,%d,%d],
		"indicators":{"quote":[{"close":[100,110,121],"volume":[1000,null,2000]}]}}]}}`,
		ts[0], ts[1], ts[2])
}

func TestFinanceCollect(t *testing.T) {
	now := time.Now()
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if got := r.Header.Get("User-Agent"); got == "" {
			t.Error("missing User-Agent header")
		}
		fmt.Fprint(w, chartJSON(now))
	}))
	defer srv.Close()

	f := NewFinanceWithBaseURL(srv.Client(), &fakeTickerFinder{symbols: []string{"NVDA", "AMD"}}, srv.URL)
	ev, err := f.Collect(context.Background(), evidence.Request{Keyword: "gpu computing"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if diff := cmp.Diff([]string{"/NVDA", "/AMD"}, paths); diff != "" {
		t.Errorf("request paths (-want +got):\n%s", diff)
	}
	if ev.Metrics["tickers_requested"] != 2 || ev.Metrics["tickers_quoted"] != 2 {
		t.Errorf("ticker counts = %v", ev.Metrics)
	}
	if ev.Metrics["avg_price_change_1m"] != 0.21 {
		t.Errorf("avg_price_change_1m = %v, want 0.21", ev.Metrics["avg_price_change_1m"])
	}
	if len(ev.TopItems) != 2 || ev.TopItems[0].Title != "NVDA" {
		t.Errorf("topItems = %+v", ev.TopItems)
	}
}

func TestFinanceCollectAllQuotesFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[],"error":{"description":"no data found"}}}`)
	}))
	defer srv.Close()

	f := NewFinanceWithBaseURL(srv.Client(), &fakeTickerFinder{symbols: []string{"ZZZZ"}}, srv.URL)
	if _, err := f.Collect(context.Background(), evidence.Request{Keyword: "x"}); err == nil {
		t.Fatal("expected error when no ticker produced quotes")
	}
}

func TestDiscoverTickersFallback(t *testing.T) {
	ctx := context.Background()

	var errs []string
	f := &Finance{tickers: nil}
	if got := f.discoverTickers(ctx, "x", &errs); !cmp.Equal(got, fallbackTickers) {
		t.Errorf("nil finder = %v, want fallback ETFs", got)
	}

	f = &Finance{tickers: &fakeTickerFinder{err: errors.New("llm down")}}
	if got := f.discoverTickers(ctx, "x", &errs); !cmp.Equal(got, fallbackTickers) {
		t.Errorf("finder error = %v, want fallback ETFs", got)
	}
	if len(errs) != 1 {
		t.Errorf("errs = %v, want the discovery failure recorded", errs)
	}

	f = &Finance{tickers: &fakeTickerFinder{symbols: []string{}}}
	if got := f.discoverTickers(ctx, "x", &errs); !cmp.Equal(got, fallbackTickers) {
		t.Errorf("empty result = %v, want fallback ETFs", got)
	}

	many := []string{"A", "B", "C", "D", "E", "F", "G"}
	f = &Finance{tickers: &fakeTickerFinder{symbols: many}}
	if got := f.discoverTickers(ctx, "x", &errs); len(got) != maxTickers {
		t.Errorf("tickers = %d, want capped at %d", len(got), maxTickers)
	}
}

func TestSinceAndPriceChange(t *testing.T) {
	points := []pricePoint{
		{ts: 100, close: 50},
		{ts: 200, close: 60},
		{ts: 300, close: 75},
	}
	if got := since(points, 150); len(got) != 2 || got[0].ts != 200 {
		t.Errorf("since = %+v", got)
	}
	if got := since(points, 400); got != nil {
		t.Errorf("since past the end = %+v, want nil", got)
	}
	if got := priceChange(points); got != 0.5 {
		t.Errorf("priceChange = %v, want 0.5", got)
	}
	if got := priceChange(points[:1]); got != 0 {
		t.Errorf("priceChange with one point = %v, want 0", got)
	}
}

func TestAnnualizedVolatility(t *testing.T) {
	flat := []pricePoint{{close: 100}, {close: 100}, {close: 100}, {close: 100}}
	if got := annualizedVolatility(flat); got != 0 {
		t.Errorf("volatility of a flat series = %v, want 0", got)
	}
	choppy := []pricePoint{{close: 100}, {close: 110}, {close: 95}, {close: 120}}
	if got := annualizedVolatility(choppy); got <= 0 {
		t.Errorf("volatility of a choppy series = %v, want positive", got)
	}
	if got := annualizedVolatility(choppy[:2]); got != 0 {
		t.Errorf("volatility with too few points = %v, want 0", got)
	}
}

func TestMarketSignals(t *testing.T) {
	if got := marketMaturity(0.2); got != "mature" {
		t.Errorf("marketMaturity(0.2) = %q, want mature", got)
	}
	if got := marketMaturity(0.8); got != "emerging" {
		t.Errorf("marketMaturity(0.8) = %q, want emerging", got)
	}
	if got := marketMaturity(0); got != "developing" {
		t.Errorf("marketMaturity(0) = %q, want developing", got)
	}

	if got := investorSentiment(0.1, 0.1); got != "positive" {
		t.Errorf("investorSentiment = %q, want positive", got)
	}
	if got := investorSentiment(-0.2, 0); got != "negative" {
		t.Errorf("investorSentiment = %q, want negative", got)
	}
	if got := investorSentiment(0.01, 0.01); got != "neutral" {
		t.Errorf("investorSentiment = %q, want neutral", got)
	}

	if got := investmentMomentum(0.2, 0.1, 0.2); got != "accelerating" {
		t.Errorf("investmentMomentum = %q, want accelerating", got)
	}
	if got := investmentMomentum(-0.05, 0.1, 0.2); got != "decelerating" {
		t.Errorf("investmentMomentum = %q, want decelerating", got)
	}
	if got := investmentMomentum(0.05, 0.05, 0.4); got != "steady" {
		t.Errorf("investmentMomentum = %q, want steady", got)
	}

	if got := volumeTrend(120, 100); got != "increasing" {
		t.Errorf("volumeTrend = %q, want increasing", got)
	}
	if got := volumeTrend(80, 100); got != "decreasing" {
		t.Errorf("volumeTrend = %q, want decreasing", got)
	}
	if got := volumeTrend(100, 100); got != "stable" {
		t.Errorf("volumeTrend = %q, want stable", got)
	}
	if got := volumeTrend(5, 0); got != "stable" {
		t.Errorf("volumeTrend with no history = %q, want stable", got)
	}
}
