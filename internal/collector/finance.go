package collector

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/kalambet/hypewatch/internal/evidence"
)

const financeBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// fallbackTickers are broad tech ETFs used when ticker discovery yields
// nothing; sector performance is a weak but real hype signal.
var fallbackTickers = []string{"QQQ", "XLK"}

const maxTickers = 5

// Finance collects market performance for companies tied to a keyword.
// Ticker discovery goes through the LLM, quotes come from the Yahoo chart
// API. Unlike the other collectors it ignores expanded terms: discovery
// already broadens the keyword into concrete instruments.
type Finance struct {
	baseURL    string
	httpClient *http.Client
	tickers    TickerFinder
}

func NewFinance(client *http.Client, tickers TickerFinder) *Finance {
	return &Finance{baseURL: financeBaseURL, httpClient: client, tickers: tickers}
}

// NewFinanceWithBaseURL points the collector at a custom endpoint (for testing).
func NewFinanceWithBaseURL(client *http.Client, tickers TickerFinder, baseURL string) *Finance {
	return &Finance{baseURL: baseURL, httpClient: client, tickers: tickers}
}

func (f *Finance) Source() evidence.Source { return evidence.SourceFinance }

type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type tickerStats struct {
	symbol        string
	priceChange1m float64
	priceChange6m float64
	priceChange2y float64
	avgVolume1m   float64
	avgVolume6m   float64
	volatility1m  float64
	volatility6m  float64
}

type pricePoint struct {
	ts     int64
	close  float64
	volume float64
}

func (f *Finance) Collect(ctx context.Context, req evidence.Request) (*evidence.Evidence, error) {
	now := time.Now()

	var errs []string
	symbols := f.discoverTickers(ctx, req.Keyword, &errs)

	var stats []tickerStats
	for _, sym := range symbols {
		ts, err := f.fetchTicker(ctx, sym, now)
		if err != nil {
			errs = append(errs, fmt.Sprintf("yahoo chart %s: %v", sym, err))
			continue
		}
		stats = append(stats, ts)
	}

	if len(stats) == 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("no ticker quotes available: %v", errs)
	}

	n := float64(len(stats))
	var change1m, change6m, change2y, vol1m, vol6m, volatility1m, volatility6m float64
	for _, s := range stats {
		change1m += s.priceChange1m
		change6m += s.priceChange6m
		change2y += s.priceChange2y
		vol1m += s.avgVolume1m
		vol6m += s.avgVolume6m
		volatility1m += s.volatility1m
		volatility6m += s.volatility6m
	}
	change1m /= n
	change6m /= n
	change2y /= n
	vol1m /= n
	vol6m /= n
	volatility1m /= n
	volatility6m /= n

	ev := &evidence.Evidence{
		Source:      evidence.SourceFinance,
		Keyword:     req.Keyword,
		CollectedAt: now.UTC(),
		Metrics: map[string]float64{
			"tickers_requested":   float64(len(symbols)),
			"tickers_quoted":      float64(len(stats)),
			"avg_price_change_1m": round3(change1m),
			"avg_price_change_6m": round3(change6m),
			"avg_price_change_2y": round3(change2y),
			"avg_volume_1m":       math.Round(vol1m),
			"avg_volume_6m":       math.Round(vol6m),
			"avg_volatility_1m":   round3(volatility1m),
			"avg_volatility_6m":   round3(volatility6m),
		},
		Signals: map[string]string{
			"market_maturity":     marketMaturity(volatility6m),
			"investor_sentiment":  investorSentiment(change1m, change6m),
			"investment_momentum": investmentMomentum(change1m, change6m, change2y),
			"volume_trend":        volumeTrend(vol1m, vol6m),
		},
		Errors: errs,
	}

	for _, s := range stats {
		ev.TopItems = append(ev.TopItems, evidence.TopItem{
			Title: s.symbol,
			Score: round2(s.priceChange6m * 100),
			Note:  fmt.Sprintf("1m %+.1f%%, 2y %+.1f%%", s.priceChange1m*100, s.priceChange2y*100),
		})
	}

	return ev, nil
}

// discoverTickers asks the LLM for tickers related to the keyword, falling
// back to the sector ETFs on any failure. The result is capped to keep the
// quote fan-out bounded.
func (f *Finance) discoverTickers(ctx context.Context, keyword string, errs *[]string) []string {
	if f.tickers == nil {
		return fallbackTickers
	}
	symbols, err := f.tickers.FindTickers(ctx, keyword)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("ticker discovery: %v", err))
		return fallbackTickers
	}
	if len(symbols) == 0 {
		return fallbackTickers
	}
	if len(symbols) > maxTickers {
		symbols = symbols[:maxTickers]
	}
	return symbols
}

// fetchTicker pulls two years of daily candles for one symbol and derives
// per-window price change, volume, and volatility.
func (f *Finance) fetchTicker(ctx context.Context, symbol string, now time.Time) (tickerStats, error) {
	params := url.Values{
		"range":    {"2y"},
		"interval": {"1d"},
	}
	headers := map[string]string{"User-Agent": "hypewatch/1.0"}

	var chart yahooChart
	if err := getJSONWithHeaders(ctx, f.httpClient, f.baseURL+"/"+url.PathEscape(symbol), params, headers, &chart); err != nil {
		return tickerStats{}, err
	}
	if chart.Chart.Error != nil {
		return tickerStats{}, fmt.Errorf("%s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return tickerStats{}, fmt.Errorf("empty chart result")
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	// Yahoo pads candles with nulls on holidays; keep only complete points.
	var points []pricePoint
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		p := pricePoint{ts: ts, close: *quote.Close[i]}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			p.volume = *quote.Volume[i]
		}
		points = append(points, p)
	}
	if len(points) < 2 {
		return tickerStats{}, fmt.Errorf("not enough price history")
	}

	cut1m := now.AddDate(0, -1, 0).Unix()
	cut6m := now.AddDate(0, -6, 0).Unix()
	points1m := since(points, cut1m)
	points6m := since(points, cut6m)

	return tickerStats{
		symbol:        symbol,
		priceChange1m: priceChange(points1m),
		priceChange6m: priceChange(points6m),
		priceChange2y: priceChange(points),
		avgVolume1m:   avgVolume(points1m),
		avgVolume6m:   avgVolume(points6m),
		volatility1m:  annualizedVolatility(points1m),
		volatility6m:  annualizedVolatility(points6m),
	}, nil
}

func since(points []pricePoint, cutoff int64) []pricePoint {
	for i, p := range points {
		if p.ts >= cutoff {
			return points[i:]
		}
	}
	return nil
}

func priceChange(points []pricePoint) float64 {
	if len(points) < 2 {
		return 0
	}
	start := points[0].close
	if start == 0 {
		return 0
	}
	return (points[len(points)-1].close - start) / start
}

func avgVolume(points []pricePoint) float64 {
	if len(points) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range points {
		sum += p.volume
	}
	return sum / float64(len(points))
}

// annualizedVolatility is the standard deviation of daily returns scaled by
// sqrt(252) trading days.
func annualizedVolatility(points []pricePoint) float64 {
	if len(points) < 3 {
		return 0
	}
	var returns []float64
	for i := 1; i < len(points); i++ {
		prev := points[i-1].close
		if prev == 0 {
			continue
		}
		returns = append(returns, (points[i].close-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	return math.Sqrt(variance) * math.Sqrt(252)
}

func marketMaturity(avgVolatility6m float64) string {
	switch {
	case avgVolatility6m > 0 && avgVolatility6m < 0.3:
		return "mature"
	case avgVolatility6m > 0.6:
		return "emerging"
	default:
		return "developing"
	}
}

// investorSentiment weights the 1-month move over the 6-month move.
func investorSentiment(change1m, change6m float64) string {
	weighted := change1m*0.6 + change6m*0.4
	switch {
	case weighted > 0.05:
		return "positive"
	case weighted < -0.05:
		return "negative"
	default:
		return "neutral"
	}
}

func investmentMomentum(change1m, change6m, change2y float64) string {
	switch {
	case change1m > change6m && change6m > change2y/4:
		return "accelerating"
	case change1m < change6m/2 || (change1m < 0 && change6m > 0):
		return "decelerating"
	default:
		return "steady"
	}
}

func volumeTrend(avgVolume1m, avgVolume6m float64) string {
	if avgVolume6m == 0 {
		return "stable"
	}
	switch change := (avgVolume1m - avgVolume6m) / avgVolume6m; {
	case change > 0.15:
		return "increasing"
	case change < -0.15:
		return "decreasing"
	default:
		return "stable"
	}
}
