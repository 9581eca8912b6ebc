// Package evidence defines the domain types shared by the collectors and the
// classification pipeline: evidence sources, collection requests, collected
// evidence, and per-round agent outcomes. It also hosts the fan-out scheduler
// that runs a set of collectors concurrently under one shared deadline.
package evidence

import "time"

// Source identifies one of the five evidence domains.
type Source string

const (
	SourceSocial  Source = "social"
	SourcePapers  Source = "papers"
	SourcePatents Source = "patents"
	SourceNews    Source = "news"
	SourceFinance Source = "finance"
)

// Sources returns all evidence domains in stable order.
func Sources() []Source {
	return []Source{SourceSocial, SourcePapers, SourcePatents, SourceNews, SourceFinance}
}

// Request describes one collection pass for a keyword. ExpandedTerms carries
// up to five related search terms generated for niche keywords; collectors
// that support term broadening fold them into their provider queries.
// A Request is immutable once handed to a collector.
type Request struct {
	Keyword       string
	ExpandedTerms []string
}

// TopItem is one representative item from a source (a story, paper, patent
// assignee, article, or ticker) kept for LLM context and transparency.
type TopItem struct {
	Title string  `json:"title"`
	Score float64 `json:"score,omitempty"`
	Note  string  `json:"note,omitempty"`
}

// Evidence is the summarized signal one collector gathered for a keyword.
// Errors lists non-fatal problems encountered along the way; a non-empty
// Errors means degraded-but-usable, never collector failure. Failure is
// signaled out of band via the collector's error return.
type Evidence struct {
	Source      Source             `json:"source"`
	Keyword     string             `json:"keyword"`
	CollectedAt time.Time          `json:"collected_at"`
	Metrics     map[string]float64 `json:"metrics"`
	Signals     map[string]string  `json:"signals,omitempty"`
	TopItems    []TopItem          `json:"top_items,omitempty"`
	Errors      []string           `json:"errors,omitempty"`
}

// Status classifies how a collector's round ended.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusTimedOut Status = "timed_out"
)

// Outcome is the result of one collector in one fan-out round. Evidence is
// set only for StatusSuccess; Err only for StatusFailed.
type Outcome struct {
	Status   Status    `json:"status"`
	Evidence *Evidence `json:"evidence,omitempty"`
	Err      string    `json:"error,omitempty"`
}

// Succeeded counts the successful outcomes in a round.
func Succeeded(outcomes map[Source]Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Status == StatusSuccess {
			n++
		}
	}
	return n
}
