// Package api exposes the analysis pipeline over HTTP (chi router) and MCP
// (stdio). Error responses use a structured envelope distinguishing caller
// mistakes, insufficient evidence, and internal failures.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/hypewatch/internal/classifier"
	"github.com/kalambet/hypewatch/internal/storage"
)

const maxRequestBodySize = 1 << 16 // 64KB; requests carry only a keyword

// Analyzer runs one keyword classification. Implemented by
// classifier.Classifier.
type Analyzer interface {
	Classify(ctx context.Context, keyword string) (*classifier.Report, error)
}

// Storage is the slice of the store the HTTP layer needs.
type Storage interface {
	Ping(ctx context.Context) error
	ListRecent(ctx context.Context, limit int) ([]storage.Analysis, error)
}

// Deps holds handler dependencies.
type Deps struct {
	Classifier Analyzer
	Store      Storage
	Version    string
}

// NewHandler returns the HTTP API router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Post("/api/analyze", handleAnalyze(deps))
	r.Get("/api/health", handleHealth(deps))
	r.Get("/api/analyses", handleAnalyses(deps))

	return r
}

type analyzeRequest struct {
	Keyword string `json:"keyword"`
}

func handleAnalyze(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		report, err := deps.Classifier.Classify(r.Context(), req.Keyword)
		if err != nil {
			writeClassifyError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	}
}

// writeClassifyError maps pipeline errors onto HTTP statuses: bad keyword
// is the caller's fault, a missed quorum is retryable, everything else is
// internal.
func writeClassifyError(w http.ResponseWriter, err error) {
	var insufficient *classifier.InsufficientEvidenceError
	switch {
	case errors.Is(err, classifier.ErrEmptyKeyword):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "keyword is required and must not be empty")
	case errors.As(err, &insufficient):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message":   insufficient.Error(),
				"type":      "insufficient_evidence",
				"stage":     insufficient.Stage,
				"succeeded": insufficient.Succeeded,
				"required":  insufficient.Required,
				"details":   insufficient.Errors,
			},
		})
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "analysis failed: %v", err)
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbStatus := "ok"
		status := "ok"
		code := http.StatusOK
		if err := deps.Store.Ping(r.Context()); err != nil {
			dbStatus = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{
			"status":   status,
			"database": dbStatus,
			"version":  deps.Version,
		})
	}
}

type analysisSummary struct {
	Keyword          string  `json:"keyword"`
	Phase            string  `json:"phase"`
	Confidence       float64 `json:"confidence"`
	CreatedAt        string  `json:"created_at"`
	ExpiresAt        string  `json:"expires_at"`
	ExpansionApplied bool    `json:"expansion_applied"`
}

func handleAnalyses(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analyses, err := deps.Store.ListRecent(r.Context(), 20)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing analyses: %v", err)
			return
		}

		summaries := make([]analysisSummary, len(analyses))
		for i, a := range analyses {
			summaries[i] = analysisSummary{
				Keyword:          a.Keyword,
				Phase:            string(a.Phase),
				Confidence:       a.Confidence,
				CreatedAt:        a.CreatedAt.UTC().Format(time.RFC3339),
				ExpiresAt:        a.ExpiresAt.UTC().Format(time.RFC3339),
				ExpansionApplied: a.ExpansionApplied,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"analyses": summaries})
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
