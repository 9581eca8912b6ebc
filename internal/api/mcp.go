package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/hypewatch/internal/classifier"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Classifier Analyzer
	Store      Storage
	Version    string
}

// NewMCPServer creates an MCP server exposing the analysis pipeline as a
// tool plus a recent-analyses resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"hypewatch",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("hypewatch positions technology keywords on the Gartner hype cycle from social, research, patent, news, and market evidence."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("analyze_technology",
			mcp.WithDescription("Analyze a technology keyword and position it on the hype cycle (innovation_trigger, peak, trough, slope, plateau). Results are cached for 24 hours."),
			mcp.WithString("keyword", mcp.Description("Technology keyword to analyze, e.g. \"quantum computing\""), mcp.Required()),
		),
		mcpAnalyze(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"hypewatch://analyses",
			"Recent Analyses",
			mcp.WithResourceDescription("Last 20 cached analyses (summaries only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceAnalyses(deps),
	)

	return s
}

func mcpAnalyze(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		keyword, err := req.RequireString("keyword")
		if err != nil {
			return mcpError("keyword is required"), nil
		}

		report, err := deps.Classifier.Classify(ctx, keyword)
		if err != nil {
			var insufficient *classifier.InsufficientEvidenceError
			if errors.As(err, &insufficient) {
				return mcpError(fmt.Sprintf("not enough evidence for %q: %v", keyword, err)), nil
			}
			return mcpError(fmt.Sprintf("analysis failed: %v", err)), nil
		}

		body, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return mcpError(fmt.Sprintf("failed to encode report: %v", err)), nil
		}
		return mcpText(string(body)), nil
	}
}

func mcpResourceAnalyses(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		analyses, err := deps.Store.ListRecent(ctx, 20)
		if err != nil {
			return nil, fmt.Errorf("failed to list analyses: %w", err)
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

		body, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to encode analyses: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(body),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
