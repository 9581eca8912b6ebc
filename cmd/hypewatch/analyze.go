package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/hypewatch/internal/classifier"
	"github.com/kalambet/hypewatch/internal/config"
	"github.com/kalambet/hypewatch/internal/deepseek"
	"github.com/kalambet/hypewatch/internal/evidence"
	"github.com/kalambet/hypewatch/internal/storage"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <keyword>",
	Short: "Analyze a technology keyword in-process and print the result",
	Long: `Analyze a technology keyword without a running server. Evidence is
collected, scored, and cached using the same pipeline the server runs.

Examples:
  hypewatch analyze "quantum computing"
  hypewatch analyze "solid-state batteries" --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return runAnalyze(cmd.Context(), args[0], asJSON)
	},
}

func init() {
	analyzeCmd.Flags().Bool("json", false, "print the full report as JSON")
}

func runAnalyze(ctx context.Context, keyword string, asJSON bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	cls := buildClassifier(cfg, store)

	report, err := cls.Classify(ctx, keyword)
	if err != nil {
		var insufficient *classifier.InsufficientEvidenceError
		if errors.As(err, &insufficient) {
			printError("Not enough evidence: %d of %d required sources at %s stage",
				insufficient.Succeeded, insufficient.Required, insufficient.Stage)
			for _, detail := range insufficient.Errors {
				printWarning("%s", detail)
			}
		}
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printReport(report)
	return nil
}

func printReport(r *classifier.Report) {
	origin := "fresh analysis"
	if r.CacheHit {
		origin = "cached result"
	}
	printSuccess("%s: %s (%.0f%% confidence, %s)", r.Keyword, phaseLabel(r.Phase), r.Confidence*100, origin)

	fmt.Fprintln(os.Stderr)
	printStatus("Reasoning", "%s", r.Reasoning)
	printStatus("Sources", "%d of %d succeeded", r.SourcesSucceeded, len(evidence.Sources()))
	if r.ExpansionApplied {
		printStatus("Expanded terms", "%s", strings.Join(r.ExpandedTerms, ", "))
	}
	printStatus("Expires", "%s", r.ExpiresAt.Local().Format("2006-01-02 15:04"))

	if len(r.SourceJudgments) > 0 {
		fmt.Fprintln(os.Stderr)
		var sources []evidence.Source
		for src := range r.SourceJudgments {
			sources = append(sources, src)
		}
		sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
		for _, src := range sources {
			j := r.SourceJudgments[src]
			printStatus(string(src), "%s (%.0f%%)", phaseLabel(j.Phase), j.Confidence*100)
		}
	}

	for _, e := range r.Errors {
		printWarning("%s", e)
	}
}

func phaseLabel(phase deepseek.Phase) string {
	switch phase {
	case deepseek.PhaseInnovationTrigger:
		return "Innovation Trigger"
	case deepseek.PhasePeak:
		return "Peak of Inflated Expectations"
	case deepseek.PhaseTrough:
		return "Trough of Disillusionment"
	case deepseek.PhaseSlope:
		return "Slope of Enlightenment"
	case deepseek.PhasePlateau:
		return "Plateau of Productivity"
	default:
		return string(phase)
	}
}
