package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "hypewatch",
	Short: "Position technology keywords on the Gartner hype cycle",
	Long: `hypewatch gathers evidence about a technology keyword from social
discussion, academic research, patent filings, news coverage, and financial
markets, then classifies the keyword onto the five-phase hype cycle with a
two-stage LLM scoring pipeline. Results are cached locally.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(serveCmd, analyzeCmd, statusCmd)

	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
