package main

import (
	"github.com/matsen/docqa/internal/storage"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus statistics from the cache",
	Long: `Show sample counts and sequence length statistics from the SQLite cache.

single_answer reports whether every answered sample has exactly one span
start, which decides between single- and multi-class span losses.

Run 'docqa index' first if the cache is empty.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

// StatsResult is the response for the stats command.
type StatsResult struct {
	*storage.Stats
	Build *storage.BuildInfo `json:"build,omitempty"`
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	db := mustOpenDatabase(cfg)
	defer db.Close()

	info, err := db.BuildInfo()
	if err != nil {
		exitWithError(ExitError, "reading build info: %v", err)
	}
	if info == nil {
		exitWithError(ExitConfigError, "cache not built\n\nRun 'docqa index' to build it.")
	}

	st, err := db.Stats()
	if err != nil {
		exitWithError(ExitError, "computing stats: %v", err)
	}

	if humanOutput {
		outputHuman("Samples:        %d (%d answered, %.1f%% unanswered)\n", st.Samples, st.Answered, st.UnansweredPct)
		outputHuman("Multi-answer:   %d (single_answer=%t)\n", st.MultiAnswer, st.SingleAnswer)
		outputHuman("Question len:   max %d, mean %.1f\n", st.MaxQuestion, st.MeanQuestion)
		outputHuman("Context len:    max %d, mean %.1f\n", st.MaxContext, st.MeanContext)
		outputHuman("Max word chars: %d\n", st.MaxWordChars)
		outputHuman("Built:          %s from %s\n", info.BuiltAt.Format("2006-01-02 15:04:05"), info.Source)
	} else {
		outputJSON(StatsResult{Stats: st, Build: info})
	}
	return nil
}
