package main

import (
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(indexCmd)
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the query cache from samples.jsonl",
	Long: `Rebuild the SQLite query cache from the JSONL source file.

Use this after pulling changes from git or if the cache becomes corrupted.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

// IndexResult is the response for the index command.
type IndexResult struct {
	Status          string  `json:"status"`
	Samples         int     `json:"samples"`
	BuildID         string  `json:"build_id"`
	Source          string  `json:"source"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	db := mustOpenDatabase(cfg)
	defer db.Close()

	start := time.Now()
	count, err := db.RebuildFromJSONL(cfg.SamplesPath())
	if err != nil {
		exitWithError(ExitDataError, "rebuilding samples database: %v", err)
	}
	logger.Debug("rebuilt cache", "samples", count, "path", cfg.DBPath())

	info, err := db.BuildInfo()
	if err != nil {
		exitWithError(ExitError, "reading build info: %v", err)
	}

	result := IndexResult{
		Status:          "rebuilt",
		Samples:         count,
		Source:          cfg.SamplesPath(),
		DurationSeconds: time.Since(start).Seconds(),
	}
	if info != nil {
		result.BuildID = info.BuildID
	}

	if humanOutput {
		outputHuman("Rebuilt cache with %d samples (%s)\n", result.Samples, formatDuration(time.Since(start)))
		outputHuman("  Build: %s\n", result.BuildID)
	} else {
		outputJSON(result)
	}
	return nil
}
