package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/matsen/docqa/internal/batch"
	"github.com/matsen/docqa/internal/config"
	"github.com/matsen/docqa/internal/device"
	"github.com/matsen/docqa/internal/loader"
	"github.com/matsen/docqa/internal/sample"
	"github.com/matsen/docqa/internal/storage"
	"github.com/spf13/cobra"
)

var (
	collateFull   bool
	collateStrict bool
	collateLimit  int
)

func init() {
	rootCmd.AddCommand(collateCmd)

	collateCmd.Flags().BoolVar(&collateFull, "full", false, "Output every tensor instead of a summary")
	collateCmd.Flags().BoolVar(&collateStrict, "strict", false, "Abort on the first batch that fails to collate")
	collateCmd.Flags().IntVar(&collateLimit, "limit", 0, "Only collate the first N samples (0 = all)")
}

var collateCmd = &cobra.Command{
	Use:   "collate",
	Short: "Collate samples into padded batches",
	Long: `Read samples.jsonl, collate it into batches with the configured caps, and
move every batch to the configured device.

Batches that fail to collate (empty or misaligned samples) are logged and
skipped unless --strict is given. A failed device transfer always aborts.

Examples:
  docqa collate --human
  docqa collate --full --limit 4`,
	Args: cobra.NoArgs,
	RunE: runCollate,
}

// BatchSummary describes one collated batch.
type BatchSummary struct {
	Index           int                 `json:"index"`
	QuestionIDs     []sample.QuestionID `json:"question_ids"`
	QuestionShape   []int               `json:"question_shape"`
	QuestionChars   []int               `json:"question_chars_shape"`
	ContextShape    []int               `json:"context_shape"`
	ContextChars    []int               `json:"context_chars_shape"`
	QuestionLengths []int64             `json:"question_lengths"`
	ContextLengths  []int64             `json:"context_lengths"`
	Device          string              `json:"device"`
	SizeBytes       int64               `json:"size_bytes"`
}

// SkippedBatch records a batch that failed to collate.
type SkippedBatch struct {
	Index       int                 `json:"index"`
	QuestionIDs []sample.QuestionID `json:"question_ids"`
	Error       string              `json:"error"`
}

// CollateResult is the response for the collate command.
type CollateResult struct {
	Samples         int            `json:"samples"`
	BatchSize       int            `json:"batch_size"`
	Device          string         `json:"device"`
	Batches         []any          `json:"batches"`
	Skipped         []SkippedBatch `json:"skipped,omitempty"`
	DurationSeconds float64        `json:"duration_seconds"`
}

func runCollate(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()

	samples, err := storage.ReadAll(cfg.SamplesPath())
	if err != nil {
		exitWithError(ExitDataError, "reading samples: %v", err)
	}
	if collateLimit > 0 && collateLimit < len(samples) {
		samples = samples[:collateLimit]
	}

	dev, err := cfg.NewDevice()
	if err != nil {
		exitWithError(ExitConfigError, "selecting device: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	result, err := collateAll(ctx, cfg, dev, samples)
	if err != nil {
		var te *batch.TransferError
		switch {
		case errors.As(err, &te):
			exitWithError(ExitDeviceError, "%v", err)
		case batch.IsDataError(err):
			exitWithError(ExitDataError, "%v", err)
		default:
			exitWithError(ExitError, "collating: %v", err)
		}
	}
	result.DurationSeconds = time.Since(start).Seconds()

	if humanOutput {
		printCollateHuman(result)
	} else {
		outputJSON(result)
	}
	return nil
}

// collateAll runs the loader over samples and moves each batch to dev.
func collateAll(ctx context.Context, cfg *config.Config, dev device.Device, samples []sample.EncodedSample) (*CollateResult, error) {
	opts := []loader.Option{
		loader.WithBatchSize(cfg.BatchSize),
		loader.WithWorkers(cfg.LoaderNumWorkers),
		loader.WithRateLimit(cfg.LoaderRate),
		loader.WithLogger(logger),
	}
	if cfg.Shuffle {
		opts = append(opts, loader.WithShuffle(cfg.Seed))
	}
	l := loader.New(batch.NewCollator(cfg.MaxQuestionSize, cfg.MaxContextSize), opts...)

	result := &CollateResult{
		Samples:   len(samples),
		BatchSize: cfg.BatchSize,
		Device:    dev.Name(),
		Batches:   []any{},
	}

	err := l.Run(ctx, samples, func(r loader.Result) error {
		if r.Err != nil {
			if collateStrict {
				return r.Err
			}
			logger.Warn("skipping batch", "batch", r.Index, "error", r.Err)
			result.Skipped = append(result.Skipped, SkippedBatch{
				Index:       r.Index,
				QuestionIDs: idsAt(samples, r.Indices),
				Error:       r.Err.Error(),
			})
			return nil
		}

		if err := r.Batch.To(dev); err != nil {
			return fmt.Errorf("batch %d: %w", r.Index, err)
		}
		logger.Debug("moved batch", "batch", r.Index, "device", dev.Name(), "bytes", r.Batch.SizeBytes())

		if collateFull {
			result.Batches = append(result.Batches, r.Batch)
		} else {
			result.Batches = append(result.Batches, summarize(r.Index, r.Batch))
		}

		// Summaries do not keep device memory alive.
		if arena, ok := dev.(*device.Arena); ok && !collateFull {
			arena.Release(r.Batch.SizeBytes())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func summarize(index int, b *batch.Batch) BatchSummary {
	q, c := b.Question(), b.Context()
	return BatchSummary{
		Index:           index,
		QuestionIDs:     b.QuestionIDs(),
		QuestionShape:   q.Words.Shape(),
		QuestionChars:   q.Chars.Shape(),
		ContextShape:    c.Words.Shape(),
		ContextChars:    c.Chars.Shape(),
		QuestionLengths: q.Lengths.Data(),
		ContextLengths:  c.Lengths.Data(),
		Device:          b.Device(),
		SizeBytes:       b.SizeBytes(),
	}
}

func idsAt(samples []sample.EncodedSample, indices []int) []sample.QuestionID {
	ids := make([]sample.QuestionID, len(indices))
	for i, idx := range indices {
		ids[i] = samples[idx].QuestionID
	}
	return ids
}

func printCollateHuman(result *CollateResult) {
	outputHuman("Collated %d samples into %d batches on %s (%s)\n",
		result.Samples, len(result.Batches), result.Device,
		formatDuration(time.Duration(result.DurationSeconds*float64(time.Second))))

	for _, item := range result.Batches {
		switch v := item.(type) {
		case BatchSummary:
			outputHuman("\nBatch %d (%s)\n", v.Index, formatBytes(v.SizeBytes))
			outputHuman("  ids:       %s\n", formatList(v.QuestionIDs, DefaultListLimit))
			outputHuman("  question:  %s chars %s lengths [%s]\n",
				formatShape(v.QuestionShape), formatShape(v.QuestionChars), formatList(v.QuestionLengths, DefaultListLimit))
			outputHuman("  context:   %s chars %s lengths [%s]\n",
				formatShape(v.ContextShape), formatShape(v.ContextChars), formatList(v.ContextLengths, DefaultListLimit))
		case *batch.Batch:
			outputHuman("\nBatch of %d on %s\n", v.Len(), v.Device())
			outputHuman("  question words %v\n", v.Question().Words)
			outputHuman("  context words  %v\n", v.Context().Words)
			outputHuman("  span starts    %v\n", v.SpanStarts())
			outputHuman("  span ends      %v\n", v.SpanEnds())
		}
	}

	if len(result.Skipped) > 0 {
		outputHuman("\nSkipped %d batches:\n", len(result.Skipped))
		for _, s := range result.Skipped {
			outputHuman("  %d [%s]: %s\n", s.Index, formatList(s.QuestionIDs, DefaultListLimit), s.Error)
		}
	}
}
