package main

import (
	"fmt"
	"strings"

	"github.com/matsen/docqa/internal/sample"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get <question-id>",
	Short: "Get a single sample by question ID",
	Long: `Get a single encoded sample from the cache by its question ID.

Example:
  docqa get 56be4db0acb8001400a502ec`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	db := mustOpenDatabase(cfg)
	defer db.Close()

	id := sample.QuestionID(args[0])
	s, err := db.GetByID(id)
	if err != nil {
		exitWithError(ExitError, "getting sample: %v", err)
	}
	if s == nil {
		exitWithError(ExitNotFound, "sample not found: %s", id)
	}

	if humanOutput {
		printSampleDetail(*s)
	} else {
		outputJSON(s)
	}
	return nil
}

func printSampleDetail(s sample.EncodedSample) {
	fmt.Println(s.QuestionID)
	fmt.Println(strings.Repeat("=", 40))
	fmt.Printf("Question: %d tokens [%s]\n", len(s.QuestionWords), formatList(s.QuestionWords, DefaultListLimit))
	fmt.Printf("Context:  %d tokens [%s]\n", len(s.ContextWords), formatList(s.ContextWords, DefaultListLimit))

	if !s.HasAnswer() {
		fmt.Println("Answers:  none")
		return
	}

	var starts, ends []int
	for i := range s.SpanStarts {
		if s.SpanStarts[i] != 0 {
			starts = append(starts, i)
		}
		if s.SpanEnds[i] != 0 {
			ends = append(ends, i)
		}
	}
	fmt.Printf("Answers:  %d\n", s.AnswerCount())
	fmt.Printf("  starts: [%s]\n", formatList(starts, DefaultListLimit))
	fmt.Printf("  ends:   [%s]\n", formatList(ends, DefaultListLimit))
}
