package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mgpai22/chitra/internal/enrich"
	"github.com/mgpai22/chitra/internal/subtitle"
	"github.com/mgpai22/chitra/internal/transcript"
	"github.com/spf13/cobra"
)

var segmentCmd = &cobra.Command{
	Use:   "segment [words.json]",
	Short: "Split a word-level transcript into timed sentences",
	Long: `Run the sentence segmenter over a word list without calling any service.

The input is a JSON array of {"text", "start", "end"} words with times in
milliseconds, or an object with such an array under "words" (the shape of
an AssemblyAI transcript).

Examples:
  chitra segment words.json
  chitra segment transcript.json --max-gap 1s -o sentences.srt`,
	Args: cobra.ExactArgs(1),
	RunE: runSegment,
}

func init() {
	rootCmd.AddCommand(segmentCmd)

	segmentCmd.Flags().Duration("max-gap", transcript.DefaultMaxGap, "Silence that starts a new sentence")
	segmentCmd.Flags().StringP("output", "o", "", "Write sentences to this file (.json, .srt or .vtt) instead of stdout")
}

func runSegment(cmd *cobra.Command, args []string) error {
	maxGap, _ := cmd.Flags().GetDuration("max-gap")
	outputPath, _ := cmd.Flags().GetString("output")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read words: %w", err)
	}
	words, err := parseWords(data)
	if err != nil {
		return err
	}

	segmenter := &transcript.Segmenter{MaxGap: maxGap}
	segments := segmenter.Segment(words)
	logger.Infow("Segmented transcript",
		"words", len(words),
		"segments", len(segments),
	)

	doc := &subtitle.Document{
		Source:   args[0],
		Segments: segments,
		Images:   enrich.Images{},
	}

	if outputPath == "" {
		return (&subtitle.JSONWriter{}).Write(os.Stdout, doc)
	}

	format, err := subtitle.GetFormatFromExtension(outputPath)
	if err != nil {
		return err
	}
	return exportDocument(doc, format, outputPath)
}

// parseWords accepts a bare word array or an object with a "words" field.
func parseWords(data []byte) ([]transcript.Word, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("word list is empty")
	}

	var words []transcript.Word
	if data[0] == '[' {
		if err := json.Unmarshal(data, &words); err != nil {
			return nil, fmt.Errorf("failed to parse words: %w", err)
		}
		return words, nil
	}

	var wrapped struct {
		Words []transcript.Word `json:"words"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse words: %w", err)
	}
	return wrapped.Words, nil
}
