package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/mgpai22/chitra/internal/config"
	"github.com/mgpai22/chitra/internal/logging"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	envFile string
	logger  *logging.Logger
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "chitra",
	Short: "Illustrate spoken video with stock images, sentence by sentence",
	Long: `Chitra transcribes the audio of a video, asks a language model for a
visual keyword per sentence, fetches a matching stock photo, and plays the
images back in sync with the speech.

Providers are selected with flags or CHITRA_* environment variables; API keys
are read from the environment or an .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logging.NewLogger(verbose)

		loaded, err := config.Load(envFile)
		if err != nil {
			return err
		}
		if err := applyFlagOverrides(cmd, loaded); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	flags.StringVar(&envFile, "env-file", "", "Load environment variables from this file before .env")
	flags.String("transcriber", "", "Transcription provider (assemblyai, openai)")
	flags.String("suggester", "", "Keyword suggestion provider (gemini, openai, anthropic)")
	flags.String("images", "", "Image search provider (pixabay, pexels)")
	flags.String("model", "", "Model for keyword suggestions")
	flags.String("presets", "", "Preset catalog JSON file")
	flags.Duration("poll-timeout", 0, "Give up on a transcription job after this long (default 30m, 0 disables the limit)")
}

// applyFlagOverrides copies explicitly set flags over env configuration.
func applyFlagOverrides(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()

	for name, target := range map[string]*string{
		"transcriber": &c.Transcriber,
		"suggester":   &c.Suggester,
		"images":      &c.Images,
	} {
		if !flags.Changed(name) {
			continue
		}
		value, _ := flags.GetString(name)
		*target = strings.ToLower(strings.TrimSpace(value))
	}

	if flags.Changed("model") {
		c.SuggestModel, _ = flags.GetString("model")
	}
	if flags.Changed("presets") {
		c.PresetsFile, _ = flags.GetString("presets")
	}
	if flags.Changed("poll-timeout") {
		timeout, _ := flags.GetDuration("poll-timeout")
		if timeout < 0 {
			return fmt.Errorf("--poll-timeout must not be negative")
		}
		c.PollTimeout = timeout
	}
	return nil
}

func formatClock(d time.Duration) string {
	d = d.Round(100 * time.Millisecond)
	minutes := int(d.Minutes())
	seconds := d.Seconds() - float64(minutes*60)
	return fmt.Sprintf("%02d:%04.1f", minutes, seconds)
}
