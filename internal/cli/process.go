package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/mgpai22/chitra/internal/job"
	"github.com/mgpai22/chitra/internal/playback"
	"github.com/mgpai22/chitra/internal/session"
	"github.com/mgpai22/chitra/internal/subtitle"
	"github.com/spf13/cobra"
)

const playbackTick = 250 * time.Millisecond

var processCmd = &cobra.Command{
	Use:   "process [video_file | url]",
	Short: "Transcribe a video and find an image for every sentence",
	Long: `Process a video end to end: upload its audio for transcription, split the
transcript into sentences, suggest a visual keyword per sentence and fetch a
stock photo for it.

The input is a local file, an http(s) URL, or a preset from the catalog.
Video files are converted to mono 16 kHz mp3 before upload unless
--raw-upload is given.

Examples:
  chitra process talk.mp4
  chitra process https://cdn.example.com/talk.mp4 --suggester openai
  chitra process --preset 2 -o talk.json --image-track talk-images.vtt
  chitra process talk.mp4 --audio narration.wav --play`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().String("preset", "", "Preset id to process instead of a file or URL")
	processCmd.Flags().String("audio", "", "Separate audio file to transcribe instead of the video's audio")
	processCmd.Flags().StringP("output", "o", "", "Write results to this file (.json, .srt or .vtt)")
	processCmd.Flags().String("image-track", "", "Write a WebVTT metadata track of image URLs to this file")
	processCmd.Flags().Bool("play", false, "Simulate playback afterwards and log image changes")
	processCmd.Flags().Bool("raw-upload", false, "Upload video files without extracting audio")
}

func processInput(cmd *cobra.Command, args []string) (session.InputSource, error) {
	preset, _ := cmd.Flags().GetString("preset")
	switch {
	case preset != "" && len(args) > 0:
		return nil, errors.New("give either an input argument or --preset, not both")
	case preset != "":
		return session.PresetInput{ID: preset}, nil
	case len(args) == 1:
		return session.ParseInput(args[0]), nil
	default:
		return nil, errors.New("an input file, URL or --preset is required")
	}
}

func runProcess(cmd *cobra.Command, args []string) error {
	src, err := processInput(cmd, args)
	if err != nil {
		return err
	}

	audioPath, _ := cmd.Flags().GetString("audio")
	outputPath, _ := cmd.Flags().GetString("output")
	imageTrack, _ := cmd.Flags().GetString("image-track")
	play, _ := cmd.Flags().GetBool("play")
	rawUpload, _ := cmd.Flags().GetBool("raw-upload")

	var outputFormat subtitle.Format
	if outputPath != "" {
		if outputFormat, err = subtitle.GetFormatFromExtension(outputPath); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	services, err := session.NewServices(ctx, cfg)
	if err != nil {
		return err
	}

	catalog, err := session.LoadCatalog(cfg.PresetsFile)
	if err != nil {
		return err
	}
	resolver := session.NewResolver(catalog)
	resolver.RawUpload = rawUpload
	resolver.Logger = logger

	policy := job.DefaultPollPolicy()
	policy.Timeout = cfg.PollTimeout

	sess := session.New(services,
		session.WithResolver(resolver),
		session.WithPollPolicy(policy),
		session.WithLogger(logger),
	)
	defer sess.Close()

	updates := make(chan session.Snapshot, 1)
	unsubscribe := sess.Subscribe(func(snap session.Snapshot) {
		keepLatest(updates, snap)
	})
	defer unsubscribe()

	logger.Infow("Starting processing",
		"input", src.String(),
		"transcriber", cfg.Transcriber,
		"suggester", cfg.Suggester,
		"images", cfg.Images,
	)

	if err := sess.SelectInput(ctx, src); err != nil {
		return err
	}
	if audioPath != "" {
		if err := sess.SetTranscriptionAudio(ctx, audioPath); err != nil {
			return err
		}
	}
	if err := sess.Process(ctx); err != nil {
		return err
	}

	snap, err := waitForCompletion(ctx, updates)
	if err != nil {
		return err
	}

	printSummary(snap)

	doc := &subtitle.Document{
		Source:   snap.Media.Source,
		Segments: snap.Segments,
		Images:   snap.Images,
	}
	if outputPath != "" {
		if err := exportDocument(doc, outputFormat, outputPath); err != nil {
			return err
		}
	}
	if imageTrack != "" {
		if err := subtitle.WriteFile(subtitle.NewImageTrackWriter(), doc, imageTrack); err != nil {
			return fmt.Errorf("failed to write image track: %w", err)
		}
		printWritten("Image track", imageTrack)
	}

	if play {
		return simulatePlayback(ctx, sess, updates, playbackDuration(snap))
	}
	return nil
}

// keepLatest replaces any unread snapshot so the reader only sees the
// newest state.
func keepLatest(ch chan session.Snapshot, snap session.Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func waitForCompletion(ctx context.Context, updates <-chan session.Snapshot) (session.Snapshot, error) {
	lastMessage := ""
	for {
		select {
		case <-ctx.Done():
			return session.Snapshot{}, ctx.Err()
		case snap := <-updates:
			if snap.Message != lastMessage {
				logger.Infow(snap.Message, "stage", snap.Status.Stage)
				lastMessage = snap.Message
			}
			switch snap.Status.Stage {
			case session.StageComplete:
				return snap, nil
			case session.StageError, session.StageConfigError, session.StageNoWords:
				return snap, errors.New(snap.Message)
			}
		}
	}
}

func printSummary(snap session.Snapshot) {
	fmt.Printf("Processed %s\n", snap.Media.Name)
	for i, seg := range snap.Segments {
		fmt.Printf("  [%d] %s-%s  %s\n", i, formatClock(seg.StartTime), formatClock(seg.EndTime), seg.Text)
		line := "      " + seg.FetchStatus.Label()
		if seg.VisualQuery != "" {
			line += fmt.Sprintf(" (%q)", seg.VisualQuery)
		}
		if url := snap.Images.DisplayURL(i); url != "" {
			line += " " + url
		}
		fmt.Println(line)
	}
	fmt.Printf("  %s\n", snap.Message)
}

func exportDocument(doc *subtitle.Document, format subtitle.Format, path string) error {
	writer, err := subtitle.NewWriter(format)
	if err != nil {
		return err
	}
	if err := subtitle.WriteFile(writer, doc, path); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	printWritten("Results", path)
	return nil
}

func printWritten(what, path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	fmt.Printf("%s written: %s\n", what, abs)
}

// playbackDuration is the probed media length, or the end of the last
// sentence when probing failed.
func playbackDuration(snap session.Snapshot) time.Duration {
	if snap.Media != nil && snap.Media.Duration > 0 {
		return snap.Media.Duration
	}
	if n := len(snap.Segments); n > 0 {
		return snap.Segments[n-1].EndTime
	}
	return 0
}

// simulatePlayback drives the session clock in real time and logs every
// change of active sentence or image.
func simulatePlayback(
	ctx context.Context,
	sess *session.Session,
	updates <-chan session.Snapshot,
	duration time.Duration,
) error {
	if duration <= 0 {
		logger.Warnw("Nothing to play")
		return nil
	}

	logger.Infow("Starting playback", "duration", duration.String())
	ticker := time.NewTicker(playbackTick)
	defer ticker.Stop()

	start := time.Now()
	sess.SetPlaying(true)
	defer sess.SetPlaying(false)

	last := playback.View{ActiveIndex: playback.NoSegment}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap := <-updates:
			view := snap.Playback
			if view.ActiveIndex != last.ActiveIndex || view.ImageURL != last.ImageURL {
				logPlayback(snap, view)
				last = view
			}
		case <-ticker.C:
			elapsed := time.Since(start)
			if elapsed >= duration {
				sess.Tick(duration)
				logger.Infow("Playback finished")
				return nil
			}
			sess.Tick(elapsed)
		}
	}
}

func logPlayback(snap session.Snapshot, view playback.View) {
	if view.ActiveIndex == playback.NoSegment {
		logger.Infow("No active sentence", "time", formatClock(view.Time))
		return
	}
	text := ""
	if view.ActiveIndex < len(snap.Segments) {
		text = snap.Segments[view.ActiveIndex].Text
	}
	logger.Infow("Active sentence",
		"time", formatClock(view.Time),
		"index", view.ActiveIndex,
		"text", text,
		"image", view.ImageURL,
	)
}
