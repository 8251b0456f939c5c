package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	ffmpegbin "github.com/mgpai22/chitra/internal/ffmpeg"
)

// settings for the audio sent to transcription
type AudioOptions struct {
	Format     string // mp3, aac, wav or flac
	SampleRate int    // Hz
	Channels   int    // 1=mono, 2=stereo
	Bitrate    string // lossy formats only, e.g. "64k"
}

// defaults for transcription uploads
func DefaultAudioOptions() AudioOptions {
	return AudioOptions{
		Format:     "mp3",
		SampleRate: 16000,
		Channels:   1,
		Bitrate:    "64k",
	}
}

// file extension for the chosen format, with leading dot
func (o AudioOptions) Ext() string {
	switch o.Format {
	case "aac":
		return ".m4a"
	case "wav", "flac":
		return "." + o.Format
	default:
		return ".mp3"
	}
}

func (o AudioOptions) kwargs() ffmpeg.KwArgs {
	kwargs := ffmpeg.KwArgs{
		"vn": "",
		"ar": o.SampleRate,
		"ac": o.Channels,
	}

	switch o.Format {
	case "aac":
		kwargs["acodec"] = "aac"
	case "flac":
		kwargs["acodec"] = "flac"
	case "wav":
		kwargs["acodec"] = "pcm_s16le"
	default:
		kwargs["acodec"] = "libmp3lame"
	}

	if o.Bitrate != "" && (o.Format == "mp3" || o.Format == "aac" || o.Format == "") {
		kwargs["b:a"] = o.Bitrate
	}
	return kwargs
}

func extractStream(inputPath, outputPath string, opts AudioOptions) *ffmpeg.Stream {
	return ffmpeg.Input(inputPath).
		Output(outputPath, opts.kwargs()).
		OverWriteOutput()
}

// ExtractAudio writes the audio track of inputPath to outputPath, re-encoded
// for upload.
func ExtractAudio(
	ctx context.Context,
	inputPath, outputPath string,
	opts AudioOptions,
) error {
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return fmt.Errorf("input file not found: %s", inputPath)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ffmpegPath, err := ffmpegbin.FFmpegPath()
	if err != nil {
		return err
	}

	var stderr bytes.Buffer
	cmd := command(ctx, extractStream(inputPath, outputPath, opts).SetFfmpegPath(ffmpegPath))
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			_ = os.Remove(outputPath)
			return ctx.Err()
		}
		return fmt.Errorf("audio extraction failed: %w: %s", err, lastLine(stderr.String()))
	}

	return nil
}

// command compiles stream into an ffmpeg process that is killed when ctx
// is done.
func command(ctx context.Context, stream *ffmpeg.Stream) *exec.Cmd {
	compiled := stream.Silent(true).Compile()
	cmd := exec.CommandContext(ctx, compiled.Path, compiled.Args[1:]...)
	cmd.Stdin = compiled.Stdin
	cmd.Stdout = compiled.Stdout
	cmd.Stderr = compiled.Stderr
	return cmd
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// JSON output from ffprobe
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbeDuration(out []byte) (time.Duration, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// duration of a local file or remote URL
func GetDuration(ctx context.Context, source string) (time.Duration, error) {
	if !IsRemote(source) {
		if _, err := os.Stat(source); os.IsNotExist(err) {
			return 0, fmt.Errorf("file not found: %s", source)
		}
	}

	ffprobePath, err := ffmpegbin.FFprobePath()
	if err != nil {
		return 0, err
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		source,
	)

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbeDuration(out.Bytes())
}

var videoExts = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
	".mpeg": true,
	".mpg":  true,
	".3gp":  true,
}

var audioExts = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".aac":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
	".wma":  true,
	".aiff": true,
}

func ext(path string) string {
	if IsRemote(path) {
		if i := strings.IndexAny(path, "?#"); i >= 0 {
			path = path[:i]
		}
	}
	return strings.ToLower(filepath.Ext(path))
}

// checks if the file is a video based on extension
func IsVideoFile(path string) bool {
	return videoExts[ext(path)]
}

// checks if the file is an audio file based on extension
func IsAudioFile(path string) bool {
	return audioExts[ext(path)]
}

func IsMediaFile(path string) bool {
	return IsAudioFile(path) || IsVideoFile(path)
}

func IsRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
