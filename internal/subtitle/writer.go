package subtitle

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mgpai22/chitra/internal/enrich"
	"github.com/mgpai22/chitra/internal/transcript"
)

// SubRip format
type SRTWriter struct {
	Generator *Generator
}

// WebVTT format; with Images set the cues hold image URLs instead of text
type VTTWriter struct {
	Generator *Generator
	Images    bool
}

// full segment and image dump
type JSONWriter struct{}

func NewWriter(format Format) (Writer, error) {
	switch format {
	case FormatSRT:
		return &SRTWriter{Generator: NewDefaultGenerator()}, nil
	case FormatVTT:
		return &VTTWriter{Generator: NewDefaultGenerator()}, nil
	case FormatJSON:
		return &JSONWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// writer for a WebVTT metadata track of image URLs
func NewImageTrackWriter() Writer {
	return &VTTWriter{Images: true}
}

func (w *SRTWriter) Write(out io.Writer, doc *Document) error {
	sub := w.Generator.Generate(doc.Segments)

	bw := bufio.NewWriter(out)
	for i, entry := range sub.Entries {
		// index (1-based)
		fmt.Fprintf(bw, "%d\n", i+1)

		// timestamps: 00:00:00,000 --> 00:00:00,000
		fmt.Fprintf(bw, "%s --> %s\n",
			formatSRTTime(entry.StartTime),
			formatSRTTime(entry.EndTime))

		bw.WriteString(entry.Text)
		bw.WriteString("\n\n")
	}
	return bw.Flush()
}

func (w *VTTWriter) Write(out io.Writer, doc *Document) error {
	var sub *Subtitle
	if w.Images {
		sub = ImageCues(doc)
	} else {
		sub = w.Generator.Generate(doc.Segments)
	}

	bw := bufio.NewWriter(out)
	bw.WriteString("WEBVTT\n")
	if w.Images {
		bw.WriteString("Kind: metadata\n")
	}
	bw.WriteString("\n")

	for _, entry := range sub.Entries {
		// cue identifier
		fmt.Fprintf(bw, "%d\n", entry.Index)

		// timestamps: 00:00:00.000 --> 00:00:00.000
		fmt.Fprintf(bw, "%s --> %s\n",
			formatVTTTime(entry.StartTime),
			formatVTTTime(entry.EndTime))

		bw.WriteString(escapeVTTText(entry.Text))
		bw.WriteString("\n\n")
	}
	return bw.Flush()
}

type jsonImage struct {
	SourceURL  string `json:"source_url,omitempty"`
	UserURL    string `json:"user_url,omitempty"`
	DisplayURL string `json:"display_url,omitempty"`
}

type jsonSegment struct {
	Index       int                    `json:"index"`
	Text        string                 `json:"text"`
	Start       float64                `json:"start"`
	End         float64                `json:"end"`
	VisualQuery *string                `json:"visual_query"`
	FetchStatus transcript.FetchStatus `json:"fetch_status"`
	Image       *jsonImage             `json:"image"`
	Words       []transcript.Word      `json:"words"`
}

type jsonDocument struct {
	Source   string        `json:"source,omitempty"`
	Segments []jsonSegment `json:"segments"`
}

func (w *JSONWriter) Write(out io.Writer, doc *Document) error {
	result := jsonDocument{
		Source:   doc.Source,
		Segments: make([]jsonSegment, 0, len(doc.Segments)),
	}

	for i, seg := range doc.Segments {
		js := jsonSegment{
			Index:       i,
			Text:        seg.Text,
			Start:       seg.StartTime.Seconds(),
			End:         seg.EndTime.Seconds(),
			FetchStatus: seg.FetchStatus,
			Image:       toJSONImage(doc.Images, i),
			Words:       seg.Words,
		}
		if seg.VisualQuery != "" {
			q := seg.VisualQuery
			js.VisualQuery = &q
		}
		result.Segments = append(result.Segments, js)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func toJSONImage(images enrich.Images, i int) *jsonImage {
	r, ok := images[i]
	if !ok || r == nil {
		return nil
	}
	return &jsonImage{
		SourceURL:  r.SourceURL,
		UserURL:    r.UserURL,
		DisplayURL: r.DisplayURL,
	}
}

// WriteFile writes doc to path, creating parent directories.
func WriteFile(w Writer, doc *Document, path string) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := w.Write(f, doc); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func formatSRTTime(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	millis := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}

func formatVTTTime(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	millis := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}

// a cue payload may not contain "-->"
func escapeVTTText(text string) string {
	return strings.ReplaceAll(text, "-->", "--&gt;")
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0755)
}

// export format based on file extension
func GetFormatFromExtension(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".srt":
		return FormatSRT, nil
	case ".vtt":
		return FormatVTT, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export extension: %q", ext)
	}
}
