package subtitle

import (
	"io"
	"time"

	"github.com/mgpai22/chitra/internal/enrich"
	"github.com/mgpai22/chitra/internal/transcript"
)

// represents single cue
type Entry struct {
	Index     int
	StartTime time.Duration
	EndTime   time.Duration
	Text      string
}

// represents complete cue track
type Subtitle struct {
	Entries []Entry
}

// represents supported export formats
type Format string

const (
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
	FormatJSON Format = "json"
)

// processed transcript to export
type Document struct {
	Source   string
	Segments []transcript.Segment
	Images   enrich.Images
}

// interface for writing a document in one format
type Writer interface {
	Write(w io.Writer, doc *Document) error
}
