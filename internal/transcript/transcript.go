package transcript

import (
	"time"
)

// single transcribed word, times in milliseconds from media start
type Word struct {
	Text       string  `json:"text"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Confidence float64 `json:"confidence,omitempty"`
}

func (w Word) StartTime() time.Duration {
	return time.Duration(w.Start) * time.Millisecond
}

func (w Word) EndTime() time.Duration {
	return time.Duration(w.End) * time.Millisecond
}

// per-segment enrichment progress
type FetchStatus string

const (
	StatusIdle             FetchStatus = "idle"
	StatusSuggesting       FetchStatus = "suggesting"
	StatusFetching         FetchStatus = "fetching"
	StatusFetched          FetchStatus = "fetched"
	StatusFailedSuggestion FetchStatus = "failed_suggestion"
	StatusFailedFetch      FetchStatus = "failed_fetch"
	StatusNoImageFound     FetchStatus = "no_image_found"
)

// human readable status shown next to a segment
func (s FetchStatus) Label() string {
	switch s {
	case StatusIdle:
		return "Pending"
	case StatusSuggesting:
		return "Suggesting keyword..."
	case StatusFetching:
		return "Fetching image..."
	case StatusFetched:
		return "Image found"
	case StatusFailedSuggestion:
		return "Suggestion failed"
	case StatusFailedFetch:
		return "No image for keyword"
	case StatusNoImageFound:
		return "No visual keyword"
	default:
		return string(s)
	}
}

// Terminal reports whether a processing round has finished for the segment.
func (s FetchStatus) Terminal() bool {
	switch s {
	case StatusFetched, StatusFailedSuggestion, StatusFailedFetch, StatusNoImageFound:
		return true
	default:
		return false
	}
}

// sentence-level slice of a transcript
type Segment struct {
	Text        string        `json:"text"`
	StartTime   time.Duration `json:"start_time"`
	EndTime     time.Duration `json:"end_time"`
	Words       []Word        `json:"words"`
	VisualQuery string        `json:"visual_query,omitempty"`
	FetchStatus FetchStatus   `json:"fetch_status"`
}

// Contains reports whether t falls in [StartTime, EndTime).
func (s Segment) Contains(t time.Duration) bool {
	return s.StartTime <= t && t < s.EndTime
}

func (s Segment) Clone() Segment {
	c := s
	c.Words = append([]Word(nil), s.Words...)
	return c
}

// deep copies a segment list
func CloneAll(segments []Segment) []Segment {
	if segments == nil {
		return nil
	}
	out := make([]Segment, len(segments))
	for i, s := range segments {
		out[i] = s.Clone()
	}
	return out
}
