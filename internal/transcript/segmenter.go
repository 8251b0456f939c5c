package transcript

import (
	"strings"
	"time"
)

// gap between two words that starts a new sentence
const DefaultMaxGap = 700 * time.Millisecond

// groups timed words into sentences
type Segmenter struct {
	MaxGap time.Duration
}

func NewSegmenter() *Segmenter {
	return &Segmenter{MaxGap: DefaultMaxGap}
}

// Segment closes a sentence on terminal punctuation, on the last word, or
// when the silence before the next word exceeds MaxGap. The result is
// ordered, covers every input word exactly once and never holds an empty
// segment.
func (g *Segmenter) Segment(words []Word) []Segment {
	if len(words) == 0 {
		return []Segment{}
	}

	maxGap := g.MaxGap
	if maxGap <= 0 {
		maxGap = DefaultMaxGap
	}

	var (
		segments []Segment
		buffer   []Word
	)

	for i, word := range words {
		buffer = append(buffer, word)

		last := i == len(words)-1
		closes := last || endsSentence(word.Text)
		if !closes {
			gap := words[i+1].StartTime() - word.EndTime()
			closes = gap > maxGap
		}
		if !closes {
			continue
		}

		segments = append(segments, newSegment(buffer))
		buffer = nil
	}

	return segments
}

func endsSentence(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	switch text[len(text)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

func newSegment(buffer []Word) Segment {
	texts := make([]string, len(buffer))
	for i, w := range buffer {
		texts[i] = w.Text
	}

	closing := buffer[len(buffer)-1]
	return Segment{
		Text:        strings.TrimSpace(strings.Join(texts, " ")),
		StartTime:   buffer[0].StartTime(),
		EndTime:     closing.EndTime(),
		Words:       append([]Word(nil), buffer...),
		FetchStatus: StatusIdle,
	}
}
