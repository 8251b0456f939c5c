package subtitle

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mgpai22/chitra/internal/transcript"
)

// turns sentence segments into readable cues
type Generator struct {
	MaxCharsPerLine int
	MaxLinesPerSub  int
	MaxDuration     time.Duration
}

func NewDefaultGenerator() *Generator {
	return &Generator{
		MaxCharsPerLine: 42, // Standard subtitle line length
		MaxLinesPerSub:  2,  // Most players support 2 lines
		MaxDuration:     7 * time.Second,
	}
}

// converts segments to cues, splitting long sentences
func (g *Generator) Generate(segments []transcript.Segment) *Subtitle {
	entries := []Entry{}
	index := 1

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		if g.needsSplit(text, seg.EndTime-seg.StartTime) {
			splitEntries := g.splitSegment(seg, index)
			entries = append(entries, splitEntries...)
			index += len(splitEntries)
			continue
		}

		entries = append(entries, Entry{
			Index:     index,
			StartTime: seg.StartTime,
			EndTime:   seg.EndTime,
			Text:      g.formatText(text),
		})
		index++
	}

	return &Subtitle{Entries: entries}
}

// one cue per segment that has an image, carrying its display URL
func ImageCues(doc *Document) *Subtitle {
	entries := []Entry{}
	for i, seg := range doc.Segments {
		url := doc.Images.DisplayURL(i)
		if url == "" {
			continue
		}
		entries = append(entries, Entry{
			Index:     i + 1,
			StartTime: seg.StartTime,
			EndTime:   seg.EndTime,
			Text:      url,
		})
	}
	return &Subtitle{Entries: entries}
}

func (g *Generator) needsSplit(text string, duration time.Duration) bool {
	if utf8.RuneCountInString(text) > g.MaxCharsPerLine*g.MaxLinesPerSub {
		return true
	}
	return duration > g.MaxDuration
}

// splitSegment cuts a long sentence at word timestamps so each cue keeps
// real timing.
func (g *Generator) splitSegment(seg transcript.Segment, startIndex int) []Entry {
	words := seg.Words
	if len(words) == 0 {
		return []Entry{{
			Index:     startIndex,
			StartTime: seg.StartTime,
			EndTime:   seg.EndTime,
			Text:      g.formatText(seg.Text),
		}}
	}

	maxChars := g.MaxCharsPerLine * g.MaxLinesPerSub

	var (
		entries []Entry
		current []transcript.Word
		chars   int
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		texts := make([]string, len(current))
		for i, w := range current {
			texts[i] = strings.TrimSpace(w.Text)
		}
		entries = append(entries, Entry{
			Index:     startIndex + len(entries),
			StartTime: current[0].StartTime(),
			EndTime:   current[len(current)-1].EndTime(),
			Text:      g.formatText(strings.Join(texts, " ")),
		})
		current, chars = nil, 0
	}

	for _, w := range words {
		n := utf8.RuneCountInString(strings.TrimSpace(w.Text))
		tooLong := chars > 0 && chars+1+n > maxChars
		tooSlow := len(current) > 0 && w.EndTime()-current[0].StartTime() > g.MaxDuration
		if tooLong || tooSlow {
			flush()
		}
		if chars > 0 {
			chars++
		}
		chars += n
		current = append(current, w)
	}
	flush()

	// cues cover the whole sentence span
	entries[0].StartTime = seg.StartTime
	entries[len(entries)-1].EndTime = seg.EndTime

	return entries
}

// formatText formats text for display with line wrapping
func (g *Generator) formatText(text string) string {
	text = strings.TrimSpace(text)
	runeCount := utf8.RuneCountInString(text)

	// if text fits on one line, return as is
	if runeCount <= g.MaxCharsPerLine {
		return text
	}

	words := strings.Fields(text)
	if len(words) < 2 {
		return text
	}

	// find the best split point (closest to middle)
	middle := runeCount / 2
	bestSplit := 0
	bestDiff := runeCount

	currentLen := 0
	for i, word := range words[:len(words)-1] {
		currentLen += utf8.RuneCountInString(word)
		if i > 0 {
			currentLen++ // space
		}

		diff := abs(currentLen - middle)
		if diff < bestDiff {
			bestDiff = diff
			bestSplit = i + 1
		}
	}

	if bestSplit > 0 && bestSplit < len(words) {
		line1 := strings.Join(words[:bestSplit], " ")
		line2 := strings.Join(words[bestSplit:], " ")
		return line1 + "\n" + line2
	}

	return text
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
