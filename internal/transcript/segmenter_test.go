package transcript

import (
	"reflect"
	"testing"
	"time"
)

func words(parts ...any) []Word {
	// text, start, end triples
	var out []Word
	for i := 0; i+2 < len(parts); i += 3 {
		out = append(out, Word{
			Text:  parts[i].(string),
			Start: int64(parts[i+1].(int)),
			End:   int64(parts[i+2].(int)),
		})
	}
	return out
}

func TestSegmentEmpty(t *testing.T) {
	segments := NewSegmenter().Segment(nil)
	if segments == nil || len(segments) != 0 {
		t.Errorf("got %v, want empty non-nil slice", segments)
	}
}

func TestSegmentBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		input []Word
		want  []string
	}{
		{
			name:  "single word",
			input: words("Hello", 0, 400),
			want:  []string{"Hello"},
		},
		{
			name: "punctuation closes sentence",
			input: words(
				"Hello", 0, 300,
				"world.", 350, 700,
				"How", 800, 900,
				"are", 950, 1000,
				"you?", 1050, 1300,
			),
			want: []string{"Hello world.", "How are you?"},
		},
		{
			name: "exclamation with trailing space",
			input: words(
				"Wow! ", 0, 300,
				"Look", 400, 600,
			),
			want: []string{"Wow!", "Look"},
		},
		{
			name: "gap above threshold splits",
			input: words(
				"first", 0, 500,
				"thought", 550, 1000,
				"second", 1701, 2000,
			),
			want: []string{"first thought", "second"},
		},
		{
			name: "gap equal to threshold does not split",
			input: words(
				"first", 0, 500,
				"thought", 1200, 1500,
			),
			want: []string{"first thought"},
		},
		{
			name: "last word closes without punctuation",
			input: words(
				"no", 0, 100,
				"ending", 150, 300,
			),
			want: []string{"no ending"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments := NewSegmenter().Segment(tt.input)
			var got []string
			for _, s := range segments {
				got = append(got, s.Text)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSegmentTiming(t *testing.T) {
	input := words(
		"Hello", 120, 300,
		"world.", 350, 700,
		"Again", 2000, 2400,
	)

	segments := NewSegmenter().Segment(input)
	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(segments))
	}

	if segments[0].StartTime != 120*time.Millisecond {
		t.Errorf("StartTime = %v, want 120ms", segments[0].StartTime)
	}
	if segments[0].EndTime != 700*time.Millisecond {
		t.Errorf("EndTime = %v, want 700ms", segments[0].EndTime)
	}
	if segments[1].StartTime != 2*time.Second {
		t.Errorf("StartTime = %v, want 2s", segments[1].StartTime)
	}
	for i, s := range segments {
		if s.FetchStatus != StatusIdle {
			t.Errorf("segment %d status = %s, want idle", i, s.FetchStatus)
		}
		if s.VisualQuery != "" {
			t.Errorf("segment %d has visual query %q", i, s.VisualQuery)
		}
	}
}

func TestSegmentInvariants(t *testing.T) {
	input := words(
		"The", 0, 100,
		"quick", 120, 300,
		"brown", 320, 500,
		"fox.", 520, 800,
		"It", 900, 1000,
		"jumped", 1020, 1300,
		"over", 2500, 2700,
		"the", 2720, 2800,
		"dog!", 2820, 3100,
		"Done", 5000, 5200,
	)

	segments := NewSegmenter().Segment(input)

	var flattened []Word
	for i, s := range segments {
		if len(s.Words) == 0 {
			t.Fatalf("segment %d has no words", i)
		}
		if s.StartTime > s.EndTime {
			t.Errorf("segment %d: start %v after end %v", i, s.StartTime, s.EndTime)
		}
		for _, w := range s.Words {
			if w.StartTime() < s.StartTime || w.EndTime() > s.EndTime {
				t.Errorf("segment %d: word %q outside bounds", i, w.Text)
			}
		}
		if i > 0 && segments[i-1].EndTime > s.StartTime {
			t.Errorf("segment %d overlaps previous", i)
		}
		flattened = append(flattened, s.Words...)
	}

	if !reflect.DeepEqual(flattened, input) {
		t.Errorf("words not preserved in order:\ngot  %v\nwant %v", flattened, input)
	}

	again := NewSegmenter().Segment(input)
	if !reflect.DeepEqual(segments, again) {
		t.Error("segmenter output is not deterministic")
	}
}

func TestSegmentGapAlwaysSplits(t *testing.T) {
	input := words(
		"a", 0, 100,
		"b", 801, 900,
		"c", 1601, 1700,
	)
	segments := NewSegmenter().Segment(input)
	if len(segments) != 3 {
		t.Fatalf("got %d segments, want 3", len(segments))
	}
}

func TestSegmentCopiesWords(t *testing.T) {
	input := words("Hi.", 0, 100)
	segments := NewSegmenter().Segment(input)
	input[0].Text = "changed"
	if segments[0].Words[0].Text != "Hi." {
		t.Error("segment words alias the input slice")
	}
}

func TestSegmentCustomGap(t *testing.T) {
	g := &Segmenter{MaxGap: 200 * time.Millisecond}
	segments := g.Segment(words("a", 0, 100, "b", 400, 500))
	if len(segments) != 2 {
		t.Errorf("got %d segments, want 2", len(segments))
	}
}

func TestSegmentContains(t *testing.T) {
	s := Segment{StartTime: 5 * time.Second, EndTime: 9 * time.Second}
	tests := []struct {
		t    time.Duration
		want bool
	}{
		{4 * time.Second, false},
		{5 * time.Second, true},
		{7 * time.Second, true},
		{9 * time.Second, false},
	}
	for _, tt := range tests {
		if got := s.Contains(tt.t); got != tt.want {
			t.Errorf("Contains(%v) = %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestFetchStatusTerminal(t *testing.T) {
	terminal := map[FetchStatus]bool{
		StatusIdle:             false,
		StatusSuggesting:       false,
		StatusFetching:         false,
		StatusFetched:          true,
		StatusFailedSuggestion: true,
		StatusFailedFetch:      true,
		StatusNoImageFound:     true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
		if status.Label() == "" {
			t.Errorf("%s has empty label", status)
		}
	}
}
