package playback

import (
	"time"

	"github.com/mgpai22/chitra/internal/transcript"
)

// no segment covers the current time
const NoSegment = -1

// ActiveIndex returns the first segment whose [StartTime, EndTime) range
// holds t, or NoSegment.
func ActiveIndex(segments []transcript.Segment, t time.Duration) int {
	for i, seg := range segments {
		if seg.Contains(t) {
			return i
		}
	}
	return NoSegment
}

// remembers the last active index so repeated ticks inside one segment
// report no change
type Synchronizer struct {
	active int
}

func NewSynchronizer() *Synchronizer {
	return &Synchronizer{active: NoSegment}
}

// Update recomputes the active index for t and reports whether it moved.
func (s *Synchronizer) Update(segments []transcript.Segment, t time.Duration) (int, bool) {
	idx := ActiveIndex(segments, t)
	if idx == s.active {
		return idx, false
	}
	s.active = idx
	return idx, true
}

func (s *Synchronizer) Active() int {
	return s.active
}

func (s *Synchronizer) Reset() {
	s.active = NoSegment
}
