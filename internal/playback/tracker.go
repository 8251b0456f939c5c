package playback

import (
	"errors"
	"sync"
	"time"

	"github.com/mgpai22/chitra/internal/schedule"
	"github.com/mgpai22/chitra/internal/transcript"
)

// ErrNotReady is returned by Seek before transcription and enrichment finish.
var ErrNotReady = errors.New("processing not complete")

// returns the display URL for a segment index
type ImageLookup func(index int) string

// what the player should render
type View struct {
	Time        time.Duration `json:"time"`
	ActiveIndex int           `json:"active_index"`
	ImageURL    string        `json:"image_url,omitempty"`
	Playing     bool          `json:"playing"`
	Ready       bool          `json:"ready"`
}

// Tracker follows the media clock and derives the active segment and image.
// It only reads the segments and images it is given.
type Tracker struct {
	display  *Display
	onChange func(View)

	mu       sync.Mutex
	segments []transcript.Segment
	lookup   ImageLookup
	ready    bool
	playing  bool
	now      time.Duration
	sync     *Synchronizer
	last     View
}

type TrackerOption func(*trackerConfig)

type trackerConfig struct {
	scheduler  schedule.Scheduler
	maxDisplay time.Duration
}

func WithScheduler(s schedule.Scheduler) TrackerOption {
	return func(c *trackerConfig) { c.scheduler = s }
}

func WithMaxDisplay(d time.Duration) TrackerOption {
	return func(c *trackerConfig) { c.maxDisplay = d }
}

// NewTracker calls onChange (which may be nil) whenever the active index or
// the visible image changes.
func NewTracker(onChange func(View), opts ...TrackerOption) *Tracker {
	cfg := trackerConfig{
		scheduler:  schedule.System(),
		maxDisplay: DefaultMaxDisplay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	t := &Tracker{
		onChange: onChange,
		sync:     NewSynchronizer(),
		last:     View{ActiveIndex: NoSegment},
	}
	t.display = NewDisplay(cfg.scheduler, cfg.maxDisplay, func(string) {
		t.expired()
	})
	return t
}

// Load replaces the segment data. ready marks that processing is complete
// and images may be shown.
func (t *Tracker) Load(segments []transcript.Segment, lookup ImageLookup, ready bool) {
	t.mu.Lock()
	t.segments = segments
	t.lookup = lookup
	t.ready = ready
	t.sync.Reset()
	t.display.Clear()
	view, changed := t.recomputeLocked()
	t.mu.Unlock()

	if changed {
		t.emit(view)
	}
}

// Tick handles a media time update.
func (t *Tracker) Tick(now time.Duration) {
	t.mu.Lock()
	t.now = now
	view, changed := t.recomputeLocked()
	t.mu.Unlock()

	if changed {
		t.emit(view)
	}
}

// Seek moves the clock explicitly. It is refused until processing is done.
func (t *Tracker) Seek(to time.Duration) error {
	t.mu.Lock()
	ready := t.ready
	t.mu.Unlock()

	if !ready {
		return ErrNotReady
	}
	if to < 0 {
		to = 0
	}
	t.Tick(to)
	return nil
}

func (t *Tracker) SetPlaying(playing bool) {
	t.mu.Lock()
	t.playing = playing
	view, changed := t.recomputeLocked()
	t.mu.Unlock()

	if changed {
		t.emit(view)
	}
}

// Refresh re-reads the image for the active segment, e.g. after an override.
func (t *Tracker) Refresh() {
	t.mu.Lock()
	view, changed := t.recomputeLocked()
	t.mu.Unlock()

	if changed {
		t.emit(view)
	}
}

func (t *Tracker) expired() {
	t.mu.Lock()
	t.last = t.viewLocked()
	view := t.last
	t.mu.Unlock()

	t.emit(view)
}

func (t *Tracker) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.viewLocked()
}

func (t *Tracker) recomputeLocked() (View, bool) {
	idx, moved := t.sync.Update(t.segments, t.now)

	desired := ""
	if t.playing && t.ready && idx != NoSegment && t.lookup != nil {
		desired = t.lookup(idx)
	}
	imageChanged := t.display.Show(desired)

	view := t.viewLocked()
	changed := moved || imageChanged || view.Playing != t.last.Playing || view.Ready != t.last.Ready
	t.last = view
	return view, changed
}

func (t *Tracker) viewLocked() View {
	return View{
		Time:        t.now,
		ActiveIndex: t.sync.Active(),
		ImageURL:    t.display.Visible(),
		Playing:     t.playing,
		Ready:       t.ready,
	}
}

func (t *Tracker) emit(view View) {
	if t.onChange != nil {
		t.onChange(view)
	}
}
