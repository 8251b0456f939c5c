package playback

import (
	"sync"
	"time"

	"github.com/mgpai22/chitra/internal/schedule"
)

// how long an image stays up after being selected
const DefaultMaxDisplay = 2500 * time.Millisecond

// Display shows at most one image. Selecting a new URL restarts the expiry
// timer; selecting the same URL again is a no-op, so an expired image stays
// hidden until the selection changes.
type Display struct {
	expiry   *schedule.Slot
	maxAge   time.Duration
	onExpire func(url string)

	mu       sync.Mutex
	selected string
	visible  bool
}

func NewDisplay(s schedule.Scheduler, maxAge time.Duration, onExpire func(url string)) *Display {
	if maxAge <= 0 {
		maxAge = DefaultMaxDisplay
	}
	return &Display{
		expiry:   schedule.NewSlot(s),
		maxAge:   maxAge,
		onExpire: onExpire,
	}
}

// Show selects url ("" hides). It reports whether the visible image changed.
func (d *Display) Show(url string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if url == d.selected {
		return false
	}

	wasVisible := d.visible
	d.selected = url
	d.visible = url != ""

	if d.visible {
		d.expiry.Schedule(d.maxAge, func() { d.expire(url) })
	} else {
		d.expiry.Cancel()
	}
	return d.visible || wasVisible
}

func (d *Display) expire(url string) {
	d.mu.Lock()
	if d.selected != url || !d.visible {
		d.mu.Unlock()
		return
	}
	d.visible = false
	d.mu.Unlock()

	if d.onExpire != nil {
		d.onExpire(url)
	}
}

// URL currently on screen, "" when nothing is shown
func (d *Display) Visible() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.visible {
		return ""
	}
	return d.selected
}

// Clear hides the image and forgets the selection.
func (d *Display) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expiry.Cancel()
	d.selected = ""
	d.visible = false
}
