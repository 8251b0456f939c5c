package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mgpai22/chitra/internal/logging"
	"github.com/mgpai22/chitra/internal/schedule"
	"github.com/mgpai22/chitra/internal/transcribe"
	"github.com/mgpai22/chitra/internal/transcript"
)

// ErrSuperseded is returned by Submit when a newer submission or a Cancel
// took over while this one was still uploading or submitting.
var ErrSuperseded = errors.New("transcription job superseded")

// ErrTimedOut is reported when a job stays pending past PollPolicy.Timeout.
var ErrTimedOut = errors.New("transcription timed out")

// snapshot of the active job
type State struct {
	ID     string            `json:"id,omitempty"`
	Status transcribe.Status `json:"status"`
	Error  string            `json:"error,omitempty"`
}

// receives job updates; calls are made without controller locks held, so a
// callback can still arrive just after its job was superseded
type Listener interface {
	JobChanged(state State)
	JobCompleted(id string, words []transcript.Word)
}

// audio resource to transcribe: either bytes to upload or a URL the
// service can fetch itself
type Audio struct {
	Name string
	Open func() (io.ReadCloser, error)
	URL  string
}

type PollPolicy struct {
	FirstDelay time.Duration
	Interval   time.Duration
	Timeout    time.Duration // zero disables the limit
}

func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		FirstDelay: 3 * time.Second,
		Interval:   7 * time.Second,
		Timeout:    30 * time.Minute,
	}
}

// Controller runs one transcription job at a time. A new Submit or a Cancel
// supersedes the current job; results that arrive for a superseded job are
// dropped.
type Controller struct {
	service  transcribe.Service
	listener Listener
	poll     *schedule.Slot
	policy   PollPolicy
	logger   *logging.Logger

	mu      sync.Mutex
	gen     uint64
	state   State
	active  Listener // listener of the current submission
	cancel  context.CancelFunc
	ctx     context.Context
	elapsed time.Duration
}

type Option func(*Controller)

func WithScheduler(s schedule.Scheduler) Option {
	return func(c *Controller) {
		c.poll = schedule.NewSlot(s)
	}
}

func WithPollPolicy(p PollPolicy) Option {
	return func(c *Controller) {
		c.policy = p
	}
}

func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewController(service transcribe.Service, listener Listener, opts ...Option) *Controller {
	c := &Controller{
		service:  service,
		listener: listener,
		poll:     schedule.NewSlot(schedule.System()),
		policy:   DefaultPollPolicy(),
		logger:   logging.Nop(),
		state:    State{Status: transcribe.StatusIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Submit cancels any previous job, uploads or references the audio, and
// starts a job. It blocks until the service has accepted the job; polling
// then continues on the scheduler. The returned error is also reflected as
// an error state.
func (c *Controller) Submit(ctx context.Context, audio Audio) (string, error) {
	return c.SubmitTo(ctx, audio, c.listener)
}

// SubmitTo is Submit with updates for this job going to l instead of the
// controller's listener. The Cancel or Submit that supersedes the job still
// reports its idle state to l.
func (c *Controller) SubmitTo(ctx context.Context, audio Audio, l Listener) (string, error) {
	if audio.Open == nil && audio.URL == "" {
		return "", fmt.Errorf("no audio to transcribe")
	}

	c.mu.Lock()
	c.supersedeLocked()
	gen := c.gen
	c.active = l
	jobCtx, cancel := context.WithCancel(ctx)
	c.ctx, c.cancel = jobCtx, cancel
	c.elapsed = 0
	c.state = State{Status: transcribe.StatusUploading}
	state := c.state
	c.mu.Unlock()

	c.notify(l, state)

	audioURL := audio.URL
	if audioURL == "" {
		c.logger.Infow("Uploading audio", "name", audio.Name)
		url, err := c.upload(jobCtx, audio)
		if err != nil {
			return "", c.fail(gen, "", err)
		}
		audioURL = url
	}

	if !c.current(gen) {
		return "", ErrSuperseded
	}

	submitted, err := c.service.Submit(jobCtx, audioURL)
	if err != nil {
		return "", c.fail(gen, "", err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return "", ErrSuperseded
	}
	c.state = State{ID: submitted.ID, Status: submitted.Status}
	state = c.state
	c.mu.Unlock()

	c.logger.Infow("Transcription submitted",
		"job_id", submitted.ID,
		"status", submitted.Status,
	)
	c.notify(l, state)

	switch {
	case submitted.Status == transcribe.StatusCompleted:
		c.check(gen, submitted.ID)
	case submitted.Status == transcribe.StatusError:
		return submitted.ID, c.fail(gen, submitted.ID, &transcribe.ServiceError{JobID: submitted.ID})
	default:
		c.schedulePoll(gen, submitted.ID, c.policy.FirstDelay)
	}

	return submitted.ID, nil
}

func (c *Controller) upload(ctx context.Context, audio Audio) (string, error) {
	r, err := audio.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open audio: %w", err)
	}
	defer r.Close()
	return c.service.Upload(ctx, r)
}

// Cancel abandons the current job and returns to idle.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.state.Status == transcribe.StatusIdle && c.cancel == nil {
		c.mu.Unlock()
		return
	}
	l := c.active
	c.supersedeLocked()
	c.state = State{Status: transcribe.StatusIdle}
	state := c.state
	c.mu.Unlock()

	c.notify(l, state)
}

func (c *Controller) supersedeLocked() {
	c.gen++
	c.poll.Cancel()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.ctx = nil
	c.active = nil
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func (c *Controller) schedulePoll(gen uint64, id string, delay time.Duration) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.elapsed += delay
	c.mu.Unlock()

	c.poll.Schedule(delay, func() {
		c.check(gen, id)
	})
}

// check runs one status request for job id and acts on it only if the job
// is still current.
func (c *Controller) check(gen uint64, id string) {
	c.mu.Lock()
	if c.gen != gen || c.state.ID != id {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.mu.Unlock()

	result, err := c.service.Status(ctx, id)

	c.mu.Lock()
	if c.gen != gen || c.state.ID != id {
		c.mu.Unlock()
		c.logger.Debugw("Discarding stale poll result", "job_id", id)
		return
	}
	c.mu.Unlock()

	if err != nil {
		c.fail(gen, id, err)
		return
	}

	switch {
	case result.Status == transcribe.StatusCompleted:
		c.complete(gen, id, result.Words)
	case result.Status == transcribe.StatusError:
		c.fail(gen, id, &transcribe.ServiceError{JobID: id, Message: result.Error})
	default:
		c.pending(gen, id, result.Status)
	}
}

func (c *Controller) pending(gen uint64, id string, status transcribe.Status) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	timedOut := c.policy.Timeout > 0 && c.elapsed+c.policy.Interval > c.policy.Timeout
	changed := c.state.Status != status
	c.state.Status = status
	state := c.state
	l := c.active
	c.mu.Unlock()

	if timedOut {
		c.fail(gen, id, ErrTimedOut)
		return
	}

	if changed {
		c.notify(l, state)
	}
	c.logger.Debugw("Transcription pending", "job_id", id, "status", status)
	c.schedulePoll(gen, id, c.policy.Interval)
}

func (c *Controller) complete(gen uint64, id string, words []transcript.Word) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.state = State{ID: id, Status: transcribe.StatusCompleted}
	state := c.state
	l := c.active
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	c.logger.Infow("Transcription completed", "job_id", id, "words", len(words))
	c.notify(l, state)
	if l != nil {
		l.JobCompleted(id, words)
	}
}

// fail moves a current job to error and returns err for the caller.
func (c *Controller) fail(gen uint64, id string, err error) error {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.poll.Cancel()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.state = State{ID: id, Status: transcribe.StatusError, Error: err.Error()}
	state := c.state
	l := c.active
	c.mu.Unlock()

	c.logger.Errorw("Transcription failed", "job_id", id, "error", err)
	c.notify(l, state)
	return err
}

func (c *Controller) notify(l Listener, state State) {
	if l != nil {
		l.JobChanged(state)
	}
}
