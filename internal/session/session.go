package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mgpai22/chitra/internal/config"
	"github.com/mgpai22/chitra/internal/enrich"
	"github.com/mgpai22/chitra/internal/job"
	"github.com/mgpai22/chitra/internal/logging"
	"github.com/mgpai22/chitra/internal/playback"
	"github.com/mgpai22/chitra/internal/schedule"
	"github.com/mgpai22/chitra/internal/transcribe"
	"github.com/mgpai22/chitra/internal/transcript"
)

var (
	ErrClosed     = errors.New("session closed")
	ErrNoInput    = errors.New("no input selected")
	ErrSuperseded = errors.New("superseded by a newer input")
)

// external services a session drives
type Services struct {
	Transcriber transcribe.Service
	Suggester   enrich.Suggester
	Searcher    enrich.Searcher
}

// read-only copy of session state for a UI
type Snapshot struct {
	ID                 string               `json:"id"`
	Version            uint64               `json:"version"`
	Input              string               `json:"input,omitempty"`
	Media              *Media               `json:"media,omitempty"`
	TranscriptionAudio string               `json:"transcription_audio,omitempty"`
	Status             Status               `json:"status"`
	Message            string               `json:"message"`
	Job                job.State            `json:"job"`
	Segments           []transcript.Segment `json:"segments"`
	Images             enrich.Images        `json:"images"`
	Playback           playback.View        `json:"playback"`
}

// Session owns one input, its transcription job, the enriched segments and
// the playback state derived from them. Resets happen only on SelectInput
// and Process, and when a transcription completes.
type Session struct {
	id         string
	resolver   *Resolver
	controller *job.Controller
	pipeline   *enrich.Pipeline
	configErr  error
	segmenter  *transcript.Segmenter
	tracker    *playback.Tracker
	logger     *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// trackMu serializes tracker reloads with the round check that
	// guards them; pubMu keeps deliveries in version order.
	trackMu sync.Mutex
	pubMu   sync.Mutex

	mu           sync.Mutex
	closed       bool
	version      uint64
	inputGen     uint64
	round        uint64
	jobToken     uint64
	input        InputSource
	media        *Media
	audioPath    string
	audio        *job.Audio
	audioCleanup func()
	status       Status
	job          job.State
	segments     []transcript.Segment
	images       enrich.Images
	overrides    map[int]string
	enrichCancel context.CancelFunc
	view         playback.View
	nextSub      int
	subs         map[int]func(Snapshot)
}

type Option func(*options)

type options struct {
	id         string
	resolver   *Resolver
	scheduler  schedule.Scheduler
	poll       *job.PollPolicy
	maxDisplay time.Duration
	logger     *logging.Logger
}

func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

func WithResolver(r *Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithScheduler drives poll and image-expiry timers.
func WithScheduler(s schedule.Scheduler) Option {
	return func(o *options) { o.scheduler = s }
}

func WithPollPolicy(p job.PollPolicy) Option {
	return func(o *options) { o.poll = &p }
}

func WithMaxDisplay(d time.Duration) Option {
	return func(o *options) { o.maxDisplay = d }
}

func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New never fails: missing services are reported by Process as a
// configuration error before anything is submitted.
func New(services Services, opts ...Option) *Session {
	o := options{
		scheduler:  schedule.System(),
		maxDisplay: playback.DefaultMaxDisplay,
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	if o.resolver == nil {
		o.resolver = NewResolver(DefaultCatalog())
		o.resolver.Scheduler = o.scheduler
		o.resolver.Logger = o.logger
	}

	logger := o.logger.With("session", o.id)
	s := &Session{
		id:        o.id,
		resolver:  o.resolver,
		segmenter: transcript.NewSegmenter(),
		logger:    logger,
		status:    Status{Stage: StageIdle},
		job:       job.State{Status: transcribe.StatusIdle},
		images:    enrich.Images{},
		view:      playback.View{ActiveIndex: playback.NoSegment},
		subs:      make(map[int]func(Snapshot)),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	var errs []error
	if services.Transcriber == nil {
		errs = append(errs, &config.CredentialError{Service: "transcription"})
	} else {
		jobOpts := []job.Option{job.WithScheduler(o.scheduler), job.WithLogger(logger)}
		if o.poll != nil {
			jobOpts = append(jobOpts, job.WithPollPolicy(*o.poll))
		}
		s.controller = job.NewController(services.Transcriber, nil, jobOpts...)
	}

	pipeline, err := enrich.New(services.Suggester, services.Searcher, enrich.WithLogger(logger))
	if err != nil {
		errs = append(errs, err)
	}
	s.pipeline = pipeline
	s.configErr = errors.Join(errs...)

	s.tracker = playback.NewTracker(s.viewChanged,
		playback.WithScheduler(o.scheduler),
		playback.WithMaxDisplay(o.maxDisplay),
	)
	return s
}

func (s *Session) ID() string {
	return s.id
}

// SelectInput switches to a new input. Everything derived from the old one
// is discarded and its job cancelled before the new input is resolved.
func (s *Session) SelectInput(ctx context.Context, src InputSource) error {
	if src == nil {
		return ErrNoInput
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.inputGen++
	gen := s.inputGen
	s.resetRoundLocked()
	s.dropJobLocked()
	cleanup := s.dropMediaLocked()
	s.input = src
	s.status = Status{Stage: StageLoading, Detail: src.String()}
	s.version++
	s.mu.Unlock()

	cleanup()
	s.cancelJob()
	s.clearTracker()
	s.publish()

	s.logger.Infow("Input selected", "input", src.String())
	m, err := s.resolver.Resolve(ctx, src)

	s.mu.Lock()
	if s.closed || s.inputGen != gen {
		s.mu.Unlock()
		m.Cleanup()
		return ErrSuperseded
	}
	if err != nil {
		s.status = Status{Stage: StageError, Detail: err.Error()}
		s.version++
		s.mu.Unlock()
		s.logger.Errorw("Failed to resolve input", "input", src.String(), "error", err)
		s.publish()
		return err
	}
	s.media = m
	s.status = Status{Stage: StageReady, Detail: m.Name}
	s.version++
	s.mu.Unlock()

	s.publish()
	return nil
}

// SetTranscriptionAudio sends filePath for transcription instead of the
// main input's audio. An empty path clears it. The override is dropped
// when the input changes.
func (s *Session) SetTranscriptionAudio(ctx context.Context, filePath string) error {
	var (
		audio   *job.Audio
		cleanup func()
	)
	if filePath != "" {
		a, c, err := s.resolver.AudioFile(ctx, filePath)
		if err != nil {
			return err
		}
		audio, cleanup = &a, c
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if cleanup != nil {
			cleanup()
		}
		return ErrClosed
	}
	old := s.audioCleanup
	s.audio, s.audioPath, s.audioCleanup = audio, filePath, cleanup
	s.version++
	s.mu.Unlock()

	if old != nil {
		old()
	}
	s.publish()
	return nil
}

// Process starts a new round: transcription, segmentation, then
// enrichment. It returns once the job is accepted; the rest is reported
// through Subscribe. Cancelling ctx before then cancels the job.
func (s *Session) Process(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.configErr != nil {
		s.status = Status{Stage: StageConfigError, Detail: s.configErr.Error()}
		s.version++
		s.mu.Unlock()
		s.logger.Errorw("Cannot process", "error", s.configErr)
		s.publish()
		return s.configErr
	}
	if s.media == nil {
		s.mu.Unlock()
		return ErrNoInput
	}
	audio := s.media.Audio
	if s.audio != nil {
		audio = *s.audio
	}
	s.resetRoundLocked()
	token := s.dropJobLocked()
	s.status = Status{Stage: StageUploading}
	s.version++
	s.mu.Unlock()

	s.clearTracker()
	s.publish()

	stop := context.AfterFunc(ctx, s.controller.Cancel)
	defer stop()

	_, err := s.controller.SubmitTo(s.ctx, audio, jobRun{session: s, token: token})
	return err
}

// jobRun delivers the updates of one submitted job. Its token goes stale
// as soon as the session moves on to another input or round, and updates
// carrying a stale token are dropped.
type jobRun struct {
	session *Session
	token   uint64
}

func (r jobRun) JobChanged(state job.State) {
	r.session.jobChanged(r.token, state)
}

func (r jobRun) JobCompleted(id string, words []transcript.Word) {
	r.session.jobCompleted(r.token, id, words)
}

// jobChanged maps job states onto the session status.
func (s *Session) jobChanged(token uint64, state job.State) {
	s.mu.Lock()
	if s.closed || token != s.jobToken {
		s.mu.Unlock()
		s.logger.Debugw("Dropping update for superseded job", "job_id", state.ID, "status", state.Status)
		return
	}
	s.job = state
	switch {
	case state.Status == transcribe.StatusUploading:
		s.status = Status{Stage: StageUploading}
	case state.Status.Pending():
		s.status = Status{Stage: StageTranscribing, Detail: string(state.Status)}
	case state.Status == transcribe.StatusError:
		s.status = Status{Stage: StageError, Detail: state.Error}
	}
	s.version++
	s.mu.Unlock()

	s.publish()
}

// jobCompleted segments the transcript and starts enrichment in the
// background.
func (s *Session) jobCompleted(token uint64, id string, words []transcript.Word) {
	segments := s.segmenter.Segment(words)

	s.mu.Lock()
	if s.closed || token != s.jobToken {
		s.mu.Unlock()
		s.logger.Debugw("Dropping transcript of superseded job", "job_id", id, "words", len(words))
		return
	}
	s.resetRoundLocked()
	if len(segments) == 0 {
		s.status = Status{Stage: StageNoWords}
		s.version++
		s.mu.Unlock()

		s.logger.Warnw("Transcription returned no words", "job_id", id)
		s.publish()
		return
	}
	round := s.round
	ctx, cancel := context.WithCancel(s.ctx)
	s.enrichCancel = cancel
	s.segments = transcript.CloneAll(segments)
	s.status = Status{Stage: StageEnriching, Total: len(segments)}
	s.version++
	s.mu.Unlock()

	s.logger.Infow("Transcript segmented",
		"job_id", id,
		"words", len(words),
		"segments", len(segments),
	)
	s.publish()

	go s.enrich(ctx, round, segments)
}

func (s *Session) enrich(ctx context.Context, round uint64, segments []transcript.Segment) {
	publish := func(p enrich.Progress) {
		s.mu.Lock()
		if s.round != round {
			s.mu.Unlock()
			return
		}
		s.segments = p.Segments
		s.images = s.applyOverridesLocked(p.Images)
		s.status.Current = countTerminal(p.Segments)
		s.version++
		s.mu.Unlock()

		s.publish()
	}

	segs, images, err := s.pipeline.Run(ctx, segments, publish)
	if err != nil {
		s.logger.Debugw("Enrichment stopped", "error", err)
		return
	}

	// the tracker is loaded before the status turns complete so that a
	// complete snapshot is always seekable
	s.trackMu.Lock()
	s.mu.Lock()
	if s.round != round {
		s.mu.Unlock()
		s.trackMu.Unlock()
		return
	}
	s.segments = segs
	s.images = s.applyOverridesLocked(images)
	loaded := transcript.CloneAll(segs)
	s.mu.Unlock()

	s.tracker.Load(loaded, s.imageURL, true)

	s.mu.Lock()
	if s.round == round {
		s.status = Status{
			Stage:   StageComplete,
			Detail:  fmt.Sprintf("%d of %d segments have images.", len(s.images), len(segs)),
			Current: len(segs),
			Total:   len(segs),
		}
		s.version++
		if s.enrichCancel != nil {
			s.enrichCancel()
			s.enrichCancel = nil
		}
	}
	s.mu.Unlock()
	s.trackMu.Unlock()

	s.logger.Infow("Processing complete", "segments", len(segs), "images", len(images))
	s.publish()
}

// OverrideImage sets a user image URL for segment index; an empty url
// falls back to the fetched image.
func (s *Session) OverrideImage(index int, url string) error {
	url = strings.TrimSpace(url)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if index < 0 || index >= len(s.segments) {
		s.mu.Unlock()
		return fmt.Errorf("segment index %d out of range", index)
	}
	if s.overrides == nil {
		s.overrides = make(map[int]string)
	}
	s.overrides[index] = url
	s.images.Override(index, url)
	s.version++
	s.mu.Unlock()

	s.logger.Infow("Image overridden", "segment", index, "url", url)
	s.tracker.Refresh()
	s.publish()
	return nil
}

// Tick reports the media clock.
func (s *Session) Tick(now time.Duration) {
	s.tracker.Tick(now)
}

// Seek fails with playback.ErrNotReady until processing is complete.
func (s *Session) Seek(to time.Duration) error {
	return s.tracker.Seek(to)
}

func (s *Session) SetPlaying(playing bool) {
	s.tracker.SetPlaying(playing)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:                 s.id,
		Version:            s.version,
		TranscriptionAudio: s.audioPath,
		Status:             s.status,
		Message:            s.status.String(),
		Job:                s.job,
		Segments:           transcript.CloneAll(s.segments),
		Images:             s.images.Clone(),
		Playback:           s.view,
	}
	if s.input != nil {
		snap.Input = s.input.String()
	}
	if s.media != nil {
		m := *s.media
		snap.Media = &m
	}
	return snap
}

// Subscribe calls fn with a snapshot after every change, in version
// order. fn must not call back into the session. The returned func
// unsubscribes.
func (s *Session) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	if !s.closed {
		s.subs[id] = fn
	}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Close cancels all work and timers and removes extracted audio.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.inputGen++
	s.resetRoundLocked()
	s.dropJobLocked()
	cleanup := s.dropMediaLocked()
	s.subs = make(map[int]func(Snapshot))
	s.mu.Unlock()

	s.cancel()
	s.cancelJob()
	s.clearTracker()
	s.tracker.SetPlaying(false)
	cleanup()
	s.logger.Debugw("Session closed")
}

// resetRoundLocked starts a fresh processing round, invalidating any
// enrichment still running for the previous one.
func (s *Session) resetRoundLocked() {
	s.round++
	if s.enrichCancel != nil {
		s.enrichCancel()
		s.enrichCancel = nil
	}
	s.segments = nil
	s.images = enrich.Images{}
	s.overrides = nil
}

// dropJobLocked stales the token of any submitted job so its late updates
// are ignored, and returns the token for the next submission.
func (s *Session) dropJobLocked() uint64 {
	s.jobToken++
	s.job = job.State{Status: transcribe.StatusIdle}
	return s.jobToken
}

// dropMediaLocked forgets the current media and transcription audio and
// returns a func that deletes their temporary files.
func (s *Session) dropMediaLocked() func() {
	m := s.media
	audioCleanup := s.audioCleanup
	s.media = nil
	s.audio, s.audioPath, s.audioCleanup = nil, "", nil
	return func() {
		m.Cleanup()
		if audioCleanup != nil {
			audioCleanup()
		}
	}
}

func (s *Session) applyOverridesLocked(images enrich.Images) enrich.Images {
	if images == nil {
		images = enrich.Images{}
	}
	for i, url := range s.overrides {
		images.Override(i, url)
	}
	return images
}

func (s *Session) cancelJob() {
	if s.controller != nil {
		s.controller.Cancel()
	}
}

func (s *Session) clearTracker() {
	s.trackMu.Lock()
	s.tracker.Load(nil, nil, false)
	s.trackMu.Unlock()
}

// imageURL is the tracker's lookup; the tracker is never called with s.mu
// held.
func (s *Session) imageURL(index int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.images.DisplayURL(index)
}

func (s *Session) viewChanged(v playback.View) {
	s.mu.Lock()
	s.view = v
	s.version++
	s.mu.Unlock()

	s.publish()
}

func (s *Session) publish() {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	snap := s.Snapshot()

	s.mu.Lock()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func countTerminal(segments []transcript.Segment) int {
	n := 0
	for _, seg := range segments {
		if seg.FetchStatus.Terminal() {
			n++
		}
	}
	return n
}
