package session

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mgpai22/chitra/internal/config"
	"github.com/mgpai22/chitra/internal/job"
	"github.com/mgpai22/chitra/internal/logging/logtest"
	"github.com/mgpai22/chitra/internal/playback"
	"github.com/mgpai22/chitra/internal/schedule"
	"github.com/mgpai22/chitra/internal/transcribe"
	"github.com/mgpai22/chitra/internal/transcript"
)

type fakeService struct {
	UploadFunc func(ctx context.Context, audio io.Reader) (string, error)
	SubmitFunc func(ctx context.Context, audioURL string) (*transcribe.Job, error)
	StatusFunc func(ctx context.Context, id string) (*transcribe.StatusResult, error)

	mu          sync.Mutex
	uploads     []string
	statusCalls int
}

func (f *fakeService) Upload(ctx context.Context, audio io.Reader) (string, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.uploads = append(f.uploads, string(data))
	f.mu.Unlock()
	if f.UploadFunc != nil {
		return f.UploadFunc(ctx, audio)
	}
	return "https://upload.example/audio", nil
}

func (f *fakeService) Submit(ctx context.Context, audioURL string) (*transcribe.Job, error) {
	if f.SubmitFunc != nil {
		return f.SubmitFunc(ctx, audioURL)
	}
	return &transcribe.Job{ID: "job-1", Status: transcribe.StatusQueued}, nil
}

func (f *fakeService) Status(ctx context.Context, id string) (*transcribe.StatusResult, error) {
	f.mu.Lock()
	f.statusCalls++
	f.mu.Unlock()
	return f.StatusFunc(ctx, id)
}

func (f *fakeService) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploads...)
}

func (f *fakeService) polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

type fakeSuggester struct {
	SuggestFunc func(ctx context.Context, sentence string) (string, error)
}

func (f *fakeSuggester) Suggest(ctx context.Context, sentence string) (string, error) {
	return f.SuggestFunc(ctx, sentence)
}

type fakeSearcher struct {
	SearchFunc func(ctx context.Context, query string) (string, error)
}

func (f *fakeSearcher) Search(ctx context.Context, query string) (string, error) {
	return f.SearchFunc(ctx, query)
}

const catURL = "https://img.example/cat.jpg"

func catAndDogWords() []transcript.Word {
	return []transcript.Word{
		{Text: "The", Start: 0, End: 200},
		{Text: "cat", Start: 200, End: 400},
		{Text: "sat.", Start: 400, End: 800},
		{Text: "A", Start: 900, End: 1000},
		{Text: "dog", Start: 1000, End: 1200},
		{Text: "ran.", Start: 1200, End: 1600},
	}
}

func completedService() *fakeService {
	return &fakeService{
		StatusFunc: func(context.Context, string) (*transcribe.StatusResult, error) {
			return &transcribe.StatusResult{
				Status: transcribe.StatusCompleted,
				Words:  catAndDogWords(),
			}, nil
		},
	}
}

func catServices(svc transcribe.Service) Services {
	return Services{
		Transcriber: svc,
		Suggester: &fakeSuggester{SuggestFunc: func(_ context.Context, sentence string) (string, error) {
			if sentence == "The cat sat." {
				return "cat", nil
			}
			return "", nil
		}},
		Searcher: &fakeSearcher{SearchFunc: func(_ context.Context, query string) (string, error) {
			if query == "cat" {
				return catURL, nil
			}
			return "", nil
		}},
	}
}

func testResolver(sched schedule.Scheduler) *Resolver {
	r := NewResolver(DefaultCatalog())
	r.Scheduler = sched
	r.PresetDelay = 0
	r.Probe = nil
	r.Extract = nil
	return r
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestSession(t *testing.T, services Services, sched *schedule.Manual) *Session {
	t.Helper()
	s := New(services,
		WithID("test"),
		WithScheduler(sched),
		WithResolver(testResolver(sched)),
		WithLogger(logtest.New(t)),
	)
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, s *Session, desc string, pred func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		snap := s.Snapshot()
		if pred(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last status %+v", desc, snap.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func isComplete(snap Snapshot) bool {
	return snap.Status.Stage == StageComplete
}

// selects a local audio file and runs a full round to completion
func processToCompletion(t *testing.T, s *Session, sched *schedule.Manual) Snapshot {
	t.Helper()
	path := writeFile(t, "talk.mp3", "audio-bytes")
	if err := s.SelectInput(context.Background(), FileInput{Path: path}); err != nil {
		t.Fatalf("SelectInput() error = %v", err)
	}
	if err := s.Process(context.Background()); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	sched.Advance(3 * time.Second)
	return waitFor(t, s, "completion", isComplete)
}

func TestProcessRunsFullRound(t *testing.T) {
	sched := schedule.NewManual()
	svc := completedService()
	s := newTestSession(t, catServices(svc), sched)

	snap := processToCompletion(t, s, sched)

	if got := svc.uploaded(); len(got) != 1 || got[0] != "audio-bytes" {
		t.Errorf("uploads = %q", got)
	}
	if snap.Job.Status != transcribe.StatusCompleted {
		t.Errorf("job status = %q", snap.Job.Status)
	}
	if len(snap.Segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(snap.Segments))
	}
	if snap.Segments[0].FetchStatus != transcript.StatusFetched || snap.Segments[0].VisualQuery != "cat" {
		t.Errorf("segment 0 = %+v", snap.Segments[0])
	}
	if snap.Segments[1].FetchStatus != transcript.StatusNoImageFound {
		t.Errorf("segment 1 status = %q", snap.Segments[1].FetchStatus)
	}
	if snap.Images.DisplayURL(0) != catURL || len(snap.Images) != 1 {
		t.Errorf("images = %+v", snap.Images)
	}
	if snap.Message != "Processing complete. 1 of 2 segments have images." {
		t.Errorf("message = %q", snap.Message)
	}
	if !snap.Playback.Ready {
		t.Error("playback should be ready after completion")
	}
}

func TestPlaybackShowsAndExpiresImage(t *testing.T) {
	sched := schedule.NewManual()
	s := newTestSession(t, catServices(completedService()), sched)
	processToCompletion(t, s, sched)

	s.SetPlaying(true)
	s.Tick(100 * time.Millisecond)

	view := s.Snapshot().Playback
	if view.ActiveIndex != 0 || view.ImageURL != catURL {
		t.Fatalf("view = %+v, want segment 0 with image", view)
	}

	sched.Advance(playback.DefaultMaxDisplay)
	view = s.Snapshot().Playback
	if view.ImageURL != "" {
		t.Errorf("image still visible after max display: %+v", view)
	}
	if view.ActiveIndex != 0 {
		t.Errorf("active index = %d, want 0", view.ActiveIndex)
	}

	if err := s.Seek(1100 * time.Millisecond); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	if got := s.Snapshot().Playback.ActiveIndex; got != 1 {
		t.Errorf("active index after seek = %d, want 1", got)
	}
}

func TestProcessReportsConfigurationError(t *testing.T) {
	sched := schedule.NewManual()
	s := newTestSession(t, Services{}, sched)

	path := writeFile(t, "talk.mp3", "audio")
	if err := s.SelectInput(context.Background(), FileInput{Path: path}); err != nil {
		t.Fatalf("SelectInput() error = %v", err)
	}

	err := s.Process(context.Background())
	if !errors.Is(err, config.ErrMissingCredential) {
		t.Fatalf("Process() error = %v, want ErrMissingCredential", err)
	}
	if stage := s.Snapshot().Status.Stage; stage != StageConfigError {
		t.Errorf("stage = %q, want %q", stage, StageConfigError)
	}
}

func TestProcessWithoutInput(t *testing.T) {
	s := newTestSession(t, catServices(completedService()), schedule.NewManual())
	if err := s.Process(context.Background()); !errors.Is(err, ErrNoInput) {
		t.Errorf("Process() error = %v, want ErrNoInput", err)
	}
}

func TestSelectInputResetsDerivedState(t *testing.T) {
	sched := schedule.NewManual()
	s := newTestSession(t, catServices(completedService()), sched)
	processToCompletion(t, s, sched)

	other := writeFile(t, "other.mp3", "other")
	if err := s.SelectInput(context.Background(), FileInput{Name: "Other", Path: other}); err != nil {
		t.Fatalf("SelectInput() error = %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Segments) != 0 || len(snap.Images) != 0 {
		t.Errorf("derived state not cleared: %d segments, %d images", len(snap.Segments), len(snap.Images))
	}
	if snap.Status.Stage != StageReady || snap.Message != "Other loaded. Ready to process." {
		t.Errorf("status = %+v (%q)", snap.Status, snap.Message)
	}
	if snap.Job.Status != transcribe.StatusIdle {
		t.Errorf("job status = %q, want idle", snap.Job.Status)
	}
	if err := s.Seek(time.Second); !errors.Is(err, playback.ErrNotReady) {
		t.Errorf("Seek() error = %v, want ErrNotReady", err)
	}
}

func TestSelectInputCancelsPendingPoll(t *testing.T) {
	sched := schedule.NewManual()
	svc := completedService()
	s := newTestSession(t, catServices(svc), sched)

	path := writeFile(t, "talk.mp3", "audio")
	if err := s.SelectInput(context.Background(), FileInput{Path: path}); err != nil {
		t.Fatal(err)
	}
	if err := s.Process(context.Background()); err != nil {
		t.Fatal(err)
	}
	if stage := s.Snapshot().Status.Stage; stage != StageTranscribing {
		t.Fatalf("stage = %q, want transcribing", stage)
	}

	if err := s.SelectInput(context.Background(), URLInput{Address: "https://cdn.example/v.mp4"}); err != nil {
		t.Fatal(err)
	}
	sched.Advance(time.Minute)

	if n := svc.polls(); n != 0 {
		t.Errorf("stale job polled %d times", n)
	}
	if stage := s.Snapshot().Status.Stage; stage != StageReady {
		t.Errorf("stage = %q, want ready", stage)
	}
}

func TestJobErrorSurfacesMessage(t *testing.T) {
	sched := schedule.NewManual()
	svc := &fakeService{
		StatusFunc: func(context.Context, string) (*transcribe.StatusResult, error) {
			return &transcribe.StatusResult{Status: transcribe.StatusError, Error: "audio too short"}, nil
		},
	}
	s := newTestSession(t, catServices(svc), sched)

	path := writeFile(t, "talk.mp3", "audio")
	if err := s.SelectInput(context.Background(), FileInput{Path: path}); err != nil {
		t.Fatal(err)
	}
	if err := s.Process(context.Background()); err != nil {
		t.Fatal(err)
	}
	sched.Advance(3 * time.Second)

	snap := s.Snapshot()
	if snap.Status.Stage != StageError {
		t.Fatalf("stage = %q, want error", snap.Status.Stage)
	}
	if want := "Error: transcription job-1 failed: audio too short"; snap.Message != want {
		t.Errorf("message = %q, want %q", snap.Message, want)
	}
}

func TestOverrideImage(t *testing.T) {
	sched := schedule.NewManual()
	s := newTestSession(t, catServices(completedService()), sched)
	processToCompletion(t, s, sched)

	const mine = "https://img.example/mine.png"
	if err := s.OverrideImage(1, mine); err != nil {
		t.Fatalf("OverrideImage() error = %v", err)
	}
	if err := s.OverrideImage(0, "https://img.example/other.png"); err != nil {
		t.Fatal(err)
	}
	if err := s.OverrideImage(0, ""); err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	if got := snap.Images.DisplayURL(1); got != mine {
		t.Errorf("segment 1 display = %q, want %q", got, mine)
	}
	if got := snap.Images.DisplayURL(0); got != catURL {
		t.Errorf("segment 0 display = %q, want fetched %q", got, catURL)
	}

	if err := s.OverrideImage(5, mine); err == nil {
		t.Error("expected out of range error")
	}

	s.SetPlaying(true)
	s.Tick(1100 * time.Millisecond)
	if got := s.Snapshot().Playback.ImageURL; got != mine {
		t.Errorf("playback image = %q, want override", got)
	}
}

func TestTranscriptionAudioOverride(t *testing.T) {
	sched := schedule.NewManual()
	svc := completedService()
	s := newTestSession(t, catServices(svc), sched)

	main := writeFile(t, "main.mp3", "main-audio")
	alt := writeFile(t, "alt.wav", "alt-audio")

	if err := s.SelectInput(context.Background(), FileInput{Path: main}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetTranscriptionAudio(context.Background(), alt); err != nil {
		t.Fatalf("SetTranscriptionAudio() error = %v", err)
	}
	if got := s.Snapshot().TranscriptionAudio; got != alt {
		t.Errorf("TranscriptionAudio = %q", got)
	}
	if err := s.Process(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := svc.uploaded(); len(got) != 1 || got[0] != "alt-audio" {
		t.Errorf("uploads = %q, want override audio", got)
	}

	if err := s.SelectInput(context.Background(), FileInput{Path: main}); err != nil {
		t.Fatal(err)
	}
	if got := s.Snapshot().TranscriptionAudio; got != "" {
		t.Errorf("override kept across input change: %q", got)
	}
}

func TestSubscribeDeliversInVersionOrder(t *testing.T) {
	sched := schedule.NewManual()
	s := newTestSession(t, catServices(completedService()), sched)

	var (
		mu       sync.Mutex
		versions []uint64
	)
	unsubscribe := s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		versions = append(versions, snap.Version)
		mu.Unlock()
	})

	processToCompletion(t, s, sched)
	unsubscribe()

	mu.Lock()
	got := append([]uint64(nil), versions...)
	mu.Unlock()

	if len(got) == 0 {
		t.Fatal("no snapshots delivered")
	}
	for i := 1; i < len(got); i++ {
		if got[i] < got[i-1] {
			t.Fatalf("versions out of order: %v", got)
		}
	}

	s.Tick(time.Second)
	mu.Lock()
	after := len(versions)
	mu.Unlock()
	if after != len(got) {
		t.Error("delivered after unsubscribe")
	}
}

func TestClosedSessionRejectsOperations(t *testing.T) {
	s := newTestSession(t, catServices(completedService()), schedule.NewManual())
	s.Close()

	if err := s.SelectInput(context.Background(), URLInput{Address: "https://x.example/a.mp4"}); !errors.Is(err, ErrClosed) {
		t.Errorf("SelectInput() error = %v", err)
	}
	if err := s.Process(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Process() error = %v", err)
	}
	s.Close()
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{Status{Stage: StageIdle}, "Idle. Select a video, URL or preset to start."},
		{Status{Stage: StageLoading, Detail: "preset 2"}, "Loading preset 2..."},
		{Status{Stage: StageTranscribing, Detail: "queued"}, "Transcribing (queued)..."},
		{Status{Stage: StageTranscribing}, "Transcribing..."},
		{Status{Stage: StageEnriching, Current: 3, Total: 7}, "Finding images: 3/7 segments"},
		{Status{Stage: StageError, Detail: "boom"}, "Error: boom"},
		{Status{Stage: StageConfigError, Detail: "no key"}, "Configuration error: no key"},
	}
	for _, tt := range tests {
		t.Run(string(tt.status.Stage), func(t *testing.T) {
			if got := tt.status.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLateCompletionIgnoredAfterInputChange(t *testing.T) {
	sched := schedule.NewManual()
	s := newTestSession(t, catServices(completedService()), sched)

	path := writeFile(t, "talk.mp3", "audio-bytes")
	if err := s.SelectInput(context.Background(), FileInput{Path: path}); err != nil {
		t.Fatalf("SelectInput() error = %v", err)
	}
	if err := s.Process(context.Background()); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	// hold the poll goroutine between the job completing and the session
	// receiving its words
	held := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	unsubscribe := s.Subscribe(func(snap Snapshot) {
		if snap.Job.Status == transcribe.StatusCompleted {
			once.Do(func() {
				close(held)
				<-release
			})
		}
	})
	defer unsubscribe()

	polled := make(chan struct{})
	go func() {
		defer close(polled)
		sched.Advance(3 * time.Second)
	}()
	<-held

	other := FileInput{Path: writeFile(t, "other.mp3", "other-bytes")}
	selected := make(chan error, 1)
	go func() {
		selected <- s.SelectInput(context.Background(), other)
	}()
	waitFor(t, s, "new input", func(snap Snapshot) bool {
		return snap.Input == other.String()
	})

	close(release)
	<-polled
	if err := <-selected; err != nil {
		t.Fatalf("SelectInput(other) error = %v", err)
	}

	snap := s.Snapshot()
	if snap.Status.Stage != StageReady {
		t.Errorf("stage = %s, want ready", snap.Status.Stage)
	}
	if len(snap.Segments) != 0 || len(snap.Images) != 0 {
		t.Errorf("old transcript leaked into new input: %d segments, %d images",
			len(snap.Segments), len(snap.Images))
	}
	if snap.Job.Status != transcribe.StatusIdle {
		t.Errorf("job status = %s, want idle", snap.Job.Status)
	}
}

func TestStaleJobUpdatesDropped(t *testing.T) {
	sched := schedule.NewManual()
	s := newTestSession(t, catServices(completedService()), sched)

	path := writeFile(t, "talk.mp3", "audio-bytes")
	if err := s.SelectInput(context.Background(), FileInput{Path: path}); err != nil {
		t.Fatalf("SelectInput() error = %v", err)
	}
	if err := s.Process(context.Background()); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	s.mu.Lock()
	stale := jobRun{session: s, token: s.jobToken}
	s.mu.Unlock()

	if err := s.Process(context.Background()); err != nil {
		t.Fatalf("second Process() error = %v", err)
	}
	before := s.Snapshot()

	stale.JobChanged(job.State{ID: "job-1", Status: transcribe.StatusError, Error: "boom"})
	stale.JobCompleted("job-1", catAndDogWords())

	after := s.Snapshot()
	if after.Version != before.Version {
		t.Errorf("version moved from %d to %d on stale updates", before.Version, after.Version)
	}
	if after.Status.Stage == StageError || len(after.Segments) != 0 {
		t.Errorf("stale job changed session: status %+v, %d segments",
			after.Status, len(after.Segments))
	}
}

func TestCompletedJobWithoutWords(t *testing.T) {
	sched := schedule.NewManual()
	svc := &fakeService{
		StatusFunc: func(context.Context, string) (*transcribe.StatusResult, error) {
			return &transcribe.StatusResult{Status: transcribe.StatusCompleted}, nil
		},
	}
	s := newTestSession(t, catServices(svc), sched)

	path := writeFile(t, "silence.mp3", "quiet")
	if err := s.SelectInput(context.Background(), FileInput{Path: path}); err != nil {
		t.Fatalf("SelectInput() error = %v", err)
	}
	if err := s.Process(context.Background()); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	sched.Advance(3 * time.Second)

	snap := waitFor(t, s, "no words", func(snap Snapshot) bool {
		return snap.Status.Stage == StageNoWords
	})
	if snap.Message != "Transcription complete but no words found." {
		t.Errorf("message = %q", snap.Message)
	}
	if len(snap.Segments) != 0 {
		t.Errorf("segments = %d, want 0", len(snap.Segments))
	}
	if err := s.Seek(0); !errors.Is(err, playback.ErrNotReady) {
		t.Errorf("Seek() error = %v, want ErrNotReady", err)
	}
}
