package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mgpai22/chitra/internal/job"
	"github.com/mgpai22/chitra/internal/logging"
	"github.com/mgpai22/chitra/internal/media"
	"github.com/mgpai22/chitra/internal/schedule"
)

var ErrUnknownPreset = errors.New("unknown preset")

// DefaultPresetDelay mimics loading a preset from a remote catalog.
const DefaultPresetDelay = time.Second

// Media is a resolved input: something to play and the audio to transcribe.
type Media struct {
	Name     string        `json:"name"`
	Source   string        `json:"source"` // playable path or URL
	Duration time.Duration `json:"duration"`
	Audio    job.Audio     `json:"-"`

	workDir string
}

// Cleanup removes audio extracted for this media.
func (m *Media) Cleanup() {
	if m != nil && m.workDir != "" {
		_ = os.RemoveAll(m.workDir)
		m.workDir = ""
	}
}

// Resolver turns an InputSource into Media.
type Resolver struct {
	Catalog     Catalog
	RawUpload   bool // upload video files as-is instead of extracting audio
	PresetDelay time.Duration
	Scheduler   schedule.Scheduler
	Logger      *logging.Logger

	Extract func(ctx context.Context, in, out string) error
	Probe   func(ctx context.Context, source string) (time.Duration, error)
}

func NewResolver(catalog Catalog) *Resolver {
	return &Resolver{
		Catalog:     catalog,
		PresetDelay: DefaultPresetDelay,
		Scheduler:   schedule.System(),
		Logger:      logging.Nop(),
		Extract: func(ctx context.Context, in, out string) error {
			return media.ExtractAudio(ctx, in, out, media.DefaultAudioOptions())
		},
		Probe: media.GetDuration,
	}
}

// Resolve handles every InputSource variant.
func (r *Resolver) Resolve(ctx context.Context, src InputSource) (*Media, error) {
	switch in := src.(type) {
	case FileInput:
		return r.resolveFile(ctx, in.Name, in.Path)
	case URLInput:
		return r.resolveURL(ctx, in.Address)
	case PresetInput:
		return r.resolvePreset(ctx, in.ID)
	case nil:
		return nil, errors.New("no input selected")
	default:
		return nil, fmt.Errorf("unsupported input %T", src)
	}
}

func (r *Resolver) resolvePreset(ctx context.Context, id string) (*Media, error) {
	preset, ok := r.Catalog.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, id)
	}

	r.logger().Infow("Loading preset", "id", preset.ID, "name", preset.Name)
	if err := r.wait(ctx, r.PresetDelay); err != nil {
		return nil, err
	}

	var (
		m   *Media
		err error
	)
	if media.IsRemote(preset.Source) {
		m, err = r.resolveURL(ctx, preset.Source)
	} else {
		m, err = r.resolveFile(ctx, preset.Name, preset.Source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preset %q: %w", preset.ID, err)
	}
	m.Name = preset.Name
	return m, nil
}

func (r *Resolver) resolveFile(ctx context.Context, name, filePath string) (*Media, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("input is a directory: %s", filePath)
	}
	if name == "" {
		name = filepath.Base(filePath)
	}
	if !media.IsMediaFile(filePath) {
		r.logger().Warnw("Input type is undetermined, transcription may fail",
			"path", filePath,
		)
	}

	m := &Media{Name: name, Source: filePath}
	audio, workDir, err := r.audioFor(ctx, filePath)
	if err != nil {
		return nil, err
	}
	m.Audio = audio
	m.workDir = workDir
	m.Duration = r.duration(ctx, filePath)
	return m, nil
}

func (r *Resolver) resolveURL(ctx context.Context, address string) (*Media, error) {
	u, err := url.Parse(strings.TrimSpace(address))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid media URL %q", address)
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = u.Host
	}

	return &Media{
		Name:     name,
		Source:   u.String(),
		Audio:    job.Audio{Name: name, URL: u.String()},
		Duration: r.duration(ctx, u.String()),
	}, nil
}

// AudioFile prepares a separate file as transcription audio. The returned
// cleanup removes any extracted copy.
func (r *Resolver) AudioFile(ctx context.Context, filePath string) (job.Audio, func(), error) {
	if _, err := os.Stat(filePath); err != nil {
		return job.Audio{}, nil, fmt.Errorf("failed to open transcription audio: %w", err)
	}
	audio, workDir, err := r.audioFor(ctx, filePath)
	if err != nil {
		return job.Audio{}, nil, err
	}
	return audio, func() {
		if workDir != "" {
			_ = os.RemoveAll(workDir)
		}
	}, nil
}

// audioFor returns the upload source for a local file, extracting the audio
// track of a video unless RawUpload is set.
func (r *Resolver) audioFor(ctx context.Context, filePath string) (job.Audio, string, error) {
	name := filepath.Base(filePath)
	if !media.IsVideoFile(filePath) || r.RawUpload || r.Extract == nil {
		return job.Audio{Name: name, Open: openFile(filePath)}, "", nil
	}

	workDir, err := os.MkdirTemp("", "chitra-audio-*")
	if err != nil {
		return job.Audio{}, "", fmt.Errorf("failed to create work directory: %w", err)
	}

	out := filepath.Join(workDir, uuid.NewString()+media.DefaultAudioOptions().Ext())
	r.logger().Infow("Extracting audio", "input", filePath, "output", out)
	if err := r.Extract(ctx, filePath, out); err != nil {
		_ = os.RemoveAll(workDir)
		return job.Audio{}, "", fmt.Errorf("failed to extract audio: %w", err)
	}

	return job.Audio{Name: name, Open: openFile(out)}, workDir, nil
}

func (r *Resolver) duration(ctx context.Context, source string) time.Duration {
	if r.Probe == nil {
		return 0
	}
	d, err := r.Probe(ctx, source)
	if err != nil {
		r.logger().Debugw("Could not probe duration", "source", source, "error", err)
		return 0
	}
	return d
}

// wait blocks for d on the resolver's scheduler, or until ctx is done.
func (r *Resolver) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	sched := r.Scheduler
	if sched == nil {
		sched = schedule.System()
	}

	done := make(chan struct{})
	task := sched.After(d, func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		task.Cancel()
		return ctx.Err()
	}
}

func (r *Resolver) logger() *logging.Logger {
	if r.Logger == nil {
		return logging.Nop()
	}
	return r.Logger
}

func openFile(p string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return os.Open(p)
	}
}
