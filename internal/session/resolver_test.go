package session

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mgpai22/chitra/internal/schedule"
)

func readAudio(t *testing.T, m *Media) string {
	t.Helper()
	if m.Audio.Open == nil {
		t.Fatal("audio has no file to open")
	}
	r, err := m.Audio.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		arg  string
		want InputSource
	}{
		{"preset:2", PresetInput{ID: "2"}},
		{"https://cdn.example/v.mp4", URLInput{Address: "https://cdn.example/v.mp4"}},
		{"http://cdn.example/v.mp4", URLInput{Address: "http://cdn.example/v.mp4"}},
		{" clips/talk.mp4 ", FileInput{Path: "clips/talk.mp4"}},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			if got := ParseInput(tt.arg); got != tt.want {
				t.Errorf("ParseInput(%q) = %#v, want %#v", tt.arg, got, tt.want)
			}
		})
	}
}

func TestResolveAudioFileUploadsAsIs(t *testing.T) {
	r := testResolver(schedule.NewManual())
	path := writeFile(t, "talk.mp3", "mp3-bytes")

	m, err := r.Resolve(context.Background(), FileInput{Path: path})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if m.Name != "talk.mp3" || m.Source != path {
		t.Errorf("media = %+v", m)
	}
	if got := readAudio(t, m); got != "mp3-bytes" {
		t.Errorf("audio = %q", got)
	}
}

func TestResolveVideoExtractsAudio(t *testing.T) {
	r := testResolver(schedule.NewManual())
	var extracted string
	r.Extract = func(_ context.Context, in, out string) error {
		extracted = in
		return os.WriteFile(out, []byte("extracted"), 0o644)
	}
	r.Probe = func(context.Context, string) (time.Duration, error) {
		return 90 * time.Second, nil
	}

	path := writeFile(t, "talk.mp4", "video-bytes")
	m, err := r.Resolve(context.Background(), FileInput{Name: "Talk", Path: path})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if extracted != path {
		t.Errorf("extracted %q, want %q", extracted, path)
	}
	if m.Duration != 90*time.Second || m.Name != "Talk" {
		t.Errorf("media = %+v", m)
	}
	if got := readAudio(t, m); got != "extracted" {
		t.Errorf("audio = %q, want extracted track", got)
	}

	dir := m.workDir
	m.Cleanup()
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("work dir %s not removed", dir)
	}
}

func TestResolveVideoRawUpload(t *testing.T) {
	r := testResolver(schedule.NewManual())
	r.RawUpload = true
	r.Extract = func(context.Context, string, string) error {
		t.Error("Extract called with RawUpload set")
		return nil
	}

	path := writeFile(t, "talk.mp4", "video-bytes")
	m, err := r.Resolve(context.Background(), FileInput{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if got := readAudio(t, m); got != "video-bytes" {
		t.Errorf("audio = %q", got)
	}
}

func TestResolveExtractionFailure(t *testing.T) {
	r := testResolver(schedule.NewManual())
	r.Extract = func(context.Context, string, string) error {
		return errors.New("no audio stream")
	}

	path := writeFile(t, "talk.mp4", "video-bytes")
	_, err := r.Resolve(context.Background(), FileInput{Path: path})
	if err == nil || !strings.Contains(err.Error(), "no audio stream") {
		t.Errorf("Resolve() error = %v", err)
	}
}

func TestResolveMissingFile(t *testing.T) {
	r := testResolver(schedule.NewManual())
	_, err := r.Resolve(context.Background(), FileInput{Path: filepath.Join(t.TempDir(), "nope.mp4")})
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestResolveURL(t *testing.T) {
	r := testResolver(schedule.NewManual())

	m, err := r.Resolve(context.Background(), URLInput{Address: "https://cdn.example/media/talk.mp4?sig=1"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if m.Name != "talk.mp4" {
		t.Errorf("name = %q", m.Name)
	}
	if m.Audio.URL != "https://cdn.example/media/talk.mp4?sig=1" || m.Audio.Open != nil {
		t.Errorf("audio = %+v, want remote URL", m.Audio)
	}

	for _, bad := range []string{"ftp://cdn.example/a.mp4", "https://", "not a url"} {
		if _, err := r.Resolve(context.Background(), URLInput{Address: bad}); err == nil {
			t.Errorf("Resolve(%q) expected error", bad)
		}
	}
}

func TestResolvePreset(t *testing.T) {
	sched := schedule.NewManual()
	r := testResolver(sched)
	path := writeFile(t, "nature.mp3", "birds")
	r.Catalog = Catalog{"7": {ID: "7", Name: "Nature Walk", Source: path}}
	r.PresetDelay = time.Second

	type result struct {
		m   *Media
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := r.Resolve(context.Background(), PresetInput{ID: "7"})
		done <- result{m, err}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for sched.Pending() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("preset delay never scheduled")
		}
		time.Sleep(time.Millisecond)
	}
	select {
	case <-done:
		t.Fatal("preset resolved before its delay")
	default:
	}

	sched.Advance(time.Second)
	res := <-done
	if res.err != nil {
		t.Fatalf("Resolve() error = %v", res.err)
	}
	if res.m.Name != "Nature Walk" || readAudio(t, res.m) != "birds" {
		t.Errorf("media = %+v", res.m)
	}
}

func TestResolvePresetCancelled(t *testing.T) {
	sched := schedule.NewManual()
	r := testResolver(sched)
	r.Catalog = Catalog{"1": {ID: "1", Name: "One", Source: "https://cdn.example/one.mp4"}}
	r.PresetDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, PresetInput{ID: "1"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Resolve() error = %v, want context.Canceled", err)
	}
	if n := sched.Pending(); n != 0 {
		t.Errorf("%d timers left after cancel", n)
	}
}

func TestResolveUnknownPreset(t *testing.T) {
	r := testResolver(schedule.NewManual())
	_, err := r.Resolve(context.Background(), PresetInput{ID: "99"})
	if !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("Resolve() error = %v, want ErrUnknownPreset", err)
	}
}

func TestLoadCatalog(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		c, err := LoadCatalog("")
		if err != nil {
			t.Fatal(err)
		}
		if len(c.List()) != 4 {
			t.Errorf("default catalog has %d presets", len(c.List()))
		}
	})

	t.Run("file", func(t *testing.T) {
		path := writeFile(t, "presets.json", `[
			{"id": "b", "name": "Second", "source": "https://cdn.example/b.mp4"},
			{"id": "a", "name": "First", "source": "a.mp4", "description": "local"}
		]`)
		c, err := LoadCatalog(path)
		if err != nil {
			t.Fatalf("LoadCatalog() error = %v", err)
		}
		list := c.List()
		if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
			t.Errorf("List() = %+v", list)
		}
		if p, ok := c.Lookup(" b "); !ok || p.Name != "Second" {
			t.Errorf("Lookup(b) = %+v, %v", p, ok)
		}
	})

	errorCases := map[string]string{
		"duplicate":      `[{"id":"a","source":"x"},{"id":"a","source":"y"}]`,
		"missing source": `[{"id":"a"}]`,
		"malformed":      `{"id":"a"}`,
	}
	for name, content := range errorCases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadCatalog(writeFile(t, "presets.json", content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
