package ffmpeg

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	releaseVersion = "6.1"
	releaseBaseURL = "https://github.com/ffbinaries/ffbinaries-prebuilt/releases/download"

	EnvFFmpegPath  = "CHITRA_FFMPEG_PATH"
	EnvFFprobePath = "CHITRA_FFPROBE_PATH"
	EnvNoDownload  = "CHITRA_FFMPEG_NO_DOWNLOAD"
)

type BinaryPaths struct {
	FFmpeg  string
	FFprobe string
}

// Locator finds ffmpeg and ffprobe: explicit env paths first, then PATH,
// then a per-user cache, downloading a static build into it as a last resort.
type Locator struct {
	Getenv   func(string) string
	LookPath func(string) (string, error)
	CacheDir string
	BaseURL  string
	Client   *http.Client
	GOOS     string
	GOARCH   string
	Download bool
}

func DefaultLocator() *Locator {
	cacheDir, err := os.UserCacheDir()
	if err != nil || cacheDir == "" {
		cacheDir = os.TempDir()
	}
	return &Locator{
		Getenv:   os.Getenv,
		LookPath: exec.LookPath,
		CacheDir: filepath.Join(cacheDir, "chitra", "ffmpeg"),
		BaseURL:  releaseBaseURL,
		Client:   &http.Client{Timeout: 5 * time.Minute},
		GOOS:     runtime.GOOS,
		GOARCH:   runtime.GOARCH,
		Download: os.Getenv(EnvNoDownload) == "",
	}
}

var (
	ensureOnce sync.Once
	ensureErr  error
	ensurePath BinaryPaths
)

// Ensure locates the binaries once per process.
func Ensure() (BinaryPaths, error) {
	ensureOnce.Do(func() {
		ensurePath, ensureErr = DefaultLocator().Locate(context.Background())
	})
	return ensurePath, ensureErr
}

func FFmpegPath() (string, error) {
	paths, err := Ensure()
	if err != nil {
		return "", err
	}
	return paths.FFmpeg, nil
}

func FFprobePath() (string, error) {
	paths, err := Ensure()
	if err != nil {
		return "", err
	}
	return paths.FFprobe, nil
}

func (l *Locator) Locate(ctx context.Context) (BinaryPaths, error) {
	paths := BinaryPaths{
		FFmpeg:  l.Getenv(EnvFFmpegPath),
		FFprobe: l.Getenv(EnvFFprobePath),
	}

	if paths.FFmpeg == "" {
		if found, err := l.LookPath("ffmpeg"); err == nil {
			paths.FFmpeg = found
		}
	}
	if paths.FFprobe == "" {
		if found, err := l.LookPath("ffprobe"); err == nil {
			paths.FFprobe = found
		}
	}
	if paths.FFmpeg != "" && paths.FFprobe != "" {
		return paths, nil
	}

	installDir := filepath.Join(l.CacheDir, releaseVersion, l.GOOS+"-"+l.GOARCH)
	cached := BinaryPaths{
		FFmpeg:  filepath.Join(installDir, "ffmpeg"+l.exeSuffix()),
		FFprobe: filepath.Join(installDir, "ffprobe"+l.exeSuffix()),
	}
	if binariesExist(cached) {
		return cached, nil
	}

	if !l.Download {
		return BinaryPaths{}, errors.New(
			"ffmpeg/ffprobe not found: install them or set " + EnvFFmpegPath + " and " + EnvFFprobePath,
		)
	}

	asset, err := assetForPlatform(l.GOOS, l.GOARCH)
	if err != nil {
		return BinaryPaths{}, err
	}

	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return BinaryPaths{}, fmt.Errorf("create ffmpeg cache dir: %w", err)
	}
	if err := l.downloadAndExtract(ctx, asset, installDir); err != nil {
		return BinaryPaths{}, err
	}
	if !binariesExist(cached) {
		return BinaryPaths{}, errors.New("ffmpeg binaries not found after extraction")
	}

	if l.GOOS != "windows" {
		for _, p := range []string{cached.FFmpeg, cached.FFprobe} {
			if err := os.Chmod(p, 0o755); err != nil {
				return BinaryPaths{}, fmt.Errorf("chmod %s: %w", filepath.Base(p), err)
			}
		}
	}

	return cached, nil
}

func assetForPlatform(goos, goarch string) (string, error) {
	var platform string
	switch {
	case goos == "linux" && goarch == "amd64":
		platform = "linux-64"
	case goos == "linux" && goarch == "arm64":
		platform = "linux-arm-64"
	case goos == "darwin" && goarch == "amd64":
		platform = "macos-64"
	case goos == "windows" && goarch == "amd64":
		platform = "win-64"
	default:
		return "", fmt.Errorf("unsupported platform for bundled ffmpeg: %s/%s", goos, goarch)
	}
	return "ffmpeg-" + releaseVersion + "-" + platform + ".zip", nil
}

func (l *Locator) downloadAndExtract(ctx context.Context, asset, installDir string) error {
	url := fmt.Sprintf("%s/v%s/%s", strings.TrimRight(l.BaseURL, "/"), releaseVersion, asset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("download ffmpeg bundle: %w", err)
	}

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download ffmpeg bundle: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download ffmpeg bundle: unexpected status %s", resp.Status)
	}

	tmpFile, err := os.CreateTemp("", "chitra-ffmpeg-*.zip")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	archivePath := tmpFile.Name()
	defer func() { _ = os.Remove(archivePath) }()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write archive: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	if err := extractArchive(archivePath, installDir, l.exeSuffix()); err != nil {
		return fmt.Errorf("extract %s: %w", asset, err)
	}
	return nil
}

// pulls ffmpeg and ffprobe out of a release zip, ignoring everything else
func extractArchive(archivePath, installDir, suffix string) error {
	zipReader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open ffmpeg archive: %w", err)
	}
	defer func() { _ = zipReader.Close() }()

	found := map[string]bool{}
	for _, file := range zipReader.File {
		name := strings.TrimSuffix(strings.ToLower(filepath.Base(file.Name)), ".exe")
		if name != "ffmpeg" && name != "ffprobe" {
			continue
		}
		if err := extractZipFile(file, filepath.Join(installDir, name+suffix)); err != nil {
			return err
		}
		found[name] = true
	}

	if !found["ffmpeg"] || !found["ffprobe"] {
		return fmt.Errorf("ffmpeg archive missing required binaries")
	}
	return nil
}

func extractZipFile(file *zip.File, dest string) error {
	reader, err := file.Open()
	if err != nil {
		return fmt.Errorf("open ffmpeg archive entry: %w", err)
	}
	defer func() { _ = reader.Close() }()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create ffmpeg binary: %w", err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, reader); err != nil {
		return fmt.Errorf("write ffmpeg binary: %w", err)
	}
	return nil
}

func binariesExist(paths BinaryPaths) bool {
	return fileExists(paths.FFmpeg) && fileExists(paths.FFprobe)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}

func (l *Locator) exeSuffix() string {
	if l.GOOS == "windows" {
		return ".exe"
	}
	return ""
}
