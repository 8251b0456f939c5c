package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mgpai22/chitra/internal/config"
	"github.com/mgpai22/chitra/internal/transcript"
)

// implements Service on top of the synchronous OpenAI Audio API. Uploads are
// staged on disk and a submitted job completes before Submit returns.
type OpenAIService struct {
	client    openai.Client
	model     string
	options   Options
	http      *http.Client
	uploadDir string

	mu   sync.Mutex
	jobs map[string]*StatusResult
}

// word from OpenAI Whisper verbose_json response
type whisperWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// segment from OpenAI Whisper verbose_json response
type whisperSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// verbose_json response structure from Whisper
type whisperVerboseResponse struct {
	Text     string           `json:"text"`
	Words    []whisperWord    `json:"words"`
	Segments []whisperSegment `json:"segments"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
}

func NewOpenAIService(
	ctx context.Context,
	apiKey string,
	opts Options,
	clientOpts ...option.RequestOption,
) (*OpenAIService, error) {
	if apiKey == "" {
		return nil, &config.CredentialError{Service: "openai", EnvVar: config.EnvOpenAI}
	}

	requestOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if opts.BaseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(append(requestOpts, clientOpts...)...)

	model := opts.Model
	if model == "" {
		model = "whisper-1"
	}

	uploadDir := opts.UploadDir
	if uploadDir == "" {
		uploadDir = filepath.Join(os.TempDir(), "chitra-uploads")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}

	return &OpenAIService{
		client:    client,
		model:     model,
		options:   opts,
		http:      httpClient,
		uploadDir: uploadDir,
		jobs:      make(map[string]*StatusResult),
	}, nil
}

// stages audio on disk and returns a file:// URL for Submit
func (s *OpenAIService) Upload(ctx context.Context, audio io.Reader) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		return "", &TransportError{Op: "upload", Err: err}
	}

	path := filepath.Join(s.uploadDir, uuid.NewString()+".audio")
	f, err := os.Create(path)
	if err != nil {
		return "", &TransportError{Op: "upload", Err: err}
	}
	defer f.Close()

	if _, err := io.Copy(f, readerWithContext(ctx, audio)); err != nil {
		os.Remove(path)
		return "", &TransportError{Op: "upload", Err: err}
	}

	return (&url.URL{Scheme: "file", Path: path}).String(), nil
}

// transcribes audioURL right away; the returned job is already terminal
func (s *OpenAIService) Submit(ctx context.Context, audioURL string) (*Job, error) {
	id := uuid.NewString()

	words, err := s.transcribeURL(ctx, audioURL)
	if err != nil {
		return nil, &TransportError{Op: "submit", Err: err}
	}

	s.mu.Lock()
	s.jobs[id] = &StatusResult{Status: StatusCompleted, Words: words}
	s.mu.Unlock()

	return &Job{ID: id, Status: StatusCompleted}, nil
}

func (s *OpenAIService) Status(ctx context.Context, id string) (*StatusResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, ok := s.jobs[id]
	if !ok {
		return &StatusResult{Status: StatusError, Error: "unknown job " + id}, nil
	}
	// results are handed out once; the caller stops polling on completion
	delete(s.jobs, id)
	return result, nil
}

func (s *OpenAIService) transcribeURL(ctx context.Context, audioURL string) ([]transcript.Word, error) {
	u, err := url.Parse(audioURL)
	if err != nil {
		return nil, fmt.Errorf("invalid audio URL: %w", err)
	}

	var (
		body io.Reader
		name string
	)
	switch u.Scheme {
	case "file":
		f, err := os.Open(u.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open audio file: %w", err)
		}
		defer f.Close()
		defer os.Remove(u.Path)
		body, name = f, filepath.Base(u.Path)
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to download audio: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("failed to download audio: status %d", resp.StatusCode)
		}
		body, name = resp.Body, filepath.Base(u.Path)
	default:
		return nil, fmt.Errorf("unsupported audio URL scheme: %q", u.Scheme)
	}

	if name == "" || name == "." || name == "/" {
		name = "audio.mp3"
	}

	params := openai.AudioTranscriptionNewParams{
		File:                   openai.File(body, name, ""),
		Model:                  openai.AudioModel(s.model),
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"word", "segment"},
	}

	if s.options.Language != "" {
		params.Language = openai.String(s.options.Language)
	}

	if s.options.Prompt != "" {
		params.Prompt = openai.String(s.options.Prompt)
	}

	resp, err := s.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	return parseWordsResponse(resp.RawJSON())
}

// parseWordsResponse converts a verbose_json reply into timed words. Whisper
// word entries carry no punctuation, so when a segment's text splits into the
// same number of tokens the punctuated tokens replace the bare words.
func parseWordsResponse(rawJSON string) ([]transcript.Word, error) {
	if rawJSON == "" {
		return nil, fmt.Errorf("empty response")
	}

	var verboseResp whisperVerboseResponse
	if err := json.Unmarshal([]byte(rawJSON), &verboseResp); err != nil {
		return nil, fmt.Errorf("failed to parse verbose_json response: %w", err)
	}

	if len(verboseResp.Words) == 0 {
		if strings.TrimSpace(verboseResp.Text) == "" && len(verboseResp.Segments) == 0 {
			return []transcript.Word{}, nil
		}
		return nil, fmt.Errorf("response has no word timestamps")
	}

	words := make([]transcript.Word, 0, len(verboseResp.Words))
	for _, w := range verboseResp.Words {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		words = append(words, transcript.Word{
			Text:  text,
			Start: secondsToMillis(w.Start),
			End:   secondsToMillis(w.End),
		})
	}

	punctuate(words, verboseResp.Segments)
	return words, nil
}

func punctuate(words []transcript.Word, segments []whisperSegment) {
	next := 0
	for _, seg := range segments {
		end := secondsToMillis(seg.End)

		first := next
		for next < len(words) && words[next].Start < end {
			next++
		}
		group := words[first:next]
		if len(group) == 0 {
			continue
		}

		tokens := strings.Fields(seg.Text)
		if len(tokens) == len(group) {
			for i := range group {
				group[i].Text = tokens[i]
			}
			continue
		}

		// token counts disagree; carry only the closing punctuation
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		last := &group[len(group)-1]
		switch mark := text[len(text)-1]; mark {
		case '.', '!', '?':
			if !strings.HasSuffix(last.Text, string(mark)) {
				last.Text += string(mark)
			}
		}
	}
}

func secondsToMillis(s float64) int64 {
	return int64(math.Round(s * 1000))
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
