package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mgpai22/chitra/internal/config"
	"github.com/mgpai22/chitra/internal/transcript"
)

const assemblyAIEndpoint = "https://api.assemblyai.com"

// implements Service using the AssemblyAI REST API
type AssemblyAIService struct {
	apiKey  string
	baseURL string
	client  *http.Client
	options Options
}

func NewAssemblyAIService(apiKey string, opts Options) (*AssemblyAIService, error) {
	if apiKey == "" {
		return nil, &config.CredentialError{Service: "assemblyai", EnvVar: config.EnvAssemblyAI}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = assemblyAIEndpoint
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}

	return &AssemblyAIService{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  client,
		options: opts,
	}, nil
}

type assemblyUploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type assemblySubmitRequest struct {
	AudioURL     string `json:"audio_url"`
	LanguageCode string `json:"language_code,omitempty"`
	LanguageAuto bool   `json:"language_detection,omitempty"`
}

type assemblyWord struct {
	Text       string  `json:"text"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Confidence float64 `json:"confidence"`
}

type assemblyTranscript struct {
	ID     string         `json:"id"`
	Status string         `json:"status"`
	Words  []assemblyWord `json:"words"`
	Error  string         `json:"error"`
}

func (s *AssemblyAIService) Upload(ctx context.Context, audio io.Reader) (string, error) {
	var resp assemblyUploadResponse
	if err := s.do(ctx, "upload", http.MethodPost, "/v2/upload", "application/octet-stream", audio, &resp); err != nil {
		return "", err
	}
	if resp.UploadURL == "" {
		return "", &TransportError{Op: "upload", Err: errors.New("response missing upload_url")}
	}
	return resp.UploadURL, nil
}

func (s *AssemblyAIService) Submit(ctx context.Context, audioURL string) (*Job, error) {
	req := assemblySubmitRequest{AudioURL: audioURL}
	if s.options.Language != "" {
		req.LanguageCode = s.options.Language
	} else {
		req.LanguageAuto = true
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var resp assemblyTranscript
	if err := s.do(ctx, "submit", http.MethodPost, "/v2/transcript", "application/json", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, &TransportError{Op: "submit", Err: errors.New("response missing transcript id")}
	}

	return &Job{ID: resp.ID, Status: mapAssemblyStatus(resp.Status)}, nil
}

func (s *AssemblyAIService) Status(ctx context.Context, id string) (*StatusResult, error) {
	var resp assemblyTranscript
	path := "/v2/transcript/" + url.PathEscape(id)
	if err := s.do(ctx, "status", http.MethodGet, path, "", nil, &resp); err != nil {
		return nil, err
	}

	result := &StatusResult{
		Status: mapAssemblyStatus(resp.Status),
		Error:  resp.Error,
	}
	if result.Status == StatusCompleted {
		result.Words = make([]transcript.Word, 0, len(resp.Words))
		for _, w := range resp.Words {
			result.Words = append(result.Words, transcript.Word{
				Text:       w.Text,
				Start:      w.Start,
				End:        w.End,
				Confidence: w.Confidence,
			})
		}
	}
	return result, nil
}

func (s *AssemblyAIService) do(
	ctx context.Context,
	op, method, path, contentType string,
	body io.Reader,
	out any,
) error {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("authorization", s.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        errors.New(readErrorBody(resp.Body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// AssemblyAI error bodies are {"error": "..."}
func readErrorBody(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "empty response body"
	}
	return text
}

func mapAssemblyStatus(s string) Status {
	switch strings.ToLower(s) {
	case "queued":
		return StatusQueued
	case "processing":
		return StatusProcessing
	case "transcribing":
		return StatusTranscribing
	case "completed":
		return StatusCompleted
	case "error":
		return StatusError
	default:
		return StatusProcessing
	}
}
