package transcribe

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/mgpai22/chitra/internal/transcript"
)

// transcription job status
type Status string

const (
	StatusIdle         Status = "idle"
	StatusUploading    Status = "uploading"
	StatusQueued       Status = "queued"
	StatusProcessing   Status = "processing"
	StatusTranscribing Status = "transcribing"
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
)

// Pending reports whether the service is still working on the job.
func (s Status) Pending() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusTranscribing:
		return true
	default:
		return false
	}
}

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusIdle:
		return true
	default:
		return false
	}
}

// submitted job as reported by the service
type Job struct {
	ID     string
	Status Status
}

// result of a status check; Words is set once completed
type StatusResult struct {
	Status Status
	Words  []transcript.Word
	Error  string
}

// interface for a remote transcription service
type Service interface {
	// Upload sends audio bytes and returns a URL the service can read.
	Upload(ctx context.Context, audio io.Reader) (string, error)
	// Submit starts a transcription job for audioURL.
	Submit(ctx context.Context, audioURL string) (*Job, error)
	// Status checks a job.
	Status(ctx context.Context, id string) (*StatusResult, error)
}

// transcription service provider
type Provider string

const (
	ProviderAssemblyAI Provider = "assemblyai"
	ProviderOpenAI     Provider = "openai"
)

// transcription options
type Options struct {
	Language   string // source language hint, empty for auto-detect
	Model      string
	Prompt     string
	BaseURL    string // overrides the service endpoint
	HTTPClient *http.Client
	UploadDir  string // local staging for services without an upload endpoint
}

// creates Service based on provider
func Factory(
	ctx context.Context,
	provider Provider,
	apiKey string,
	opts Options,
) (Service, error) {
	switch provider {
	case ProviderAssemblyAI:
		return NewAssemblyAIService(apiKey, opts)
	case ProviderOpenAI:
		return NewOpenAIService(ctx, apiKey, opts)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// upload, submit or status call failed at the HTTP level
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// service reported the job as failed
type ServiceError struct {
	JobID   string
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("transcription %s failed", e.JobID)
	}
	return fmt.Sprintf("transcription %s failed: %s", e.JobID, e.Message)
}
