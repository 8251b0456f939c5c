package session

import "fmt"

// processing stage shown to the user
type Stage string

const (
	StageIdle         Stage = "idle"
	StageLoading      Stage = "loading"
	StageReady        Stage = "ready"
	StageUploading    Stage = "uploading"
	StageTranscribing Stage = "transcribing"
	StageEnriching    Stage = "enriching"
	StageComplete     Stage = "complete"
	StageNoWords      Stage = "no_words"
	StageError        Stage = "error"
	StageConfigError  Stage = "config_error"
)

// Status is the single rolling status of a session. Current and Total are
// segment progress while enriching.
type Status struct {
	Stage   Stage  `json:"stage"`
	Detail  string `json:"detail,omitempty"`
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
}

func (s Status) String() string {
	switch s.Stage {
	case StageIdle:
		return "Idle. Select a video, URL or preset to start."
	case StageLoading:
		return fmt.Sprintf("Loading %s...", s.Detail)
	case StageReady:
		return fmt.Sprintf("%s loaded. Ready to process.", s.Detail)
	case StageUploading:
		return "Uploading audio for transcription..."
	case StageTranscribing:
		if s.Detail != "" {
			return fmt.Sprintf("Transcribing (%s)...", s.Detail)
		}
		return "Transcribing..."
	case StageEnriching:
		return fmt.Sprintf("Finding images: %d/%d segments", s.Current, s.Total)
	case StageComplete:
		return fmt.Sprintf("Processing complete. %s", s.Detail)
	case StageNoWords:
		return "Transcription complete but no words found."
	case StageError:
		return "Error: " + s.Detail
	case StageConfigError:
		return "Configuration error: " + s.Detail
	default:
		return string(s.Stage)
	}
}

// Busy reports whether a processing round is in flight.
func (s Status) Busy() bool {
	switch s.Stage {
	case StageLoading, StageUploading, StageTranscribing, StageEnriching:
		return true
	default:
		return false
	}
}
