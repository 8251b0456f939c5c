package session

import (
	"fmt"
	"strings"
)

// InputSource is what the user picked as the main video. It is one of
// FileInput, URLInput or PresetInput.
type InputSource interface {
	fmt.Stringer
	isInput()
}

// local media file
type FileInput struct {
	Name string // display name, defaults to the base of Path
	Path string
}

// remote media the transcription service can fetch itself
type URLInput struct {
	Address string
}

// entry of the preset catalog
type PresetInput struct {
	ID string
}

func (FileInput) isInput()   {}
func (URLInput) isInput()    {}
func (PresetInput) isInput() {}

func (f FileInput) String() string {
	if f.Name != "" {
		return "file " + f.Name
	}
	return "file " + f.Path
}

func (u URLInput) String() string {
	return "url " + u.Address
}

func (p PresetInput) String() string {
	return "preset " + p.ID
}

// ParseInput picks the variant for a CLI argument: "preset:<id>", an
// http(s) URL, or a file path.
func ParseInput(arg string) InputSource {
	arg = strings.TrimSpace(arg)
	switch {
	case strings.HasPrefix(arg, "preset:"):
		return PresetInput{ID: strings.TrimPrefix(arg, "preset:")}
	case strings.HasPrefix(arg, "http://"), strings.HasPrefix(arg, "https://"):
		return URLInput{Address: arg}
	default:
		return FileInput{Path: arg}
	}
}
