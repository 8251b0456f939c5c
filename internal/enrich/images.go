package enrich

import "strings"

// image chosen for one segment
type ImageRecord struct {
	SourceURL  string `json:"source_url,omitempty"`
	UserURL    string `json:"user_url,omitempty"`
	DisplayURL string `json:"display_url,omitempty"`
}

// Override sets the user URL. An empty or blank url clears the override and
// the record falls back to the fetched source.
func (r *ImageRecord) Override(url string) {
	r.UserURL = strings.TrimSpace(url)
	r.recompute()
}

func (r *ImageRecord) recompute() {
	switch {
	case r.UserURL != "":
		r.DisplayURL = r.UserURL
	case r.SourceURL != "":
		r.DisplayURL = r.SourceURL
	default:
		r.DisplayURL = ""
	}
}

// image records keyed by segment index; a missing key means no image
type Images map[int]*ImageRecord

func (im Images) Clone() Images {
	out := make(Images, len(im))
	for i, r := range im {
		if r == nil {
			continue
		}
		c := *r
		out[i] = &c
	}
	return out
}

// DisplayURL returns the URL to show for segment i, or "" when none.
func (im Images) DisplayURL(i int) string {
	if r, ok := im[i]; ok && r != nil {
		return r.DisplayURL
	}
	return ""
}

// Override applies a user URL to segment i, creating the record when the
// pipeline found nothing. Clearing an override on a record with no source
// removes the record.
func (im Images) Override(i int, url string) *ImageRecord {
	r, ok := im[i]
	if !ok || r == nil {
		r = &ImageRecord{}
	}
	r.Override(url)
	if r.DisplayURL == "" {
		delete(im, i)
		return nil
	}
	im[i] = r
	return r
}
