package session

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// sample video that can be loaded by id
type Preset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Source      string `json:"source"` // file path or URL
	Description string `json:"description,omitempty"`
}

// presets by id
type Catalog map[string]Preset

func DefaultCatalog() Catalog {
	return Catalog{
		"1": {ID: "1", Name: "Tech Review", Source: "presets/tech_review.mp4", Description: "A short clip discussing new gadgets."},
		"2": {ID: "2", Name: "Nature Walk", Source: "presets/nature_walk.mp4", Description: "Scenic views and commentary on wildlife."},
		"3": {ID: "3", Name: "Cooking Tutorial", Source: "presets/cooking_tutorial.mp4", Description: "A quick recipe demonstration."},
		"4": {ID: "4", Name: "Story Time", Source: "presets/story_time.mp4", Description: "An engaging narrative for all ages."},
	}
}

// LoadCatalog reads a JSON array of presets. An empty path returns the
// built-in catalog.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset catalog: %w", err)
	}

	var presets []Preset
	if err := json.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("failed to parse preset catalog %s: %w", path, err)
	}

	catalog := make(Catalog, len(presets))
	for i, p := range presets {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" || p.Source == "" {
			return nil, fmt.Errorf("preset %d: id and source are required", i)
		}
		if _, dup := catalog[p.ID]; dup {
			return nil, fmt.Errorf("duplicate preset id %q", p.ID)
		}
		catalog[p.ID] = p
	}
	return catalog, nil
}

func (c Catalog) Lookup(id string) (Preset, bool) {
	p, ok := c[strings.TrimSpace(id)]
	return p, ok
}

// presets sorted by id
func (c Catalog) List() []Preset {
	out := make([]Preset, 0, len(c))
	for _, p := range c {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
