package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"igaudience/pkg/instagram"
)

// Target is one account to process in a batch
type Target struct {
	Name   string `yaml:"name" json:"name"`
	URL    string `yaml:"url,omitempty" json:"url,omitempty"`
	Handle string `yaml:"instagram_handle" json:"instagram_handle"`
	// Type is "brand", "user" or empty for auto-detection
	Type string `yaml:"type,omitempty" json:"type,omitempty"`
}

// DisplayName returns the name, or the handle when no name is set
func (t Target) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Handle
}

// UnmarshalYAML accepts a bare handle string or an object using any of the
// handle spellings seen in brands and users files.
func (t *Target) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*t = Target{Handle: instagram.SanitizeUsername(node.Value)}
		return nil
	}

	var raw struct {
		Name            string `yaml:"name"`
		URL             string `yaml:"url"`
		InstagramHandle string `yaml:"instagram_handle"`
		Handle          string `yaml:"handle"`
		Username        string `yaml:"username"`
		Instagram       string `yaml:"instagram"`
		Type            string `yaml:"type"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	handle := raw.InstagramHandle
	for _, alt := range []string{raw.Handle, raw.Username, raw.Instagram} {
		if handle == "" {
			handle = alt
		}
	}
	if handle == "" && strings.Contains(raw.URL, "instagram.com") {
		handle = raw.URL
	}

	*t = Target{
		Name:   raw.Name,
		URL:    raw.URL,
		Handle: instagram.SanitizeUsername(handle),
		Type:   strings.ToLower(strings.TrimSpace(raw.Type)),
	}
	return nil
}

// LoadBrands reads a YAML or JSON list of targets. The list may also sit
// under a top-level "brands" or "users" key. Entries without a usable handle
// are dropped.
func LoadBrands(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var list []Target
	if err := yaml.Unmarshal(data, &list); err != nil {
		var wrapped struct {
			Brands []Target `yaml:"brands"`
			Users  []Target `yaml:"users"`
		}
		if werr := yaml.Unmarshal(data, &wrapped); werr != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		list = append(wrapped.Brands, wrapped.Users...)
	}

	out := make([]Target, 0, len(list))
	for _, t := range list {
		if t.Handle == "" || !instagram.IsValidUsername(t.Handle) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// SampleBrands is written when no brands file exists
var SampleBrands = []Target{
	{Name: "Nike", URL: "https://www.nike.com", Handle: "nike"},
	{Name: "Adidas", URL: "https://www.adidas.com", Handle: "adidas"},
}

// WriteSampleBrands creates path with SampleBrands unless it already exists.
// It reports whether the file was created.
func WriteSampleBrands(path string) (bool, error) {
	if fileExists(path) {
		return false, nil
	}
	var data []byte
	var err error
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(SampleBrands, "", "  ")
	} else {
		data, err = yaml.Marshal(SampleBrands)
	}
	if err != nil {
		return false, fmt.Errorf("failed to marshal sample brands: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, fmt.Errorf("failed to write sample brands: %w", err)
	}
	return true, nil
}

// FindTarget returns the target with the given handle
func FindTarget(targets []Target, handle string) (Target, bool) {
	handle = instagram.SanitizeUsername(handle)
	for _, t := range targets {
		if t.Handle == handle {
			return t, true
		}
	}
	return Target{}, false
}
