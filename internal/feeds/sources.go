package feeds

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var sourceKeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Source is one configured feed. Key is "<publisher>_<section>", e.g.
// "thehindu_economy"; it also names the output file.
type Source struct {
	Key     string `yaml:"key"`
	URL     string `yaml:"url"`
	Handler string `yaml:"handler"`
	// Name overrides the publisher label derived from Key.
	Name     string `yaml:"name"`
	Disabled bool   `yaml:"disabled"`
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// SourceName is the publisher label written to candidates.
func (s Source) SourceName() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	publisher, _ := SplitKey(s.Key)
	return publisher
}

// SplitKey splits a source key at its first underscore into publisher and
// section. Keys without an underscore have no section.
func SplitKey(key string) (publisher, section string) {
	key = strings.TrimSpace(key)
	publisher, section, _ = strings.Cut(key, "_")
	return publisher, section
}

// LoadSources reads feeds.yaml and returns the enabled sources.
func LoadSources(path string) ([]Source, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feed sources: %w", err)
	}
	return ParseSources(raw)
}

func ParseSources(raw []byte) ([]Source, error) {
	var file sourcesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse feed sources: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Sources))
	out := make([]Source, 0, len(file.Sources))
	for i, src := range file.Sources {
		src.Key = strings.TrimSpace(src.Key)
		src.URL = strings.TrimSpace(src.URL)
		if !sourceKeyPattern.MatchString(src.Key) {
			return nil, fmt.Errorf("sources[%d]: invalid key %q", i, src.Key)
		}
		if !absoluteHTTP(src.URL) {
			return nil, fmt.Errorf("sources[%d] %s: url must be absolute http(s)", i, src.Key)
		}
		if _, dup := seen[src.Key]; dup {
			return nil, fmt.Errorf("sources[%d]: duplicate key %q", i, src.Key)
		}
		seen[src.Key] = struct{}{}
		if src.Disabled {
			continue
		}
		out = append(out, src)
	}
	return out, nil
}
