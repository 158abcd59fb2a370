package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SourceKind selects which fetcher implementation serves a target.
type SourceKind string

const (
	SourceKindRSS      SourceKind = "rss"
	SourceKindCareers  SourceKind = "careers"
	SourceKindHeadless SourceKind = "headless"
)

type SourceTarget struct {
	Name    string     `yaml:"name"`
	Kind    SourceKind `yaml:"kind"`
	URL     string     `yaml:"url"`
	Company string     `yaml:"company"`
	Enabled *bool      `yaml:"enabled"`

	// careers / headless
	LinkSelector     string `yaml:"link_selector"`
	TitleSelector    string `yaml:"title_selector"`
	LocationSelector string `yaml:"location_selector"`
	BodySelector     string `yaml:"body_selector"`
	LinkContains     string `yaml:"link_contains"`
	MaxItems         int    `yaml:"max_items"`
}

func (t SourceTarget) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

type sourcesFile struct {
	Queries []string       `yaml:"queries"`
	Sources []SourceTarget `yaml:"sources"`
}

// LoadSources reads the source targets file. A missing file yields no targets.
// Queries listed in the file are appended to cfg.Queries.
func LoadSources(cfg SourcesConfig) ([]SourceTarget, []string, error) {
	b, err := os.ReadFile(cfg.File)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, cfg.Queries, nil
		}
		return nil, nil, err
	}
	return ParseSources(b, cfg.Queries)
}

func ParseSources(b []byte, queries []string) ([]SourceTarget, []string, error) {
	var f sourcesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, nil, fmt.Errorf("parse sources file: %w", err)
	}

	seen := map[string]struct{}{}
	out := make([]SourceTarget, 0, len(f.Sources))
	for i, s := range f.Sources {
		s.Name = strings.TrimSpace(s.Name)
		s.URL = strings.TrimSpace(s.URL)
		s.Kind = SourceKind(strings.ToLower(strings.TrimSpace(string(s.Kind))))
		if s.Name == "" || s.URL == "" {
			return nil, nil, fmt.Errorf("source #%d: name and url are required", i+1)
		}
		switch s.Kind {
		case SourceKindRSS, SourceKindCareers, SourceKindHeadless:
		default:
			return nil, nil, fmt.Errorf("source %s: unknown kind %q", s.Name, s.Kind)
		}
		if _, ok := seen[s.Name]; ok {
			return nil, nil, fmt.Errorf("source %s: duplicate name", s.Name)
		}
		seen[s.Name] = struct{}{}
		if !s.IsEnabled() {
			continue
		}
		out = append(out, s)
	}

	qs := append([]string{}, queries...)
	for _, q := range f.Queries {
		q = strings.TrimSpace(q)
		if q != "" {
			qs = append(qs, q)
		}
	}
	return out, qs, nil
}
