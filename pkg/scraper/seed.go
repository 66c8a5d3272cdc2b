package scraper

import (
	"context"
	"fmt"
	"os"

	"github.com/ideaforge/platform/pkg/common/logger"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
)

type SourceSeed struct {
	Name    string                 `yaml:"name"`
	Type    SourceKind             `yaml:"type"`
	Enabled *bool                  `yaml:"enabled"`
	Config  map[string]interface{} `yaml:"config"`
}

type seedFile struct {
	Sources []SourceSeed `yaml:"sources"`
}

type SourceUpserter interface {
	UpsertSource(ctx context.Context, source *Source) error
}

// LoadSeeds reads a sources file of the form
//
//	sources:
//	  - name: hn
//	    type: rss
//	    config: {url: https://news.ycombinator.com/rss}
func LoadSeeds(path string) ([]SourceSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	seen := make(map[string]struct{}, len(file.Sources))
	for i, s := range file.Sources {
		if s.Name == "" {
			return nil, fmt.Errorf("source #%d has no name", i+1)
		}
		if !s.Type.Valid() {
			return nil, &ConfigError{Source: s.Name, Err: fmt.Errorf("%w: %q", ErrUnknownKind, s.Type)}
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("source %q declared twice", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return file.Sources, nil
}

func (s SourceSeed) toSource() *Source {
	enabled := true
	if s.Enabled != nil {
		enabled = *s.Enabled
	}
	cfg := s.Config
	if cfg == nil {
		cfg = map[string]interface{}{}
	}
	return &Source{Name: s.Name, Kind: s.Type, Config: datatypes.JSONMap(cfg), Enabled: enabled}
}

// SeedSources upserts every source in path by name.
func SeedSources(ctx context.Context, store SourceUpserter, path string) (int, error) {
	seeds, err := LoadSeeds(path)
	if err != nil {
		return 0, err
	}
	for _, seed := range seeds {
		if err := store.UpsertSource(ctx, seed.toSource()); err != nil {
			return 0, fmt.Errorf("seeding source %q: %w", seed.Name, err)
		}
	}
	logger.WithField("count", len(seeds)).Info("sources seeded")
	return len(seeds), nil
}
