package extractors

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxEntities = 50

type Entity struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// EntityRule is one pattern. Rules apply in file order and that order is
// kept in the output. MaxWords, when set, drops longer matches.
type EntityRule struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type" json:"type"`
	Pattern  string `yaml:"pattern" json:"pattern"`
	MaxWords int    `yaml:"max_words" json:"max_words,omitempty"`
	Enabled  bool   `yaml:"enabled" json:"enabled"`
}

type EntityRules struct {
	Rules []EntityRule `yaml:"rules" json:"rules"`
}

func LoadEntityRules(path string) (EntityRules, error) {
	if path == "" {
		return DefaultEntityRules(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultEntityRules(), err
	}

	var cfg EntityRules
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return EntityRules{}, err
	}
	if len(cfg.Rules) == 0 {
		return EntityRules{}, errors.New("no entity rules configured")
	}
	return cfg, nil
}

func DefaultEntityRules() EntityRules {
	return EntityRules{Rules: []EntityRule{
		{Name: "Email", Type: "email", Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`, Enabled: true},
		{Name: "URL", Type: "url", Pattern: `https?://(www\.)?[-a-zA-Z0-9@:%._\+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b([-a-zA-Z0-9()@:%_\+.~#?&/=]*)`, Enabled: true},
		{Name: "Money", Type: "money", Pattern: `(?i)\$\d+(?:,\d{3})*(?:\.\d{2})?|\d+(?:,\d{3})*(?:\.\d{2})?\s*(?:USD|EUR|GBP)`, Enabled: true},
		{Name: "Percentage", Type: "percentage", Pattern: `\d+(?:\.\d+)?%`, Enabled: true},
		{Name: "Proper noun", Type: "proper_noun", Pattern: `\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`, MaxWords: 4, Enabled: true},
	}}
}

type compiledRule struct {
	rule EntityRule
	re   *regexp.Regexp
}

type EntityExtractor struct {
	rules []compiledRule
}

func NewEntityExtractor(cfg EntityRules) (*EntityExtractor, error) {
	var compiled []compiledRule
	for _, rule := range cfg.Rules {
		if !rule.Enabled {
			continue
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("entity rule %q: %w", rule.Name, err)
		}
		compiled = append(compiled, compiledRule{rule: rule, re: re})
	}
	return &EntityExtractor{rules: compiled}, nil
}

// Extract returns at most 50 entities, grouped by rule order.
func (e *EntityExtractor) Extract(text string) []Entity {
	out := []Entity{}
	if e == nil {
		return out
	}
	for _, cr := range e.rules {
		for _, match := range cr.re.FindAllString(text, -1) {
			if cr.rule.MaxWords > 0 && len(strings.Fields(match)) > cr.rule.MaxWords {
				continue
			}
			out = append(out, Entity{Text: match, Type: cr.rule.Type})
			if len(out) == maxEntities {
				return out
			}
		}
	}
	return out
}
