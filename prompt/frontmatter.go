package prompt

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teranos/featsmith/errors"
)

// Document represents a prompt with frontmatter metadata and template body
type Document struct {
	Metadata Metadata
	Body     string
}

// Metadata holds configuration from YAML frontmatter
type Metadata struct {
	// Name is the prompt identifier
	Name string `yaml:"name"`

	// Description explains what the prompt does
	Description string `yaml:"description"`

	// Version for tracking prompt evolution; recorded in the run ledger
	Version string `yaml:"version"`

	// Temperature overrides the configured model temperature
	Temperature *float64 `yaml:"temperature,omitempty"`

	// MaxTokens overrides the configured initial token budget
	MaxTokens *int `yaml:"max_tokens,omitempty"`

	// Type distinguishes system vs user prompts
	Type string `yaml:"type,omitempty"`

	// Variables lists expected template placeholders
	Variables []string `yaml:"variables,omitempty"`
}

// ParseFrontmatter extracts YAML frontmatter and body from a prompt document
// Expected format:
//
//	---
//	name: "fix"
//	temperature: 0.2
//	---
//	Prompt body with {{placeholders}}
func ParseFrontmatter(content string) (*Document, error) {
	trimmed := strings.TrimLeft(content, " \t\r\n")
	if !strings.HasPrefix(trimmed, "---") {
		return &Document{Body: strings.TrimSpace(content)}, nil
	}

	parts := strings.SplitN(trimmed, "---", 3)
	if len(parts) < 3 {
		return nil, errors.New("unterminated frontmatter")
	}

	var metadata Metadata
	if fm := strings.TrimSpace(parts[1]); fm != "" {
		if err := yaml.Unmarshal([]byte(fm), &metadata); err != nil {
			return nil, errors.Wrap(err, "failed to parse frontmatter YAML")
		}
	}

	if err := validateMetadata(&metadata); err != nil {
		return nil, errors.Wrap(err, "invalid frontmatter")
	}

	return &Document{
		Metadata: metadata,
		Body:     strings.TrimSpace(parts[2]),
	}, nil
}

func validateMetadata(m *Metadata) error {
	if m.Temperature != nil {
		if *m.Temperature < 0.0 || *m.Temperature > 2.0 {
			return errors.Newf("temperature must be between 0.0 and 2.0, got %f", *m.Temperature)
		}
	}

	if m.MaxTokens != nil {
		if *m.MaxTokens < 1 {
			return errors.Newf("max_tokens must be positive, got %d", *m.MaxTokens)
		}
	}

	return nil
}

// GetTemperature returns the temperature specified in metadata, or fallback if not set
func (d *Document) GetTemperature(fallback float64) float64 {
	if d.Metadata.Temperature != nil {
		return *d.Metadata.Temperature
	}
	return fallback
}

// GetMaxTokens returns the max tokens specified in metadata, or fallback if not set
func (d *Document) GetMaxTokens(fallback int) int {
	if d.Metadata.MaxTokens != nil {
		return *d.Metadata.MaxTokens
	}
	return fallback
}
