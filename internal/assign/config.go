// Package assign attributes transactions to members, automatically via
// particulars matching and manually via back-office operations.
package assign

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed matcher.yaml
var embeddedConfig []byte

// Config tunes the auto-matcher. Load it from the embedded defaults or a
// YAML file; both paths validate every invariant.
type Config struct {
	// AcceptThreshold is the minimum confidence for committing an
	// assignment without review.
	AcceptThreshold float64 `yaml:"accept_threshold"`

	// DraftThreshold is the minimum confidence for proposing a draft.
	// Scores below it leave the transaction unassigned.
	DraftThreshold float64 `yaml:"draft_threshold"`

	// NameTokenWeight caps the contribution of name-token overlap.
	// Identifier matches (phone, member number) always score 1.0.
	NameTokenWeight float64 `yaml:"name_token_weight"`

	// PartialPhoneWeight is the score contribution of a masked-phone
	// last-digits match.
	PartialPhoneWeight float64 `yaml:"partial_phone_weight"`

	// MaxDraftCandidates bounds the member IDs stored on a draft.
	MaxDraftCandidates int `yaml:"max_draft_candidates"`

	// StopWords are name tokens too common to carry signal.
	StopWords []string `yaml:"stop_words"`
}

// LoadEmbedded returns the built-in matcher configuration.
func LoadEmbedded() (*Config, error) {
	return parseConfig(embeddedConfig)
}

// LoadFromFile loads matcher configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read matcher config: %w", err)
	}
	cfg, err := parseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("invalid matcher config %s: %w", path, err)
	}
	return cfg, nil
}

func parseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse matcher config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every configuration invariant.
func (c *Config) Validate() error {
	if c.AcceptThreshold <= 0 || c.AcceptThreshold > 1 {
		return fmt.Errorf("accept_threshold must be in (0,1], got %f", c.AcceptThreshold)
	}
	if c.DraftThreshold <= 0 || c.DraftThreshold > 1 {
		return fmt.Errorf("draft_threshold must be in (0,1], got %f", c.DraftThreshold)
	}
	if c.DraftThreshold > c.AcceptThreshold {
		return fmt.Errorf("draft_threshold %f cannot exceed accept_threshold %f", c.DraftThreshold, c.AcceptThreshold)
	}
	if c.NameTokenWeight <= 0 || c.NameTokenWeight > 1 {
		return fmt.Errorf("name_token_weight must be in (0,1], got %f", c.NameTokenWeight)
	}
	if c.PartialPhoneWeight < 0 || c.PartialPhoneWeight > 1 {
		return fmt.Errorf("partial_phone_weight must be in [0,1], got %f", c.PartialPhoneWeight)
	}
	if c.MaxDraftCandidates < 1 {
		return fmt.Errorf("max_draft_candidates must be at least 1, got %d", c.MaxDraftCandidates)
	}
	return nil
}
