package sentiment

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v2"

	"nflpicks/engine/internal/models"
)

//go:embed default_policy.yaml
var defaultPolicyYAML []byte

// Policy holds the tunable keyword lists and scoring constants used by the Analyzer
type Policy struct {
	PickKeywords []string `yaml:"pick_keywords"`

	ConfidenceKeywords struct {
		High   []string `yaml:"high"`
		Medium []string `yaml:"medium"`
		Low    []string `yaml:"low"`
	} `yaml:"confidence_keywords"`

	Weights struct {
		CommentWeight     float64 `yaml:"comment_weight"`
		ApprovalThreshold float64 `yaml:"approval_threshold"`
		ApprovalBoost     float64 `yaml:"approval_boost"`
		SentimentDivisor  float64 `yaml:"sentiment_divisor"`
	} `yaml:"weights"`

	Popularity struct {
		DiversityBonus        float64 `yaml:"diversity_bonus"`
		HighConfidenceBonus   float64 `yaml:"high_confidence_bonus"`
		MediumConfidenceBonus float64 `yaml:"medium_confidence_bonus"`
	} `yaml:"popularity"`

	Tiers struct {
		HighRatio   float64 `yaml:"high_ratio"`
		MediumRatio float64 `yaml:"medium_ratio"`
	} `yaml:"tiers"`

	Context struct {
		Window      int `yaml:"window"`
		MaxSnippets int `yaml:"max_snippets"`
	} `yaml:"context"`

	Teams []models.Team `yaml:"teams"`

	// AmbiguousCodes are team codes that are also everyday words or units
	AmbiguousCodes []string `yaml:"ambiguous_codes"`
}

func (p *Policy) isAmbiguousCode(code string) bool {
	return slices.Contains(p.AmbiguousCodes, code)
}

// DefaultPolicy returns the embedded policy
func DefaultPolicy() *Policy {
	p, err := ParsePolicy(defaultPolicyYAML)
	if err != nil {
		// embedded file is part of the build
		panic(fmt.Sprintf("default sentiment policy: %v", err))
	}
	return p
}

// LoadPolicy reads a policy file, or returns the embedded default when path is empty
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sentiment policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a YAML policy and validates it
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse sentiment policy: %w", err)
	}
	if len(p.Teams) == 0 {
		p.Teams = models.NFLTeams
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that the policy can score posts
func (p *Policy) Validate() error {
	if len(p.PickKeywords) == 0 {
		return fmt.Errorf("sentiment policy: pick_keywords cannot be empty")
	}
	if p.Weights.SentimentDivisor <= 0 {
		return fmt.Errorf("sentiment policy: sentiment_divisor must be positive")
	}
	if p.Weights.ApprovalBoost < 1 {
		return fmt.Errorf("sentiment policy: approval_boost must be at least 1")
	}
	if p.Tiers.HighRatio < 0 || p.Tiers.HighRatio > 1 || p.Tiers.MediumRatio < 0 || p.Tiers.MediumRatio > 1 {
		return fmt.Errorf("sentiment policy: tier ratios must be within [0,1]")
	}
	for _, t := range p.Teams {
		if t.Name == "" {
			return fmt.Errorf("sentiment policy: team entry without a name")
		}
	}
	return nil
}
