package config

import (
	"encoding/json"
	"os"
)

// ProjectConfig is the optional per-project override file at
// <project_root>/.claude/config.json. Every field is optional; a zero
// value means "fall back to the compiled-in default".
type ProjectConfig struct {
	WSI struct {
		Max      int `json:"max,omitempty"`
		TTLTurns int `json:"ttl_turns,omitempty"`
	} `json:"wsi,omitempty"`
	Policy struct {
		Rules map[string]RuleConfig `json:"rules,omitempty"`
	} `json:"policy,omitempty"`
	Ingest struct {
		MaxAttempts   int    `json:"max_attempts,omitempty"`
		NonfatalRegex string `json:"nonfatal_regex,omitempty"`
	} `json:"ingest,omitempty"`
	Search struct {
		Weights      SearchWeights `json:"weights,omitempty"`
		OutcomeBonus OutcomeBonus  `json:"outcome_bonus,omitempty"`
	} `json:"search,omitempty"`
	Embedding struct {
		Model string `json:"model,omitempty"`
		Dim   int    `json:"dim,omitempty"`
	} `json:"embedding,omitempty"`
}

// LoadProjectConfig reads <project_root>/.claude/config.json. A missing
// file is not an error — it returns the zero-value ProjectConfig, which
// Merge treats as "use every default".
func LoadProjectConfig(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ProjectConfig{}, nil
		}
		return nil, err
	}

	var pc ProjectConfig
	if err := json.Unmarshal(data, &pc); err != nil {
		return nil, err
	}
	return &pc, nil
}

// Merge overlays non-zero project-level overrides onto a clone of the
// daemon config. The project layer never widens what's settable — it can
// only override the fields spec.md §6.4 names.
func (pc *ProjectConfig) Merge(base *Config) *Config {
	out := base.Clone()
	if pc == nil {
		return out
	}

	if pc.WSI.Max > 0 {
		out.WSI.Max = pc.WSI.Max
	}
	if pc.WSI.TTLTurns > 0 {
		out.WSI.TTLTurns = pc.WSI.TTLTurns
	}
	for id, rule := range pc.Policy.Rules {
		out.Policy.Rules[id] = rule
	}
	if pc.Ingest.MaxAttempts > 0 {
		out.Ingest.MaxAttempts = pc.Ingest.MaxAttempts
	}
	if pc.Ingest.NonfatalRegex != "" {
		out.Ingest.NonfatalRegex = pc.Ingest.NonfatalRegex
	}
	if pc.Search.Weights != (SearchWeights{}) {
		out.Search.Weights = pc.Search.Weights
	}
	if pc.Search.OutcomeBonus != (OutcomeBonus{}) {
		out.Search.OutcomeBonus = pc.Search.OutcomeBonus
	}
	if pc.Embedding.Model != "" {
		out.Embedding.Model = pc.Embedding.Model
	}
	if pc.Embedding.Dim > 0 {
		out.Embedding.Dim = pc.Embedding.Dim
	}
	return out
}
