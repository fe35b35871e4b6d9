// Package rules loads the static detection-rule catalogue.
package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rule is one named detection scenario. Immutable after load.
type Rule struct {
	ID       string            `yaml:"id" json:"id"`
	Name     string            `yaml:"name" json:"name"`
	SheetRef string            `yaml:"sheet_ref" json:"sheet_ref"`
	Enabled  bool              `yaml:"enabled" json:"enabled"`
	Params   map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}

// Catalogue is the full rule list in declaration order.
type Catalogue struct {
	Rules []Rule `yaml:"rules"`
}

// Load reads and validates a YAML rule catalogue. Rules keep their file
// order, which fixes report ordering for the whole run.
func Load(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule catalogue: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML rule catalogue from memory.
func Parse(data []byte) (*Catalogue, error) {
	var cat Catalogue
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse rule catalogue: %w", err)
	}

	seen := make(map[string]bool, len(cat.Rules))
	for i, r := range cat.Rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule %d: missing id", i)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("rule %d: duplicate id %q", i, r.ID)
		}
		seen[r.ID] = true
		if r.Enabled && r.SheetRef == "" {
			return nil, fmt.Errorf("rule %q: enabled but has no sheet_ref", r.ID)
		}
	}

	return &cat, nil
}

// Enabled returns the rules with the enabled flag set, in declaration order.
func (c *Catalogue) Enabled() []Rule {
	var out []Rule
	for _, r := range c.Rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the rule with the given id, whether or not it is enabled.
func (c *Catalogue) Find(id string) (Rule, bool) {
	for _, r := range c.Rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}
