package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RuleRow is one persisted rule as written in a rule file. Kinds are kept
// raw here and parsed by the rules package.
type RuleRow struct {
	Type    string `yaml:"type" json:"type"`
	File    string `yaml:"file" json:"file"`
	Search  string `yaml:"search" json:"search"`
	Content string `yaml:"content" json:"content"`
}

// RuleColumns is the column layout posted by the admin repeater form: one
// array per field, aligned by index.
type RuleColumns struct {
	Type    []string `yaml:"type" json:"type"`
	File    []string `yaml:"file,omitempty" json:"file,omitempty"`
	Search  []string `yaml:"search,omitempty" json:"search,omitempty"`
	Content []string `yaml:"content,omitempty" json:"content,omitempty"`
}

// RuleList is one rule list in a rule file, written either as a sequence
// of rows or as RuleColumns. Exactly one of the fields is set after decoding.
type RuleList struct {
	Rows    []RuleRow
	Columns *RuleColumns
}

// UnmarshalYAML accepts both layouts.
func (l *RuleList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		return node.Decode(&l.Rows)
	case yaml.MappingNode:
		var cols RuleColumns
		if err := node.Decode(&cols); err != nil {
			return err
		}
		l.Columns = &cols
		return nil
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil
		}
	}
	return fmt.Errorf("line %d: rule list must be a sequence or a column mapping", node.Line)
}

// MarshalYAML writes the list in the layout it was read in. Rows are used
// when nothing is set.
func (l RuleList) MarshalYAML() (any, error) {
	if l.Columns != nil {
		return l.Columns, nil
	}
	if l.Rows == nil {
		return []RuleRow{}, nil
	}
	return l.Rows, nil
}

// Len returns the number of rules in the list.
func (l RuleList) Len() int {
	if l.Columns != nil {
		return len(l.Columns.Type)
	}
	return len(l.Rows)
}

// RulesFile is the on-disk rule configuration.
type RulesFile struct {
	Global    RuleList            `yaml:"global" json:"global"`
	Items     map[string]RuleList `yaml:"items" json:"items"`
	Allowlist []string            `yaml:"allowlist" json:"allowlist"`
}

// LoadRulesFile reads and validates a YAML or JSON rule file.
func LoadRulesFile(path string) (*RulesFile, error) {
	if path == "" {
		return &RulesFile{Items: map[string]RuleList{}}, nil
	}
	// #nosec G304 -- rule file path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRulesFile(data)
}

// ParseRulesFile validates data against the embedded schema and decodes it.
func ParseRulesFile(data []byte) (*RulesFile, error) {
	if err := validateDocument("rules", data); err != nil {
		return nil, err
	}
	var cfg RulesFile
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse rules file: %w", err)
		}
	}
	if cfg.Items == nil {
		cfg.Items = map[string]RuleList{}
	}
	return &cfg, nil
}
