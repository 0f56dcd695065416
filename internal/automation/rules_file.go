package automation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/taskweave/taskweave/internal/core"
)

// RulesFile is the on-disk YAML schema for automation rules.
type RulesFile struct {
	Rules []*core.AutomationRule `yaml:"rules"`
}

// LoadRulesFile parses a YAML rules file and validates every rule.
func LoadRulesFile(path string) ([]*core.AutomationRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses YAML rule definitions.
func ParseRules(data []byte) ([]*core.AutomationRule, error) {
	var file RulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}
	for i, rule := range file.Rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.Label, err)
		}
	}
	return file.Rules, nil
}

// LoadInto loads a rules file and registers every rule, replacing rules
// that share an ID. Used by the serve command's hot reload.
func LoadInto(engine *Engine, path string) (int, error) {
	rules, err := LoadRulesFile(path)
	if err != nil {
		return 0, err
	}
	for _, rule := range rules {
		if _, err := engine.Register(rule); err != nil {
			return 0, err
		}
	}
	return len(rules), nil
}
