// Package dlp masks patient identifiers in document text before it leaves
// the platform for the external model.
package dlp

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Rule struct {
	Name    string `yaml:"name" json:"name"`
	Type    string `yaml:"type" json:"type"`
	Pattern string `yaml:"pattern" json:"pattern"`
	Mask    string `yaml:"mask" json:"mask"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
}

type RulesConfig struct {
	Rules []Rule `yaml:"rules" json:"rules"`
}

// LoadRules reads a YAML rule file. An empty path yields DefaultRules.
func LoadRules(path string) (RulesConfig, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultRules(), fmt.Errorf("read redaction rules: %w", err)
	}

	var cfg RulesConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return RulesConfig{}, fmt.Errorf("parse redaction rules: %w", err)
	}
	if len(cfg.Rules) == 0 {
		return RulesConfig{}, errors.New("no redaction rules configured")
	}
	return cfg, nil
}

// DefaultRules covers Russian personal identifiers. Rules run in order, so
// longer digit runs come before the shorter patterns they contain.
func DefaultRules() RulesConfig {
	return RulesConfig{Rules: []Rule{
		{Name: "Email", Type: "email", Pattern: `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`, Mask: "[email]", Enabled: true},
		{Name: "SNILS", Type: "snils", Pattern: `\b\d{3}-\d{3}-\d{3}[ -]\d{2}\b`, Mask: "[СНИЛС]", Enabled: true},
		{Name: "OMS policy", Type: "oms_policy", Pattern: `\b\d{16}\b`, Mask: "[полис ОМС]", Enabled: true},
		{Name: "Phone", Type: "phone", Pattern: `(?:\+7|\b8)[\s(-]*\d{3}[\s)-]*\d{3}[\s-]*\d{2}[\s-]*\d{2}\b`, Mask: "[телефон]", Enabled: true},
		{Name: "Passport", Type: "passport", Pattern: `\b\d{2}\s?\d{2}\s\d{6}\b`, Mask: "[паспорт]", Enabled: true},
		{Name: "Birth date", Type: "birth_date", Pattern: `\b\d{2}\.\d{2}\.(?:19|20)\d{2}\b`, Mask: "[дата]", Enabled: false},
	}}
}
