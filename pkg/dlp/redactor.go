package dlp

import (
	"fmt"
	"regexp"

	"github.com/medtriage/platform/pkg/observability/metrics"
)

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

type Redactor struct {
	rules []compiledRule
}

func NewRedactor(cfg RulesConfig) (*Redactor, error) {
	var compiled []compiledRule
	for _, rule := range cfg.Rules {
		if !rule.Enabled {
			continue
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.Name, err)
		}
		compiled = append(compiled, compiledRule{rule: rule, re: re})
	}
	return &Redactor{rules: compiled}, nil
}

// Redact replaces every match of the enabled rules with the rule's mask and
// reports how many matches each identifier type had.
func (r *Redactor) Redact(text string) (string, map[string]int) {
	found := make(map[string]int)
	if r == nil {
		return text, found
	}
	for _, c := range r.rules {
		matches := c.re.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			continue
		}
		found[c.rule.Type] += len(matches)
		metrics.RedactedIdentifiers.WithLabelValues(c.rule.Type).Add(float64(len(matches)))
		text = c.re.ReplaceAllLiteralString(text, c.rule.Mask)
	}
	return text, found
}
