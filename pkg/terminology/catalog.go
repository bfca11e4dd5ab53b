package terminology

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Disease is one catalog entry: a canonical name, its ICD-10 code and the
// alternative spellings the model tends to use.
type Disease struct {
	Name    string   `yaml:"name" json:"name"`
	ICD10   string   `yaml:"icd10" json:"icd10"`
	Aliases []string `yaml:"aliases" json:"aliases,omitempty"`
}

type Catalog struct {
	Diseases []Disease `yaml:"diseases" json:"diseases"`

	index map[string]Disease
}

// Load reads a YAML catalog. An empty path yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), fmt.Errorf("read terminology catalog: %w", err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return nil, fmt.Errorf("parse terminology catalog: %w", err)
	}
	if len(cat.Diseases) == 0 {
		return nil, fmt.Errorf("terminology catalog %s is empty", path)
	}
	cat.buildIndex()
	return &cat, nil
}

func (c *Catalog) buildIndex() {
	c.index = make(map[string]Disease, len(c.Diseases)*2)
	for _, d := range c.Diseases {
		if d.ICD10 == "" {
			continue
		}
		c.index[normalizeName(d.Name)] = d
		for _, alias := range d.Aliases {
			c.index[normalizeName(alias)] = d
		}
	}
}

// CodeFor returns the ICD-10 code registered for a condition name.
func (c *Catalog) CodeFor(name string) (string, bool) {
	if c == nil || c.index == nil {
		return "", false
	}
	d, ok := c.index[normalizeName(name)]
	if !ok {
		return "", false
	}
	return d.ICD10, true
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "ё", "е")
	return strings.Join(strings.Fields(s), " ")
}

func DefaultCatalog() *Catalog {
	cat := &Catalog{Diseases: []Disease{
		{Name: "анемия", ICD10: "D64.9", Aliases: []string{"малокровие", "anemia"}},
		{Name: "железодефицитная анемия", ICD10: "D50.9"},
		{Name: "сахарный диабет 2 типа", ICD10: "E11.9", Aliases: []string{"диабет 2 типа"}},
		{Name: "гипергликемия", ICD10: "R73.9"},
		{Name: "гипертония", ICD10: "I10", Aliases: []string{"артериальная гипертензия", "гипертоническая болезнь"}},
		{Name: "гиперхолестеринемия", ICD10: "E78.0"},
		{Name: "гипотиреоз", ICD10: "E03.9"},
		{Name: "дефицит витамина d", ICD10: "E55.9"},
		{Name: "дефицит витамина b12", ICD10: "D51.9"},
		{Name: "воспалительный процесс", ICD10: "R68.8", Aliases: []string{"воспаление"}},
		{Name: "лейкоцитоз", ICD10: "D72.8"},
		{Name: "пневмония", ICD10: "J18.9"},
		{Name: "гастрит", ICD10: "K29.7"},
	}}
	cat.buildIndex()
	return cat
}
