package refdata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// refdataFile is the on-disk shape of a reference data document.
type refdataFile struct {
	Periods   []Period          `yaml:"periods"`
	Accounts  []Account         `yaml:"accounts"`
	Templates map[string]string `yaml:"narrative_templates"`
}

// LoadFile reads a reference data YAML document (period calendar, chart of
// accounts, narrative templates) into a Memory source.
func LoadFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read refdata %q: %w", path, err)
	}

	var doc refdataFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse refdata %q: %w", path, err)
	}

	for i, p := range doc.Periods {
		if p.ID == "" {
			return nil, fmt.Errorf("refdata %q: period %d missing id", path, i)
		}
		if p.End.Before(p.Start) {
			return nil, fmt.Errorf("refdata %q: period %s end precedes start", path, p.ID)
		}
	}
	for i, a := range doc.Accounts {
		if a.Code == "" {
			return nil, fmt.Errorf("refdata %q: account %d missing code", path, i)
		}
	}

	return NewMemory(doc.Periods, doc.Accounts, doc.Templates), nil
}
