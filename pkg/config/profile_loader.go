package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EntityProfile is a per-legal-entity configuration profile. Each entity
// an engine instance posts for can override the shared rulebook and
// reference data and restrict the ledgers it writes to.
type EntityProfile struct {
	Name         string       `yaml:"name" json:"name"`
	Code         string       `yaml:"code" json:"code"`
	BaseCurrency string       `yaml:"base_currency" json:"base_currency"`
	RulebookPath string       `yaml:"rulebook_path,omitempty" json:"rulebook_path,omitempty"`
	RefDataPath  string       `yaml:"refdata_path,omitempty" json:"refdata_path,omitempty"`
	Ledgers      []string     `yaml:"ledgers" json:"ledgers"`
	Export       ExportConfig `yaml:"export" json:"export"`
}

// ExportConfig controls the downstream export of posted journal lines.
type ExportConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
	Target    string `yaml:"target,omitempty" json:"target,omitempty"`
}

// LoadProfile loads an entity profile YAML by entity code.
// It searches the profiles directory for profile_<code>.yaml.
func LoadProfile(profilesDir, code string) (*EntityProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	var profile EntityProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}

	if profile.Code == "" {
		profile.Code = code
	}

	return &profile, nil
}

// LoadAllProfiles loads all profile_*.yaml files from the profiles directory.
func LoadAllProfiles(profilesDir string) (map[string]*EntityProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*EntityProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile EntityProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Code == "" {
			// Extract code from filename: profile_emea.yaml -> emea
			base := filepath.Base(path)
			profile.Code = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}

		profiles[profile.Code] = &profile
	}

	return profiles, nil
}

// PostsToLedger reports whether the entity posts to the given ledger.
// An empty Ledgers list places no restriction.
func (p *EntityProfile) PostsToLedger(ledger string) bool {
	if len(p.Ledgers) == 0 {
		return true
	}
	for _, l := range p.Ledgers {
		if l == ledger {
			return true
		}
	}
	return false
}
