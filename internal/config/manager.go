package config

import (
	"os"
	"sync"

	"gopkg.in/yaml.v2"
)

// CompanyOverrides holds the subset of Config a company may override —
// only the timekeeping knobs (geofence radius, rounding, auto-clockout
// threshold) are company-specific; infra config stays global.
type CompanyOverrides struct {
	Timekeeping TimekeepingConfig `yaml:"timekeeping"`
}

// CompanyConfigFile is the on-disk shape of the per-company overlay file.
type CompanyConfigFile struct {
	Companies map[string]CompanyOverrides `yaml:"companies"`
}

// Manager resolves the effective config for a given company by layering
// its overrides on top of the global config.
type Manager struct {
	globalConfig *Config
	companies    map[string]CompanyOverrides
	mu           sync.RWMutex
}

// NewManager loads the global config plus the per-company overlay file. A
// missing overlay file is not an error — every company then runs on the
// global defaults.
func NewManager(globalPath, companiesPath string) (*Manager, error) {
	global, err := LoadConfig(globalPath)
	if err != nil {
		return nil, err
	}
	return NewManagerFromConfig(global, companiesPath)
}

// NewManagerFromConfig builds a Manager over an already-loaded global
// config — used by main() so the process-wide config.Get() singleton and
// the per-company overlay share the same global values instead of
// re-reading the config file a second time. A missing overlay file is not
// an error; every company then runs on the global defaults.
func NewManagerFromConfig(global *Config, companiesPath string) (*Manager, error) {
	f, err := os.Open(companiesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manager{globalConfig: global, companies: make(map[string]CompanyOverrides)}, nil
		}
		return nil, err
	}
	defer f.Close()

	var cc CompanyConfigFile
	if err := yaml.NewDecoder(f).Decode(&cc); err != nil {
		return nil, err
	}

	return &Manager{
		globalConfig: global,
		companies:    cc.Companies,
	}, nil
}

// Get returns the effective Timekeeping config for a company: the global
// config with any per-company override applied field by field, so a
// company overriding only its rounding mode still inherits the global
// geofence radius.
func (m *Manager) Get(companyID string) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	effective := *m.globalConfig

	override, ok := m.companies[companyID]
	if !ok {
		return &effective
	}

	if override.Timekeeping.DefaultGeofenceRadiusMeters != 0 {
		effective.Timekeeping.DefaultGeofenceRadiusMeters = override.Timekeeping.DefaultGeofenceRadiusMeters
	}
	if override.Timekeeping.RoundingStepHours != 0 {
		effective.Timekeeping.RoundingStepHours = override.Timekeeping.RoundingStepHours
	}
	if override.Timekeeping.RoundingMode != "" {
		effective.Timekeeping.RoundingMode = override.Timekeeping.RoundingMode
	}
	if override.Timekeeping.AutoClockoutHours != 0 {
		effective.Timekeeping.AutoClockoutHours = override.Timekeeping.AutoClockoutHours
	}
	if override.Timekeeping.IdempotencyTTLHours != 0 {
		effective.Timekeeping.IdempotencyTTLHours = override.Timekeeping.IdempotencyTTLHours
	}

	return &effective
}
