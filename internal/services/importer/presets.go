package importer

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ternarybob/migro/internal/models"
)

// Preset is a named, reusable import configuration from presets.yaml.
// Schedule is an optional cron expression picked up by the scheduler.
type Preset struct {
	Origin        string `yaml:"origin"`
	Strategy      string `yaml:"strategy"`
	SourceRepo    string `yaml:"source_repo"`
	PageBudget    int    `yaml:"page_budget"`
	RequestDelay  string `yaml:"request_delay"`
	StrictClasses bool   `yaml:"strict_classes"`
	ClearExisting bool   `yaml:"clear_existing"`
	// Transform left unset in YAML falls through to the server default
	Transform *bool  `yaml:"transform"`
	Schedule  string `yaml:"schedule"`
}

// PresetFile is the top-level presets.yaml document
type PresetFile struct {
	Presets map[string]Preset `yaml:"presets"`
}

// LoadPresets reads named import presets from a YAML file. A missing
// file is not an error; presets are optional.
func LoadPresets(path string) (*PresetFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &PresetFile{Presets: map[string]Preset{}}, nil
		}
		return nil, fmt.Errorf("failed to read presets file %s: %w", path, err)
	}

	var file PresetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse presets file %s: %w", path, err)
	}
	if file.Presets == nil {
		file.Presets = map[string]Preset{}
	}

	for name, preset := range file.Presets {
		if preset.Origin == "" {
			return nil, fmt.Errorf("preset %q is missing an origin", name)
		}
		if preset.RequestDelay != "" {
			if _, err := time.ParseDuration(preset.RequestDelay); err != nil {
				return nil, fmt.Errorf("preset %q has an invalid request_delay: %w", name, err)
			}
		}
	}

	return &file, nil
}

// Names returns the preset names in stable order
func (f *PresetFile) Names() []string {
	names := make([]string, 0, len(f.Presets))
	for name := range f.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ImportConfig converts a preset into a runnable import configuration
func (p Preset) ImportConfig() models.ImportConfig {
	delay, _ := time.ParseDuration(p.RequestDelay)
	return models.ImportConfig{
		Origin:        p.Origin,
		Strategy:      models.FetchStrategy(p.Strategy),
		SourceRepo:    p.SourceRepo,
		PageBudget:    p.PageBudget,
		RequestDelay:  delay,
		StrictClasses: p.StrictClasses,
		ClearExisting: p.ClearExisting,
		Transform:     p.Transform,
	}
}
