// Package engineconfig loads the editor-side settings that shape a
// running engine: sample rate and the fixed capacities of the framework
// packages (handoff ring size, smoother pool, MIDI-per-block limits,
// monitor taps). These are load-time choices; nothing under
// pkg/framework reads a config file directly.
package engineconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/modulardsp/synthgraph/pkg/dsp"
)

// Config is the on-disk shape of an engine configuration file.
type Config struct {
	SampleRate      float64 `yaml:"sample_rate"`
	MaxBlockSize    int     `yaml:"max_block_size"`
	SmootherCount   int     `yaml:"smoother_count"`
	HandoffCapacity int     `yaml:"handoff_capacity"`
	MonitorSlots    int     `yaml:"monitor_slots"`
}

// Default returns the configuration matching the framework packages'
// own built-in constants, used when no file is given.
func Default() Config {
	return Config{
		SampleRate:      dsp.SampleRate44k1,
		MaxBlockSize:    256,
		SmootherCount:   128,
		HandoffCapacity: 256,
		MonitorSlots:    3,
	}
}

// Load reads and parses a YAML configuration file, starting from
// Default() so a file only needs to mention the fields it overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("engineconfig: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("engineconfig: parsing %s: %w", path, err)
	}
	return cfg, nil
}
