// Package config loads harness.yaml.
package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// ConfigsDir holds blocks.json, entities.json and structures/.
	ConfigsDir string `yaml:"configs_dir"`
	// ScenarioDirs are scanned for *.js, *.yaml and *.yml test files.
	ScenarioDirs []string `yaml:"scenario_dirs"`
	// SchemaPath validates YAML scenarios; empty skips validation.
	SchemaPath string `yaml:"schema_path"`
	DataDir    string `yaml:"data_dir"`

	DefaultMaxTicks int `yaml:"default_max_ticks"`
	// CallTimeoutMs bounds a single script callback.
	CallTimeoutMs int    `yaml:"call_timeout_ms"`
	Origin        [3]int `yaml:"origin"`

	World WorldSpec `yaml:"world"`

	Suites []string `yaml:"suites"`
	Tags   []string `yaml:"tags"`
	// Name is a glob over test names.
	Name string `yaml:"name"`

	DisableLog   bool   `yaml:"disable_log"`
	DisableDB    bool   `yaml:"disable_db"`
	ObserverAddr string `yaml:"observer_addr"`
	MetricsAddr  string `yaml:"metrics_addr"`
}

type WorldSpec struct {
	BoundaryR  int    `yaml:"boundary_r"`
	Height     int    `yaml:"height"`
	FloorBlock string `yaml:"floor_block"`
}

func Load(file string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(file) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("harness.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("harness.yaml: %w", err)
	}
	return cfg, nil
}

func Defaults() Config {
	return Config{
		ConfigsDir:      "./configs",
		ScenarioDirs:    []string{"./configs/scenarios"},
		SchemaPath:      "./schemas/scenario.schema.json",
		DataDir:         "./data",
		DefaultMaxTicks: 100,
		CallTimeoutMs:   1000,
		Origin:          [3]int{0, 0, 0},
		World: WorldSpec{
			BoundaryR: 256,
			Height:    64,
		},
	}
}

// Normalize fills zero values and cleans list entries.
func (c *Config) Normalize() {
	if c == nil {
		return
	}
	d := Defaults()
	if strings.TrimSpace(c.ConfigsDir) == "" {
		c.ConfigsDir = d.ConfigsDir
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = d.DataDir
	}
	if c.DefaultMaxTicks <= 0 {
		c.DefaultMaxTicks = d.DefaultMaxTicks
	}
	if c.CallTimeoutMs <= 0 {
		c.CallTimeoutMs = d.CallTimeoutMs
	}
	if c.World.BoundaryR <= 0 {
		c.World.BoundaryR = d.World.BoundaryR
	}
	if c.World.Height <= 0 {
		c.World.Height = d.World.Height
	}
	c.ScenarioDirs = cleanList(c.ScenarioDirs)
	c.Suites = cleanList(c.Suites)
	c.Tags = cleanList(c.Tags)
	c.Name = strings.TrimSpace(c.Name)
}

func (c Config) Validate() error {
	c.Normalize()
	if len(c.ScenarioDirs) == 0 {
		return fmt.Errorf("scenario_dirs must not be empty")
	}
	if c.Origin[1] < 0 || c.Origin[1] >= c.World.Height {
		return fmt.Errorf("origin y must be in [0, world.height)")
	}
	if abs(c.Origin[0]) > c.World.BoundaryR || abs(c.Origin[2]) > c.World.BoundaryR {
		return fmt.Errorf("origin must lie within world.boundary_r")
	}
	if c.Name != "" {
		if _, err := path.Match(c.Name, ""); err != nil {
			return fmt.Errorf("name: %w", err)
		}
	}
	if c.ObserverAddr != "" && c.ObserverAddr == c.MetricsAddr {
		return fmt.Errorf("observer_addr and metrics_addr must differ")
	}
	return nil
}

func (c Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutMs) * time.Millisecond
}

// IndexPath is where the run index lives under DataDir.
func (c Config) IndexPath() string {
	return filepath.Join(c.DataDir, "index", "runs.sqlite")
}

func cleanList(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
