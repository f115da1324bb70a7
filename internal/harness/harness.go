// Package harness builds the registry, host factory and driver from a
// harness config. The runner and replay verification both go through it so
// a recorded run is re-executed against the same world and defaults.
package harness

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelcraft.ai/gametest/internal/config"
	"voxelcraft.ai/gametest/internal/gametest/registry"
	"voxelcraft.ai/gametest/internal/gametest/runner"
	"voxelcraft.ai/gametest/internal/gametest/scenario"
	"voxelcraft.ai/gametest/internal/gametest/script"
	"voxelcraft.ai/gametest/internal/host"
	"voxelcraft.ai/gametest/internal/host/catalogs"
	"voxelcraft.ai/gametest/internal/host/memworld"
)

// LoadScenarios registers every *.js and *.yaml test under cfg.ScenarioDirs.
// Errors from all files are joined; whatever loaded cleanly stays registered.
// logger receives script console output and may be nil.
func LoadScenarios(cfg config.Config, reg *registry.Registry, logger *log.Logger) error {
	js := &script.Loader{
		Registry:        reg,
		DefaultMaxTicks: cfg.DefaultMaxTicks,
		CallTimeout:     cfg.CallTimeout(),
		Logger:          logger,
	}
	yl := &scenario.Loader{Registry: reg, DefaultMaxTicks: cfg.DefaultMaxTicks}
	if cfg.SchemaPath != "" {
		s, err := compileSchema(cfg.SchemaPath)
		if err != nil {
			return err
		}
		yl.Schema = s
	}

	var errs []error
	for _, dir := range cfg.ScenarioDirs {
		if _, err := js.LoadDir(dir); err != nil {
			errs = append(errs, err)
		}
		if _, err := yl.LoadDir(dir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func compileSchema(path string) (*jsonschema.Schema, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("scenario schema: %w", err)
	}
	return scenario.CompileSchema(path)
}

func HostFactory(cfg config.Config, cats *catalogs.Catalogs) host.Factory {
	return memworld.Factory(memworld.WorldConfig{
		BoundaryR:  cfg.World.BoundaryR,
		Height:     cfg.World.Height,
		FloorBlock: cfg.World.FloorBlock,
	}, cats)
}

func Origin(cfg config.Config) host.Vec3i {
	return host.Vec3i{X: cfg.Origin[0], Y: cfg.Origin[1], Z: cfg.Origin[2]}
}

// NewDriver returns a driver over reg whose hosts follow cfg.World.
func NewDriver(cfg config.Config, reg *registry.Registry, cats *catalogs.Catalogs, sink runner.Sink, logger *log.Logger) *runner.Driver {
	return &runner.Driver{
		Registry: reg,
		NewHost:  HostFactory(cfg, cats),
		Sink:     sink,
		Logger:   logger,
		Origin:   Origin(cfg),
	}
}
