package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"voxelcraft.ai/gametest/internal/config"
	"voxelcraft.ai/gametest/internal/gametest/registry"
	"voxelcraft.ai/gametest/internal/harness"
	"voxelcraft.ai/gametest/internal/host/catalogs"
	"voxelcraft.ai/gametest/internal/protocol"
	"voxelcraft.ai/gametest/internal/replay"
)

func main() {
	var (
		eventsDir = flag.String("events", "./data/runs", "dir containing runs-*.jsonl.zst")
		suite     = flag.String("suite", "", "only report runs of this suite")
		verify    = flag.Bool("verify", false, "re-run every finished run and compare status, tick and world digest")
		cfgPath   = flag.String("config", "./configs/harness.yaml", "harness config the runs were recorded with (for -verify; empty for defaults)")
		configDir = flag.String("configs", "", "catalog directory (overrides configs_dir)")
		scenarios = flag.String("scenarios", "", "comma-separated scenario directories (overrides scenario_dirs)")
		schema    = flag.String("schema", "", "scenario schema (overrides schema_path)")
	)
	flag.Parse()

	l, err := replay.Read(*eventsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	if l.Files == 0 {
		fmt.Fprintln(os.Stderr, "no run files found in", *eventsDir)
		os.Exit(1)
	}

	finished := l.Finished(*suite)
	for _, r := range finished {
		f := r.Finished
		line := fmt.Sprintf("%s %s:%s rot=%d %s tick=%d steps=%d", f.RunID, f.Suite, f.Name, f.Rotation, f.Status, f.Tick, r.Steps)
		if f.Status != protocol.StatusPassed {
			line += fmt.Sprintf(" code=%s reason=%q", f.Code, f.Reason)
		}
		fmt.Println(line)
	}
	fmt.Printf("runs=%d unfinished=%d batches=%d files=%d\n", len(finished), l.Unfinished(), l.Batches, l.Files)

	if !*verify {
		return
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil && !(errors.Is(err, os.ErrNotExist) && !isSet("config")) {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	if err != nil {
		cfg, _ = config.Load("")
	}
	if isSet("configs") {
		cfg.ConfigsDir = *configDir
	}
	if isSet("scenarios") {
		cfg.ScenarioDirs = strings.Split(*scenarios, ",")
	}
	if isSet("schema") {
		cfg.SchemaPath = *schema
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	cats, err := catalogs.Load(cfg.ConfigsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(2)
	}
	reg := registry.New()
	if err := harness.LoadScenarios(cfg, reg, nil); err != nil {
		fmt.Fprintln(os.Stderr, "load scenarios:", err)
		os.Exit(2)
	}

	checked, err := replay.Verify(context.Background(), harness.NewDriver(cfg, reg, cats, nil, nil), finished)
	if err != nil {
		fmt.Fprintln(os.Stderr, "verify:", err)
		os.Exit(1)
	}
	fmt.Printf("verify ok: checked=%d runs\n", checked)
}

func isSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
