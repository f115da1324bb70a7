package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "harness.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultMaxTicks != 100 || cfg.World.Height != 64 || len(cfg.ScenarioDirs) != 1 {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.CallTimeout() != time.Second {
		t.Fatalf("call timeout=%v", cfg.CallTimeout())
	}
	if cfg.IndexPath() != filepath.Join("data", "index", "runs.sqlite") {
		t.Fatalf("index path=%s", cfg.IndexPath())
	}
}

func TestLoad_RepoHarnessFile(t *testing.T) {
	cfg, err := Load("../../configs/harness.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ConfigsDir != "./configs" || cfg.SchemaPath == "" || cfg.Suites != nil {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoad_NormalizesValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
scenario_dirs: [" a ", "", b]
default_max_ticks: -5
suites: [doors, " "]
tags: [" smoke "]
name: " door_* "
world:
  height: 0
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if strings.Join(cfg.ScenarioDirs, ",") != "a,b" {
		t.Fatalf("scenario dirs=%q", cfg.ScenarioDirs)
	}
	if strings.Join(cfg.Suites, ",") != "doors" || strings.Join(cfg.Tags, ",") != "smoke" || cfg.Name != "door_*" {
		t.Fatalf("selection: %+v", cfg)
	}
	if cfg.DefaultMaxTicks != 100 || cfg.World.Height != 64 || cfg.World.BoundaryR != 256 {
		t.Fatalf("normalized: %+v", cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"no dirs":     "scenario_dirs: []\n",
		"origin y":    "origin: [0, 70, 0]\n",
		"origin x":    "origin: [300, 0, 0]\n",
		"bad glob":    "name: \"[\"\n",
		"same addr":   "observer_addr: \":9000\"\nmetrics_addr: \":9000\"\n",
		"unparseable": "origin: {x: 1}\n",
	}
	for label, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil || !strings.Contains(err.Error(), "harness.yaml") {
			t.Fatalf("%s: expected harness.yaml error, got %v", label, err)
		}
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Fatalf("missing file: %v", err)
	}
}
