package catalogs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_Configs(t *testing.T) {
	cats, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	if cats.Blocks.Palette[0] != "AIR" {
		t.Fatalf("palette[0]=%q want AIR", cats.Blocks.Palette[0])
	}
	if got := cats.Blocks.Index["AIR"]; got != 0 {
		t.Fatalf("AIR index=%d", got)
	}
	if len(cats.Blocks.Palette) != len(cats.Blocks.Defs) {
		t.Fatalf("palette/defs size mismatch: %d vs %d", len(cats.Blocks.Palette), len(cats.Blocks.Defs))
	}
	if _, ok := cats.Entities.Defs["zombie"]; !ok {
		t.Fatalf("expected zombie entity def")
	}
	if _, ok := cats.Structures.ByID["platform_5x5"]; !ok {
		t.Fatalf("expected platform_5x5 structure")
	}
	if cats.Blocks.PaletteDigest == "" || cats.Structures.Digest == "" || cats.Entities.Digest == "" {
		t.Fatalf("expected digests to be set")
	}
}

func writeCatalogDir(t *testing.T, blocks, entities string, structures map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "blocks.json"), []byte(blocks), 0o644); err != nil {
		t.Fatalf("write blocks: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "entities.json"), []byte(entities), 0o644); err != nil {
		t.Fatalf("write entities: %v", err)
	}
	if len(structures) > 0 {
		sdir := filepath.Join(dir, "structures")
		if err := os.MkdirAll(sdir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		for name, body := range structures {
			if err := os.WriteFile(filepath.Join(sdir, name), []byte(body), 0o644); err != nil {
				t.Fatalf("write structure: %v", err)
			}
		}
	}
	return dir
}

func TestLoad_MissingAir(t *testing.T) {
	dir := writeCatalogDir(t, `[{"id":"STONE","solid":true}]`, `[]`, nil)
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "missing AIR") {
		t.Fatalf("expected missing AIR error, got %v", err)
	}
}

func TestLoad_NoStructuresDirIsEmpty(t *testing.T) {
	dir := writeCatalogDir(t, `[{"id":"AIR"}]`, `[{"id":"zombie","falls":true,"speed":1}]`, nil)
	cats, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cats.Structures.ByID) != 0 {
		t.Fatalf("expected no structures")
	}
}

func TestLoad_StructureUnknownBlock(t *testing.T) {
	dir := writeCatalogDir(t, `[{"id":"AIR"}]`, `[]`, map[string]string{
		"bad.json": `{"id":"bad","size":[1,1,1],"blocks":[{"pos":[0,0,0],"block":"NOPE"}]}`,
	})
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "unknown block NOPE") {
		t.Fatalf("expected unknown block error, got %v", err)
	}
}

func TestLoad_StructureBlockOutsideSize(t *testing.T) {
	dir := writeCatalogDir(t, `[{"id":"AIR"},{"id":"STONE","solid":true}]`, `[]`, map[string]string{
		"big.json": `{"id":"big","size":[1,1,1],"blocks":[{"pos":[1,0,0],"block":"STONE"}]}`,
	})
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "outside size") {
		t.Fatalf("expected outside size error, got %v", err)
	}
}

func TestLoad_ToggleTargetMustExist(t *testing.T) {
	dir := writeCatalogDir(t, `[{"id":"AIR"},{"id":"BUTTON","toggles_to":"GONE"}]`, `[]`, nil)
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "unknown block GONE") {
		t.Fatalf("expected toggle target error, got %v", err)
	}
}
