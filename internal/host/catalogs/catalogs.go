package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Catalogs struct {
	Blocks     BlockCatalog
	Entities   EntityCatalog
	Structures StructureCatalog
}

type BlockCatalog struct {
	Palette       []string          // index -> block id
	Index         map[string]uint16 // block id -> index
	Defs          map[string]BlockDef
	DefsDigest    string
	PaletteDigest string
}

type BlockDef struct {
	ID    string `json:"id"`
	Solid bool   `json:"solid"`
	// TogglesTo is the block this one becomes when a player interacts with it.
	TogglesTo string `json:"toggles_to,omitempty"`
	// ResetTicks reverts a toggled block after this many ticks (buttons).
	ResetTicks int `json:"reset_ticks,omitempty"`
}

type EntityCatalog struct {
	Defs   map[string]EntityDef
	Digest string
}

type EntityDef struct {
	ID    string `json:"id"`
	Falls bool   `json:"falls"`
	// Speed is blocks moved per tick while walking; zero means the entity never moves.
	Speed int `json:"speed"`
}

type StructureCatalog struct {
	ByID   map[string]StructureDef
	Digest string
}

type StructureDef struct {
	ID     string        `json:"id"`
	Size   [3]int        `json:"size"`
	Blocks []StructBlock `json:"blocks"`
}

type StructBlock struct {
	Pos   [3]int `json:"pos"`
	Block string `json:"block"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadBlocks(filepath.Join(configDir, "blocks.json"), &c.Blocks); err != nil {
		return nil, err
	}
	if err := loadEntities(filepath.Join(configDir, "entities.json"), &c.Entities); err != nil {
		return nil, err
	}
	if err := loadStructures(filepath.Join(configDir, "structures"), &c.Structures); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalogs) validate() error {
	for _, d := range c.Blocks.Defs {
		if d.TogglesTo == "" {
			continue
		}
		if _, ok := c.Blocks.Defs[d.TogglesTo]; !ok {
			return fmt.Errorf("blocks.json: %s toggles to unknown block %s", d.ID, d.TogglesTo)
		}
	}
	for _, s := range c.Structures.ByID {
		for _, b := range s.Blocks {
			if _, ok := c.Blocks.Defs[b.Block]; !ok {
				return fmt.Errorf("structure %s: unknown block %s", s.ID, b.Block)
			}
			for i := 0; i < 3; i++ {
				if b.Pos[i] < 0 || b.Pos[i] >= s.Size[i] {
					return fmt.Errorf("structure %s: block %v outside size %v", s.ID, b.Pos, s.Size)
				}
			}
		}
	}
	return nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBlocks(path string, out *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("blocks.json: empty id")
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// AIR is always palette id 0.
	if _, ok := out.Defs["AIR"]; !ok {
		return fmt.Errorf("blocks.json: missing AIR")
	}
	ids = append([]string{"AIR"}, filterOut(ids, "AIR")...)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadEntities(path string, out *EntityCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []EntityDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("entities.json: %w", err)
	}
	out.Defs = map[string]EntityDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("entities.json: empty id")
		}
		if d.Speed < 0 {
			return fmt.Errorf("entities.json: %s: negative speed", d.ID)
		}
		out.Defs[d.ID] = d
	}
	return nil
}

func loadStructures(dir string, out *StructureCatalog) error {
	out.ByID = map[string]StructureDef{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		// No structures directory means every test runs on an empty fixture.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var concat bytes.Buffer
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		var sd StructureDef
		if err := json.Unmarshal(b, &sd); err != nil {
			return fmt.Errorf("structure %s: %w", filepath.Base(p), err)
		}
		if sd.ID == "" {
			return fmt.Errorf("structure %s: missing id", filepath.Base(p))
		}
		if _, dup := out.ByID[sd.ID]; dup {
			return fmt.Errorf("structure %s: duplicate id %s", filepath.Base(p), sd.ID)
		}
		out.ByID[sd.ID] = sd
	}
	out.Digest = sha256Hex(concat.Bytes())
	return nil
}

func filterOut(in []string, remove string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == remove {
			continue
		}
		out = append(out, s)
	}
	return out
}
