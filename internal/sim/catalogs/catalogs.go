package catalogs

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"timbercraft.ai/internal/sim/world/logic/treescan"
)

//go:embed defaults/*.json
var defaultFS embed.FS

type Catalogs struct {
	Blocks BlockCatalog
	Items  ItemCatalog
}

type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string

	voxels []treescan.Voxel // by palette id
}

type BlockDef struct {
	ID     string `json:"id"`
	Kind   string `json:"kind,omitempty"` // "AIR","LOG","LEAF","STRUCTURE"; empty = classify by name
	LeafOf string `json:"leaf_of,omitempty"`
	Drops  string `json:"drops,omitempty"`
}

type ItemCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]ItemDef
	PaletteDigest string
	DefsDigest    string
}

type ItemDef struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"` // "TOOL","MATERIAL","BLOCK"
	Tool       string `json:"tool,omitempty"`
	Durability int    `json:"durability,omitempty"`
}

// Load reads blocks.json and items.json from configDir, falling back to the bundled defaults for
// any file that is absent. An empty configDir loads only the defaults.
func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	raw, err := readCatalog(configDir, "blocks.json")
	if err != nil {
		return nil, err
	}
	if err := loadBlocks(raw, &c.Blocks); err != nil {
		return nil, err
	}
	raw, err = readCatalog(configDir, "items.json")
	if err != nil {
		return nil, err
	}
	if err := loadItems(raw, &c.Items); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default loads the bundled catalogs; it panics only if the embedded files are broken.
func Default() *Catalogs {
	c, err := Load("")
	if err != nil {
		panic(err)
	}
	return c
}

func readCatalog(configDir, name string) ([]byte, error) {
	if configDir != "" {
		b, err := os.ReadFile(filepath.Join(configDir, name))
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return defaultFS.ReadFile("defaults/" + name)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBlocks(raw []byte, out *BlockCatalog) error {
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
		if d.Kind == "LEAF" && d.LeafOf == "" {
			return fmt.Errorf("blocks.json: leaf %s missing leaf_of", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Ensure AIR exists and is palette id 0.
	if _, ok := out.Defs["AIR"]; !ok {
		return fmt.Errorf("blocks.json: missing AIR")
	}
	ids = append([]string{"AIR"}, filterOut(ids, "AIR")...)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	out.voxels = make([]treescan.Voxel, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
		out.voxels[i] = classify(out.Defs[id])
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadItems(raw []byte, out *ItemCatalog) error {
	out.DefsDigest = sha256Hex(raw)

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.Defs = map[string]ItemDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("items.json: empty id")
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func filterOut(ids []string, drop string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

// Voxel returns the precomputed classification of a palette id; unknown ids read as air.
func (b *BlockCatalog) Voxel(id uint16) treescan.Voxel {
	if int(id) >= len(b.voxels) {
		return treescan.Voxel{Kind: treescan.KindAir, Material: "AIR"}
	}
	return b.voxels[id]
}

func (b *BlockCatalog) Lookup(name string) (uint16, bool) {
	id, ok := b.Index[strings.ToUpper(strings.TrimSpace(name))]
	return id, ok
}

func (b *BlockCatalog) Name(id uint16) string {
	if int(id) >= len(b.Palette) {
		return "AIR"
	}
	return b.Palette[id]
}

// DropFor is the item a broken block yields; leaves and air yield nothing.
func (b *BlockCatalog) DropFor(id uint16) string {
	name := b.Name(id)
	d := b.Defs[name]
	if d.Drops != "" {
		return d.Drops
	}
	switch b.Voxel(id).Kind {
	case treescan.KindAir, treescan.KindLeaf:
		return ""
	}
	return name
}

func (i *ItemCatalog) IsAxe(item string) bool {
	d, ok := i.Defs[item]
	return ok && d.Kind == "TOOL" && d.Tool == "AXE"
}

func (i *ItemCatalog) Durability(item string) int {
	return i.Defs[item].Durability
}
