package catalogs

import (
	"strings"

	"timbercraft.ai/internal/sim/world/logic/treescan"
)

var familySuffixes = []string{"_LOG", "_STEM", "_WOOD", "_HYPHAE"}

// Family strips modifier tokens off a log material: STRIPPED_OAK_LOG and OAK_WOOD are both OAK.
func Family(material string) string {
	name := strings.ReplaceAll(strings.ToUpper(material), "STRIPPED_", "")
	for _, s := range familySuffixes {
		name = strings.ReplaceAll(name, s, "")
	}
	return name
}

func SameFamily(a, b string) bool { return Family(a) == Family(b) }

var structureNamePatterns = []string{
	"PLANK", "SLAB", "STAIR", "FENCE", "DOOR", "TRAPDOOR", "WOOL",
	"CARPET", "BED", "GLASS", "SIGN", "BANNER",
}

// IsStructureName reports whether a block name looks like construction material.
func IsStructureName(name string) bool {
	for _, p := range structureNamePatterns {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}

func classify(d BlockDef) treescan.Voxel {
	v := treescan.Voxel{Material: d.ID}
	switch d.Kind {
	case "AIR":
		v.Kind = treescan.KindAir
	case "LOG":
		v.Kind = treescan.KindLog
		v.Family = Family(d.ID)
	case "LEAF":
		v.Kind = treescan.KindLeaf
		v.Family = Family(d.LeafOf)
	case "STRUCTURE":
		v.Kind = treescan.KindStructure
	default:
		if IsStructureName(d.ID) {
			v.Kind = treescan.KindStructure
		} else {
			v.Kind = treescan.KindOther
		}
	}
	return v
}
