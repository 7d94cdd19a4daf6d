package gen

import (
	"timbercraft.ai/internal/sim/world/logic/mathx"
	"timbercraft.ai/internal/sim/world/logic/treescan"
)

// Writer is the subset of the chunk store the planter needs.
type Writer interface {
	Place(c treescan.Coord, name string, axis treescan.Axis) error
	VoxelAt(c treescan.Coord) treescan.Voxel
}

type Species struct {
	Log          string
	Leaves       string
	MinHeight    int
	MaxHeight    int
	CanopyRadius int
}

var DefaultSpecies = []Species{
	{Log: "OAK_LOG", Leaves: "OAK_LEAVES", MinHeight: 4, MaxHeight: 6, CanopyRadius: 2},
	{Log: "BIRCH_LOG", Leaves: "BIRCH_LEAVES", MinHeight: 5, MaxHeight: 7, CanopyRadius: 2},
	{Log: "SPRUCE_LOG", Leaves: "SPRUCE_LEAVES", MinHeight: 6, MaxHeight: 8, CanopyRadius: 2},
	{Log: "JUNGLE_LOG", Leaves: "JUNGLE_LEAVES", MinHeight: 5, MaxHeight: 9, CanopyRadius: 2},
}

// Area is a horizontal rectangle (inclusive) whose ground surface sits at GroundY-1.
type Area struct {
	MinX, MinZ int
	MaxX, MaxZ int
	GroundY    int
}

type ForestParams struct {
	Spacing         int // grid cell edge; one tree candidate per cell
	DensityPermille int
	Species         []Species
	Ground          string
}

func ClampPermille(v int) int {
	if v < 0 {
		return 0
	}
	if v > 1000 {
		return 1000
	}
	return v
}

// PlantForest places trees deterministically for the seed and returns the trunk bases it planted.
// A cell is skipped when its trunk would land on a non-air voxel.
func PlantForest(w Writer, seed int64, area Area, p ForestParams) ([]treescan.Coord, error) {
	if p.Spacing < 2*maxCanopy(p.Species)+2 {
		p.Spacing = 2*maxCanopy(p.Species) + 2
	}
	if len(p.Species) == 0 {
		p.Species = DefaultSpecies
	}
	density := uint64(ClampPermille(p.DensityPermille))

	var planted []treescan.Coord
	for gz := mathx.FloorDiv(area.MinZ, p.Spacing); gz <= mathx.FloorDiv(area.MaxZ, p.Spacing); gz++ {
		for gx := mathx.FloorDiv(area.MinX, p.Spacing); gx <= mathx.FloorDiv(area.MaxX, p.Spacing); gx++ {
			h := mathx.Hash2(seed, gx, gz)
			if h%1000 >= density {
				continue
			}
			sp := p.Species[int((h>>8)%uint64(len(p.Species)))]
			margin := sp.CanopyRadius
			span := p.Spacing - 2*margin
			x := gx*p.Spacing + margin + int((h>>16)%uint64(span))
			z := gz*p.Spacing + margin + int((h>>24)%uint64(span))
			if x < area.MinX || x > area.MaxX || z < area.MinZ || z > area.MaxZ {
				continue
			}
			base := treescan.Coord{X: x, Y: area.GroundY, Z: z}
			if w.VoxelAt(base).Kind != treescan.KindAir {
				continue
			}
			height := sp.MinHeight
			if sp.MaxHeight > sp.MinHeight {
				height += int((h >> 32) % uint64(sp.MaxHeight-sp.MinHeight+1))
			}
			if p.Ground != "" {
				if err := w.Place(base.Add(0, -1, 0), p.Ground, treescan.AxisNone); err != nil {
					return planted, err
				}
			}
			if err := PlantTree(w, base, sp, height); err != nil {
				return planted, err
			}
			planted = append(planted, base)
		}
	}
	return planted, nil
}

func maxCanopy(species []Species) int {
	if len(species) == 0 {
		species = DefaultSpecies
	}
	r := 0
	for _, s := range species {
		if s.CanopyRadius > r {
			r = s.CanopyRadius
		}
	}
	return r
}

// PlantTree builds a vertical trunk of height logs and a rounded canopy around its top. Leaves only
// fill air.
func PlantTree(w Writer, base treescan.Coord, sp Species, height int) error {
	for dy := 0; dy < height; dy++ {
		if err := w.Place(base.Add(0, dy, 0), sp.Log, treescan.AxisY); err != nil {
			return err
		}
	}
	top := base.Y + height - 1
	for y := top - 1; y <= top+1; y++ {
		r := sp.CanopyRadius
		if y > top {
			r = 1
		}
		for dz := -r; dz <= r; dz++ {
			for dx := -r; dx <= r; dx++ {
				if mathx.AbsInt(dx) == r && mathx.AbsInt(dz) == r && r > 1 {
					continue
				}
				c := treescan.Coord{X: base.X + dx, Y: y, Z: base.Z + dz}
				if w.VoxelAt(c).Kind != treescan.KindAir {
					continue
				}
				if err := w.Place(c, sp.Leaves, treescan.AxisNone); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
