package treescan

import "timbercraft.ai/internal/sim/world/logic/mathx"

// OwnsLeaf reports whether the leaf at c belongs to the cluster logs grown from origin.
//
// The nearest log of any family within LeafSearchRadius must be one of ours; equidistant logs
// resolve in our favor. Leaves further than HorizontalSpread+LeafSearchRadius from the origin
// column are rejected even when our log is nearest.
func OwnsLeaf(c, origin Coord, logs CoordSet, g Grid, cfg Config) bool {
	r := cfg.LeafSearchRadius
	found := false
	ours := false
	best := 0

	for dx := -r; dx <= r; dx++ {
		for dy := -r; dy <= r; dy++ {
			for dz := -r; dz <= r; dz++ {
				p := c.Add(dx, dy, dz)
				if g.VoxelAt(p).Kind != KindLog {
					continue
				}
				d := mathx.DistSq3(dx, dy, dz)
				switch {
				case !found || d < best:
					found = true
					best = d
					ours = logs.Has(p)
				case d == best && !ours:
					ours = logs.Has(p)
				}
			}
		}
	}
	if !found || !ours {
		return false
	}
	return mathx.HorizontalWithin(c.X, c.Z, origin.X, origin.Z, cfg.HorizontalSpread+r)
}
