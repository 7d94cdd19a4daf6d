package treescan

import "timbercraft.ai/internal/sim/world/logic/mathx"

// Scan discovers the log cluster connected to origin, attributes foliage to it and classifies it.
// origin must hold a log; callers check that before scanning.
func Scan(origin Coord, family string, g Grid, cfg Config) Result {
	res := Result{
		Origin:     origin,
		Family:     family,
		Logs:       CoordSet{},
		Leaves:     CoordSet{},
		Structures: map[Coord]string{},
	}

	res.Flags = collectLogs(origin, family, g, cfg, res.Logs)

	candidates := collectLeafCandidates(res.Logs, family, g, cfg.LeafSearchRadius)
	for _, c := range candidates.Sorted() {
		if OwnsLeaf(c, origin, res.Logs, g, cfg) {
			res.Leaves.add(c)
		}
	}

	if cfg.CollectStructures {
		collectStructures(res.Logs, g, cfg.StructureCheckRadius, res.Structures)
	}

	res.Verdict = Classify(origin, res.Logs, res.Leaves, res.Flags, cfg)
	return res
}

func collectLogs(origin Coord, family string, g Grid, cfg Config, logs CoordSet) Flags {
	var flags Flags
	queue := []Coord{origin}
	visited := CoordSet{origin: {}}

	for len(queue) > 0 && len(logs) < cfg.MaxClusterSize {
		cur := queue[0]
		queue = queue[1:]

		v := g.VoxelAt(cur)
		if v.Kind != KindLog {
			continue
		}
		if v.Family != family {
			flags.MixedFamilies = true
		}
		if a := g.AxisAt(cur); a == AxisX || a == AxisZ {
			flags.HorizontalLogs = true
		}
		logs.add(cur)

		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for dz := -1; dz <= 1; dz++ {
					if dx == 0 && dy == 0 && dz == 0 {
						continue
					}
					n := cur.Add(dx, dy, dz)
					if !mathx.HorizontalWithin(n.X, n.Z, origin.X, origin.Z, cfg.HorizontalSpread) {
						continue
					}
					if visited.Has(n) {
						continue
					}
					visited.add(n)

					nv := g.VoxelAt(n)
					if nv.Kind != KindLog {
						continue
					}
					if nv.Family != family {
						flags.MixedFamilies = true
						continue
					}
					queue = append(queue, n)
				}
			}
		}
	}
	return flags
}

func collectLeafCandidates(logs CoordSet, family string, g Grid, r int) CoordSet {
	out := CoordSet{}
	for log := range logs {
		for dx := -r; dx <= r; dx++ {
			for dy := -r; dy <= r; dy++ {
				for dz := -r; dz <= r; dz++ {
					c := log.Add(dx, dy, dz)
					if out.Has(c) {
						continue
					}
					v := g.VoxelAt(c)
					if v.Kind == KindLeaf && v.Family == family {
						out.add(c)
					}
				}
			}
		}
	}
	return out
}

func collectStructures(logs CoordSet, g Grid, r int, out map[Coord]string) {
	checked := CoordSet{}
	for log := range logs {
		for dx := -r; dx <= r; dx++ {
			for dy := -r; dy <= r; dy++ {
				for dz := -r; dz <= r; dz++ {
					if dx == 0 && dy == 0 && dz == 0 {
						continue
					}
					c := log.Add(dx, dy, dz)
					if checked.Has(c) {
						continue
					}
					checked.add(c)
					v := g.VoxelAt(c)
					if v.Kind == KindStructure {
						out[c] = v.Material
					}
				}
			}
		}
	}
}
