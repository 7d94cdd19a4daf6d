package treescan

// canopyBranchLeaves is the leaf count at which horizontal logs are read as natural branches.
const canopyBranchLeaves = 50

// Classify applies the structure heuristics in priority order; the first match wins.
func Classify(origin Coord, logs, leaves CoordSet, flags Flags, cfg Config) Verdict {
	switch {
	case len(logs) < cfg.MinLogs:
		return Artificial(ReasonTooFewLogs)
	case len(leaves) < cfg.MinLeaves:
		return Artificial(ReasonTooFewLeaves)
	case cfg.CheckHorizontalLogs && flags.HorizontalLogs && len(leaves) < canopyBranchLeaves:
		return Artificial(ReasonHorizontalLogs)
	case cfg.CheckMixedFamilies && flags.MixedFamilies:
		return Artificial(ReasonMixedFamilies)
	}

	if len(logs) > 1 {
		above := false
		for c := range logs {
			if c.Y > origin.Y {
				above = true
				break
			}
		}
		if !above {
			return Artificial(ReasonNoLogsAboveOrigin)
		}
	}
	return NaturalVerdict()
}
