package timber

import (
	"context"
	"strconv"

	"timbercraft.ai/internal/sim/world/logic/treescan"
)

// verify is the background phase. It owns the in-flight marker until the region callback takes it
// over; every exit path releases it.
func (r *run) verify(res *treescan.Result, release func()) {
	o := r.o
	owned := true
	defer func() {
		if p := recover(); p != nil {
			o.logger.Printf("timber: provenance phase panic for %s: %v", r.a.Actor, p)
			if owned {
				r.a.Listener.Resolved(rejected(RejectUnavailable))
			}
		}
		if owned {
			release()
		}
	}()

	stage := r.provenanceStage(res)
	err := o.d.Sched.RunAtAll(clusterCells(res), func() {
		defer release()
		r.a.Listener.Resolved(r.finish(res, stage))
	})
	if err != nil {
		o.logger.Printf("timber: region handoff failed at %v: %v", r.a.Origin, err)
		r.a.Listener.Resolved(rejected(RejectUnavailable))
		return
	}
	owned = false
}

// provenanceStage runs the three history checks in order, stopping at the first hit.
func (r *run) provenanceStage(res *treescan.Result) ProtectReason {
	if r.placed(res.Origin) {
		return ProtectOrigin
	}
	for _, c := range res.Logs.Sorted() {
		if c == res.Origin {
			continue
		}
		if r.placed(c) {
			return ProtectLogs
		}
	}
	if r.o.cfg.Scan.CollectStructures {
		for _, c := range sortedStructures(res.Structures) {
			if r.placed(c) {
				return ProtectTreehouse
			}
		}
	}
	return ProtectNone
}

// placed fails closed: an oracle error or timeout counts as player-placed.
func (r *run) placed(c treescan.Coord) bool {
	o := r.o
	ctx := context.Background()
	if o.cfg.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.LookupTimeout)
		defer cancel()
	}
	ok, err := o.d.Oracle.WasPlayerPlaced(ctx, c, o.cfg.Lookback)
	if err != nil {
		o.logger.Printf("timber: provenance lookup failed at %v: %v", c, err)
		return true
	}
	return ok
}

// finish runs with every region of the cluster held.
func (r *run) finish(res *treescan.Result, stage ProtectReason) Outcome {
	switch stage {
	case ProtectOrigin:
		r.protected("debug-block-player-placed", "structure-protected")
	case ProtectLogs:
		r.protected("debug-logs-player-placed", "structure-protected")
	case ProtectTreehouse:
		r.protected("debug-treehouse-detected", "treehouse-protected", "count", strconv.Itoa(len(res.Structures)))
	default:
		return r.harvest(res)
	}
	return Outcome{Kind: OutcomeProtected, Protect: stage, Result: res}
}

func sortedStructures(m map[treescan.Coord]string) []treescan.Coord {
	out := make([]treescan.Coord, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	treescan.SortCoords(out)
	return out
}
