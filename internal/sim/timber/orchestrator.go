package timber

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"timbercraft.ai/internal/sim/lang"
	"timbercraft.ai/internal/sim/tuning"
	"timbercraft.ai/internal/sim/world/feature/work/chop"
	"timbercraft.ai/internal/sim/world/logic/treescan"
)

// ProvenanceOracle answers whether a player placed the block at c within lookback.
type ProvenanceOracle interface {
	WasPlayerPlaced(ctx context.Context, c treescan.Coord, lookback time.Duration) (bool, error)
}

type RegionGuard interface {
	CanBreak(actor string, c treescan.Coord) (bool, error)
	CanBreakAll(actor string, cs []treescan.Coord) (bool, error)
}

// Scheduler runs tasks with region affinity. RunAtAll holds every region owning a cell of cs while
// fn runs.
type Scheduler interface {
	RunAt(c treescan.Coord, fn func()) error
	RunAtAll(cs []treescan.Coord, fn func()) error
	SingleRegion(cs []treescan.Coord) bool
	Go(fn func()) error
}

type Harvester interface {
	Chop(actor string, tool chop.Tool, res *treescan.Result) (chop.Harvest, error)
}

type ToolCatalog interface {
	IsAxe(item string) bool
}

type Config struct {
	Enabled        bool
	Debug          bool
	RequireAxe     bool
	RequireSneak   bool
	UseProvenance  bool
	UseRegionGuard bool
	Scan           treescan.Config
	Lookback       time.Duration
	LookupTimeout  time.Duration
}

func ConfigFromTuning(t tuning.Tuning) Config {
	return Config{
		Enabled:        t.General.Enabled,
		Debug:          t.Debug,
		RequireAxe:     t.General.RequireAxe,
		RequireSneak:   t.General.RequireSneak,
		UseProvenance:  t.Protection.UseProvenance,
		UseRegionGuard: t.Protection.UseRegionGuard,
		Scan:           t.ScanConfig(),
		Lookback:       t.LookbackWindow(),
		LookupTimeout:  t.LookupTimeout(),
	}
}

// Deps are the orchestrator's collaborators. Oracle and Guard may be nil.
type Deps struct {
	Grid      treescan.Grid
	Tools     ToolCatalog
	Sched     Scheduler
	Harvester Harvester
	Oracle    ProvenanceOracle
	Guard     RegionGuard
	Actors    *Actors
}

type Permissions struct {
	Use    bool `json:"use"`
	Bypass bool `json:"bypass"`
}

// Attempt is one break of a log by an actor.
type Attempt struct {
	Actor    string
	Origin   treescan.Coord
	Perms    Permissions
	Tool     chop.Tool
	Sneaking bool
	Listener Listener
}

type Orchestrator struct {
	cfg    Config
	d      Deps
	logger *log.Logger

	bundles map[string]*lang.Bundle
}

func New(cfg Config, d Deps, logger *log.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if d.Grid == nil || d.Sched == nil || d.Harvester == nil || d.Tools == nil {
		return nil, fmt.Errorf("timber: grid, scheduler, harvester and tools are required")
	}
	if d.Actors == nil {
		d.Actors = NewActors(true, "en")
	}
	bundles := map[string]*lang.Bundle{}
	for _, l := range tuning.Languages {
		b, err := lang.Load(l)
		if err != nil {
			return nil, err
		}
		bundles[l] = b
	}
	return &Orchestrator{cfg: cfg, d: d, logger: logger, bundles: bundles}, nil
}

func (o *Orchestrator) Actors() *Actors { return o.d.Actors }

// Bundle returns the message bundle for the actor's language.
func (o *Orchestrator) Bundle(actor string) *lang.Bundle {
	if b, ok := o.bundles[o.d.Actors.Language(actor)]; ok {
		return b
	}
	return o.bundles["en"]
}

// run carries one attempt's per-call state.
type run struct {
	o     *Orchestrator
	a     Attempt
	debug bool
	msgs  *lang.Bundle
}

func (r *run) notice(key string, kv ...string) {
	r.a.Listener.Notice(Notice{Key: key, Text: r.msgs.Prefixed(key, kv...)})
}

func (r *run) debugf(key string, kv ...string) {
	if r.debug {
		r.a.Listener.Notice(Notice{Key: key, Text: r.msgs.Debug(key, kv...), Debug: true})
	}
}

// protected reports a protection stage: debug actors get the detail, others the plain notice.
func (r *run) protected(debugKey, key string, kv ...string) {
	if r.debug {
		r.debugf(debugKey, kv...)
		return
	}
	r.notice(key)
}

// Attempt must be called from the origin's region context. It returns Scheduled when the outcome is
// decided later, either after provenance or because the cluster crosses into other regions; that
// final outcome then arrives through a.Listener.Resolved.
func (o *Orchestrator) Attempt(a Attempt) Outcome {
	if a.Listener == nil {
		a.Listener = nopListener{}
	}
	actors := o.d.Actors

	if !o.cfg.Enabled {
		return rejected(RejectDisabled)
	}
	if !a.Perms.Use {
		return rejected(RejectNoPermission)
	}
	v := o.d.Grid.VoxelAt(a.Origin)
	if v.Kind != treescan.KindLog {
		return rejected(RejectNotLog)
	}
	if !actors.Enabled(a.Actor) {
		return rejected(RejectToggledOff)
	}
	if o.cfg.RequireAxe && !o.d.Tools.IsAxe(a.Tool.Item) {
		return rejected(RejectNoAxe)
	}
	if o.cfg.RequireSneak && !a.Sneaking {
		return rejected(RejectNotSneaking)
	}

	r := &run{o: o, a: a, debug: o.cfg.Debug || actors.Debug(a.Actor), msgs: o.Bundle(a.Actor)}
	if !o.guardAllows(a.Actor, a.Origin) {
		r.protected("debug-region-denied", "region-protected")
		return rejected(RejectRegionDenied)
	}

	release, ok := actors.Acquire(a.Actor)
	if !ok {
		return rejected(RejectInFlight)
	}
	owned := true
	defer func() {
		if owned {
			release()
		}
	}()

	res := treescan.Scan(a.Origin, v.Family, o.d.Grid, o.cfg.Scan)
	r.debugf("debug-scan-result",
		"logs", strconv.Itoa(len(res.Logs)),
		"leaves", strconv.Itoa(len(res.Leaves)),
		"structures", strconv.Itoa(len(res.Structures)))

	if !res.Verdict.Natural {
		r.debugf("debug-not-natural", "reason", r.reasonText(&res))
		return Outcome{Kind: OutcomeClassifiedArtificial, Reason: res.Verdict.Reason, Result: &res}
	}

	if !o.cfg.UseProvenance || o.d.Oracle == nil || a.Perms.Bypass {
		cells := clusterCells(&res)
		if o.d.Sched.SingleRegion(cells) {
			return r.harvest(&res)
		}
		// The cluster spills into neighbouring regions; fell it once all of them are held.
		err := o.d.Sched.RunAtAll(cells, func() {
			defer release()
			a.Listener.Resolved(r.harvest(&res))
		})
		if err != nil {
			o.logger.Printf("timber: region handoff failed at %v: %v", a.Origin, err)
			return rejected(RejectUnavailable)
		}
		owned = false
		return Outcome{Kind: OutcomeScheduled, Result: &res}
	}

	r.debugf("debug-provenance-check")
	if err := o.d.Sched.Go(func() { r.verify(&res, release) }); err != nil {
		o.logger.Printf("timber: provenance dispatch failed for %s: %v", a.Actor, err)
		return rejected(RejectUnavailable)
	}
	owned = false
	return Outcome{Kind: OutcomeScheduled, Result: &res}
}

func (o *Orchestrator) guardAllows(actor string, c treescan.Coord) bool {
	if !o.cfg.UseRegionGuard || o.d.Guard == nil {
		return true
	}
	ok, err := o.d.Guard.CanBreak(actor, c)
	if err != nil {
		o.logger.Printf("timber: region guard failed at %v: %v", c, err)
		return true
	}
	return ok
}

func (o *Orchestrator) guardAllowsAll(actor string, cs []treescan.Coord) bool {
	if !o.cfg.UseRegionGuard || o.d.Guard == nil {
		return true
	}
	ok, err := o.d.Guard.CanBreakAll(actor, cs)
	if err != nil {
		o.logger.Printf("timber: region guard failed for %d logs: %v", len(cs), err)
		return true
	}
	return ok
}

// clusterCells lists every cell a harvest of res may touch, sorted.
func clusterCells(res *treescan.Result) []treescan.Coord {
	out := make([]treescan.Coord, 0, 1+len(res.Logs)+len(res.Leaves))
	out = append(out, res.Origin)
	for c := range res.Logs {
		out = append(out, c)
	}
	for c := range res.Leaves {
		out = append(out, c)
	}
	treescan.SortCoords(out)
	return out
}

// harvest runs while every region of the cluster is held, once every check has passed.
func (r *run) harvest(res *treescan.Result) Outcome {
	o := r.o
	logs := res.Logs.Sorted()
	if !o.guardAllowsAll(r.a.Actor, logs) {
		r.protected("debug-region-denied", "region-protected")
		return Outcome{Kind: OutcomeRejected, Reject: RejectRegionDenied, Result: res}
	}
	r.debugf("debug-passed")
	out := Outcome{Kind: OutcomeCompletedNatural, Result: res}
	h, err := o.d.Harvester.Chop(r.a.Actor, r.a.Tool, res)
	if err != nil {
		// The actor switched away from the axe; the tree stays.
		return out
	}
	if h.ToolBroken {
		r.notice("tool-broken")
	}
	out.Harvest = &h
	return out
}

func (r *run) reasonText(res *treescan.Result) string {
	cfg := r.o.cfg.Scan
	switch res.Verdict.Reason {
	case treescan.ReasonTooFewLogs:
		return r.msgs.Format("debug-reason-min-logs", "count", strconv.Itoa(len(res.Logs)), "min", strconv.Itoa(cfg.MinLogs))
	case treescan.ReasonTooFewLeaves:
		return r.msgs.Format("debug-reason-min-leaves", "count", strconv.Itoa(len(res.Leaves)), "min", strconv.Itoa(cfg.MinLeaves))
	case treescan.ReasonHorizontalLogs:
		return r.msgs.Get("debug-reason-horizontal")
	case treescan.ReasonMixedFamilies:
		return r.msgs.Get("debug-reason-mixed-logs")
	case treescan.ReasonNoLogsAboveOrigin:
		return r.msgs.Get("debug-reason-no-logs-above")
	default:
		return res.Verdict.Reason.Code()
	}
}
