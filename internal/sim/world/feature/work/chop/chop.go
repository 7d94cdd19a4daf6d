package chop

import (
	"errors"
	"io"
	"log"
	"math"
	"math/rand"

	"timbercraft.ai/internal/sim/catalogs"
	"timbercraft.ai/internal/sim/world/audit"
	"timbercraft.ai/internal/sim/world/logic/treescan"
)

var ErrNotAxe = errors.New("chop: held tool is not an axe")

const AuditReason = "TIMBER"

// World is the mutable grid view the chopper needs.
type World interface {
	VoxelAt(c treescan.Coord) treescan.Voxel
	Clear(c treescan.Coord) uint16
}

type Tool struct {
	Item       string `json:"item"`
	Damage     int    `json:"damage"`
	Unbreaking int    `json:"unbreaking,omitempty"`
}

type Params struct {
	BreakLeaves      bool
	DamageMultiplier float64
	AutoCollect      bool
}

type Drop struct {
	Item string         `json:"item"`
	At   treescan.Coord `json:"at"`
}

type Harvest struct {
	LogsBroken   int            `json:"logs"`
	LeavesBroken int            `json:"leaves"`
	Collected    map[string]int `json:"collected,omitempty"`
	Dropped      []Drop         `json:"dropped,omitempty"`
	Damage       int            `json:"damage"`
	Tool         Tool           `json:"tool"`
	ToolBroken   bool           `json:"tool_broken"`
}

type Chopper struct {
	world  World
	blocks *catalogs.BlockCatalog
	items  *catalogs.ItemCatalog
	sink   audit.Sink
	params Params
	roll   func(n int) int
	logger *log.Logger
}

func New(world World, cats *catalogs.Catalogs, sink audit.Sink, p Params, logger *log.Logger) *Chopper {
	if sink == nil {
		sink = audit.Discard{}
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Chopper{
		world:  world,
		blocks: &cats.Blocks,
		items:  &cats.Items,
		sink:   sink,
		params: p,
		roll:   rand.Intn,
		logger: logger,
	}
}

// WithRoll replaces the unbreaking dice; fn(n) must return a value in [0,n).
func (c *Chopper) WithRoll(fn func(n int) int) *Chopper {
	c.roll = fn
	return c
}

// Chop removes the scanned cluster. It must run while every region the cluster touches is held.
// Blocks that are already air are skipped and only logs wear the tool.
func (c *Chopper) Chop(actor string, tool Tool, res *treescan.Result) (Harvest, error) {
	h := Harvest{Tool: tool}
	if !c.items.IsAxe(tool.Item) {
		return h, ErrNotAxe
	}
	if c.params.AutoCollect {
		h.Collected = map[string]int{}
	}

	for _, p := range res.Logs.Sorted() {
		if c.breakBlock(actor, p, &h) {
			h.LogsBroken++
		}
	}
	if c.params.BreakLeaves {
		for _, p := range res.Leaves.Sorted() {
			if c.breakBlock(actor, p, &h) {
				h.LeavesBroken++
			}
		}
	}
	if h.LogsBroken > 0 {
		c.applyDamage(&h)
	}
	return h, nil
}

func (c *Chopper) breakBlock(actor string, p treescan.Coord, h *Harvest) bool {
	if c.world.VoxelAt(p).Kind == treescan.KindAir {
		return false
	}
	id := c.world.Clear(p)
	name := c.blocks.Name(id)
	if err := c.sink.WriteAudit(audit.New(actor, audit.ActionBreak, p, name, AuditReason)); err != nil {
		c.logger.Printf("chop: audit break at %v: %v", p, err)
	}

	drop := c.blocks.DropFor(id)
	if drop == "" {
		return true
	}
	if c.params.AutoCollect {
		h.Collected[drop]++
	} else {
		h.Dropped = append(h.Dropped, Drop{Item: drop, At: p})
	}
	return true
}

// applyDamage wears the tool by ceil(logs*multiplier); with Unbreaking each point lands with
// probability 1/(level+1).
func (c *Chopper) applyDamage(h *Harvest) {
	base := int(math.Ceil(float64(h.LogsBroken) * c.params.DamageMultiplier))
	dmg := base
	if lvl := h.Tool.Unbreaking; lvl > 0 {
		dmg = 0
		for i := 0; i < base; i++ {
			if c.roll(lvl+1) == 0 {
				dmg++
			}
		}
	}
	if dmg <= 0 {
		return
	}
	h.Damage = dmg
	h.Tool.Damage += dmg
	if limit := c.items.Durability(h.Tool.Item); limit > 0 && h.Tool.Damage >= limit {
		h.ToolBroken = true
		h.Tool = Tool{}
	}
}
