package claims

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	snapv1 "timbercraft.ai/internal/persistence/snapshot"
	"timbercraft.ai/internal/sim/world/logic/treescan"
)

type Flags struct {
	AllowBuild bool
	AllowBreak bool
}

// Claim is an axis-aligned box of protected land; Min and Max are inclusive.
type Claim struct {
	ID      string
	Owner   string
	Members map[string]bool
	Min     treescan.Coord
	Max     treescan.Coord
	Flags   Flags
}

func (c *Claim) Contains(p treescan.Coord) bool {
	return p.X >= c.Min.X && p.X <= c.Max.X &&
		p.Y >= c.Min.Y && p.Y <= c.Max.Y &&
		p.Z >= c.Min.Z && p.Z <= c.Max.Z
}

func (c *Claim) IsMember(actor string) bool {
	return actor != "" && (actor == c.Owner || c.Members[actor])
}

func (c *Claim) overlaps(o *Claim) bool {
	return c.Min.X <= o.Max.X && o.Min.X <= c.Max.X &&
		c.Min.Y <= o.Max.Y && o.Min.Y <= c.Max.Y &&
		c.Min.Z <= o.Max.Z && o.Min.Z <= c.Max.Z
}

// Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	claims map[string]*Claim
}

func NewRegistry() *Registry {
	return &Registry{claims: map[string]*Claim{}}
}

func normalizeBox(c *Claim) {
	if c.Min.X > c.Max.X {
		c.Min.X, c.Max.X = c.Max.X, c.Min.X
	}
	if c.Min.Y > c.Max.Y {
		c.Min.Y, c.Max.Y = c.Max.Y, c.Min.Y
	}
	if c.Min.Z > c.Max.Z {
		c.Min.Z, c.Max.Z = c.Max.Z, c.Min.Z
	}
}

func (r *Registry) Add(c Claim) error {
	c.ID = strings.TrimSpace(c.ID)
	if c.ID == "" || strings.TrimSpace(c.Owner) == "" {
		return fmt.Errorf("claim: missing id/owner")
	}
	normalizeBox(&c)
	if c.Members == nil {
		c.Members = map[string]bool{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.claims[c.ID]; ok {
		return fmt.Errorf("claim %s: already exists", c.ID)
	}
	for _, o := range r.claims {
		if c.overlaps(o) {
			return fmt.Errorf("claim %s: overlaps %s", c.ID, o.ID)
		}
	}
	r.claims[c.ID] = &c
	return nil
}

func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.claims[id]; !ok {
		return false
	}
	delete(r.claims, id)
	return true
}

func (r *Registry) SetFlags(id string, f Flags) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.claims[id]
	if !ok {
		return fmt.Errorf("claim %s: not found", id)
	}
	c.Flags = f
	return nil
}

func (r *Registry) AddMember(id, actor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.claims[id]
	if !ok {
		return fmt.Errorf("claim %s: not found", id)
	}
	c.Members[actor] = true
	return nil
}

// At returns the claim containing p, or nil for wild land.
func (r *Registry) At(p treescan.Coord) *Claim {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.atLocked(p)
}

func (r *Registry) atLocked(p treescan.Coord) *Claim {
	for _, c := range r.claims {
		if c.Contains(p) {
			return c
		}
	}
	return nil
}

func (r *Registry) CanBreak(actor string, p treescan.Coord) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return canBreak(r.atLocked(p), actor), nil
}

// CanBreakAll reports whether actor may break every coordinate; it stops at the first denial.
func (r *Registry) CanBreakAll(actor string, ps []treescan.Coord) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range ps {
		if !canBreak(r.atLocked(p), actor) {
			return false, nil
		}
	}
	return true, nil
}

func (r *Registry) CanBuild(actor string, p treescan.Coord) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.atLocked(p)
	if c == nil {
		return WildPermissions().CanBuild
	}
	return ForClaim(c.IsMember(actor), c.Flags).CanBuild
}

func canBreak(c *Claim, actor string) bool {
	if c == nil {
		return WildPermissions().CanBreak
	}
	return ForClaim(c.IsMember(actor), c.Flags).CanBreak
}

func sortedClaims(m map[string]*Claim) []*Claim {
	out := make([]*Claim, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Export() []snapv1.ClaimV1 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []snapv1.ClaimV1
	for _, c := range sortedClaims(r.claims) {
		members := make([]string, 0, len(c.Members))
		for m, ok := range c.Members {
			if ok {
				members = append(members, m)
			}
		}
		sort.Strings(members)
		out = append(out, snapv1.ClaimV1{
			ID:         c.ID,
			Owner:      c.Owner,
			Members:    members,
			Min:        [3]int{c.Min.X, c.Min.Y, c.Min.Z},
			Max:        [3]int{c.Max.X, c.Max.Y, c.Max.Z},
			AllowBreak: c.Flags.AllowBreak,
		})
	}
	return out
}

func (r *Registry) Import(in []snapv1.ClaimV1) error {
	for _, c := range in {
		members := map[string]bool{}
		for _, m := range c.Members {
			members[m] = true
		}
		err := r.Add(Claim{
			ID:      c.ID,
			Owner:   c.Owner,
			Members: members,
			Min:     treescan.Coord{X: c.Min[0], Y: c.Min[1], Z: c.Min[2]},
			Max:     treescan.Coord{X: c.Max[0], Y: c.Max[1], Z: c.Max[2]},
			Flags:   Flags{AllowBreak: c.AllowBreak},
		})
		if err != nil {
			return err
		}
	}
	return nil
}
