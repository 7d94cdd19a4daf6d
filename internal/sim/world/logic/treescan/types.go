package treescan

import (
	"fmt"
	"sort"
)

type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (c Coord) Add(dx, dy, dz int) Coord {
	return Coord{X: c.X + dx, Y: c.Y + dy, Z: c.Z + dz}
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

type Axis uint8

const (
	AxisNone Axis = iota
	AxisX
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return ""
	}
}

type Kind uint8

const (
	KindAir Kind = iota
	KindOther
	KindLog
	KindLeaf
	KindStructure
)

// Voxel is the classification of one grid cell. Family is set for logs and leaves; for leaves it
// names the log family the foliage grows on.
type Voxel struct {
	Kind     Kind
	Family   string
	Material string
}

// Grid is the read-only view the scanner needs. Implementations must be cheap per call.
type Grid interface {
	VoxelAt(c Coord) Voxel
	AxisAt(c Coord) Axis
}

// Config is supplied in full by the caller for every scan.
type Config struct {
	MaxClusterSize       int
	LeafSearchRadius     int
	StructureCheckRadius int
	HorizontalSpread     int
	CheckHorizontalLogs  bool
	CheckMixedFamilies   bool
	CollectStructures    bool
	MinLogs              int
	MinLeaves            int
}

type Flags struct {
	HorizontalLogs bool
	MixedFamilies  bool
}

type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonTooFewLogs
	ReasonTooFewLeaves
	ReasonHorizontalLogs
	ReasonMixedFamilies
	ReasonNoLogsAboveOrigin
)

// Code is the stable identifier used on the wire and as the localization key suffix.
func (r Reason) Code() string {
	switch r {
	case ReasonTooFewLogs:
		return "MIN_LOGS"
	case ReasonTooFewLeaves:
		return "MIN_LEAVES"
	case ReasonHorizontalLogs:
		return "HORIZONTAL"
	case ReasonMixedFamilies:
		return "MIXED_LOGS"
	case ReasonNoLogsAboveOrigin:
		return "NO_LOGS_ABOVE"
	default:
		return ""
	}
}

func (r Reason) String() string { return r.Code() }

type Verdict struct {
	Natural bool
	Reason  Reason
}

func NaturalVerdict() Verdict { return Verdict{Natural: true} }

func Artificial(r Reason) Verdict { return Verdict{Reason: r} }

type CoordSet map[Coord]struct{}

func (s CoordSet) Has(c Coord) bool {
	_, ok := s[c]
	return ok
}

func (s CoordSet) add(c Coord) { s[c] = struct{}{} }

// Sorted returns the members ordered by y, then x, then z.
func (s CoordSet) Sorted() []Coord {
	out := make([]Coord, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	SortCoords(out)
	return out
}

func SortCoords(cs []Coord) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Y != cs[j].Y {
			return cs[i].Y < cs[j].Y
		}
		if cs[i].X != cs[j].X {
			return cs[i].X < cs[j].X
		}
		return cs[i].Z < cs[j].Z
	})
}

// Result is produced once per scan and not modified afterwards.
type Result struct {
	Origin     Coord
	Family     string
	Logs       CoordSet
	Leaves     CoordSet
	Structures map[Coord]string
	Flags      Flags
	Verdict    Verdict
}

func (r *Result) Total() int { return len(r.Logs) + len(r.Leaves) }

func (r *Result) HasLeaves() bool { return len(r.Leaves) > 0 }
