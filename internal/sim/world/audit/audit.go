package audit

import (
	"errors"
	"strings"
	"time"

	"timbercraft.ai/internal/sim/world/logic/treescan"
)

const (
	ActionPlace = "PLACE"
	ActionBreak = "BREAK"
)

// Entry records one block change. Actors starting with '#' are non-player sources such as #tnt.
type Entry struct {
	AtMs   int64  `json:"at_ms"`
	Actor  string `json:"actor"`
	Action string `json:"action"`
	Pos    [3]int `json:"pos"`
	Block  string `json:"block"`
	Reason string `json:"reason,omitempty"`
}

func New(actor, action string, c treescan.Coord, block, reason string) Entry {
	return Entry{
		AtMs:   time.Now().UnixMilli(),
		Actor:  actor,
		Action: action,
		Pos:    [3]int{c.X, c.Y, c.Z},
		Block:  block,
		Reason: reason,
	}
}

func (e Entry) Coord() treescan.Coord {
	return treescan.Coord{X: e.Pos[0], Y: e.Pos[1], Z: e.Pos[2]}
}

func IsPlayer(actor string) bool {
	return actor != "" && !strings.HasPrefix(actor, "#")
}

type Sink interface {
	WriteAudit(e Entry) error
}

// Multi writes every entry to each sink, returning the joined errors.
type Multi []Sink

func (m Multi) WriteAudit(e Entry) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.WriteAudit(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Discard struct{}

func (Discard) WriteAudit(Entry) error { return nil }
