package ws

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"timbercraft.ai/internal/protocol"
	"timbercraft.ai/internal/sim/timber"
	"timbercraft.ai/internal/sim/tuning"
	"timbercraft.ai/internal/sim/world/audit"
	"timbercraft.ai/internal/sim/world/feature/work/chop"
	"timbercraft.ai/internal/sim/world/logic/rates"
	"timbercraft.ai/internal/sim/world/logic/treescan"
)

type session struct {
	srv   *Server
	id    string
	actor string
	perms timber.Permissions
	limit rates.Window

	out  chan []byte
	done chan struct{}
}

// send never blocks: a closed session or a full queue drops the message.
func (s *session) send(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.srv.log.Printf("ws: marshal for %s: %v", s.actor, err)
		return
	}
	select {
	case <-s.done:
	case s.out <- b:
	default:
		s.srv.log.Printf("ws: queue full for %s, dropped message", s.actor)
	}
}

func (s *session) fail(code, message string) {
	s.send(protocol.NewError(code, message))
}

func (s *session) notice(key string, kv ...string) {
	b := s.srv.cfg.Orchestrator.Bundle(s.actor)
	s.send(protocol.NoticeMsg{Type: protocol.TypeNotice, ProtocolVersion: protocol.Version, Key: key, Text: b.Prefixed(key, kv...)})
}

func (s *Server) dispatch(sess *session, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		sess.fail(protocol.ErrProtoBadRequest, "invalid json")
		return
	}
	if base.ProtocolVersion != protocol.Version {
		sess.fail(protocol.ErrProtoBadRequest, "bad protocol_version")
		return
	}
	actors := s.cfg.Orchestrator.Actors()

	if base.Type == protocol.TypeBreak || base.Type == protocol.TypePlace {
		if ok, retry := sess.limit.Allow(time.Now()); !ok {
			sess.fail(protocol.ErrRateLimit, fmt.Sprintf("rate limited; retry in %dms", retry.Milliseconds()))
			return
		}
	}

	switch base.Type {
	case protocol.TypeBreak:
		var m protocol.BreakMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			sess.fail(protocol.ErrBadRequest, "bad BREAK")
			return
		}
		s.handleBreak(sess, m)
	case protocol.TypePlace:
		var m protocol.PlaceMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			sess.fail(protocol.ErrBadRequest, "bad PLACE")
			return
		}
		s.handlePlace(sess, m)
	case protocol.TypeToggle:
		if !sess.perms.Use {
			sess.notice("no-permission")
			return
		}
		if actors.Toggle(sess.actor) {
			sess.notice("enabled")
		} else {
			sess.notice("disabled")
		}
	case protocol.TypeDebug:
		if actors.ToggleDebug(sess.actor) {
			sess.notice("debug-enabled")
		} else {
			sess.notice("debug-disabled")
		}
	case protocol.TypeLang:
		var m protocol.LangMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			sess.fail(protocol.ErrBadRequest, "bad LANG")
			return
		}
		lang := strings.ToLower(strings.TrimSpace(m.Language))
		switch {
		case lang == "":
			sess.notice("language-current", "lang", actors.Language(sess.actor))
			sess.notice("language-available", "languages", strings.Join(tuning.Languages, ", "))
		case !tuning.ValidLanguage(lang):
			sess.notice("language-invalid", "lang", lang)
		default:
			actors.SetLanguage(sess.actor, lang)
			sess.notice("language-changed", "lang", lang)
		}
	default:
		sess.fail(protocol.ErrProtoBadRequest, "unknown message type "+base.Type)
	}
}

func toCoord(p [3]int) treescan.Coord { return treescan.Coord{X: p[0], Y: p[1], Z: p[2]} }

func (s *Server) handleBreak(sess *session, m protocol.BreakMsg) {
	c := toCoord(m.Pos)
	if !s.cfg.World.InBounds(c.Y) {
		sess.fail(protocol.ErrInvalidTarget, "position out of bounds")
		return
	}
	a := timber.Attempt{
		Actor:    sess.actor,
		Origin:   c,
		Perms:    sess.perms,
		Tool:     chop.Tool{Item: strings.ToUpper(strings.TrimSpace(m.Tool.Item)), Damage: m.Tool.Damage, Unbreaking: m.Tool.Unbreaking},
		Sneaking: m.Sneaking,
		Listener: &breakListener{sess: sess, pos: m.Pos},
	}
	err := s.cfg.Sched.RunAt(c, func() {
		out := s.cfg.Orchestrator.Attempt(a)
		s.breakBlock(sess.actor, c)
		a.Listener.Resolved(out)
	})
	if err != nil {
		sess.fail(protocol.ErrInternal, "server shutting down")
	}
}

// breakBlock is the actor's own break of the origin. It runs after the attempt so the scan still
// sees the broken log; a felled tree has already cleared it.
func (s *Server) breakBlock(actor string, c treescan.Coord) {
	if s.cfg.Guard != nil {
		if ok, err := s.cfg.Guard.CanBreak(actor, c); err == nil && !ok {
			return
		}
	}
	name := s.cfg.World.NameAt(c)
	if s.cfg.World.VoxelAt(c).Kind == treescan.KindAir {
		return
	}
	s.cfg.World.Clear(c)
	if err := s.cfg.Audit.WriteAudit(audit.New(actor, audit.ActionBreak, c, name, "")); err != nil {
		s.log.Printf("ws: audit break at %v: %v", c, err)
	}
}

func (s *Server) handlePlace(sess *session, m protocol.PlaceMsg) {
	c := toCoord(m.Pos)
	if !s.cfg.World.InBounds(c.Y) {
		sess.fail(protocol.ErrInvalidTarget, "position out of bounds")
		return
	}
	axis, ok := parseAxis(m.Axis)
	if !ok {
		sess.fail(protocol.ErrBadRequest, "bad axis "+m.Axis)
		return
	}
	block := strings.ToUpper(strings.TrimSpace(m.Block))
	err := s.cfg.Sched.RunAt(c, func() {
		if s.cfg.Guard != nil && !s.cfg.Guard.CanBuild(sess.actor, c) {
			sess.fail(protocol.ErrNoPermission, "inside a protected claim")
			return
		}
		if s.cfg.World.VoxelAt(c).Kind != treescan.KindAir {
			sess.fail(protocol.ErrInvalidTarget, "position occupied")
			return
		}
		if err := s.cfg.World.Place(c, block, axis); err != nil {
			sess.fail(protocol.ErrInvalidTarget, err.Error())
			return
		}
		if err := s.cfg.Audit.WriteAudit(audit.New(sess.actor, audit.ActionPlace, c, block, "")); err != nil {
			s.log.Printf("ws: audit place at %v: %v", c, err)
		}
	})
	if err != nil {
		sess.fail(protocol.ErrInternal, "server shutting down")
	}
}

func parseAxis(s string) (treescan.Axis, bool) {
	switch strings.ToLower(s) {
	case "":
		return treescan.AxisNone, true
	case "x":
		return treescan.AxisX, true
	case "y":
		return treescan.AxisY, true
	case "z":
		return treescan.AxisZ, true
	default:
		return treescan.AxisNone, false
	}
}

// breakListener forwards one attempt's notices and outcome to its session.
type breakListener struct {
	sess *session
	pos  [3]int
}

func (l *breakListener) Notice(n timber.Notice) {
	l.sess.send(protocol.NoticeMsg{Type: protocol.TypeNotice, ProtocolVersion: protocol.Version, Key: n.Key, Text: n.Text, Debug: n.Debug})
}

func (l *breakListener) Resolved(o timber.Outcome) {
	l.sess.send(outcomeMsg(l.pos, o))
	if o.Harvest != nil {
		l.sess.send(harvestMsg(o.Harvest))
	}
}

func outcomeMsg(pos [3]int, o timber.Outcome) protocol.OutcomeMsg {
	m := protocol.OutcomeMsg{Type: protocol.TypeOutcome, ProtocolVersion: protocol.Version, Pos: pos, Kind: o.Kind.String()}
	switch o.Kind {
	case timber.OutcomeRejected:
		m.Reason = string(o.Reject)
	case timber.OutcomeClassifiedArtificial:
		m.Reason = o.Reason.Code()
	case timber.OutcomeProtected:
		m.Reason = string(o.Protect)
	}
	if o.Result != nil {
		m.Logs = len(o.Result.Logs)
		m.Leaves = len(o.Result.Leaves)
		m.Structures = len(o.Result.Structures)
	}
	return m
}

func harvestMsg(h *chop.Harvest) protocol.HarvestMsg {
	m := protocol.HarvestMsg{
		Type:            protocol.TypeHarvest,
		ProtocolVersion: protocol.Version,
		Logs:            h.LogsBroken,
		Leaves:          h.LeavesBroken,
		Collected:       make([]protocol.ItemStack, 0, len(h.Collected)),
		Dropped:         make([]protocol.DropRef, 0, len(h.Dropped)),
		Tool:            protocol.ToolRef{Item: h.Tool.Item, Damage: h.Tool.Damage, Unbreaking: h.Tool.Unbreaking},
		ToolBroken:      h.ToolBroken,
	}
	for item, n := range h.Collected {
		m.Collected = append(m.Collected, protocol.ItemStack{Item: item, Count: n})
	}
	sort.Slice(m.Collected, func(i, j int) bool { return m.Collected[i].Item < m.Collected[j].Item })
	for _, d := range h.Dropped {
		m.Dropped = append(m.Dropped, protocol.DropRef{Item: d.Item, Pos: [3]int{d.At.X, d.At.Y, d.At.Z}})
	}
	return m
}
