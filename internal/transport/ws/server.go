package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"timbercraft.ai/internal/protocol"
	"timbercraft.ai/internal/sim/timber"
	"timbercraft.ai/internal/sim/tuning"
	"timbercraft.ai/internal/sim/world/audit"
	"timbercraft.ai/internal/sim/world/logic/rates"
	"timbercraft.ai/internal/sim/world/logic/treescan"
)

// World is the mutable grid the sessions act on.
type World interface {
	InBounds(y int) bool
	VoxelAt(c treescan.Coord) treescan.Voxel
	NameAt(c treescan.Coord) string
	Place(c treescan.Coord, name string, axis treescan.Axis) error
	Clear(c treescan.Coord) uint16
}

type Guard interface {
	CanBreak(actor string, c treescan.Coord) (bool, error)
	CanBuild(actor string, c treescan.Coord) bool
}

type Config struct {
	Orchestrator *timber.Orchestrator
	Sched        timber.Scheduler
	World        World
	Guard        Guard // nil allows everything
	Audit        audit.Sink
	Catalogs     protocol.CatalogDigests
	MaxQueue     int

	// MaxActionsPerSecond caps BREAK and PLACE per session; zero is unlimited.
	MaxActionsPerSecond int
}

type Server struct {
	cfg Config
	log *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(cfg Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.Discard{}
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = 32
	}
	return &Server{
		cfg: cfg,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		defer close(sess.done)
		defer s.cfg.Orchestrator.Actors().Forget(sess.actor)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.dispatch(sess, msg)
		}
		s.log.Printf("ws: session %s (%s) closed", sess.id, sess.actor)
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, "bad HELLO")
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return nil
	}

	actor := strings.TrimSpace(hello.ActorID)
	if actor == "" {
		actor = strings.TrimSpace(hello.ActorName)
	}
	if strings.HasPrefix(actor, "#") {
		closeWith(conn, "reserved actor id")
		return nil
	}
	if actor == "" {
		actor = "anon-" + uuid.NewString()[:8]
	}

	actors := s.cfg.Orchestrator.Actors()
	if lang := strings.ToLower(strings.TrimSpace(hello.Language)); lang != "" && tuning.ValidLanguage(lang) {
		actors.SetLanguage(actor, lang)
	}

	sess := &session{
		srv:   s,
		id:    uuid.NewString(),
		actor: actor,
		perms: timber.Permissions{Use: hello.Permissions.Use, Bypass: hello.Permissions.Bypass},
		limit: rates.Window{Span: time.Second, Max: s.cfg.MaxActionsPerSecond},
		out:   make(chan []byte, s.cfg.MaxQueue),
		done:  make(chan struct{}),
	}
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		ActorID:         actor,
		Enabled:         actors.Enabled(actor),
		Language:        actors.Language(actor),
		Catalogs:        s.cfg.Catalogs,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	s.log.Printf("ws: session %s joined as %s", sess.id, actor)
	return sess
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
