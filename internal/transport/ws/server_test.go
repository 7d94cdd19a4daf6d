package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"timbercraft.ai/internal/protocol"
	"timbercraft.ai/internal/sim/catalogs"
	"timbercraft.ai/internal/sim/region"
	"timbercraft.ai/internal/sim/timber"
	"timbercraft.ai/internal/sim/tuning"
	"timbercraft.ai/internal/sim/world/audit"
	"timbercraft.ai/internal/sim/world/feature/governance/claims"
	"timbercraft.ai/internal/sim/world/feature/work/chop"
	"timbercraft.ai/internal/sim/world/logic/treescan"
	"timbercraft.ai/internal/sim/world/terrain/gen"
	"timbercraft.ai/internal/sim/world/terrain/store"
)

type memSink struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *memSink) WriteAudit(e audit.Entry) error {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

func (m *memSink) actions(action string) []audit.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Entry
	for _, e := range m.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	grid   *store.ChunkStore
	sink   *memSink
	claims *claims.Registry
	srv    *httptest.Server
}

func setup(t *testing.T, opts ...func(*Config)) *fixture {
	t.Helper()
	cat := catalogs.Default()
	grid := store.NewChunkStore(&cat.Blocks, -64, 384)
	sink := &memSink{}
	reg := claims.NewRegistry()
	sched := region.New(region.Config{Size: 64, BackgroundWorkers: 2}, nil)
	t.Cleanup(sched.Close)

	tun := tuning.Defaults()
	tun.Protection.UseProvenance = false
	orc, err := timber.New(timber.ConfigFromTuning(tun), timber.Deps{
		Grid:      grid,
		Tools:     &cat.Items,
		Sched:     sched,
		Harvester: chop.New(grid, cat, sink, chop.Params{BreakLeaves: true, DamageMultiplier: 1, AutoCollect: true}, nil),
		Guard:     reg,
		Actors:    timber.NewActors(true, "en"),
	}, nil)
	if err != nil {
		t.Fatalf("timber.New: %v", err)
	}
	cfg := Config{Orchestrator: orc, Sched: sched, World: grid, Guard: reg, Audit: sink}
	for _, o := range opts {
		o(&cfg)
	}
	s := NewServer(cfg, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{grid: grid, sink: sink, claims: reg, srv: srv}
}

func (f *fixture) dial(t *testing.T, hello protocol.HelloMsg) (*websocket.Conn, protocol.WelcomeMsg) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected status 101, got %d", resp.StatusCode)
	}
	t.Cleanup(func() { conn.Close() })
	hello.Type = protocol.TypeHello
	hello.ProtocolVersion = protocol.Version
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	var welcome protocol.WelcomeMsg
	read(t, conn, protocol.TypeWelcome, &welcome)
	return conn, welcome
}

func read(t *testing.T, conn *websocket.Conn, wantType string, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read %s: %v", wantType, err)
	}
	base, err := protocol.DecodeBase(b)
	if err != nil || base.Type != wantType {
		t.Fatalf("expected %s, got %s", wantType, b)
	}
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode %s: %v", wantType, err)
	}
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func breakMsg(x, y, z int, item string) protocol.BreakMsg {
	return protocol.BreakMsg{
		Type:            protocol.TypeBreak,
		ProtocolVersion: protocol.Version,
		Pos:             [3]int{x, y, z},
		Tool:            protocol.ToolRef{Item: item},
	}
}

func TestWS_WelcomeAndAnonymousActor(t *testing.T) {
	f := setup(t)
	_, welcome := f.dial(t, protocol.HelloMsg{Language: "DE", Permissions: protocol.Permissions{Use: true}})
	if !strings.HasPrefix(welcome.ActorID, "anon-") || welcome.SessionID == "" {
		t.Fatalf("unexpected welcome: %+v", welcome)
	}
	if !welcome.Enabled || welcome.Language != "de" {
		t.Fatalf("unexpected actor state: %+v", welcome)
	}
}

func TestWS_BreakNaturalTreeFellsIt(t *testing.T) {
	f := setup(t)
	base := treescan.Coord{X: 4, Y: 64, Z: 4}
	if err := gen.PlantTree(f.grid, base, gen.DefaultSpecies[0], 5); err != nil {
		t.Fatalf("plant: %v", err)
	}
	conn, _ := f.dial(t, protocol.HelloMsg{ActorName: "alice", Permissions: protocol.Permissions{Use: true}})

	send(t, conn, breakMsg(base.X, base.Y, base.Z, "iron_axe"))
	var out protocol.OutcomeMsg
	read(t, conn, protocol.TypeOutcome, &out)
	if out.Kind != "NATURAL" || out.Logs != 5 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	var h protocol.HarvestMsg
	read(t, conn, protocol.TypeHarvest, &h)
	if h.Logs != 5 || len(h.Collected) != 1 || h.Collected[0].Item != "OAK_LOG" || h.Collected[0].Count != 5 {
		t.Fatalf("unexpected harvest: %+v", h)
	}
	if h.Tool.Damage != 5 {
		t.Fatalf("tool should take one point per log, got %d", h.Tool.Damage)
	}
	if got := len(f.sink.actions(audit.ActionBreak)); got < 5 {
		t.Fatalf("expected break audits for every log, got %d", got)
	}
	for dy := 0; dy < 5; dy++ {
		if f.grid.VoxelAt(base.Add(0, dy, 0)).Kind != treescan.KindAir {
			t.Fatalf("log at +%d still standing", dy)
		}
	}
}

func TestWS_PlacedColumnIsArtificialAndOnlyOriginBreaks(t *testing.T) {
	f := setup(t)
	conn, _ := f.dial(t, protocol.HelloMsg{ActorName: "bob", Permissions: protocol.Permissions{Use: true}})

	for y := 10; y < 14; y++ {
		send(t, conn, protocol.PlaceMsg{Type: protocol.TypePlace, ProtocolVersion: protocol.Version, Pos: [3]int{0, y, 0}, Block: "oak_log", Axis: "y"})
	}
	send(t, conn, breakMsg(0, 10, 0, "IRON_AXE"))
	var out protocol.OutcomeMsg
	read(t, conn, protocol.TypeOutcome, &out)
	if out.Kind != "ARTIFICIAL" || out.Reason != "MIN_LEAVES" {
		t.Fatalf("bare column should lack leaves: %+v", out)
	}
	if got := len(f.sink.actions(audit.ActionPlace)); got != 4 {
		t.Fatalf("expected 4 place audits, got %d", got)
	}
	if f.grid.VoxelAt(treescan.Coord{Y: 10}).Kind != treescan.KindAir {
		t.Fatalf("origin should be broken by the actor")
	}
	if f.grid.VoxelAt(treescan.Coord{Y: 11}).Kind != treescan.KindLog {
		t.Fatalf("rest of the column must stand")
	}
}

func TestWS_ToggleAndLanguage(t *testing.T) {
	f := setup(t)
	conn, _ := f.dial(t, protocol.HelloMsg{ActorName: "carol", Permissions: protocol.Permissions{Use: true}})

	send(t, conn, protocol.ToggleMsg{Type: protocol.TypeToggle, ProtocolVersion: protocol.Version})
	var n protocol.NoticeMsg
	read(t, conn, protocol.TypeNotice, &n)
	if n.Key != "disabled" || !strings.HasPrefix(n.Text, "[Timber] ") {
		t.Fatalf("unexpected toggle notice: %+v", n)
	}

	send(t, conn, protocol.LangMsg{Type: protocol.TypeLang, ProtocolVersion: protocol.Version, Language: "xx"})
	read(t, conn, protocol.TypeNotice, &n)
	if n.Key != "language-invalid" {
		t.Fatalf("unexpected notice: %+v", n)
	}
	send(t, conn, protocol.LangMsg{Type: protocol.TypeLang, ProtocolVersion: protocol.Version, Language: "tr"})
	read(t, conn, protocol.TypeNotice, &n)
	if n.Key != "language-changed" {
		t.Fatalf("unexpected notice: %+v", n)
	}

	if err := f.grid.Place(treescan.Coord{Y: 5}, "OAK_LOG", treescan.AxisY); err != nil {
		t.Fatalf("place: %v", err)
	}
	send(t, conn, breakMsg(0, 5, 0, "IRON_AXE"))
	var out protocol.OutcomeMsg
	read(t, conn, protocol.TypeOutcome, &out)
	if out.Kind != "REJECTED" || out.Reason != "TOGGLED_OFF" {
		t.Fatalf("expected toggled off, got %+v", out)
	}
}

func TestWS_Errors(t *testing.T) {
	f := setup(t)
	if err := f.claims.Add(claims.Claim{ID: "keep", Owner: "dave", Min: treescan.Coord{X: 20, Y: 0, Z: 20}, Max: treescan.Coord{X: 30, Y: 100, Z: 30}}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	conn, _ := f.dial(t, protocol.HelloMsg{ActorName: "eve", Permissions: protocol.Permissions{Use: true}})

	cases := []struct {
		msg  any
		code string
	}{
		{map[string]any{"type": "BREAK", "protocol_version": "0.1"}, protocol.ErrProtoBadRequest},
		{map[string]any{"type": "FLY", "protocol_version": protocol.Version}, protocol.ErrProtoBadRequest},
		{breakMsg(0, 9999, 0, "IRON_AXE"), protocol.ErrInvalidTarget},
		{protocol.PlaceMsg{Type: protocol.TypePlace, ProtocolVersion: protocol.Version, Pos: [3]int{1, 1, 1}, Block: "UNOBTAINIUM"}, protocol.ErrInvalidTarget},
		{protocol.PlaceMsg{Type: protocol.TypePlace, ProtocolVersion: protocol.Version, Pos: [3]int{1, 1, 1}, Block: "OAK_LOG", Axis: "w"}, protocol.ErrBadRequest},
		{protocol.PlaceMsg{Type: protocol.TypePlace, ProtocolVersion: protocol.Version, Pos: [3]int{25, 50, 25}, Block: "OAK_LOG"}, protocol.ErrNoPermission},
	}
	for _, tc := range cases {
		send(t, conn, tc.msg)
		var e protocol.ErrorMsg
		read(t, conn, protocol.TypeError, &e)
		if e.Code != tc.code {
			t.Fatalf("%v: expected %s, got %+v", tc.msg, tc.code, e)
		}
	}
}

func TestWS_RejectsReservedActor(t *testing.T) {
	f := setup(t)
	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	send(t, conn, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ActorName: "#tnt"})
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestWS_RateLimitsActions(t *testing.T) {
	f := setup(t, func(c *Config) { c.MaxActionsPerSecond = 2 })
	conn, _ := f.dial(t, protocol.HelloMsg{ActorName: "mallory"})

	bad := protocol.PlaceMsg{Type: protocol.TypePlace, ProtocolVersion: protocol.Version, Pos: [3]int{1, 1, 1}, Block: "OAK_LOG", Axis: "w"}
	for i := 0; i < 3; i++ {
		send(t, conn, bad)
	}
	for i := 0; i < 3; i++ {
		var e protocol.ErrorMsg
		read(t, conn, protocol.TypeError, &e)
		limited := e.Code == protocol.ErrRateLimit
		if limited != (i == 2) {
			t.Fatalf("reply %d: %+v", i, e)
		}
	}
}
