package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ActorName       string      `json:"actor_name"`
	ActorID         string      `json:"actor_id,omitempty"`
	Language        string      `json:"language,omitempty"`
	Permissions     Permissions `json:"permissions"`
}

type Permissions struct {
	Use    bool `json:"use"`
	Bypass bool `json:"bypass,omitempty"`
}

// BREAK (client -> server): the actor broke the block at Pos with Tool in the main hand.
type BreakMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Pos             [3]int  `json:"pos"`
	Tool            ToolRef `json:"tool"`
	Sneaking        bool    `json:"sneaking,omitempty"`
}

type ToolRef struct {
	Item       string `json:"item"`
	Damage     int    `json:"damage,omitempty"`
	Unbreaking int    `json:"unbreaking,omitempty"`
}

// PLACE (client -> server)
type PlaceMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Pos             [3]int `json:"pos"`
	Block           string `json:"block"`
	Axis            string `json:"axis,omitempty"` // "x","y","z"; logs only
}

// TOGGLE and DEBUG (client -> server) carry no payload.
type ToggleMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// LANG (client -> server)
type LangMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Language        string `json:"language"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	ActorID         string         `json:"actor_id"`
	Enabled         bool           `json:"enabled"`
	Language        string         `json:"language"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type CatalogDigests struct {
	BlockPalette DigestRef `json:"block_palette"`
	ItemPalette  DigestRef `json:"item_palette"`
	TuningDigest string    `json:"tuning_digest,omitempty"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// OUTCOME (server -> client). Kind is REJECTED, ARTIFICIAL, SCHEDULED, NATURAL or PROTECTED;
// Reason holds the reject, classification or protection code for that kind.
type OutcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Pos             [3]int `json:"pos"`
	Kind            string `json:"kind"`
	Reason          string `json:"reason,omitempty"`
	Logs            int    `json:"logs"`
	Leaves          int    `json:"leaves"`
	Structures      int    `json:"structures"`
}

// NOTICE (server -> client)
type NoticeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Key             string `json:"key"`
	Text            string `json:"text"`
	Debug           bool   `json:"debug,omitempty"`
}

// HARVEST (server -> client) follows a NATURAL outcome.
type HarvestMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Logs            int         `json:"logs"`
	Leaves          int         `json:"leaves"`
	Collected       []ItemStack `json:"collected"`
	Dropped         []DropRef   `json:"dropped"`
	Tool            ToolRef     `json:"tool"`
	ToolBroken      bool        `json:"tool_broken"`
}

type ItemStack struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type DropRef struct {
	Item string `json:"item"`
	Pos  [3]int `json:"pos"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
