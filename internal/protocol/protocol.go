package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello  = "HELLO"
	TypeBreak  = "BREAK"
	TypePlace  = "PLACE"
	TypeToggle = "TOGGLE"
	TypeDebug  = "DEBUG"
	TypeLang   = "LANG"

	TypeWelcome = "WELCOME"
	TypeOutcome = "OUTCOME"
	TypeNotice  = "NOTICE"
	TypeHarvest = "HARVEST"
	TypeError   = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
