package timber

import (
	"timbercraft.ai/internal/sim/world/feature/work/chop"
	"timbercraft.ai/internal/sim/world/logic/treescan"
)

type OutcomeKind uint8

const (
	OutcomeRejected OutcomeKind = iota + 1
	OutcomeClassifiedArtificial
	OutcomeScheduled
	OutcomeCompletedNatural
	// OutcomeProtected is delivered only through Listener.Resolved after a provenance check.
	OutcomeProtected
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeRejected:
		return "REJECTED"
	case OutcomeClassifiedArtificial:
		return "ARTIFICIAL"
	case OutcomeScheduled:
		return "SCHEDULED"
	case OutcomeCompletedNatural:
		return "NATURAL"
	case OutcomeProtected:
		return "PROTECTED"
	default:
		return ""
	}
}

type RejectReason string

const (
	RejectDisabled     RejectReason = "DISABLED"
	RejectNoPermission RejectReason = "NO_PERMISSION"
	RejectNotLog       RejectReason = "NOT_LOG"
	RejectToggledOff   RejectReason = "TOGGLED_OFF"
	RejectNoAxe        RejectReason = "NO_AXE"
	RejectNotSneaking  RejectReason = "NOT_SNEAKING"
	RejectRegionDenied RejectReason = "REGION_DENIED"
	RejectInFlight     RejectReason = "IN_FLIGHT"
	RejectUnavailable  RejectReason = "UNAVAILABLE"
)

type ProtectReason string

const (
	ProtectNone      ProtectReason = ""
	ProtectOrigin    ProtectReason = "BLOCK_PLACED"
	ProtectLogs      ProtectReason = "LOGS_PLACED"
	ProtectTreehouse ProtectReason = "TREEHOUSE"
)

type Outcome struct {
	Kind    OutcomeKind
	Reject  RejectReason
	Reason  treescan.Reason
	Protect ProtectReason
	Result  *treescan.Result
	Harvest *chop.Harvest
}

func rejected(r RejectReason) Outcome {
	return Outcome{Kind: OutcomeRejected, Reject: r}
}

type Notice struct {
	Key   string
	Text  string
	Debug bool
}

// Listener receives notices while an attempt runs and the final outcome of a scheduled attempt.
// Calls may arrive from region or background goroutines.
type Listener interface {
	Notice(n Notice)
	Resolved(o Outcome)
}

type nopListener struct{}

func (nopListener) Notice(Notice)    {}
func (nopListener) Resolved(Outcome) {}
