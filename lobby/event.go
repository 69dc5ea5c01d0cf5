package lobby

import (
	"time"

	m "github.com/Meander-Cloud/go-quickplay/message"
)

type MatchEventKind uint8

const (
	MatchEventInvalid   MatchEventKind = 0
	MatchEventFormed    MatchEventKind = 1
	MatchEventStarted   MatchEventKind = 2
	MatchEventDissolved MatchEventKind = 3
)

func (k MatchEventKind) String() string {
	switch k {
	case MatchEventInvalid:
		return "Invalid Event"
	case MatchEventFormed:
		return "Formed"
	case MatchEventStarted:
		return "Started"
	case MatchEventDissolved:
		return "Dissolved"
	default:
		return "Unknown Event"
	}
}

type Member struct {
	ConnID   uint32       `json:"conn_id"`
	Address  string       `json:"address"`
	IsMaster bool         `json:"is_master"`
	Info     m.PlayerInfo `json:"info"`
}

// MatchEvent reports a match lifecycle step to the game session side.
type MatchEvent struct {
	Kind    MatchEventKind `json:"kind"`
	LobbyID string         `json:"lobby_id"`
	MatchID uint32         `json:"match_id"`
	Session string         `json:"session"`
	Members []Member       `json:"members"`
	Time    int64          `json:"time"` // epoch milliseconds
}

// EventSink receives match events on the arbiter goroutine and must not block.
type EventSink interface {
	MatchEvent(*MatchEvent)
}

// invoked on arbiter goroutine
func (l *Lobby) publish(kind MatchEventKind, match *Match) {
	if l.sink == nil {
		return
	}

	members := make([]Member, 0, len(match.Players))
	for _, p := range match.Players {
		address := ""
		if p.Addr != nil {
			address = p.Addr.String()
		}
		members = append(
			members,
			Member{
				ConnID:   p.ConnID,
				Address:  address,
				IsMaster: p == match.Master,
				Info:     p.Info,
			},
		)
	}

	l.sink.MatchEvent(
		&MatchEvent{
			Kind:    kind,
			LobbyID: l.id,
			MatchID: match.ID,
			Session: match.Session,
			Members: members,
			Time:    time.Now().UTC().UnixMilli(),
		},
	)
}
