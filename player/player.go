package player

import (
	"fmt"
	"log"
	"net"

	m "github.com/Meander-Cloud/go-quickplay/message"
	"github.com/Meander-Cloud/go-quickplay/store"
)

// Player is one end of a lobby connection. The lobby keeps one per
// accepted connection, a client keeps one for its link to the lobby.
type Player struct {
	ConnID     uint32
	Addr       net.Addr
	Descriptor string

	Info     m.PlayerInfo
	MatchID  uint32 // 0 while unassigned
	IsMaster bool

	Store *store.Store

	logPrefix string
	logDebug  bool
}

func NewPlayer(connID uint32, addr net.Addr, descriptor string, maxFrameSize uint16, logPrefix string, logDebug bool) *Player {
	return &Player{
		ConnID:     connID,
		Addr:       addr,
		Descriptor: descriptor,

		Info:     m.PlayerInfo{},
		MatchID:  0,
		IsMaster: false,

		Store: store.NewStore(maxFrameSize, logPrefix),

		logPrefix: logPrefix,
		logDebug:  logDebug,
	}
}

// IsAvailable reports whether the player may be paired.
func (p *Player) IsAvailable() bool {
	return p.MatchID == 0 && p.Info.Initialized()
}

// Assign records match membership.
func (p *Player) Assign(matchID uint32, isMaster bool) {
	p.MatchID = matchID
	p.IsMaster = isMaster
}

// Unassign returns the player to the available pool.
func (p *Player) Unassign() {
	p.MatchID = 0
	p.IsMaster = false
}

// Send queues msg for the next Flush.
func (p *Player) Send(msg *m.Message) error {
	_, err := p.Store.Enqueue(p.ConnID, msg)
	if err != nil {
		err = fmt.Errorf("%s: %s: failed to enqueue %s, err=%w", p.logPrefix, p.Descriptor, msg, err)
		log.Printf("%s", err.Error())
		return err
	}
	if p.logDebug {
		log.Printf("%s: %s: enqueued %s", p.logPrefix, p.Descriptor, msg)
	}
	return nil
}

// Flush writes every queued frame through write.
func (p *Player) Flush(write func([]byte) error) {
	sent, failed := p.Store.SendMessages(
		func(_ uint32, buf []byte) error {
			return write(buf)
		},
	)
	if failed > 0 {
		log.Printf("%s: %s: flush sent=%d, write failed, remaining frames kept for retry", p.logPrefix, p.Descriptor, sent)
	} else if p.logDebug && sent > 0 {
		log.Printf("%s: %s: flush sent=%d", p.logPrefix, p.Descriptor, sent)
	}
}

// HandleData feeds raw bytes read from the connection and dispatches every
// completed frame through the handle table.
func (p *Player) HandleData(data []byte, hooks Hooks) int {
	return p.Store.HandleData(
		p.ConnID,
		data,
		func(_ uint32, msg *m.Message) {
			p.dispatch(msg, hooks)
		},
	)
}

// Close drops every queued frame of the player.
func (p *Player) Close() {
	purged := p.Store.Purge(p.ConnID)
	if purged > 0 {
		log.Printf("%s: %s: purged %d queued frames", p.logPrefix, p.Descriptor, purged)
	}
}

func (p *Player) String() string {
	return fmt.Sprintf(
		"%s<cores=%d, cpu=%d.%02d, ping=%d, match=%d, master=%t>",
		p.Descriptor,
		p.Info.CoreCount,
		p.Info.CPUSpeedInt,
		p.Info.CPUSpeedFrac,
		p.Info.Ping,
		p.MatchID,
		p.IsMaster,
	)
}
