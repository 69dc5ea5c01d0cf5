package lobby

import (
	"log"

	m "github.com/Meander-Cloud/go-quickplay/message"
	tp "github.com/Meander-Cloud/go-quickplay/net/tcp/protocol"
	"github.com/Meander-Cloud/go-quickplay/player"
)

// Handler receives connection events from the protocol server.
type Handler struct {
	l *Lobby
}

// invoked on arbiter goroutine
func (h *Handler) PlayerJoin(_ *tp.Server, connState *tp.ConnState) {
	h.l.playerJoin(connState.ConnID, connState.Conn.RemoteAddr(), connState.Descriptor)
}

// invoked on arbiter goroutine
func (h *Handler) PlayerData(_ *tp.Server, connState *tp.ConnState, data []byte) {
	h.l.playerData(connState.ConnID, data)
}

// invoked on arbiter goroutine
func (h *Handler) PlayerExit(_ *tp.Server, connState *tp.ConnState) {
	h.l.playerExit(connState.ConnID)
}

// hooks carries the cross-player side effects of frames a player received.
type hooks struct {
	l *Lobby
}

// invoked on arbiter goroutine
func (k *hooks) PlayerInfoSet(p *player.Player) {
	if !p.IsAvailable() {
		return
	}
	k.l.PrepareMatch()
}

// invoked on arbiter goroutine
func (k *hooks) MatchReady(p *player.Player) {
	if p.MatchID == 0 {
		// match dissolved before the master reported, it is ordered again once re-paired
		log.Printf("%s: %s: stale MatchReady, no pending match", k.l.c.LogPrefix, p.Descriptor)
		return
	}

	if !p.IsMaster {
		log.Printf("%s: %s: MatchReady from non-master of match %d", k.l.c.LogPrefix, p.Descriptor, p.MatchID)
		return
	}

	k.l.SendConnectInfo(p.MatchID)
}

// clients order the lobby nothing, the frames are acknowledged and dropped
func (k *hooks) HostingOrder(p *player.Player) {
	log.Printf("%s: %s: unexpected SendHostingOrder from client", k.l.c.LogPrefix, p.Descriptor)
}

func (k *hooks) ConnectInfo(p *player.Player, ci m.ConnectInfo) {
	log.Printf("%s: %s: unexpected SendConnectInfo %+v from client", k.l.c.LogPrefix, p.Descriptor, ci)
}
