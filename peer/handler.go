package peer

import (
	"log"
	"time"

	m "github.com/Meander-Cloud/go-quickplay/message"
	tp "github.com/Meander-Cloud/go-quickplay/net/tcp/protocol"
	"github.com/Meander-Cloud/go-quickplay/player"
)

type Handler struct {
	pr *Peer
}

// invoked on arbiter goroutine
func (h *Handler) LobbyJoin(_ *tp.Client, connState *tp.ConnState) {
	h.pr.lobbyJoin(connState.ConnID, connState.Conn.RemoteAddr(), connState.Descriptor)
}

// invoked on arbiter goroutine
func (h *Handler) LobbyData(_ *tp.Client, connState *tp.ConnState, data []byte) {
	h.pr.lobbyData(connState.ConnID, data)
}

// invoked on arbiter goroutine
func (h *Handler) LobbyExit(_ *tp.Client, connState *tp.ConnState) {
	h.pr.lobbyExit(connState.ConnID)
}

type hooks struct {
	pr *Peer
}

func (k *hooks) PlayerInfoSet(p *player.Player) {
	log.Printf("%s: %s: unexpected PlayerInfo from lobby", k.pr.c.LogPrefix, p.Descriptor)
}

func (k *hooks) MatchReady(p *player.Player) {
	log.Printf("%s: %s: unexpected MatchReady from lobby", k.pr.c.LogPrefix, p.Descriptor)
}

// invoked on arbiter goroutine
func (k *hooks) HostingOrder(p *player.Player) {
	if p.IsMaster {
		// replayed order not yet answered with MatchReady
		return
	}
	p.IsMaster = true
	log.Printf("%s: %s: ordered to host", k.pr.c.LogPrefix, p.Descriptor)

	lobbyAddress := ""
	if p.Addr != nil {
		lobbyAddress = p.Addr.String()
	}
	k.pr.uc.HostingOrdered(
		&HostingOrdered{
			LobbyAddress: lobbyAddress,
			Time:         time.Now().UTC(),
		},
	)
}

// invoked on arbiter goroutine
func (k *hooks) ConnectInfo(p *player.Player, ci m.ConnectInfo) {
	log.Printf("%s: %s: host is %s %s", k.pr.c.LogPrefix, p.Descriptor, ci.Family, ci.Address)
	p.IsMaster = false

	k.pr.uc.ConnectInfoReceived(
		&ConnectInfoReceived{
			ConnectInfo: ci,
			Time:        time.Now().UTC(),
		},
	)
}
